package tcpclient

import (
	"context"
	"errors"
	"net"
	"testing"

	"s2p/conf"
	"s2p/transport"
	"s2p/wire"
)

// pipeStream adapts a net.Conn half of a net.Pipe to transport.Stream
// for driving Connect end to end without a real transport backend.
type pipeStream struct {
	net.Conn
}

func (p *pipeStream) CloseWrite() error { return p.Conn.Close() }

// fakeConn is a minimal transport.PeerConn that hands out one
// preconnected substream per OpenStream call.
type fakeConn struct {
	streams chan transport.Stream
}

func (f *fakeConn) OpenStream(ctx context.Context) (transport.Stream, error) {
	select {
	case s := <-f.streams:
		return s, nil
	default:
		return nil, errors.New("no stream queued")
	}
}
func (f *fakeConn) AcceptStream(ctx context.Context) (transport.Stream, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeConn) SendDatagram([]byte) error                       { return errors.New("not implemented") }
func (f *fakeConn) ReceiveDatagram(context.Context) ([]byte, error) { return nil, errors.New("not implemented") }
func (f *fakeConn) RemoteNodeID() transport.NodeID                  { return transport.NodeID{} }
func (f *fakeConn) LocalAddr() net.Addr                              { return nil }
func (f *fakeConn) RemoteAddr() net.Addr                             { return nil }
func (f *fakeConn) Close() error                                     { return nil }

func newFakeConnWithStream(s transport.Stream) *fakeConn {
	ch := make(chan transport.Stream, 1)
	ch <- s
	return &fakeConn{streams: ch}
}

func TestConnectSuccessReturnsDuplexStream(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer serverSide.Close()

	conn := newFakeConnWithStream(&pipeStream{clientSide})
	c := New(conn)

	go func() {
		buf := make([]byte, 7)
		serverSide.Read(buf)
		serverSide.Write([]byte{byte(wire.Success)})
	}()

	target := wire.TargetAddress{Host: wire.HostFromIP(net.ParseIP("1.2.3.4")), Port: 80}
	stream, err := c.Connect(context.Background(), target)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if stream == nil {
		t.Fatal("expected non-nil stream")
	}
}

func TestConnectProtocolErrorReturnsProtocolError(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer serverSide.Close()

	conn := newFakeConnWithStream(&pipeStream{clientSide})
	c := New(conn)

	go func() {
		buf := make([]byte, 7)
		serverSide.Read(buf)
		serverSide.Write([]byte{byte(wire.HostUnreachable)})
	}()

	target := wire.TargetAddress{Host: wire.HostFromIP(net.ParseIP("1.2.3.4")), Port: 80}
	_, err := c.Connect(context.Background(), target)
	if err == nil {
		t.Fatal("expected error")
	}
	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("expected *ProtocolError, got %T: %v", err, err)
	}
	if protoErr.Status != wire.HostUnreachable {
		t.Fatalf("expected HostUnreachable, got %v", protoErr.Status)
	}
}

func TestConnectInvalidResponseFrameReturnsInvalidRequest(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer serverSide.Close()

	conn := newFakeConnWithStream(&pipeStream{clientSide})
	c := New(conn)

	go func() {
		buf := make([]byte, 7)
		serverSide.Read(buf)
		serverSide.Write([]byte{0xff}) // not a valid StatusCode
	}()

	target := wire.TargetAddress{Host: wire.HostFromIP(net.ParseIP("1.2.3.4")), Port: 80}
	_, err := c.Connect(context.Background(), target)
	if err == nil {
		t.Fatal("expected error")
	}
	var invalidReq *InvalidRequest
	if !errors.As(err, &invalidReq) {
		t.Fatalf("expected *InvalidRequest, got %T: %v", err, err)
	}
}

func TestConnectRequestTimeout(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	conn := newFakeConnWithStream(&pipeStream{clientSide})
	c := New(conn, WithTimeouts(conf.ClientTimeouts{Request: 1, Response: 1}))

	target := wire.TargetAddress{Host: wire.HostFromIP(net.ParseIP("1.2.3.4")), Port: 80}
	if _, err := c.Connect(context.Background(), target); err == nil {
		t.Fatal("expected timeout error")
	}
}

