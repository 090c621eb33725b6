// Package quicpeer implements transport.PeerConn on top of quic-go,
// using QUIC streams as substreams and QUIC datagrams as the
// unreliable channel.
package quicpeer

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"

	"s2p/internal/flog"
	"s2p/transport"
)

// ALPN is the application protocol token negotiated during the QUIC
// handshake.
const ALPN = "s2p/1"

// Config carries the knobs needed to dial or listen.
type Config struct {
	TLSConfig        *tls.Config
	HandshakeTimeout time.Duration
	KeepAlivePeriod  time.Duration
	MaxIdleTimeout   time.Duration
}

func (c *Config) quicConfig() *quic.Config {
	return &quic.Config{
		HandshakeIdleTimeout: c.HandshakeTimeout,
		KeepAlivePeriod:      c.KeepAlivePeriod,
		MaxIdleTimeout:       c.MaxIdleTimeout,
		EnableDatagrams:      true,
	}
}

func (c *Config) tlsConfig() *tls.Config {
	tc := c.TLSConfig.Clone()
	tc.NextProtos = []string{ALPN}
	return tc
}

// Dial establishes an outbound peer connection over an already-bound
// packet connection.
func Dial(ctx context.Context, pConn net.PacketConn, addr net.Addr, cfg *Config) (transport.PeerConn, error) {
	qConn, err := quic.Dial(ctx, pConn, addr, cfg.tlsConfig(), cfg.quicConfig())
	if err != nil {
		return nil, errors.Wrap(err, "quicpeer: dial failed")
	}
	flog.Debugf("quicpeer: connection established to %s", addr)
	return newConn(qConn)
}

// Listener accepts inbound peer connections.
type Listener struct {
	ql *quic.Listener
}

// Listen creates a Listener bound to pConn.
func Listen(pConn net.PacketConn, cfg *Config) (*Listener, error) {
	ql, err := quic.Listen(pConn, cfg.tlsConfig(), cfg.quicConfig())
	if err != nil {
		return nil, errors.Wrap(err, "quicpeer: listen failed")
	}
	return &Listener{ql: ql}, nil
}

func (l *Listener) Accept(ctx context.Context) (transport.PeerConn, error) {
	qConn, err := l.ql.Accept(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "quicpeer: accept failed")
	}
	flog.Debugf("quicpeer: accepted connection from %s", qConn.RemoteAddr())
	return newConn(qConn)
}

func (l *Listener) Addr() net.Addr { return l.ql.Addr() }
func (l *Listener) Close() error   { return l.ql.Close() }

// Conn wraps a *quic.Conn and implements transport.PeerConn.
type Conn struct {
	q      *quic.Conn
	nodeID transport.NodeID
}

func newConn(q *quic.Conn) (*Conn, error) {
	state := q.ConnectionState().TLS
	var nodeID transport.NodeID
	if len(state.PeerCertificates) > 0 {
		nodeID = transport.NodeIDFromPublicKey(state.PeerCertificates[0].RawSubjectPublicKeyInfo)
	}
	return &Conn{q: q, nodeID: nodeID}, nil
}

func (c *Conn) OpenStream(ctx context.Context) (transport.Stream, error) {
	s, err := c.q.OpenStreamSync(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "quicpeer: open stream failed")
	}
	return &stream{s}, nil
}

func (c *Conn) AcceptStream(ctx context.Context) (transport.Stream, error) {
	s, err := c.q.AcceptStream(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "quicpeer: accept stream failed")
	}
	return &stream{s}, nil
}

func (c *Conn) SendDatagram(data []byte) error {
	if err := c.q.SendDatagram(data); err != nil {
		return errors.Wrap(err, "quicpeer: send datagram failed")
	}
	return nil
}

func (c *Conn) ReceiveDatagram(ctx context.Context) ([]byte, error) {
	data, err := c.q.ReceiveDatagram(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "quicpeer: receive datagram failed")
	}
	return data, nil
}

func (c *Conn) RemoteNodeID() transport.NodeID { return c.nodeID }
func (c *Conn) LocalAddr() net.Addr            { return c.q.LocalAddr() }
func (c *Conn) RemoteAddr() net.Addr           { return c.q.RemoteAddr() }

func (c *Conn) Close() error {
	return c.q.CloseWithError(0, "closed")
}

// stream adapts a *quic.Stream to transport.Stream.
type stream struct {
	s *quic.Stream
}

func (s *stream) Read(p []byte) (int, error)  { return s.s.Read(p) }
func (s *stream) Write(p []byte) (int, error) { return s.s.Write(p) }
func (s *stream) CloseWrite() error           { return s.s.Close() }
func (s *stream) Close() error {
	s.s.CancelRead(0)
	return s.s.Close()
}

// InsecureSkipVerifyConfig is a convenience for test and development
// setups that do not need certificate pinning; production deployments
// should supply a Config with proper root CAs via a *x509.CertPool.
func InsecureSkipVerifyConfig(roots *x509.CertPool) *tls.Config {
	return &tls.Config{
		RootCAs:            roots,
		InsecureSkipVerify: roots == nil,
	}
}
