// Package tcpclient implements the initiator side of the TCP-CONNECT
// facility: open a substream, send a request, and wait for a status
// response before handing the caller a live duplex stream.
package tcpclient

import (
	"context"

	"github.com/pkg/errors"

	"s2p/conf"
	"s2p/duplex"
	"s2p/transport"
	"s2p/wire"
)

// ProtocolError is returned by Connect when the responder answers
// with a non-Success status.
type ProtocolError struct {
	Status wire.StatusCode
}

func (e *ProtocolError) Error() string {
	return "tcpclient: connect refused: " + e.Status.String()
}

// InvalidRequest is returned by Connect when the responder's reply
// frame is read in full but fails to decode as a TcpConnectResponse,
// as distinct from a plain IO failure reading it.
type InvalidRequest struct {
	Err error
}

func (e *InvalidRequest) Error() string {
	return "tcpclient: invalid response frame: " + e.Err.Error()
}

func (e *InvalidRequest) Unwrap() error { return e.Err }

// Client issues TCP-CONNECT requests over an established peer
// connection.
type Client struct {
	conn     transport.PeerConn
	timeouts conf.ClientTimeouts
}

// Option configures a Client.
type Option func(*Client)

// WithTimeouts overrides the default ClientTimeouts.
func WithTimeouts(t conf.ClientTimeouts) Option {
	return func(c *Client) { c.timeouts = t }
}

// New builds a Client bound to conn.
func New(conn transport.PeerConn, opts ...Option) *Client {
	c := &Client{conn: conn, timeouts: conf.DefaultClientTimeouts()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect opens a new substream, requests target, and returns a
// duplex stream ready for application data once the responder answers
// Success.
func (c *Client) Connect(ctx context.Context, target wire.TargetAddress) (*duplex.Stream, error) {
	s, err := c.conn.OpenStream(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "tcpclient: open stream failed")
	}

	if err := c.sendRequest(ctx, s, target); err != nil {
		s.Close()
		return nil, err
	}

	status, err := c.readResponse(ctx, s)
	if err != nil {
		s.Close()
		return nil, err
	}
	if status != wire.Success {
		s.Close()
		return nil, &ProtocolError{Status: status}
	}

	return duplex.New(s), nil
}

func (c *Client) sendRequest(ctx context.Context, s transport.Stream, target wire.TargetAddress) error {
	buf, err := wire.EncodeTcpConnectRequest(nil, wire.TcpConnectRequest{Target: target})
	if err != nil {
		return errors.Wrap(err, "tcpclient: encode request failed")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Request)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := s.Write(buf)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return errors.Wrap(err, "tcpclient: write request failed")
		}
		return nil
	case <-ctx.Done():
		return errors.New("tcpclient: request timed out")
	}
}

func (c *Client) readResponse(ctx context.Context, s transport.Stream) (wire.StatusCode, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Response)
	defer cancel()

	type result struct {
		status wire.StatusCode
		err    error
	}
	done := make(chan result, 1)
	go func() {
		buf := make([]byte, 1)
		if _, err := readFull(s, buf); err != nil {
			done <- result{err: errors.Wrap(err, "tcpclient: read response failed")}
			return
		}
		resp, _, err := wire.DecodeTcpConnectResponse(buf)
		if err != nil {
			done <- result{err: &InvalidRequest{Err: err}}
			return
		}
		done <- result{status: resp.Status}
	}()

	select {
	case res := <-done:
		return res.status, res.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func readFull(s transport.Stream, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := s.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

