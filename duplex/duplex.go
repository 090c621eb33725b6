// Package duplex adapts a transport.Stream's independent recv/send
// halves into a single object satisfying io.ReadWriteCloser, for code
// that wants to splice a substream against a plain net.Conn without
// caring which transport backend opened it. It holds no internal
// buffers: every Write is forwarded to the underlying stream
// immediately, so Flush is a no-op kept only to satisfy callers that
// expect one.
package duplex

import (
	"s2p/transport"
)

// Stream wraps a transport.Stream.
type Stream struct {
	s transport.Stream
}

// New wraps s.
func New(s transport.Stream) *Stream {
	return &Stream{s: s}
}

func (d *Stream) Read(p []byte) (int, error) {
	return d.s.Read(p)
}

func (d *Stream) Write(p []byte) (int, error) {
	return d.s.Write(p)
}

// Flush is a no-op: writes are never buffered by this type.
func (d *Stream) Flush() error {
	return nil
}

// CloseWrite shuts down the send half only; a peer reading from the
// corresponding recv half observes EOF, but this side can still read
// whatever the peer continues to send.
func (d *Stream) CloseWrite() error {
	return d.s.CloseWrite()
}

// Close tears down both halves.
func (d *Stream) Close() error {
	return d.s.Close()
}
