// Package tcpserver implements the responder side of the TCP-CONNECT
// facility: read a request off a freshly opened substream, resolve
// and dial the target, answer with a status, then splice.
package tcpserver

import (
	"context"
	"errors"
	"net"
	"syscall"

	"s2p/collab"
	"s2p/conf"
	"s2p/internal/flog"
	"s2p/internal/pkg/buffer"
	"s2p/transport"
	"s2p/wire"
)

// Handler processes TCP-CONNECT requests arriving on substreams.
type Handler struct {
	timeouts conf.ProxyTimeouts
	sockets  collab.SocketFactory
	resolver collab.DnsResolver
}

// Option configures a Handler.
type Option func(*Handler)

// WithTimeouts overrides the default ProxyTimeouts.
func WithTimeouts(t conf.ProxyTimeouts) Option {
	return func(h *Handler) { h.timeouts = t }
}

// WithSocketFactory overrides the default OS-backed SocketFactory.
func WithSocketFactory(f collab.SocketFactory) Option {
	return func(h *Handler) { h.sockets = f }
}

// WithDnsResolver overrides the default OS-backed DnsResolver.
func WithDnsResolver(r collab.DnsResolver) Option {
	return func(h *Handler) { h.resolver = r }
}

// NewHandler builds a Handler with OS-backed defaults, overridden by
// opts.
func NewHandler(opts ...Option) *Handler {
	h := &Handler{
		timeouts: conf.DefaultProxyTimeouts(),
		sockets:  collab.NewDefaultSocketFactory(),
		resolver: collab.NewDefaultDnsResolver(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleStream drives one substream through the full request →
// resolve → connect → respond → splice state machine. It always
// closes s before returning.
func (h *Handler) HandleStream(ctx context.Context, s transport.Stream) {
	defer s.Close()

	req, status, drop := h.readRequest(ctx, s)
	if drop {
		return
	}
	if status != wire.Success {
		h.sendResponse(s, status)
		return
	}

	target, status := h.dial(ctx, req.Target)
	if status != wire.Success {
		h.sendResponse(s, status)
		return
	}
	defer target.Close()

	if err := h.sendResponse(s, wire.Success); err != nil {
		flog.Errorf("tcpserver: failed to send success response: %v", err)
		return
	}

	splice(s, target)
}

// readRequest reads one TcpConnectRequest off s. The third return
// value reports whether the substream should simply be dropped with
// no response: a handshake timeout or any IO/EOF failure reading the
// request gets no response, since the peer may not even be speaking
// this protocol. Only a genuine frame-decode failure (bad address
// type, invalid domain encoding, ...) earns a status response.
func (h *Handler) readRequest(ctx context.Context, s transport.Stream) (*wire.TcpConnectRequest, wire.StatusCode, bool) {
	ctx, cancel := context.WithTimeout(ctx, h.timeouts.Handshake)
	defer cancel()

	req, err := readTcpConnectRequest(ctx, s)
	if err == nil {
		return req, wire.Success, false
	}

	var ce codecError
	if errors.As(err, &ce) {
		flog.Errorf("tcpserver: failed to decode request: %v", err)
		return nil, wire.StatusForError(ce.err), false
	}

	flog.Debugf("tcpserver: handshake read failed, dropping substream: %v", err)
	return nil, 0, true
}

// codecError marks a genuine frame-decode failure, as opposed to a
// handshake-time IO failure (timeout, EOF, reset). Only the former
// gets a status response before the substream is dropped.
type codecError struct{ err error }

func (e codecError) Error() string { return e.err.Error() }
func (e codecError) Unwrap() error { return e.err }

func (h *Handler) dial(ctx context.Context, target wire.TargetAddress) (net.Conn, wire.StatusCode) {
	addr, status := h.resolve(ctx, target)
	if status != wire.Success {
		return nil, status
	}

	dialCtx, cancel := context.WithTimeout(ctx, h.timeouts.Connect)
	defer cancel()

	conn, err := h.sockets.DialTCP(dialCtx, addr)
	if err != nil {
		flog.Errorf("tcpserver: connect to %s failed: %v", addr, err)
		return nil, statusForDialError(err, dialCtx)
	}
	return conn, wire.Success
}

func (h *Handler) resolve(ctx context.Context, target wire.TargetAddress) (string, wire.StatusCode) {
	if target.Host.Type != wire.AddrDomain {
		return target.String(), wire.Success
	}

	resolveCtx, cancel := context.WithTimeout(ctx, h.timeouts.DNS)
	defer cancel()

	ips, err := h.resolver.LookupHost(resolveCtx, target.Host.Domain)
	if err != nil || len(ips) == 0 {
		flog.Errorf("tcpserver: dns lookup for %s failed: %v", target.Host.Domain, err)
		return "", wire.HostUnreachable
	}

	return (&net.TCPAddr{IP: ips[0], Port: int(target.Port)}).String(), wire.Success
}

func (h *Handler) sendResponse(s transport.Stream, status wire.StatusCode) error {
	buf := wire.EncodeTcpConnectResponse(nil, wire.TcpConnectResponse{Status: status})
	_, err := s.Write(buf)
	return err
}

func statusForDialError(err error, ctx context.Context) wire.StatusCode {
	if ctx.Err() != nil {
		return wire.TTLExpired
	}
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return wire.ConnectionRefused
	case errors.Is(err, syscall.ENETUNREACH):
		return wire.NetworkUnreachable
	case errors.Is(err, syscall.EHOSTUNREACH):
		return wire.HostUnreachable
	default:
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return wire.TTLExpired
		}
		return wire.GeneralFailure
	}
}

// splice copies in both directions between s and target until either
// side is done, then shuts the other side's write half so in-flight
// bytes still drain.
func splice(s transport.Stream, target net.Conn) {
	errCh := make(chan error, 2)
	go func() {
		err := buffer.CopyT(target, s)
		_ = closeWrite(target)
		errCh <- err
	}()
	go func() {
		err := buffer.CopyT(s, target)
		_ = s.CloseWrite()
		errCh <- err
	}()

	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil {
			flog.Debugf("tcpserver: splice half closed: %v", err)
		}
	}
}

func closeWrite(conn net.Conn) error {
	type closeWriter interface {
		CloseWrite() error
	}
	if cw, ok := conn.(closeWriter); ok {
		return cw.CloseWrite()
	}
	return nil
}

// readTcpConnectRequest reads exactly one TcpConnectRequest frame off
// r, growing its read buffer incrementally per the codec's
// need-more-bytes contract.
func readTcpConnectRequest(ctx context.Context, r interface{ Read([]byte) (int, error) }) (*wire.TcpConnectRequest, error) {
	type result struct {
		req *wire.TcpConnectRequest
		err error
	}
	done := make(chan result, 1)
	go func() {
		buf := make([]byte, 0, 32)
		tmp := make([]byte, 32)
		for {
			n, err := r.Read(tmp)
			if n > 0 {
				buf = append(buf, tmp[:n]...)
				if req, _, decErr := wire.DecodeTcpConnectRequest(buf); decErr == nil {
					done <- result{req: req}
					return
				} else if decErr != wire.ErrShortBuffer {
					done <- result{err: codecError{decErr}}
					return
				}
			}
			if err != nil {
				done <- result{err: err}
				return
			}
		}
	}()

	select {
	case res := <-done:
		return res.req, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

