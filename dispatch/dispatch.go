// Package dispatch wires an accepted peer connection to the
// TCP-CONNECT and UDP-associate handlers: one goroutine accepts
// substreams and spawns a tcpserver.Handler per stream, another reads
// datagrams and feeds them to a udpserver.Handler, and the two run
// side by side for the life of the connection.
package dispatch

import (
	"context"
	"net"
	"sync"

	"s2p/collab"
	"s2p/internal/flog"
	"s2p/tcpserver"
	"s2p/transport"
	"s2p/udpserver"
)

// Listener accepts peer connections and dispatches each to its own
// substream/datagram pump until ctx is cancelled or the listener
// closes.
type Listener struct {
	listener transport.Listener
	auth     collab.NodeAuthenticator
	tcp      *tcpserver.Handler
	udp      *udpserver.Handler
}

// Option configures a Listener.
type Option func(*Listener)

// WithAuthenticator overrides the default allow-all NodeAuthenticator.
func WithAuthenticator(a collab.NodeAuthenticator) Option {
	return func(l *Listener) { l.auth = a }
}

// WithTcpHandler overrides the default tcpserver.Handler.
func WithTcpHandler(h *tcpserver.Handler) Option {
	return func(l *Listener) { l.tcp = h }
}

// WithUdpHandler overrides the default udpserver.Handler.
func WithUdpHandler(h *udpserver.Handler) Option {
	return func(l *Listener) { l.udp = h }
}

// New wraps an accepting transport.Listener with the dispatch loop.
func New(ln transport.Listener, opts ...Option) *Listener {
	l := &Listener{
		listener: ln,
		auth:     collab.AllowAllAuthenticator{},
		tcp:      tcpserver.NewHandler(),
		udp:      udpserver.NewHandler(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Serve accepts peer connections until ctx is done or the listener
// returns a terminal error.
func (l *Listener) Serve(ctx context.Context) error {
	for {
		conn, err := l.listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if !l.auth.ShouldAccept(ctx, conn.RemoteNodeID()) {
			flog.Warnf("dispatch: rejecting unauthenticated peer %s", conn.RemoteNodeID().ShortString())
			conn.Close()
			continue
		}

		go l.dispatch(ctx, conn)
	}
}

// Addr returns the listener's bound address.
func (l *Listener) Addr() net.Addr { return l.listener.Addr() }

// Close shuts down the underlying listener.
func (l *Listener) Close() error { return l.listener.Close() }

// dispatch races a substream-accept loop against the datagram pump
// for one peer connection; either side finishing tears down the
// other.
func (l *Listener) dispatch(ctx context.Context, conn transport.PeerConn) {
	defer conn.Close()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		defer cancel()
		l.acceptStreams(connCtx, conn)
	}()

	go func() {
		defer wg.Done()
		defer cancel()
		l.udp.Run(connCtx, conn)
	}()

	wg.Wait()
	flog.Debugf("dispatch: connection from %s torn down", conn.RemoteNodeID().ShortString())
}

func (l *Listener) acceptStreams(ctx context.Context, conn transport.PeerConn) {
	for {
		s, err := conn.AcceptStream(ctx)
		if err != nil {
			if ctx.Err() == nil {
				flog.Debugf("dispatch: accept stream from %s ended: %v", conn.RemoteNodeID().ShortString(), err)
			}
			return
		}
		go l.tcp.HandleStream(ctx, s)
	}
}
