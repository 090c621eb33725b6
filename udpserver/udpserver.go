// Package udpserver implements the responder side of the UDP-associate
// facility: datagrams arriving over a peer connection are decoded,
// forwarded to their target over a per-flow UDP socket, and responses
// are pumped back as datagrams on the same connection.
package udpserver

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"s2p/collab"
	"s2p/conf"
	"s2p/internal/flog"
	"s2p/transport"
	"s2p/wire"
)

// flow tracks one outbound UDP socket opened on behalf of a flow_id.
// target is updated on every inbound datagram so the response pump
// always addresses the most recently used destination for this flow,
// rather than freezing it at flow creation.
type flow struct {
	mu     sync.Mutex
	target wire.TargetAddress

	socket net.PacketConn
	cancel context.CancelFunc
}

func (f *flow) setTarget(t wire.TargetAddress) {
	f.mu.Lock()
	f.target = t
	f.mu.Unlock()
}

func (f *flow) currentTarget() wire.TargetAddress {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.target
}

// Handler processes UDP-associate datagrams arriving on a PeerConn's
// datagram channel.
type Handler struct {
	udp      conf.UDPConfig
	sockets  collab.SocketFactory
	resolver collab.DnsResolver

	flows *cache.Cache // flow_id -> *flow
}

// Option configures a Handler.
type Option func(*Handler)

// WithUDPConfig overrides the default UDPConfig.
func WithUDPConfig(c conf.UDPConfig) Option {
	return func(h *Handler) { h.udp = c }
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
		udp:      conf.UDPConfig{IdleTimeoutSeconds: 60, DNSTimeoutSeconds: 5, MaxDatagramSize: 65507},
		sockets:  collab.NewDefaultSocketFactory(),
		resolver: collab.NewDefaultDnsResolver(),
	}
	for _, opt := range opts {
		opt(h)
	}

	// The 60s idle timeout is enforced by pumpResponses' own read
	// deadline loop, not by go-cache's janitor: entries carry
	// cache.NoExpiration and are inserted/removed explicitly by
	// flowFor/pumpResponses, matching a lock-guarded map's lifecycle
	// rather than a dedicated actor goroutine.
	h.flows = cache.New(cache.NoExpiration, cache.NoExpiration)
	return h
}

// Run reads datagrams off conn until ctx is done or the connection
// closes, dispatching each to its flow's outbound socket.
func (h *Handler) Run(ctx context.Context, conn transport.PeerConn) {
	for {
		data, err := conn.ReceiveDatagram(ctx)
		if err != nil {
			if ctx.Err() == nil {
				flog.Debugf("udpserver: datagram channel closed: %v", err)
			}
			return
		}
		h.handleDatagram(ctx, conn, data)
	}
}

func (h *Handler) handleDatagram(ctx context.Context, conn transport.PeerConn, data []byte) {
	dg, err := wire.DecodeUdpDatagram(data)
	if err != nil {
		flog.Errorf("udpserver: failed to decode datagram: %v", err)
		return
	}

	f, err := h.flowFor(ctx, conn, dg.FlowID)
	if err != nil {
		flog.Errorf("udpserver: failed to open flow %d: %v", dg.FlowID, err)
		return
	}
	f.setTarget(dg.Target)

	addr, err := h.resolve(ctx, dg.Target)
	if err != nil {
		flog.Errorf("udpserver: failed to resolve target %s for flow %d: %v", dg.Target, dg.FlowID, err)
		return
	}

	if _, err := f.socket.WriteTo(dg.Data, addr); err != nil {
		flog.Errorf("udpserver: write to target %s for flow %d failed: %v", addr, dg.FlowID, err)
	}
}

func (h *Handler) flowFor(ctx context.Context, conn transport.PeerConn, flowID uint8) (*flow, error) {
	key := flowKey(flowID)
	if v, ok := h.flows.Get(key); ok {
		return v.(*flow), nil
	}
	if limit := h.udp.MaxAssociations; limit > 0 && h.flows.ItemCount() >= limit {
		return nil, errors.Errorf("udpserver: association limit %d reached", limit)
	}

	socket, err := h.sockets.ListenUDP(ctx, "0.0.0.0:0")
	if err != nil {
		return nil, errors.Wrap(err, "udpserver: open flow socket failed")
	}

	flowCtx, cancel := context.WithCancel(context.Background())
	f := &flow{socket: socket, cancel: cancel}

	h.flows.Set(key, f, cache.NoExpiration)

	go h.pumpResponses(flowCtx, conn, flowID, f)

	return f, nil
}

// pumpResponses reads datagrams from f's outbound socket and relays
// them back over conn, stamped with the target most recently seen for
// this flow_id rather than the one in effect when the flow was
// created.
func (h *Handler) pumpResponses(ctx context.Context, conn transport.PeerConn, flowID uint8, f *flow) {
	buf := make([]byte, h.udp.MaxDatagramSize)
	idle := time.Duration(h.udp.IdleTimeoutSeconds) * time.Second

	defer func() {
		h.flows.Delete(flowKey(flowID))
		f.cancel()
		f.socket.Close()
	}()

	for {
		f.socket.SetReadDeadline(time.Now().Add(idle))

		n, _, err := f.socket.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				flog.Debugf("udpserver: flow %d idle, cleaning up", flowID)
				return
			}
			flog.Debugf("udpserver: flow %d socket error: %v", flowID, err)
			return
		}

		resp := wire.UdpDatagram{
			FlowID: flowID,
			Target: f.currentTarget(),
			Data:   append([]byte(nil), buf[:n]...),
		}
		encoded, err := wire.EncodeUdpDatagram(nil, resp)
		if err != nil {
			flog.Errorf("udpserver: failed to encode response for flow %d: %v", flowID, err)
			continue
		}
		if err := conn.SendDatagram(encoded); err != nil {
			flog.Errorf("udpserver: failed to send response for flow %d: %v", flowID, err)
			return
		}
	}
}

func (h *Handler) resolve(ctx context.Context, target wire.TargetAddress) (net.Addr, error) {
	if target.Host.Type != wire.AddrDomain {
		return &net.UDPAddr{IP: target.Host.IP, Port: int(target.Port)}, nil
	}

	resolveCtx, cancel := context.WithTimeout(ctx, h.udp.DNSTimeout())
	defer cancel()

	ips, err := h.resolver.LookupHost(resolveCtx, target.Host.Domain)
	if err != nil || len(ips) == 0 {
		return nil, errors.Errorf("udpserver: dns lookup for %s failed: %v", target.Host.Domain, err)
	}
	return &net.UDPAddr{IP: ips[0], Port: int(target.Port)}, nil
}

func flowKey(flowID uint8) string {
	return string([]byte{flowID})
}
