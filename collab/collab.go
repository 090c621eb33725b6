// Package collab holds the pluggable collaborators the proxy server
// and client delegate to instead of calling the OS directly: opening
// sockets, resolving names, and deciding whether to accept a peer.
// Each has an OS-backed default and exists so that callers can swap in
// fakes for testing or policy for production.
package collab

import (
	"context"
	"net"

	"s2p/transport"
)

// SocketFactory opens the outbound sockets a TCP-CONNECT or
// UDP-associate handler needs to reach the requested target.
type SocketFactory interface {
	DialTCP(ctx context.Context, addr string) (net.Conn, error)
	ListenUDP(ctx context.Context, bindAddr string) (net.PacketConn, error)
}

// DnsResolver resolves a hostname to the set of addresses a handler
// may attempt to connect to, in order.
type DnsResolver interface {
	LookupHost(ctx context.Context, host string) ([]net.IP, error)
}

// NodeAuthenticator decides whether an inbound peer connection from
// nodeID should be accepted, before any substream is processed.
type NodeAuthenticator interface {
	ShouldAccept(ctx context.Context, nodeID transport.NodeID) bool
}
