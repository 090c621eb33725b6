// Package transport defines the peer-connection contract that the
// TCP-CONNECT and UDP-associate facilities run on top of: a
// multiplexed, authenticated peer connection offering ordered
// substreams plus best-effort unreliable datagrams. Concrete backends
// live in the quicpeer and kcppeer subpackages.
package transport

import (
	"context"
	"encoding/hex"
	"io"
	"net"

	"golang.org/x/crypto/blake2b"
)

// NodeID identifies a peer. It is derived from the peer's static
// public key so that it is stable across reconnects.
type NodeID [32]byte

// NodeIDFromPublicKey derives a NodeID from a peer's raw public key
// bytes.
func NodeIDFromPublicKey(pub []byte) NodeID {
	return NodeID(blake2b.Sum256(pub))
}

// String returns the full hex encoding of the id.
func (id NodeID) String() string {
	return hex.EncodeToString(id[:])
}

// ShortString returns an 8 hex character prefix, suitable for log
// lines.
func (id NodeID) ShortString() string {
	return hex.EncodeToString(id[:4])
}

// Stream is one substream of a PeerConn: an ordered, reliable,
// bidirectional byte stream whose two halves can be shut down
// independently.
type Stream interface {
	io.Reader
	io.Writer

	// CloseWrite shuts down the send half only; the peer observes EOF
	// on its corresponding read half, but frames already in flight in
	// the other direction continue to arrive.
	CloseWrite() error

	// Close tears down both halves immediately.
	Close() error
}

// PeerConn is an established, authenticated connection to one peer.
// It multiplexes substreams and carries an independent unreliable
// datagram channel.
type PeerConn interface {
	// OpenStream opens a new outbound substream.
	OpenStream(ctx context.Context) (Stream, error)

	// AcceptStream blocks until the peer opens a substream, or ctx is
	// done, or the connection closes.
	AcceptStream(ctx context.Context) (Stream, error)

	// SendDatagram transmits data as a single unreliable datagram. It
	// may be dropped in flight and is never retransmitted.
	SendDatagram(data []byte) error

	// ReceiveDatagram blocks until a datagram arrives, or ctx is done,
	// or the connection closes.
	ReceiveDatagram(ctx context.Context) ([]byte, error)

	// RemoteNodeID identifies the connected peer.
	RemoteNodeID() NodeID

	LocalAddr() net.Addr
	RemoteAddr() net.Addr

	// Close tears down the connection and every open substream.
	Close() error
}

// Listener accepts inbound PeerConns.
type Listener interface {
	Accept(ctx context.Context) (PeerConn, error)
	Addr() net.Addr
	Close() error
}
