// Package kcppeer implements transport.PeerConn on top of a
// FEC-protected KCP session multiplexed with smux. Unlike quicpeer,
// the underlying transport has no native unreliable-datagram
// primitive, so the datagram channel is emulated over one dedicated
// smux stream of length-prefixed frames: sends wait for the stream's
// writer, while inbound datagrams are dropped rather than queued when
// the receiver is not keeping up, so a datagram may still be lost, at
// the cost of occasional head-of-line delay that a true UDP datagram
// would not have.
package kcppeer

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/xtaci/kcp-go/v5"
	"github.com/xtaci/smux"

	"s2p/internal/flog"
	"s2p/internal/pkg/buffer"
	"s2p/transport"
)

// Config carries the knobs needed to dial or listen.
type Config struct {
	// Key is the chacha20 stream cipher key (chacha20.KeySize bytes,
	// e.g. from DeriveKey) for KCP's packet-level encryption.
	Key []byte

	SmuxBuf   int
	StreamBuf int

	DatagramQueueSize int
	DatagramMaxSize   int
}

func (c *Config) smuxConfig() *smux.Config {
	sc := smux.DefaultConfig()
	sc.Version = 2
	sc.KeepAliveInterval = 1 * time.Second
	sc.KeepAliveTimeout = 5 * time.Second
	sc.MaxFrameSize = 65535
	if c.SmuxBuf > 0 {
		sc.MaxReceiveBuffer = c.SmuxBuf
	}
	if c.StreamBuf > 0 {
		sc.MaxStreamBuffer = c.StreamBuf
	}
	return sc
}

func (c *Config) queueSize() int {
	if c.DatagramQueueSize > 0 {
		return c.DatagramQueueSize
	}
	return 64
}

func (c *Config) maxDatagramSize() int {
	if c.DatagramMaxSize > 0 {
		return c.DatagramMaxSize
	}
	return 65507
}

// Dial establishes an outbound peer connection to raddr.
func Dial(ctx context.Context, raddr string, cfg *Config) (transport.PeerConn, error) {
	block, err := newBlockCrypt(cfg.Key)
	if err != nil {
		return nil, errors.Wrap(err, "kcppeer: block cipher setup failed")
	}
	sess, err := kcp.DialWithOptions(raddr, block, 10, 3)
	if err != nil {
		return nil, errors.Wrap(err, "kcppeer: dial failed")
	}
	tuneSession(sess)

	smuxSess, err := smux.Client(sess, cfg.smuxConfig())
	if err != nil {
		sess.Close()
		return nil, errors.Wrap(err, "kcppeer: smux client handshake failed")
	}

	c, err := newConn(smuxSess, sess.RemoteAddr(), cfg, true)
	if err != nil {
		smuxSess.Close()
		return nil, err
	}
	flog.Debugf("kcppeer: connection established to %s", raddr)
	return c, nil
}

// Listener accepts inbound peer connections.
type Listener struct {
	kl  *kcp.Listener
	cfg *Config
}

// Listen creates a Listener bound to laddr.
func Listen(laddr string, cfg *Config) (*Listener, error) {
	block, err := newBlockCrypt(cfg.Key)
	if err != nil {
		return nil, errors.Wrap(err, "kcppeer: block cipher setup failed")
	}
	kl, err := kcp.ListenWithOptions(laddr, block, 10, 3)
	if err != nil {
		return nil, errors.Wrap(err, "kcppeer: listen failed")
	}
	return &Listener{kl: kl, cfg: cfg}, nil
}

func (l *Listener) Accept(ctx context.Context) (transport.PeerConn, error) {
	sess, err := l.kl.AcceptKCP()
	if err != nil {
		return nil, errors.Wrap(err, "kcppeer: accept failed")
	}
	tuneSession(sess)

	smuxSess, err := smux.Server(sess, l.cfg.smuxConfig())
	if err != nil {
		sess.Close()
		return nil, errors.Wrap(err, "kcppeer: smux server handshake failed")
	}

	c, err := newConn(smuxSess, sess.RemoteAddr(), l.cfg, false)
	if err != nil {
		smuxSess.Close()
		return nil, err
	}
	flog.Debugf("kcppeer: accepted connection from %s", sess.RemoteAddr())
	return c, nil
}

func (l *Listener) Addr() net.Addr { return l.kl.Addr() }
func (l *Listener) Close() error   { return l.kl.Close() }

func tuneSession(sess *kcp.UDPSession) {
	sess.SetNoDelay(1, 10, 2, 1)
	sess.SetWindowSize(1024, 1024)
	sess.SetACKNoDelay(true)
}

// Conn wraps a *smux.Session and implements transport.PeerConn. One
// smux stream, opened (dialer) or accepted (listener) first and ahead
// of any application substream, is reserved for datagram emulation.
type Conn struct {
	sess   *smux.Session
	remote net.Addr
	nodeID transport.NodeID

	dgStream *smux.Stream
	sendMu   sync.Mutex
	recvCh   chan []byte
	maxSize  int

	closeOnce sync.Once
	closed    chan struct{}
}

func newConn(sess *smux.Session, remote net.Addr, cfg *Config, dialer bool) (*Conn, error) {
	var dgStream *smux.Stream
	var err error
	if dialer {
		dgStream, err = sess.OpenStream()
	} else {
		dgStream, err = sess.AcceptStream()
	}
	if err != nil {
		return nil, errors.Wrap(err, "kcppeer: datagram stream setup failed")
	}

	c := &Conn{
		sess:     sess,
		remote:   remote,
		dgStream: dgStream,
		recvCh:   make(chan []byte, cfg.queueSize()),
		maxSize:  cfg.maxDatagramSize(),
		closed:   make(chan struct{}),
	}
	go c.readDatagrams()
	return c, nil
}

func (c *Conn) readDatagrams() {
	buf := make([]byte, c.maxSize)
	for {
		n, err := buffer.ReadUDPFrame(c.dgStream, buf)
		if err != nil {
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		select {
		case c.recvCh <- data:
		case <-c.closed:
			return
		default: // drop if the reader is not keeping up
		}
	}
}

func (c *Conn) OpenStream(ctx context.Context) (transport.Stream, error) {
	s, err := c.sess.OpenStream()
	if err != nil {
		return nil, errors.Wrap(err, "kcppeer: open stream failed")
	}
	return &stream{s}, nil
}

func (c *Conn) AcceptStream(ctx context.Context) (transport.Stream, error) {
	s, err := c.sess.AcceptStream()
	if err != nil {
		return nil, errors.Wrap(err, "kcppeer: accept stream failed")
	}
	return &stream{s}, nil
}

func (c *Conn) SendDatagram(data []byte) error {
	if len(data) > c.maxSize {
		return errors.New("kcppeer: datagram exceeds max size")
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := buffer.WriteUDPFrame(c.dgStream, data); err != nil {
		return errors.Wrap(err, "kcppeer: send datagram failed")
	}
	return nil
}

func (c *Conn) ReceiveDatagram(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.recvCh:
		return data, nil
	case <-c.closed:
		return nil, errors.New("kcppeer: connection closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RemoteNodeID always returns the zero NodeID: a KCP session carries
// no peer public key to derive one from, so every kcppeer peer has
// the same id.
func (c *Conn) RemoteNodeID() transport.NodeID { return c.nodeID }
func (c *Conn) LocalAddr() net.Addr            { return c.sess.LocalAddr() }
func (c *Conn) RemoteAddr() net.Addr           { return c.remote }

func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return c.sess.Close()
}

// stream adapts a *smux.Stream to transport.Stream.
type stream struct {
	s *smux.Stream
}

func (s *stream) Read(p []byte) (int, error)  { return s.s.Read(p) }
func (s *stream) Write(p []byte) (int, error) { return s.s.Write(p) }
func (s *stream) CloseWrite() error           { return s.s.Close() }
func (s *stream) Close() error                { return s.s.Close() }

var _ io.Closer = (*Conn)(nil)
