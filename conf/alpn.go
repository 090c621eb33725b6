package conf

import "fmt"

// ALPN is the application protocol token negotiated on the QUIC
// backend. The kcppeer backend has no ALPN equivalent, since smux
// sessions don't negotiate one; it is keyed instead.
const ALPN = "s2p/1"

// TransportKind selects which transport.PeerConn backend (quicpeer or
// kcppeer) the caller dials and listens with.
type TransportKind string

const (
	TransportQUIC TransportKind = "quic"
	TransportKCP  TransportKind = "kcp"
)

// Transport configures the peer-connection backend.
type Transport struct {
	Kind TransportKind `yaml:"kind"`

	QUIC QUICConfig `yaml:"quic"`
	KCP  KCPConfig  `yaml:"kcp"`
}

func (t *Transport) setDefaults() {
	if t.Kind == "" {
		t.Kind = TransportQUIC
	}
	t.QUIC.setDefaults()
	t.KCP.setDefaults()
}

func (t *Transport) validate() []error {
	var errs []error
	if t.Kind != TransportQUIC && t.Kind != TransportKCP {
		errs = append(errs, fmt.Errorf("transport: kind must be %q or %q", TransportQUIC, TransportKCP))
	}
	errs = append(errs, t.QUIC.validate()...)
	errs = append(errs, t.KCP.validate()...)
	return errs
}

// QUICConfig carries quicpeer-specific knobs.
type QUICConfig struct {
	HandshakeTimeoutSeconds int `yaml:"handshake_timeout_seconds"`
	KeepAliveSeconds        int `yaml:"keep_alive_seconds"`
	MaxIdleTimeoutSeconds   int `yaml:"max_idle_timeout_seconds"`
}

func (q *QUICConfig) setDefaults() {
	if q.HandshakeTimeoutSeconds == 0 {
		q.HandshakeTimeoutSeconds = 10
	}
	if q.KeepAliveSeconds == 0 {
		q.KeepAliveSeconds = 15
	}
	if q.MaxIdleTimeoutSeconds == 0 {
		q.MaxIdleTimeoutSeconds = 30
	}
}

func (q *QUICConfig) validate() []error {
	var errs []error
	if q.HandshakeTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("transport.quic: handshake_timeout_seconds must be positive"))
	}
	if q.MaxIdleTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("transport.quic: max_idle_timeout_seconds must be positive"))
	}
	return errs
}

// KCPConfig carries kcppeer-specific knobs. Key is an operator-chosen
// passphrase; callers stretch it into the kcppeer.Config.Key block
// cipher key with kcppeer.DeriveKey before dialing or listening.
type KCPConfig struct {
	Key               string `yaml:"key"`
	SmuxBuf           int    `yaml:"smux_buf"`
	StreamBuf         int    `yaml:"stream_buf"`
	DatagramQueueSize int    `yaml:"datagram_queue_size"`
}

func (k *KCPConfig) setDefaults() {
	if k.SmuxBuf == 0 {
		k.SmuxBuf = 4 * 1024 * 1024
	}
	if k.StreamBuf == 0 {
		k.StreamBuf = 1 * 1024 * 1024
	}
	if k.DatagramQueueSize == 0 {
		k.DatagramQueueSize = 64
	}
}

func (k *KCPConfig) validate() []error {
	var errs []error
	if k.SmuxBuf <= 0 {
		errs = append(errs, fmt.Errorf("transport.kcp: smux_buf must be positive"))
	}
	if k.StreamBuf <= 0 {
		errs = append(errs, fmt.Errorf("transport.kcp: stream_buf must be positive"))
	}
	return errs
}
