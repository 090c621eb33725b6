package conf

import (
	"fmt"
	"time"
)

// UDPConfig bounds the server-side UDP-associate flow table.
type UDPConfig struct {
	IdleTimeoutSeconds int `yaml:"idle_timeout_seconds"` // evict a flow after this long without a datagram
	DNSTimeoutSeconds  int `yaml:"dns_timeout_seconds"`  // time allowed to resolve a domain target
	MaxDatagramSize    int `yaml:"max_datagram_size"`
	MaxAssociations    int `yaml:"max_associations"` // 0 means unlimited
}

func (u *UDPConfig) setDefaults() {
	if u.IdleTimeoutSeconds == 0 {
		u.IdleTimeoutSeconds = 60
	}
	if u.DNSTimeoutSeconds == 0 {
		u.DNSTimeoutSeconds = 5
	}
	if u.MaxDatagramSize == 0 {
		u.MaxDatagramSize = 65507
	}
}

// DNSTimeout returns the configured DNS timeout as a time.Duration.
func (u *UDPConfig) DNSTimeout() time.Duration {
	return time.Duration(u.DNSTimeoutSeconds) * time.Second
}

func (u *UDPConfig) validate() []error {
	var errs []error
	if u.IdleTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("udp: idle_timeout_seconds must be positive"))
	}
	if u.DNSTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("udp: dns_timeout_seconds must be positive"))
	}
	if u.MaxDatagramSize <= 0 || u.MaxDatagramSize > 65507 {
		errs = append(errs, fmt.Errorf("udp: max_datagram_size must be between 1-65507"))
	}
	if u.MaxAssociations < 0 {
		errs = append(errs, fmt.Errorf("udp: max_associations must not be negative"))
	}
	return errs
}
