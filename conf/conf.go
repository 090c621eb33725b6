package conf

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

// Conf is the top-level configuration for an s2p server or client.
type Conf struct {
	Role string `yaml:"role"` // "server" or "client"

	ProxyTimeouts  ProxyTimeouts  `yaml:"proxy_timeouts"`
	ClientTimeouts ClientTimeouts `yaml:"client_timeouts"`
	UDP            UDPConfig      `yaml:"udp"`
	Transport      Transport      `yaml:"transport"`
}

// LoadFromFile reads, parses, defaults, and validates a Conf from the
// yaml file at path.
func LoadFromFile(path string) (*Conf, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var c Conf
	if err := yaml.Unmarshal(data, &c); err != nil {
		return &c, err
	}

	if c.Role != "client" && c.Role != "server" {
		return nil, fmt.Errorf("role must be 'client' or 'server'")
	}

	c.setDefaults()
	if err := c.validate(); err != nil {
		return &c, err
	}
	return &c, nil
}

func (c *Conf) setDefaults() {
	c.ProxyTimeouts.setDefaults()
	c.ClientTimeouts.setDefaults()
	c.UDP.setDefaults()
	c.Transport.setDefaults()
}

func (c *Conf) validate() error {
	var allErrors []error
	allErrors = append(allErrors, c.ProxyTimeouts.validate()...)
	allErrors = append(allErrors, c.ClientTimeouts.validate()...)
	allErrors = append(allErrors, c.UDP.validate()...)
	allErrors = append(allErrors, c.Transport.validate()...)
	return writeErr(allErrors)
}

func writeErr(allErrors []error) error {
	if len(allErrors) == 0 {
		return nil
	}
	messages := make([]string, 0, len(allErrors))
	for _, err := range allErrors {
		messages = append(messages, err.Error())
	}
	return fmt.Errorf("validation failed:\n  - %s", strings.Join(messages, "\n  - "))
}
