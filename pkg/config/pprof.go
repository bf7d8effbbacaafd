package config

import (
	"fmt"
	"net"
	"strings"
)

// PProfConfig controls the profiling listener. It is kept off the public port.
type PProfConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// String returns a string representation of the profiling configuration.
func (c *PProfConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Profiling ---\n")
	b.WriteString(fmt.Sprintf("  enabled: %t\n", c.Enabled))
	if c.Enabled {
		b.WriteString(fmt.Sprintf("  listen: %s\n", c.Addr))
	}
	return b.String()
}

func (c *PProfConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if _, port, err := net.SplitHostPort(c.Addr); err != nil || port == "" {
		return fmt.Errorf("invalid pprof listen address: %q", c.Addr)
	}
	return nil
}
