package config

import (
	"fmt"
	"strings"
	"time"
)

// maxShutdownTimeout bounds how long in-flight requests may hold up exit.
const maxShutdownTimeout = 5 * time.Minute

// ShutdownConfig bounds graceful shutdown of the HTTP listeners.
type ShutdownConfig struct {
	Timeout time.Duration `koanf:"timeout"`
}

// String returns a string representation of the shutdown configuration.
func (c *ShutdownConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Shutdown ---\n")
	b.WriteString(fmt.Sprintf("  grace period: %s\n", c.Timeout))
	return b.String()
}

func (c *ShutdownConfig) Validate() error {
	if c.Timeout <= 0 || c.Timeout > maxShutdownTimeout {
		return fmt.Errorf("invalid shutdown timeout: %v (want 0 < timeout <= %v)", c.Timeout, maxShutdownTimeout)
	}
	return nil
}
