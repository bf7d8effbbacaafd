package config

import (
	"fmt"
	"strings"
	"time"
)

// CleanupConfig controls the background reclamation of abandoned staging files.
type CleanupConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Interval time.Duration `koanf:"interval"`
}

// String returns a string representation of the cleanup configuration.
func (c *CleanupConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Cleanup ---\n")
	b.WriteString(fmt.Sprintf("  enabled: %t\n", c.Enabled))
	b.WriteString(fmt.Sprintf("  interval: %s\n", c.Interval))
	return b.String()
}

func (c *CleanupConfig) Validate() error {
	if c.Enabled && c.Interval <= 0 {
		return fmt.Errorf("cleanup is enabled but interval is not configured")
	}
	return nil
}
