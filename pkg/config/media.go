package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// MediaConfig describes where product photos live.
type MediaConfig struct {
	Dir        string        `koanf:"dir"`
	StagingDir string        `koanf:"stagingDir"`
	MaxBytes   int64         `koanf:"maxBytes"`
	StaleAfter time.Duration `koanf:"staleAfter"`
}

// String returns a string representation of the media configuration.
func (c *MediaConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Media ---\n")
	b.WriteString(fmt.Sprintf("  dir: %s\n", c.Dir))
	b.WriteString(fmt.Sprintf("  stagingDir: %s\n", c.StagingDir))
	b.WriteString(fmt.Sprintf("  maxBytes: %d\n", c.MaxBytes))
	b.WriteString(fmt.Sprintf("  staleAfter: %s\n", c.StaleAfter))
	return b.String()
}

func (c *MediaConfig) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("media directory is not configured")
	}
	if c.StagingDir == "" {
		return fmt.Errorf("media staging directory is not configured")
	}
	if filepath.Clean(c.Dir) == filepath.Clean(c.StagingDir) {
		return fmt.Errorf("media staging directory must differ from media directory")
	}
	if c.MaxBytes <= 0 {
		return fmt.Errorf("invalid media max bytes: %d", c.MaxBytes)
	}
	if c.StaleAfter <= 0 {
		return fmt.Errorf("invalid media staleAfter: %v", c.StaleAfter)
	}
	return nil
}
