package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// DatabaseConfig points at the SQLite file backing the record store.
// Path ":memory:" selects a throwaway in-process database.
type DatabaseConfig struct {
	Path    string        `koanf:"path"`
	Timeout time.Duration `koanf:"timeout"`
}

// String returns a string representation of the database configuration.
func (c *DatabaseConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Database ---\n")
	b.WriteString(fmt.Sprintf("  path: %s\n", c.Path))
	b.WriteString(fmt.Sprintf("  timeout: %s\n", c.Timeout))
	return b.String()
}

func (c *DatabaseConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("database path is not configured")
	}
	if c.Path != MemoryDatabase && filepath.Ext(c.Path) == "" {
		return fmt.Errorf("database path must name a file, got directory-like path: %s", c.Path)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("database timeout is not configured")
	}
	return nil
}

// MemoryDatabase is the sentinel path for a non-durable database.
const MemoryDatabase = ":memory:"
