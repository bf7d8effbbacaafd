package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/abgdnv/storekeeper/pkg/config"
	"github.com/abgdnv/storekeeper/pkg/config/configloader"
)

var _ configloader.Validator = (*Config)(nil)

type Config struct {
	HTTPServer config.HTTPConfig     `koanf:"server"`
	Database   config.DatabaseConfig `koanf:"database"`
	Media      config.MediaConfig    `koanf:"media"`
	Cleanup    config.CleanupConfig  `koanf:"cleanup"`
	Log        config.LogConfig      `koanf:"log"`
	PProf      config.PProfConfig    `koanf:"pprof"`
	Shutdown   config.ShutdownConfig `koanf:"shutdown"`
}

// Defaults are applied before config.yaml, .env and the environment.
func Defaults() map[string]any {
	return map[string]any{
		"server.port":               8080,
		"server.maxHeaderBytes":     1 << 20,
		"server.timeout.read":       10 * time.Second,
		"server.timeout.write":      0,
		"server.timeout.idle":       60 * time.Second,
		"server.timeout.readHeader": 5 * time.Second,
		"database.path":             "data/storekeeper.db",
		"database.timeout":          5 * time.Second,
		"media.dir":                 "data/images",
		"media.stagingDir":          "data/staging",
		"media.maxBytes":            10 << 20,
		"media.staleAfter":          time.Hour,
		"cleanup.enabled":           true,
		"cleanup.interval":          15 * time.Minute,
		"log.level":                 "info",
		"pprof.enabled":             false,
		"pprof.addr":                "localhost:6060",
		"shutdown.timeout":          10 * time.Second,
	}
}

func (c *Config) String() string {
	var b strings.Builder

	b.WriteString("\n--- Server Configuration ---\n")
	b.WriteString(fmt.Sprintf("  server.port: %d\n", c.HTTPServer.Port))
	b.WriteString(fmt.Sprintf("  server.maxHeaderBytes: %d\n", c.HTTPServer.MaxHeaderBytes))
	b.WriteString(fmt.Sprintf("  server.timeout.read: %v\n", c.HTTPServer.Timeout.Read))
	b.WriteString(fmt.Sprintf("  server.timeout.write: %v\n", c.HTTPServer.Timeout.Write))
	b.WriteString(fmt.Sprintf("  server.timeout.idle: %v\n", c.HTTPServer.Timeout.Idle))
	b.WriteString(fmt.Sprintf("  server.timeout.readHeader: %v\n", c.HTTPServer.Timeout.ReadHeader))

	b.WriteString("\n--- Storage ---\n")
	b.WriteString(fmt.Sprintf("  database.path: %s\n", c.Database.Path))
	b.WriteString(fmt.Sprintf("  database.timeout: %s\n", c.Database.Timeout))
	b.WriteString(fmt.Sprintf("  media.dir: %s\n", c.Media.Dir))
	b.WriteString(fmt.Sprintf("  media.stagingDir: %s\n", c.Media.StagingDir))
	b.WriteString(fmt.Sprintf("  media.maxBytes: %d\n", c.Media.MaxBytes))
	b.WriteString(fmt.Sprintf("  media.staleAfter: %s\n", c.Media.StaleAfter))
	b.WriteString(fmt.Sprintf("  cleanup.enabled: %t\n", c.Cleanup.Enabled))
	b.WriteString(fmt.Sprintf("  cleanup.interval: %s\n", c.Cleanup.Interval))

	b.WriteString("\n--- Observability & Logging ---\n")
	b.WriteString(fmt.Sprintf("  log.level: %s\n", c.Log.Level))
	b.WriteString(fmt.Sprintf("  pprof.enabled: %t\n", c.PProf.Enabled))
	b.WriteString(fmt.Sprintf("  pprof.address: %s\n", c.PProf.Addr))

	b.WriteString("\n--- Application Behavior ---\n")
	b.WriteString(fmt.Sprintf("  shutdown.timeout: %s\n", c.Shutdown.Timeout))

	return b.String()
}

// Validate checks if the configuration values are valid
func (c *Config) Validate() error {
	validators := []configloader.Validator{
		&c.HTTPServer,
		&c.Database,
		&c.Media,
		&c.Cleanup,
		&c.Log,
		&c.PProf,
		&c.Shutdown,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}
