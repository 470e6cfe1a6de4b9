package webmonitor

import (
	"path/filepath"
	"time"
)

// Config defines the runtime configuration for the web monitor server.
type Config struct {
	Addr           string
	AssetsDir      string
	StatusInterval time.Duration
	MJPEGInterval  time.Duration
	JPEGQuality    int
}

// DefaultConfig returns the monitor defaults.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		AssetsDir:      filepath.Clean("web_assets"),
		StatusInterval: time.Second,
		MJPEGInterval:  50 * time.Millisecond,
		JPEGQuality:    75,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.StatusInterval <= 0 {
		c.StatusInterval = def.StatusInterval
	}
	if c.MJPEGInterval <= 0 {
		c.MJPEGInterval = def.MJPEGInterval
	}
	if c.JPEGQuality <= 0 || c.JPEGQuality > 100 {
		c.JPEGQuality = def.JPEGQuality
	}
	if c.AssetsDir == "" {
		c.AssetsDir = def.AssetsDir
	}
	return c
}
