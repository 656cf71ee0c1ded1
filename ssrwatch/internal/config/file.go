// Package config handles ssrwatch configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level ssrwatch configuration.
type Config struct {
	Browser  BrowserConfig  `yaml:"browser"`
	Pages    []PageConfig   `yaml:"pages"`
	Debounce DebounceConfig `yaml:"debounce"`
	Sinks    []SinkConfig   `yaml:"sinks"`
	Store    StoreConfig    `yaml:"store"`
	HTTP     HTTPConfig     `yaml:"http"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote      string        `yaml:"remote"`       // ws:// URL of external Chrome; empty = launch
	NavTimeout  time.Duration `yaml:"nav_timeout"`  // per-page navigation timeout
	Stealth     bool          `yaml:"stealth"`      // stealth page creation
	MemoryLimit int64         `yaml:"memory_limit"` // recycle threshold, bytes
}

// PageConfig defines a page to classify.
type PageConfig struct {
	ID   string `yaml:"id"`
	URL  string `yaml:"url"`
	Mode string `yaml:"mode"` // "browser" | "static" | "auto"
}

// DebounceConfig controls mutation batching.
type DebounceConfig struct {
	Window    time.Duration `yaml:"window"`
	MaxBuffer int           `yaml:"max_buffer"`
}

// SinkConfig defines a report output backend.
type SinkConfig struct {
	Type string `yaml:"type"` // stdout | webhook | callback
	URL  string `yaml:"url"`  // for webhook
}

// StoreConfig points at the report database. Empty path disables persistence.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// HTTPConfig controls the query API surface.
type HTTPConfig struct {
	Addr string `yaml:"addr"` // empty = no HTTP listener
	// TokenHash is a bcrypt hash of the bearer token required on every
	// request. Empty disables authentication.
	TokenHash string `yaml:"token_hash"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills zero values with production defaults.
func (c *Config) ApplyDefaults() {
	if c.Browser.NavTimeout <= 0 {
		c.Browser.NavTimeout = 30 * time.Second
	}
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Debounce.Window <= 0 {
		c.Debounce.Window = 250 * time.Millisecond
	}
	if c.Debounce.MaxBuffer <= 0 {
		c.Debounce.MaxBuffer = 1000
	}
	for i := range c.Pages {
		if c.Pages[i].Mode == "" {
			c.Pages[i].Mode = "auto"
		}
	}
}
