package ssrwatch

import (
	"github.com/leochiu-a/chrome-ssr-inspector/ssrwatch/internal/config"
)

// Config is the top-level ssrwatch configuration. Re-exported from internal.
type Config = config.Config

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig = config.BrowserConfig

// PageConfig defines a page to classify.
type PageConfig = config.PageConfig

// DebounceConfig controls mutation batching.
type DebounceConfig = config.DebounceConfig

// SinkConfig defines an output backend.
type SinkConfig = config.SinkConfig

// StoreConfig points at the report database.
type StoreConfig = config.StoreConfig

// HTTPConfig controls the query API listener.
type HTTPConfig = config.HTTPConfig

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}
