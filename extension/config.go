package extension

import (
	purchasekit "github.com/xraph/purchasekit"
)

// Config holds the purchasekit extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.purchasekit" or "purchasekit" keys).
type Config struct {
	purchasekit.Config `mapstructure:",squash" yaml:",inline"`

	// DisableStartupFlush skips uploading pending diagnostics and purging
	// expired ones on start.
	DisableStartupFlush bool `json:"disable_startup_flush" mapstructure:"disable_startup_flush" yaml:"disable_startup_flush"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with the SDK defaults.
func DefaultConfig() Config {
	return Config{Config: purchasekit.DefaultConfig()}
}
