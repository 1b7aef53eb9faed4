package extension

import (
	"github.com/xraph/grove"

	purchasekit "github.com/xraph/purchasekit"
	"github.com/xraph/purchasekit/billing"
	"github.com/xraph/purchasekit/diagnostics"
	"github.com/xraph/purchasekit/plugin"
)

// Option configures the purchasekit Forge extension.
type Option func(*Extension)

// WithBillingClient sets the platform store client. Required.
func WithBillingClient(c billing.Client) Option {
	return func(e *Extension) { e.client = c }
}

// WithDiagnosticsStore sets the store for diagnostic snapshots.
func WithDiagnosticsStore(s diagnostics.Store) Option {
	return func(e *Extension) { e.store = s }
}

// WithGroveDatabase keeps diagnostic snapshots in a sqlite grove.DB.
func WithGroveDatabase(db *grove.DB) Option {
	return func(e *Extension) { e.db = db }
}

// WithSDKOption passes a purchasekit.Option through to the SDK.
func WithSDKOption(opt purchasekit.Option) Option {
	return func(e *Extension) {
		e.sdkOpts = append(e.sdkOpts, opt)
	}
}

// WithPlugin registers a purchasekit plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.sdkOpts = append(e.sdkOpts, purchasekit.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithCredentials sets the ledger app id and API key.
func WithCredentials(appID, apiKey string) Option {
	return func(e *Extension) {
		e.config.AppID = appID
		e.config.APIKey = apiKey
	}
}

// WithEnvironment sets the ledger environment.
func WithEnvironment(env purchasekit.Environment) Option {
	return func(e *Extension) { e.config.Environment = env }
}

// WithDisableStartupFlush skips diagnostics maintenance on start.
func WithDisableStartupFlush() Option {
	return func(e *Extension) { e.config.DisableStartupFlush = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
