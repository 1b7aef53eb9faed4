package purchasekit

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gopkg.in/yaml.v3"

	"github.com/xraph/purchasekit/diagnostics"
	"github.com/xraph/purchasekit/ledgerapi"
	"github.com/xraph/purchasekit/purchase"
	"github.com/xraph/purchasekit/syncer"
	"github.com/xraph/purchasekit/types"
	"github.com/xraph/purchasekit/webhook"
)

// DefaultResumeResyncAfter is how long the app must stay paused before
// OnResume forces a sync.
const DefaultResumeResyncAfter = 2 * time.Minute

// Config holds the SDK session settings.
type Config struct {
	AppID       string            `json:"app_id" mapstructure:"app_id" yaml:"app_id"`
	APIKey      string            `json:"api_key" mapstructure:"api_key" yaml:"api_key"`
	APIURL      string            `json:"api_url" mapstructure:"api_url" yaml:"api_url"`
	Environment types.Environment `json:"environment" mapstructure:"environment" yaml:"environment"`
	// Locales are the preferred catalog languages, most preferred first.
	Locales []string `json:"locales" mapstructure:"locales" yaml:"locales"`
	// Region is the storefront region sent with catalog requests.
	Region         string        `json:"region" mapstructure:"region" yaml:"region"`
	RequestTimeout time.Duration `json:"request_timeout" mapstructure:"request_timeout" yaml:"request_timeout"`

	CacheTTL time.Duration `json:"cache_ttl" mapstructure:"cache_ttl" yaml:"cache_ttl"`

	WebhookTimeout        time.Duration `json:"webhook_timeout" mapstructure:"webhook_timeout" yaml:"webhook_timeout"`
	WebhookInitialBackoff time.Duration `json:"webhook_initial_backoff" mapstructure:"webhook_initial_backoff" yaml:"webhook_initial_backoff"`
	WebhookBackoffStep    time.Duration `json:"webhook_backoff_step" mapstructure:"webhook_backoff_step" yaml:"webhook_backoff_step"`
	WebhookMaxBackoff     time.Duration `json:"webhook_max_backoff" mapstructure:"webhook_max_backoff" yaml:"webhook_max_backoff"`
	// MaxPurchaseAge is the age past which a purchase is assumed already
	// processed by the ledger.
	MaxPurchaseAge time.Duration `json:"max_purchase_age" mapstructure:"max_purchase_age" yaml:"max_purchase_age"`

	ResumeResyncAfter time.Duration `json:"resume_resync_after" mapstructure:"resume_resync_after" yaml:"resume_resync_after"`

	Replacement purchase.ReplacementPolicy `json:"replacement" mapstructure:"replacement" yaml:"replacement"`

	DiagnosticsRetention time.Duration `json:"diagnostics_retention" mapstructure:"diagnostics_retention" yaml:"diagnostics_retention"`

	Debug bool `json:"debug" mapstructure:"debug" yaml:"debug"`
}

// DefaultConfig returns the production defaults. AppID and APIKey are left
// empty and must be set.
func DefaultConfig() Config {
	return Config{
		APIURL:                ledgerapi.DefaultBaseURL,
		Environment:           types.EnvironmentProduction,
		Locales:               []string{"en"},
		RequestTimeout:        30 * time.Second,
		CacheTTL:              syncer.DefaultTTL,
		WebhookTimeout:        webhook.DefaultTimeout,
		WebhookInitialBackoff: 2 * time.Second,
		WebhookBackoffStep:    500 * time.Millisecond,
		WebhookMaxBackoff:     5 * time.Second,
		MaxPurchaseAge:        webhook.DefaultMaxPurchaseAge,
		ResumeResyncAfter:     DefaultResumeResyncAfter,
		Replacement:           purchase.DefaultReplacementPolicy(),
		DiagnosticsRetention:  diagnostics.DefaultRetention,
	}
}

// Validate reports every problem with the configuration at once.
func (c Config) Validate() error {
	var problems []error
	if c.AppID == "" {
		problems = append(problems, errors.New("app_id is required"))
	}
	if c.APIKey == "" {
		problems = append(problems, errors.New("api_key is required"))
	}
	if _, err := types.ParseEnvironment(string(c.Environment)); err != nil {
		problems = append(problems, err)
	}
	for name, d := range map[string]time.Duration{
		"cache_ttl":               c.CacheTTL,
		"webhook_timeout":         c.WebhookTimeout,
		"webhook_initial_backoff": c.WebhookInitialBackoff,
		"webhook_max_backoff":     c.WebhookMaxBackoff,
	} {
		if d <= 0 {
			problems = append(problems, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.WebhookBackoffStep < 0 {
		problems = append(problems, errors.New("webhook_backoff_step must not be negative"))
	}
	if c.WebhookMaxBackoff < c.WebhookInitialBackoff {
		problems = append(problems, errors.New("webhook_max_backoff must not be below webhook_initial_backoff"))
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("purchasekit: invalid config: %w", errors.Join(problems...))
}

// LoadConfig reads a YAML file over DefaultConfig. Durations use Go syntax
// ("90s", "1h") and replacement modes use their names.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("purchasekit: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("purchasekit: parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) backOff() func() backoff.BackOff {
	return func() backoff.BackOff {
		return &webhook.LinearBackOff{
			Initial: c.WebhookInitialBackoff,
			Step:    c.WebhookBackoffStep,
			Max:     c.WebhookMaxBackoff,
		}
	}
}
