// Package extension provides the Forge extension adapter for purchasekit.
//
// It implements the forge.Extension interface to integrate the purchase SDK
// into a Forge application with DI registration and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.purchasekit" or
// "purchasekit" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	purchasekit "github.com/xraph/purchasekit"
	"github.com/xraph/purchasekit/billing"
	"github.com/xraph/purchasekit/diagnostics"
	"github.com/xraph/purchasekit/diagnostics/sqlite"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "purchasekit"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Mobile billing reconciliation and purchase orchestration"

// ExtensionVersion is the semantic version.
const ExtensionVersion = purchasekit.SDKVersion

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the purchasekit SDK as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config  Config
	sdk     *purchasekit.SDK
	client  billing.Client
	store   diagnostics.Store
	db      *grove.DB
	sdkOpts []purchasekit.Option
}

// New creates a new purchasekit Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SDK returns the underlying SDK instance.
// This is nil until Register is called.
func (e *Extension) SDK() *purchasekit.SDK { return e.sdk }

// Register implements [forge.Extension]. It loads configuration, opens the
// SDK session and registers the SDK in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}
	if e.client == nil {
		return errors.New("purchasekit: extension requires a billing client (WithBillingClient)")
	}

	sdk, err := purchasekit.New(context.Background(), e.config.Config, e.client, e.buildSDKOpts()...)
	if err != nil {
		return fmt.Errorf("purchasekit: extension: %w", err)
	}
	e.sdk = sdk

	return vessel.Provide(fapp.Container(), func() (*purchasekit.SDK, error) {
		return e.sdk, nil
	})
}

// Start implements [forge.Extension]. Unless disabled it uploads
// diagnostics left pending by an earlier run and purges expired ones.
func (e *Extension) Start(ctx context.Context) error {
	if e.sdk == nil {
		return errors.New("purchasekit: extension not initialized")
	}

	if !e.config.DisableStartupFlush {
		if n, err := e.sdk.FlushDiagnostics(ctx); err != nil {
			e.Logger().Warn("purchasekit: startup diagnostics flush failed",
				forge.F("uploaded", n),
				forge.F("error", err.Error()),
			)
		}
		if _, err := e.sdk.PurgeDiagnostics(ctx); err != nil {
			e.Logger().Warn("purchasekit: startup diagnostics purge failed",
				forge.F("error", err.Error()),
			)
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(ctx context.Context) error {
	if e.sdk != nil {
		if err := e.sdk.Close(ctx); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.sdk == nil {
		return errors.New("purchasekit: sdk not initialized")
	}
	return e.sdk.Health(ctx)
}

// buildSDKOpts resolves the diagnostics store and appends pass-through
// SDK options.
func (e *Extension) buildSDKOpts() []purchasekit.Option {
	opts := make([]purchasekit.Option, 0, len(e.sdkOpts)+1)
	if e.store == nil && e.db != nil {
		e.store = sqlite.New(e.db)
	}
	if e.store != nil {
		opts = append(opts, purchasekit.WithDiagnosticsStore(e.store))
	}
	return append(opts, e.sdkOpts...)
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("purchasekit: configuration is required but not found in config files; " +
				"ensure 'extensions.purchasekit' or 'purchasekit' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("purchasekit: configuration loaded",
		forge.F("app_id", e.config.AppID),
		forge.F("api_url", e.config.APIURL),
		forge.F("environment", string(e.config.Environment)),
		forge.F("cache_ttl", e.config.CacheTTL),
		forge.F("webhook_timeout", e.config.WebhookTimeout),
		forge.F("diagnostics_retention", e.config.DiagnosticsRetention),
		forge.F("disable_startup_flush", e.config.DisableStartupFlush),
	)

	return e.config.Validate()
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()

	for _, key := range []string{"extensions.purchasekit", "purchasekit"} {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("purchasekit: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("purchasekit: loaded config from file",
			forge.F("key", key),
		)
		return cfg, true
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	return fillGaps(cfg, DefaultConfig())
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableStartupFlush {
		yamlConfig.DisableStartupFlush = true
	}
	if programmaticConfig.Debug {
		yamlConfig.Debug = true
	}
	return mergeWithDefaults(fillGaps(yamlConfig, programmaticConfig))
}

// fillGaps copies every zero-valued SDK setting of dst from src.
func fillGaps(dst, src Config) Config {
	d, s := &dst.Config, src.Config
	fill(&d.AppID, s.AppID)
	fill(&d.APIKey, s.APIKey)
	fill(&d.APIURL, s.APIURL)
	fill(&d.Environment, s.Environment)
	fill(&d.Region, s.Region)
	fill(&d.RequestTimeout, s.RequestTimeout)
	fill(&d.CacheTTL, s.CacheTTL)
	fill(&d.WebhookTimeout, s.WebhookTimeout)
	fill(&d.WebhookInitialBackoff, s.WebhookInitialBackoff)
	fill(&d.WebhookBackoffStep, s.WebhookBackoffStep)
	fill(&d.WebhookMaxBackoff, s.WebhookMaxBackoff)
	fill(&d.MaxPurchaseAge, s.MaxPurchaseAge)
	fill(&d.ResumeResyncAfter, s.ResumeResyncAfter)
	fill(&d.DiagnosticsRetention, s.DiagnosticsRetention)
	fill(&d.Replacement.SameSKU, s.Replacement.SameSKU)
	fill(&d.Replacement.Upgrade, s.Replacement.Upgrade)
	fill(&d.Replacement.Downgrade, s.Replacement.Downgrade)
	if len(d.Locales) == 0 {
		d.Locales = s.Locales
	}
	return dst
}

func fill[T comparable](dst *T, src T) {
	var zero T
	if *dst == zero {
		*dst = src
	}
}
