package purchasekit_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xraph/purchasekit"
	"github.com/xraph/purchasekit/billing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*purchasekit.Config)
		want   []string
	}{
		{name: "valid", mutate: func(*purchasekit.Config) {}},
		{
			name:   "missing credentials",
			mutate: func(c *purchasekit.Config) { c.AppID, c.APIKey = "", "" },
			want:   []string{"app_id is required", "api_key is required"},
		},
		{
			name:   "unknown environment",
			mutate: func(c *purchasekit.Config) { c.Environment = "qa" },
			want:   []string{`unknown environment "qa"`},
		},
		{
			name:   "zero webhook timeout",
			mutate: func(c *purchasekit.Config) { c.WebhookTimeout = 0 },
			want:   []string{"webhook_timeout must be positive"},
		},
		{
			name:   "max backoff below initial",
			mutate: func(c *purchasekit.Config) { c.WebhookInitialBackoff, c.WebhookMaxBackoff = 10*time.Second, time.Second },
			want:   []string{"webhook_max_backoff must not be below webhook_initial_backoff"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if len(tt.want) == 0 {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate accepted an invalid config")
			}
			for _, w := range tt.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error %q does not mention %q", err, w)
				}
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "purchasekit.yaml")
	data := `app_id: app_123
api_key: secret
environment: staging
locales: [fr, en]
webhook_timeout: 90s
replacement:
  upgrade: with_time_proration
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := purchasekit.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.AppID != "app_123" || cfg.Environment != purchasekit.EnvironmentStaging {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.WebhookTimeout != 90*time.Second {
		t.Errorf("webhook timeout = %v, want 90s", cfg.WebhookTimeout)
	}
	if len(cfg.Locales) != 2 || cfg.Locales[0] != "fr" {
		t.Errorf("locales = %v", cfg.Locales)
	}
	if cfg.Replacement.Upgrade != billing.ReplacementWithTimeProration {
		t.Errorf("upgrade mode = %v", cfg.Replacement.Upgrade)
	}
	if cfg.Replacement.Downgrade != billing.ReplacementDeferred {
		t.Errorf("downgrade mode = %v, want default deferred", cfg.Replacement.Downgrade)
	}
	if cfg.CacheTTL != purchasekit.DefaultConfig().CacheTTL {
		t.Errorf("cache ttl = %v, want default", cfg.CacheTTL)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := purchasekit.LoadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("LoadConfig succeeded on a missing file")
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("app_id: a\napi_key: k\nreplacement:\n  upgrade: sideways\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := purchasekit.LoadConfig(bad); err == nil {
		t.Error("LoadConfig accepted an unknown replacement mode")
	}

	empty := filepath.Join(dir, "empty.yaml")
	if err := os.WriteFile(empty, []byte("environment: production\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := purchasekit.LoadConfig(empty); err == nil {
		t.Error("LoadConfig accepted a config without credentials")
	}
}
