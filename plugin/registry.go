package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/purchasekit/billing"
	"github.com/xraph/purchasekit/customer"
	"github.com/xraph/purchasekit/diagnostics"
	"github.com/xraph/purchasekit/id"
	"github.com/xraph/purchasekit/ledgerapi"
	"github.com/xraph/purchasekit/purchase"
	"github.com/xraph/purchasekit/syncer"
)

// DefaultHookTimeout bounds a single hook call.
const DefaultHookTimeout = 5 * time.Second

// Registry manages registered plugins. Hook implementations are cached per
// interface at registration so dispatch never type-asserts.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit               []OnInit
	onShutdown           []OnShutdown
	onLogin              []OnLogin
	onLogout             []OnLogout
	onSync               []OnSync
	onPurchaseStarted    []OnPurchaseStarted
	onPurchaseCompleted  []OnPurchaseCompleted
	onPurchaseFailed     []OnPurchaseFailed
	onPurchaseFinished   []OnPurchaseFinished
	onExternalPurchase   []OnExternalPurchase
	onWebhookResolved    []OnWebhookResolved
	onTransferRequested  []OnTransferRequested
	onDiagnosticSnapshot []OnDiagnosticSnapshot
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultHookTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	r.timeout = d
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnLogin); ok {
		r.onLogin = append(r.onLogin, v)
	}
	if v, ok := p.(OnLogout); ok {
		r.onLogout = append(r.onLogout, v)
	}
	if v, ok := p.(OnSync); ok {
		r.onSync = append(r.onSync, v)
	}
	if v, ok := p.(OnPurchaseStarted); ok {
		r.onPurchaseStarted = append(r.onPurchaseStarted, v)
	}
	if v, ok := p.(OnPurchaseCompleted); ok {
		r.onPurchaseCompleted = append(r.onPurchaseCompleted, v)
	}
	if v, ok := p.(OnPurchaseFailed); ok {
		r.onPurchaseFailed = append(r.onPurchaseFailed, v)
	}
	if v, ok := p.(OnPurchaseFinished); ok {
		r.onPurchaseFinished = append(r.onPurchaseFinished, v)
	}
	if v, ok := p.(OnExternalPurchase); ok {
		r.onExternalPurchase = append(r.onExternalPurchase, v)
	}
	if v, ok := p.(OnWebhookResolved); ok {
		r.onWebhookResolved = append(r.onWebhookResolved, v)
	}
	if v, ok := p.(OnTransferRequested); ok {
		r.onTransferRequested = append(r.onTransferRequested, v)
	}
	if v, ok := p.(OnDiagnosticSnapshot); ok {
		r.onDiagnosticSnapshot = append(r.onDiagnosticSnapshot, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeFor[OnInit]()},
	{"OnShutdown", reflect.TypeFor[OnShutdown]()},
	{"OnLogin", reflect.TypeFor[OnLogin]()},
	{"OnLogout", reflect.TypeFor[OnLogout]()},
	{"OnSync", reflect.TypeFor[OnSync]()},
	{"OnPurchaseStarted", reflect.TypeFor[OnPurchaseStarted]()},
	{"OnPurchaseCompleted", reflect.TypeFor[OnPurchaseCompleted]()},
	{"OnPurchaseFailed", reflect.TypeFor[OnPurchaseFailed]()},
	{"OnPurchaseFinished", reflect.TypeFor[OnPurchaseFinished]()},
	{"OnExternalPurchase", reflect.TypeFor[OnExternalPurchase]()},
	{"OnWebhookResolved", reflect.TypeFor[OnWebhookResolved]()},
	{"OnTransferRequested", reflect.TypeFor[OnTransferRequested]()},
	{"OnDiagnosticSnapshot", reflect.TypeFor[OnDiagnosticSnapshot]()},
}

func implementedInterfaces(p Plugin) []string {
	var names []string
	t := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if t.Implements(h.typ) {
			names = append(names, h.name)
		}
	}
	return names
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit calls fn for every hook in the snapshot taken under the read lock.
// Hook failures are logged and never propagate.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, list func(*Registry) []T, fn func(T) error) {
	r.mu.RLock()
	targets := list(r)
	r.mu.RUnlock()

	for _, p := range targets {
		if err := r.callWithTimeout(ctx, p.Name(), func() error { return fn(p) }); err != nil {
			r.logger.Warn("plugin hook failed",
				"hook", hook,
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

func (r *Registry) EmitInit(ctx context.Context, sessionID id.ID) {
	emit(ctx, r, "OnInit", func(r *Registry) []OnInit { return r.onInit },
		func(p OnInit) error { return p.OnInit(ctx, sessionID) })
}

func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", func(r *Registry) []OnShutdown { return r.onShutdown },
		func(p OnShutdown) error { return p.OnShutdown(ctx) })
}

func (r *Registry) EmitLogin(ctx context.Context, c *customer.Customer) {
	emit(ctx, r, "OnLogin", func(r *Registry) []OnLogin { return r.onLogin },
		func(p OnLogin) error { return p.OnLogin(ctx, c) })
}

func (r *Registry) EmitLogout(ctx context.Context, customerID string) {
	emit(ctx, r, "OnLogout", func(r *Registry) []OnLogout { return r.onLogout },
		func(p OnLogout) error { return p.OnLogout(ctx, customerID) })
}

func (r *Registry) EmitSync(ctx context.Context, state *syncer.State, elapsed time.Duration) {
	emit(ctx, r, "OnSync", func(r *Registry) []OnSync { return r.onSync },
		func(p OnSync) error { return p.OnSync(ctx, state, elapsed) })
}

func (r *Registry) EmitPurchaseStarted(ctx context.Context, attemptID id.ID, productID string) {
	emit(ctx, r, "OnPurchaseStarted", func(r *Registry) []OnPurchaseStarted { return r.onPurchaseStarted },
		func(p OnPurchaseStarted) error { return p.OnPurchaseStarted(ctx, attemptID, productID) })
}

func (r *Registry) EmitPurchaseCompleted(ctx context.Context, outcome *purchase.Outcome) {
	emit(ctx, r, "OnPurchaseCompleted", func(r *Registry) []OnPurchaseCompleted { return r.onPurchaseCompleted },
		func(p OnPurchaseCompleted) error { return p.OnPurchaseCompleted(ctx, outcome) })
}

func (r *Registry) EmitPurchaseFailed(ctx context.Context, attemptID id.ID, productID string, err error) {
	emit(ctx, r, "OnPurchaseFailed", func(r *Registry) []OnPurchaseFailed { return r.onPurchaseFailed },
		func(p OnPurchaseFailed) error { return p.OnPurchaseFailed(ctx, attemptID, productID, err) })
}

func (r *Registry) EmitPurchaseFinished(ctx context.Context, bp billing.Purchase, res purchase.FinishResult) {
	emit(ctx, r, "OnPurchaseFinished", func(r *Registry) []OnPurchaseFinished { return r.onPurchaseFinished },
		func(p OnPurchaseFinished) error { return p.OnPurchaseFinished(ctx, bp, res) })
}

func (r *Registry) EmitExternalPurchase(ctx context.Context, bp billing.Purchase) {
	emit(ctx, r, "OnExternalPurchase", func(r *Registry) []OnExternalPurchase { return r.onExternalPurchase },
		func(p OnExternalPurchase) error { return p.OnExternalPurchase(ctx, bp) })
}

func (r *Registry) EmitWebhookResolved(ctx context.Context, status ledgerapi.WebhookStatus, elapsed time.Duration, err error) {
	emit(ctx, r, "OnWebhookResolved", func(r *Registry) []OnWebhookResolved { return r.onWebhookResolved },
		func(p OnWebhookResolved) error { return p.OnWebhookResolved(ctx, status, elapsed, err) })
}

func (r *Registry) EmitTransferRequested(ctx context.Context, transferID id.ID, tokens int, status ledgerapi.TransferStatus, err error) {
	emit(ctx, r, "OnTransferRequested", func(r *Registry) []OnTransferRequested { return r.onTransferRequested },
		func(p OnTransferRequested) error { return p.OnTransferRequested(ctx, transferID, tokens, status, err) })
}

func (r *Registry) EmitDiagnosticSnapshot(ctx context.Context, s *diagnostics.Snapshot) {
	emit(ctx, r, "OnDiagnosticSnapshot", func(r *Registry) []OnDiagnosticSnapshot { return r.onDiagnosticSnapshot },
		func(p OnDiagnosticSnapshot) error { return p.OnDiagnosticSnapshot(ctx, s) })
}

// callWithTimeout calls a plugin function with a timeout. Plugins must
// never block the purchase pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
