// Package observability provides a metrics plugin for purchasekit that
// records lifecycle event counts through a MetricFactory.
package observability

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/purchasekit/billing"
	"github.com/xraph/purchasekit/customer"
	"github.com/xraph/purchasekit/diagnostics"
	"github.com/xraph/purchasekit/errs"
	"github.com/xraph/purchasekit/id"
	"github.com/xraph/purchasekit/ledgerapi"
	"github.com/xraph/purchasekit/plugin"
	"github.com/xraph/purchasekit/purchase"
	"github.com/xraph/purchasekit/syncer"
)

var (
	_ plugin.Plugin               = (*MetricsExtension)(nil)
	_ plugin.OnInit               = (*MetricsExtension)(nil)
	_ plugin.OnLogin              = (*MetricsExtension)(nil)
	_ plugin.OnLogout             = (*MetricsExtension)(nil)
	_ plugin.OnSync               = (*MetricsExtension)(nil)
	_ plugin.OnPurchaseStarted    = (*MetricsExtension)(nil)
	_ plugin.OnPurchaseCompleted  = (*MetricsExtension)(nil)
	_ plugin.OnPurchaseFailed     = (*MetricsExtension)(nil)
	_ plugin.OnPurchaseFinished   = (*MetricsExtension)(nil)
	_ plugin.OnExternalPurchase   = (*MetricsExtension)(nil)
	_ plugin.OnWebhookResolved    = (*MetricsExtension)(nil)
	_ plugin.OnTransferRequested  = (*MetricsExtension)(nil)
	_ plugin.OnDiagnosticSnapshot = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records purchase pipeline metrics. Register it as a
// purchasekit plugin.
type MetricsExtension struct {
	factory MetricFactory

	// Session metrics
	SessionsStarted Counter

	// Customer metrics
	Logins             Counter
	Logouts            Counter
	Syncs              Counter
	SyncLatency        Histogram
	EntitlementsSynced Histogram

	// Purchase metrics
	PurchaseStarted   Counter
	PurchaseCompleted Counter
	PurchaseReplaced  Counter
	PurchaseCanceled  Counter
	PurchaseFailed    Counter
	PurchaseFinished  Counter
	ExternalPurchases Counter

	// Webhook metrics
	WebhookSuccess  Counter
	WebhookFailed   Counter
	WebhookTimeout  Counter
	WebhookLatency  Histogram
	TransferSuccess Counter
	TransferFailure Counter

	// Diagnostics metrics
	DiagnosticSnapshots Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		SessionsStarted: factory.Counter("purchasekit.session.started"),

		Logins:             factory.Counter("purchasekit.customer.login"),
		Logouts:            factory.Counter("purchasekit.customer.logout"),
		Syncs:              factory.Counter("purchasekit.sync.completed"),
		SyncLatency:        factory.Histogram("purchasekit.sync.latency_ms"),
		EntitlementsSynced: factory.Histogram("purchasekit.sync.entitlements"),

		PurchaseStarted:   factory.Counter("purchasekit.purchase.started"),
		PurchaseCompleted: factory.Counter("purchasekit.purchase.completed"),
		PurchaseReplaced:  factory.Counter("purchasekit.purchase.replaced"),
		PurchaseCanceled:  factory.Counter("purchasekit.purchase.canceled"),
		PurchaseFailed:    factory.Counter("purchasekit.purchase.failed"),
		PurchaseFinished:  factory.Counter("purchasekit.purchase.finished"),
		ExternalPurchases: factory.Counter("purchasekit.purchase.external"),

		WebhookSuccess:  factory.Counter("purchasekit.webhook.success"),
		WebhookFailed:   factory.Counter("purchasekit.webhook.failed"),
		WebhookTimeout:  factory.Counter("purchasekit.webhook.timeout"),
		WebhookLatency:  factory.Histogram("purchasekit.webhook.latency_ms"),
		TransferSuccess: factory.Counter("purchasekit.transfer.success"),
		TransferFailure: factory.Counter("purchasekit.transfer.failure"),

		DiagnosticSnapshots: factory.Counter("purchasekit.diagnostics.snapshots"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ id.ID) error {
	m.SessionsStarted.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Customer hooks
// ──────────────────────────────────────────────────

func (m *MetricsExtension) OnLogin(_ context.Context, _ *customer.Customer) error {
	m.Logins.Inc()
	return nil
}

func (m *MetricsExtension) OnLogout(_ context.Context, _ string) error {
	m.Logouts.Inc()
	return nil
}

func (m *MetricsExtension) OnSync(_ context.Context, state *syncer.State, elapsed time.Duration) error {
	m.Syncs.Inc()
	m.SyncLatency.Observe(float64(elapsed.Milliseconds()))
	if state != nil {
		m.EntitlementsSynced.Observe(float64(len(state.Entitlements)))
	}
	return nil
}

// ──────────────────────────────────────────────────
// Purchase hooks
// ──────────────────────────────────────────────────

func (m *MetricsExtension) OnPurchaseStarted(_ context.Context, _ id.ID, _ string) error {
	m.PurchaseStarted.Inc()
	return nil
}

func (m *MetricsExtension) OnPurchaseCompleted(_ context.Context, outcome *purchase.Outcome) error {
	m.PurchaseCompleted.Inc()
	if outcome != nil && outcome.Replacement != billing.ReplacementUnknown {
		m.PurchaseReplaced.Inc()
	}
	return nil
}

func (m *MetricsExtension) OnPurchaseFailed(_ context.Context, _ id.ID, _ string, err error) error {
	if errors.Is(err, errs.ErrUserCanceled) {
		m.PurchaseCanceled.Inc()
		return nil
	}
	m.PurchaseFailed.Inc()
	return nil
}

func (m *MetricsExtension) OnPurchaseFinished(_ context.Context, _ billing.Purchase, _ purchase.FinishResult) error {
	m.PurchaseFinished.Inc()
	return nil
}

func (m *MetricsExtension) OnExternalPurchase(_ context.Context, _ billing.Purchase) error {
	m.ExternalPurchases.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Ledger confirmation hooks
// ──────────────────────────────────────────────────

func (m *MetricsExtension) OnWebhookResolved(_ context.Context, status ledgerapi.WebhookStatus, elapsed time.Duration, err error) error {
	m.WebhookLatency.Observe(float64(elapsed.Milliseconds()))
	switch {
	case errors.Is(err, errs.ErrWebhookNotProcessed):
		m.WebhookTimeout.Inc()
	case err != nil || status == ledgerapi.WebhookError:
		m.WebhookFailed.Inc()
	default:
		m.WebhookSuccess.Inc()
	}
	return nil
}

func (m *MetricsExtension) OnTransferRequested(_ context.Context, _ id.ID, _ int, status ledgerapi.TransferStatus, err error) error {
	if err == nil && status == ledgerapi.TransferAcknowledged {
		m.TransferSuccess.Inc()
	} else {
		m.TransferFailure.Inc()
	}
	return nil
}

func (m *MetricsExtension) OnDiagnosticSnapshot(_ context.Context, _ *diagnostics.Snapshot) error {
	m.DiagnosticSnapshots.Inc()
	return nil
}
