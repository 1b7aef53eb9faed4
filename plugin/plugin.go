// Package plugin provides lifecycle hooks for purchasekit. A plugin
// implements Plugin plus any subset of the hook interfaces below; the
// Registry discovers which ones at registration time.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/purchasekit/billing"
	"github.com/xraph/purchasekit/customer"
	"github.com/xraph/purchasekit/diagnostics"
	"github.com/xraph/purchasekit/id"
	"github.com/xraph/purchasekit/ledgerapi"
	"github.com/xraph/purchasekit/purchase"
	"github.com/xraph/purchasekit/syncer"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when an SDK session starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, sessionID id.ID) error
}

// OnShutdown is called when the SDK is closed.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Customer hooks
// ──────────────────────────────────────────────────

// OnLogin is called after a customer logged in and the first sync ran.
type OnLogin interface {
	Plugin
	OnLogin(ctx context.Context, c *customer.Customer) error
}

// OnLogout is called when the customer is cleared.
type OnLogout interface {
	Plugin
	OnLogout(ctx context.Context, customerID string) error
}

// OnSync is called after every successful entitlement sync.
type OnSync interface {
	Plugin
	OnSync(ctx context.Context, state *syncer.State, elapsed time.Duration) error
}

// ──────────────────────────────────────────────────
// Purchase hooks
// ──────────────────────────────────────────────────

// OnPurchaseStarted is called once an attempt holds the pending slot.
type OnPurchaseStarted interface {
	Plugin
	OnPurchaseStarted(ctx context.Context, attemptID id.ID, productID string) error
}

// OnPurchaseCompleted is called when an attempt finished successfully.
type OnPurchaseCompleted interface {
	Plugin
	OnPurchaseCompleted(ctx context.Context, outcome *purchase.Outcome) error
}

// OnPurchaseFailed is called when an attempt failed. attemptID is nil when
// the attempt was rejected before it took the pending slot.
type OnPurchaseFailed interface {
	Plugin
	OnPurchaseFailed(ctx context.Context, attemptID id.ID, productID string, err error) error
}

// OnPurchaseFinished is called for every store purchase that was consumed
// or acknowledged, whichever path finished it.
type OnPurchaseFinished interface {
	Plugin
	OnPurchaseFinished(ctx context.Context, p billing.Purchase, res purchase.FinishResult) error
}

// OnExternalPurchase is called for purchases made outside the app.
type OnExternalPurchase interface {
	Plugin
	OnExternalPurchase(ctx context.Context, p billing.Purchase) error
}

// ──────────────────────────────────────────────────
// Ledger confirmation hooks
// ──────────────────────────────────────────────────

// OnWebhookResolved is called when a webhook wait ends, with the final
// status or the error that ended it.
type OnWebhookResolved interface {
	Plugin
	OnWebhookResolved(ctx context.Context, status ledgerapi.WebhookStatus, elapsed time.Duration, err error) error
}

// OnTransferRequested is called when an ownership transfer ends.
type OnTransferRequested interface {
	Plugin
	OnTransferRequested(ctx context.Context, transferID id.ID, tokens int, status ledgerapi.TransferStatus, err error) error
}

// ──────────────────────────────────────────────────
// Diagnostics hooks
// ──────────────────────────────────────────────────

// OnDiagnosticSnapshot is called after a snapshot was saved.
type OnDiagnosticSnapshot interface {
	Plugin
	OnDiagnosticSnapshot(ctx context.Context, s *diagnostics.Snapshot) error
}
