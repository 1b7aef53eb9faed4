// Package audithook bridges purchasekit lifecycle events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not depend on
// any audit backend. Callers inject a RecorderFunc adapter at wiring time.
package audithook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/purchasekit/billing"
	"github.com/xraph/purchasekit/customer"
	"github.com/xraph/purchasekit/diagnostics"
	"github.com/xraph/purchasekit/errs"
	"github.com/xraph/purchasekit/id"
	"github.com/xraph/purchasekit/ledgerapi"
	"github.com/xraph/purchasekit/plugin"
	"github.com/xraph/purchasekit/purchase"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin               = (*Extension)(nil)
	_ plugin.OnInit               = (*Extension)(nil)
	_ plugin.OnShutdown           = (*Extension)(nil)
	_ plugin.OnLogin              = (*Extension)(nil)
	_ plugin.OnLogout             = (*Extension)(nil)
	_ plugin.OnPurchaseStarted    = (*Extension)(nil)
	_ plugin.OnPurchaseCompleted  = (*Extension)(nil)
	_ plugin.OnPurchaseFailed     = (*Extension)(nil)
	_ plugin.OnPurchaseFinished   = (*Extension)(nil)
	_ plugin.OnExternalPurchase   = (*Extension)(nil)
	_ plugin.OnWebhookResolved    = (*Extension)(nil)
	_ plugin.OnTransferRequested  = (*Extension)(nil)
	_ plugin.OnDiagnosticSnapshot = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges purchasekit lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Session and customer hooks
// ──────────────────────────────────────────────────

func (e *Extension) OnInit(ctx context.Context, sessionID id.ID) error {
	return e.record(ctx, ActionSessionStarted, SeverityInfo, OutcomeSuccess,
		ResourceSession, sessionID.String(), CategoryLifecycle, nil,
	)
}

func (e *Extension) OnShutdown(ctx context.Context) error {
	return e.record(ctx, ActionSessionClosed, SeverityInfo, OutcomeSuccess,
		ResourceSession, "", CategoryLifecycle, nil,
	)
}

func (e *Extension) OnLogin(ctx context.Context, c *customer.Customer) error {
	return e.record(ctx, ActionCustomerLogin, SeverityInfo, OutcomeSuccess,
		ResourceCustomer, c.ID, CategoryAccount, nil,
		"external_ref", c.ExternalRef,
		"forwarding", c.ForwardingEnabled,
	)
}

func (e *Extension) OnLogout(ctx context.Context, customerID string) error {
	return e.record(ctx, ActionCustomerLogout, SeverityInfo, OutcomeSuccess,
		ResourceCustomer, customerID, CategoryAccount, nil,
	)
}

// ──────────────────────────────────────────────────
// Purchase hooks
// ──────────────────────────────────────────────────

func (e *Extension) OnPurchaseStarted(ctx context.Context, attemptID id.ID, productID string) error {
	return e.record(ctx, ActionPurchaseStarted, SeverityInfo, OutcomeSuccess,
		ResourcePurchase, attemptID.String(), CategoryPurchase, nil,
		"product_id", productID,
	)
}

// OnPurchaseCompleted records a replacement as its own action so plan
// changes can be filtered.
func (e *Extension) OnPurchaseCompleted(ctx context.Context, outcome *purchase.Outcome) error {
	action := ActionPurchaseCompleted
	meta := []any{"skus", outcome.Purchase.SKUs, "order_id", outcome.Purchase.OrderID, "status", string(outcome.Status)}
	if outcome.Replacement != billing.ReplacementUnknown {
		action = ActionPurchaseReplaced
		meta = append(meta, "replacement", outcome.Replacement.String())
	}
	return e.record(ctx, action, SeverityInfo, OutcomeSuccess,
		ResourcePurchase, outcome.AttemptID.String(), CategoryPurchase, nil,
		meta...,
	)
}

func (e *Extension) OnPurchaseFailed(ctx context.Context, attemptID id.ID, productID string, err error) error {
	resourceID := ""
	if !attemptID.IsNil() {
		resourceID = attemptID.String()
	}
	if errors.Is(err, errs.ErrUserCanceled) {
		return e.record(ctx, ActionPurchaseCanceled, SeverityInfo, OutcomeFailure,
			ResourcePurchase, resourceID, CategoryPurchase, nil,
			"product_id", productID,
		)
	}
	severity := SeverityWarning
	if errs.TriggersDiagnostics(err) {
		severity = SeverityCritical
	}
	return e.record(ctx, ActionPurchaseFailed, severity, OutcomeFailure,
		ResourcePurchase, resourceID, CategoryPurchase, err,
		"product_id", productID,
		"reason_code", errs.Reason(err),
	)
}

func (e *Extension) OnPurchaseFinished(ctx context.Context, p billing.Purchase, res purchase.FinishResult) error {
	outcome := OutcomeSuccess
	if res.Status == ledgerapi.WebhookError {
		outcome = OutcomePartial
	}
	return e.record(ctx, ActionPurchaseFinished, SeverityInfo, outcome,
		ResourcePurchase, p.OrderID, CategoryPurchase, nil,
		"skus", p.SKUs,
		"status", string(res.Status),
	)
}

func (e *Extension) OnExternalPurchase(ctx context.Context, p billing.Purchase) error {
	return e.record(ctx, ActionPurchaseExternal, SeverityInfo, OutcomeSuccess,
		ResourcePurchase, p.OrderID, CategoryPurchase, nil,
		"skus", p.SKUs,
	)
}

// ──────────────────────────────────────────────────
// Ledger confirmation hooks
// ──────────────────────────────────────────────────

func (e *Extension) OnWebhookResolved(ctx context.Context, status ledgerapi.WebhookStatus, elapsed time.Duration, err error) error {
	switch {
	case errors.Is(err, errs.ErrWebhookNotProcessed):
		return e.record(ctx, ActionWebhookTimedOut, SeverityCritical, OutcomeFailure,
			ResourceWebhook, "", CategoryIntegration, err,
			"elapsed_ms", elapsed.Milliseconds(),
		)
	case err != nil:
		return e.record(ctx, ActionWebhookFailed, SeverityError, OutcomeFailure,
			ResourceWebhook, "", CategoryIntegration, err,
			"status", string(status),
			"elapsed_ms", elapsed.Milliseconds(),
		)
	}
	return e.record(ctx, ActionWebhookConfirmed, SeverityInfo, OutcomeSuccess,
		ResourceWebhook, "", CategoryIntegration, nil,
		"status", string(status),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

func (e *Extension) OnTransferRequested(ctx context.Context, transferID id.ID, tokens int, status ledgerapi.TransferStatus, err error) error {
	if err != nil {
		return e.record(ctx, ActionTransferFailed, SeverityWarning, OutcomeFailure,
			ResourceTransfer, transferID.String(), CategoryAccount, err,
			"tokens", tokens,
		)
	}
	outcome := OutcomeSuccess
	if status == ledgerapi.TransferRejected {
		outcome = OutcomeFailure
	}
	return e.record(ctx, ActionTransferResolved, SeverityInfo, outcome,
		ResourceTransfer, transferID.String(), CategoryAccount, nil,
		"tokens", tokens,
		"status", string(status),
	)
}

// ──────────────────────────────────────────────────
// Diagnostics hooks
// ──────────────────────────────────────────────────

func (e *Extension) OnDiagnosticSnapshot(ctx context.Context, s *diagnostics.Snapshot) error {
	return e.record(ctx, ActionDiagnosticCaptured, SeverityWarning, OutcomeSuccess,
		ResourceDiagnostic, s.ID.String(), CategorySupport, nil,
		"reason", s.Reason,
		"customer_id", s.CustomerID,
		"purchases", len(s.Purchases),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
