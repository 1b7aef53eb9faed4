// Package webhook waits for the ledger to confirm that it processed the
// store notification for a purchase, or an ownership transfer request.
package webhook

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/filecoin-project/go-clock"

	"github.com/xraph/purchasekit/billing"
	"github.com/xraph/purchasekit/errs"
	"github.com/xraph/purchasekit/ledgerapi"
)

// Timeout reasons passed to the TimeoutFunc.
const (
	ReasonWebhookNotProcessed  = "webhook_not_processed"
	ReasonTransferNotProcessed = "transfer_not_processed"
)

const (
	DefaultTimeout = 60 * time.Second
	// DefaultMaxPurchaseAge is the age past which a purchase is assumed
	// processed without polling.
	DefaultMaxPurchaseAge = 7 * 24 * time.Hour
)

// TimeoutFunc is called when a wait gives up.
type TimeoutFunc func(ctx context.Context, reason string)

type Waiter struct {
	ledger     ledgerapi.Client
	clock      clock.Clock
	timeout    time.Duration
	maxAge     time.Duration
	newBackOff func() backoff.BackOff
	onTimeout  TimeoutFunc
	logger     *slog.Logger
}

type Option func(*Waiter)

func WithClock(c clock.Clock) Option { return func(w *Waiter) { w.clock = c } }

func WithTimeout(d time.Duration) Option { return func(w *Waiter) { w.timeout = d } }

func WithMaxPurchaseAge(d time.Duration) Option { return func(w *Waiter) { w.maxAge = d } }

// WithBackOff sets the factory for the delay policy between polls. A policy
// returning backoff.Stop ends the wait as a timeout.
func WithBackOff(fn func() backoff.BackOff) Option { return func(w *Waiter) { w.newBackOff = fn } }

// WithOnTimeout registers the callback invoked on every timeout.
func WithOnTimeout(fn TimeoutFunc) Option { return func(w *Waiter) { w.onTimeout = fn } }

func WithLogger(l *slog.Logger) Option { return func(w *Waiter) { w.logger = l } }

// NewWaiter creates a Waiter polling ledger.
func NewWaiter(ledger ledgerapi.Client, opts ...Option) *Waiter {
	w := &Waiter{
		ledger:     ledger,
		clock:      clock.New(),
		timeout:    DefaultTimeout,
		maxAge:     DefaultMaxPurchaseAge,
		newBackOff: DefaultBackOff,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WaitPurchase blocks until the ledger reports the purchase processed.
// ERROR fails with errs.ErrWebhookFailed; still PENDING once the timeout
// has elapsed since the first poll fails with errs.ErrWebhookNotProcessed.
func (w *Waiter) WaitPurchase(ctx context.Context, p billing.Purchase) (ledgerapi.WebhookStatus, error) {
	if !p.PurchaseTime.IsZero() && w.clock.Since(p.PurchaseTime) > w.maxAge {
		w.logger.Debug("webhook: purchase too old, assuming processed", "order_id", p.OrderID)
		return ledgerapi.WebhookSuccess, nil
	}

	return poll(ctx, w, ReasonWebhookNotProcessed, func(ctx context.Context) (ledgerapi.WebhookStatus, bool, error) {
		st, err := w.ledger.WebhookStatus(ctx, p.Token, p.OrderID)
		switch {
		case err != nil:
			return "", true, err
		case st == ledgerapi.WebhookError:
			return st, true, errs.ErrWebhookFailed
		default:
			return st, st == ledgerapi.WebhookSuccess, nil
		}
	})
}

// WaitTransfer blocks while the transfer request is pending. Any other
// status, delayed included, is returned as is.
func (w *Waiter) WaitTransfer(ctx context.Context, requestID string) (ledgerapi.TransferStatus, error) {
	return poll(ctx, w, ReasonTransferNotProcessed, func(ctx context.Context) (ledgerapi.TransferStatus, bool, error) {
		st, err := w.ledger.TransferStatus(ctx, requestID)
		if err != nil {
			return "", true, err
		}
		return st, st.IsFinal(), nil
	})
}

func poll[T any](ctx context.Context, w *Waiter, reason string, fetch func(context.Context) (T, bool, error)) (T, error) {
	start := w.clock.Now()
	b := w.newBackOff()

	for {
		v, done, err := fetch(ctx)
		if done || err != nil {
			return v, err
		}

		d := b.NextBackOff()
		if d == backoff.Stop || w.clock.Since(start) >= w.timeout {
			w.logger.Warn("webhook: gave up waiting", "reason", reason, "elapsed", w.clock.Since(start))
			if w.onTimeout != nil {
				w.onTimeout(ctx, reason)
			}
			return v, errs.ErrWebhookNotProcessed
		}

		t := w.clock.Timer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return v, ctx.Err()
		case <-t.C:
		}
	}
}
