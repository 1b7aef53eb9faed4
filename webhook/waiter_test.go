package webhook_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/filecoin-project/go-clock"

	"github.com/xraph/purchasekit/billing"
	"github.com/xraph/purchasekit/errs"
	"github.com/xraph/purchasekit/ledgerapi"
	"github.com/xraph/purchasekit/ledgerapi/ledgertest"
	"github.com/xraph/purchasekit/webhook"
)

// run executes fn while advancing mock in small steps until fn returns.
func run[T any](t *testing.T, mock *clock.Mock, fn func() (T, error)) (T, error, time.Duration) {
	t.Helper()
	start := mock.Now()

	type result struct {
		v   T
		err error
		at  time.Time
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err, mock.Now()}
	}()

	deadline := time.After(10 * time.Second)
	for {
		select {
		case r := <-done:
			return r.v, r.err, r.at.Sub(start)
		case <-deadline:
			t.Fatal("wait did not return")
		default:
			mock.Add(100 * time.Millisecond)
			time.Sleep(time.Millisecond)
		}
	}
}

func TestLinearBackOff(t *testing.T) {
	b := webhook.DefaultBackOff()
	want := []time.Duration{2000, 2500, 3000, 3500, 4000, 4500, 5000, 5000}
	for i, w := range want {
		if got := b.NextBackOff(); got != w*time.Millisecond {
			t.Errorf("retry %d = %v, want %v", i, got, w*time.Millisecond)
		}
	}
	b.Reset()
	if got := b.NextBackOff(); got != 2*time.Second {
		t.Errorf("after Reset = %v", got)
	}
}

func TestWaitPurchase(t *testing.T) {
	tests := []struct {
		name     string
		statuses []ledgerapi.WebhookStatus
		want     ledgerapi.WebhookStatus
		wantErr  error
		polls    int
	}{
		{"immediate success", nil, ledgerapi.WebhookSuccess, nil, 1},
		{"pending then success", []ledgerapi.WebhookStatus{ledgerapi.WebhookPending, ledgerapi.WebhookPending, ledgerapi.WebhookSuccess}, ledgerapi.WebhookSuccess, nil, 3},
		{"error", []ledgerapi.WebhookStatus{ledgerapi.WebhookPending, ledgerapi.WebhookError}, ledgerapi.WebhookError, errs.ErrWebhookFailed, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := clock.NewMock()
			ledger := ledgertest.New()
			ledger.WebhookStatuses = tt.statuses
			w := webhook.NewWaiter(ledger, webhook.WithClock(mock))

			got, err, _ := run(t, mock, func() (ledgerapi.WebhookStatus, error) {
				return w.WaitPurchase(context.Background(), billing.Purchase{Token: "tok", OrderID: "GPA.1"})
			})
			if got != tt.want || !errors.Is(err, tt.wantErr) {
				t.Fatalf("WaitPurchase = %q, %v; want %q, %v", got, err, tt.want, tt.wantErr)
			}
			if polls := ledger.Calls(ledgertest.OpWebhookStatus); polls != tt.polls {
				t.Errorf("polls = %d, want %d", polls, tt.polls)
			}
		})
	}
}

func TestWaitPurchaseTimesOutNoEarlierThanTimeout(t *testing.T) {
	mock := clock.NewMock()
	ledger := ledgertest.New()
	ledger.WebhookStatuses = []ledgerapi.WebhookStatus{ledgerapi.WebhookPending}

	var timeouts atomic.Int32
	w := webhook.NewWaiter(ledger, webhook.WithClock(mock), webhook.WithOnTimeout(func(context.Context, string) {
		timeouts.Add(1)
	}))

	_, err, elapsed := run(t, mock, func() (ledgerapi.WebhookStatus, error) {
		return w.WaitPurchase(context.Background(), billing.Purchase{Token: "tok", PurchaseTime: mock.Now()})
	})
	if !errors.Is(err, errs.ErrWebhookNotProcessed) {
		t.Fatalf("err = %v, want ErrWebhookNotProcessed", err)
	}
	if elapsed < webhook.DefaultTimeout {
		t.Errorf("returned after %v, before the %v timeout", elapsed, webhook.DefaultTimeout)
	}
	if timeouts.Load() != 1 {
		t.Errorf("timeout callbacks = %d, want 1", timeouts.Load())
	}
	if polls := ledger.Calls(ledgertest.OpWebhookStatus); polls < 2 || polls > 16 {
		t.Errorf("polls = %d, want between 2 and 16", polls)
	}
}

func TestWaitPurchaseOldPurchaseShortCircuits(t *testing.T) {
	mock := clock.NewMock()
	mock.Add(30 * 24 * time.Hour)
	ledger := ledgertest.New()
	ledger.WebhookStatuses = []ledgerapi.WebhookStatus{ledgerapi.WebhookPending}
	w := webhook.NewWaiter(ledger, webhook.WithClock(mock))

	st, err := w.WaitPurchase(context.Background(), billing.Purchase{Token: "tok", PurchaseTime: mock.Now().Add(-8 * 24 * time.Hour)})
	if err != nil || st != ledgerapi.WebhookSuccess {
		t.Fatalf("WaitPurchase = %q, %v", st, err)
	}
	if ledger.Calls(ledgertest.OpWebhookStatus) != 0 {
		t.Error("old purchase was polled")
	}
}

func TestWaitPurchaseContextCanceled(t *testing.T) {
	mock := clock.NewMock()
	ledger := ledgertest.New()
	ledger.WebhookStatuses = []ledgerapi.WebhookStatus{ledgerapi.WebhookPending}
	w := webhook.NewWaiter(ledger, webhook.WithClock(mock))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := w.WaitPurchase(ctx, billing.Purchase{Token: "tok"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestWaitTransfer(t *testing.T) {
	tests := []struct {
		name     string
		statuses []ledgerapi.TransferStatus
		fail     error
		want     ledgerapi.TransferStatus
		wantErr  error
		polls    int
	}{
		{"acknowledged", []ledgerapi.TransferStatus{ledgerapi.TransferPending, ledgerapi.TransferPending, ledgerapi.TransferAcknowledged}, nil, ledgerapi.TransferAcknowledged, nil, 3},
		{"delayed", []ledgerapi.TransferStatus{ledgerapi.TransferDelayed}, nil, ledgerapi.TransferDelayed, nil, 1},
		{"delayed after pending", []ledgerapi.TransferStatus{ledgerapi.TransferPending, ledgerapi.TransferDelayed}, nil, ledgerapi.TransferDelayed, nil, 2},
		{"rejected", []ledgerapi.TransferStatus{ledgerapi.TransferRejected}, nil, ledgerapi.TransferRejected, nil, 1},
		{"ledger error", nil, errs.ErrWebhookFailed, "", errs.ErrWebhookFailed, 1},
		{"timeout", []ledgerapi.TransferStatus{ledgerapi.TransferPending}, nil, ledgerapi.TransferPending, errs.ErrWebhookNotProcessed, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := clock.NewMock()
			ledger := ledgertest.New()
			ledger.TransferStatuses = tt.statuses
			ledger.Fail(ledgertest.OpTransferStatus, tt.fail)
			var reasons []string
			w := webhook.NewWaiter(ledger,
				webhook.WithClock(mock),
				webhook.WithOnTimeout(func(_ context.Context, reason string) {
					reasons = append(reasons, reason)
				}),
			)

			got, err, elapsed := run(t, mock, func() (ledgerapi.TransferStatus, error) {
				return w.WaitTransfer(context.Background(), "req_1")
			})
			if got != tt.want || !errors.Is(err, tt.wantErr) {
				t.Fatalf("WaitTransfer = %q, %v; want %q, %v", got, err, tt.want, tt.wantErr)
			}
			if tt.polls >= 0 {
				if n := ledger.Calls(ledgertest.OpTransferStatus); n != tt.polls {
					t.Errorf("polls = %d, want %d", n, tt.polls)
				}
			}
			if errors.Is(err, errs.ErrWebhookNotProcessed) {
				if elapsed < webhook.DefaultTimeout {
					t.Errorf("timed out after %v", elapsed)
				}
				if len(reasons) != 1 || reasons[0] != webhook.ReasonTransferNotProcessed {
					t.Errorf("timeout reasons = %v", reasons)
				}
			} else if len(reasons) != 0 {
				t.Errorf("unexpected timeout callback: %v", reasons)
			}
		})
	}
}
