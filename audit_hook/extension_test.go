package audithook_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	audithook "github.com/xraph/purchasekit/audit_hook"
	"github.com/xraph/purchasekit/billing"
	"github.com/xraph/purchasekit/customer"
	"github.com/xraph/purchasekit/errs"
	"github.com/xraph/purchasekit/id"
	"github.com/xraph/purchasekit/ledgerapi"
	"github.com/xraph/purchasekit/purchase"
)

type recorder struct{ events []*audithook.AuditEvent }

func (r *recorder) Record(_ context.Context, e *audithook.AuditEvent) error {
	r.events = append(r.events, e)
	return nil
}

func TestPurchaseEvents(t *testing.T) {
	ctx := context.Background()
	attempt := id.NewAttemptID()

	tests := []struct {
		name     string
		emit     func(e *audithook.Extension) error
		action   string
		severity string
		outcome  string
	}{
		{
			name: "completed",
			emit: func(e *audithook.Extension) error {
				return e.OnPurchaseCompleted(ctx, &purchase.Outcome{AttemptID: attempt, Status: ledgerapi.WebhookSuccess})
			},
			action: audithook.ActionPurchaseCompleted, severity: audithook.SeverityInfo, outcome: audithook.OutcomeSuccess,
		},
		{
			name: "replaced",
			emit: func(e *audithook.Extension) error {
				return e.OnPurchaseCompleted(ctx, &purchase.Outcome{AttemptID: attempt, Replacement: billing.ReplacementChargeFullPrice})
			},
			action: audithook.ActionPurchaseReplaced, severity: audithook.SeverityInfo, outcome: audithook.OutcomeSuccess,
		},
		{
			name: "user canceled",
			emit: func(e *audithook.Extension) error {
				return e.OnPurchaseFailed(ctx, attempt, "premium", fmt.Errorf("%w: store", errs.ErrUserCanceled))
			},
			action: audithook.ActionPurchaseCanceled, severity: audithook.SeverityInfo, outcome: audithook.OutcomeFailure,
		},
		{
			name: "unmapped store failure",
			emit: func(e *audithook.Extension) error {
				return e.OnPurchaseFailed(ctx, attempt, "premium", errs.ErrFailed)
			},
			action: audithook.ActionPurchaseFailed, severity: audithook.SeverityCritical, outcome: audithook.OutcomeFailure,
		},
		{
			name: "webhook timeout",
			emit: func(e *audithook.Extension) error {
				return e.OnWebhookResolved(ctx, ledgerapi.WebhookPending, time.Minute, errs.ErrWebhookNotProcessed)
			},
			action: audithook.ActionWebhookTimedOut, severity: audithook.SeverityCritical, outcome: audithook.OutcomeFailure,
		},
		{
			name: "transfer rejected",
			emit: func(e *audithook.Extension) error {
				return e.OnTransferRequested(ctx, id.NewTransferID(), 1, ledgerapi.TransferRejected, nil)
			},
			action: audithook.ActionTransferResolved, severity: audithook.SeverityInfo, outcome: audithook.OutcomeFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			if err := tt.emit(audithook.New(rec)); err != nil {
				t.Fatal(err)
			}
			if len(rec.events) != 1 {
				t.Fatalf("events = %d", len(rec.events))
			}
			got := rec.events[0]
			if got.Action != tt.action || got.Severity != tt.severity || got.Outcome != tt.outcome {
				t.Errorf("event = %s/%s/%s, want %s/%s/%s",
					got.Action, got.Severity, got.Outcome, tt.action, tt.severity, tt.outcome)
			}
		})
	}
}

func TestFailureCarriesReason(t *testing.T) {
	rec := &recorder{}
	e := audithook.New(rec)
	if err := e.OnPurchaseFailed(context.Background(), id.Nil, "premium", errs.ErrPurchaseAlreadyPending); err != nil {
		t.Fatal(err)
	}
	got := rec.events[0]
	if got.ResourceID != "" || got.Reason == "" || got.Metadata["reason_code"] != errs.Reason(errs.ErrPurchaseAlreadyPending) {
		t.Errorf("event = %+v", got)
	}
}

func TestActionFilters(t *testing.T) {
	ctx := context.Background()
	c := &customer.Customer{ID: "cus_1"}

	rec := &recorder{}
	e := audithook.New(rec, audithook.WithDisabledActions(audithook.ActionCustomerLogin))
	_ = e.OnLogin(ctx, c)
	_ = e.OnLogout(ctx, c.ID)
	if len(rec.events) != 1 || rec.events[0].Action != audithook.ActionCustomerLogout {
		t.Errorf("disabled filter: %+v", rec.events)
	}

	rec = &recorder{}
	e = audithook.New(rec, audithook.WithEnabledActions(audithook.ActionCustomerLogin))
	_ = e.OnLogin(ctx, c)
	_ = e.OnLogout(ctx, c.ID)
	if len(rec.events) != 1 || rec.events[0].Action != audithook.ActionCustomerLogin {
		t.Errorf("enabled filter: %+v", rec.events)
	}
}

func TestRecorderFailureIsSwallowed(t *testing.T) {
	e := audithook.New(audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return errors.New("backend down")
	}))
	if err := e.OnShutdown(context.Background()); err != nil {
		t.Errorf("OnShutdown = %v", err)
	}
}
