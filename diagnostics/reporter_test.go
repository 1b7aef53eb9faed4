package diagnostics_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/filecoin-project/go-clock"

	"github.com/xraph/purchasekit/billing"
	"github.com/xraph/purchasekit/customer"
	"github.com/xraph/purchasekit/diagnostics"
	"github.com/xraph/purchasekit/diagnostics/memory"
	"github.com/xraph/purchasekit/ledgerapi/ledgertest"
	"github.com/xraph/purchasekit/types"
)

type source struct {
	purchases []billing.Purchase
	err       error
}

func (s source) QueryOwnedPurchases(context.Context, billing.Kind) ([]billing.Purchase, error) {
	return s.purchases, s.err
}

var device = types.Device{OS: "android", OSVersion: "14", Model: "Pixel", InstallIdentifier: "inst-1"}

func newReporter(t *testing.T, src diagnostics.Source, opts ...diagnostics.Option) (*diagnostics.Reporter, *memory.Store, *ledgertest.Ledger, *clock.Mock) {
	t.Helper()
	store := memory.New()
	ledger := ledgertest.New()
	mock := clock.NewMock()
	opts = append([]diagnostics.Option{
		diagnostics.WithClock(mock),
		diagnostics.WithDevice(device),
		diagnostics.WithCustomer(func() *customer.Customer { return &customer.Customer{ID: "cus_1"} }),
	}, opts...)
	return diagnostics.NewReporter(store, ledger, src, opts...), store, ledger, mock
}

func TestCaptureUploadsSnapshot(t *testing.T) {
	src := source{purchases: []billing.Purchase{{
		Kind: billing.KindSubs, SKUs: []string{"premium"}, Token: "tok-1", State: billing.PurchaseStatePurchased,
	}}}
	r, store, ledger, _ := newReporter(t, src)

	snap, err := r.Capture(context.Background(), "finish_unknown_product")
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if snap.Pending() {
		t.Error("snapshot should be marked uploaded")
	}

	uploads := ledger.Uploads()
	if len(uploads) != 1 {
		t.Fatalf("uploads = %d, want 1", len(uploads))
	}
	up := uploads[0]
	if up.CustomerID != "cus_1" || up.InstallIdentifier != "inst-1" {
		t.Errorf("upload identity = %q/%q", up.CustomerID, up.InstallIdentifier)
	}
	if !strings.HasPrefix(up.FileName, "diagnostic-diag_") || !strings.HasSuffix(up.FileName, ".json") {
		t.Errorf("file name = %q", up.FileName)
	}

	var body diagnostics.Snapshot
	if err := json.Unmarshal(up.Content, &body); err != nil {
		t.Fatalf("content is not json: %v", err)
	}
	if body.Reason != "finish_unknown_product" || len(body.Purchases) != 1 || body.Purchases[0].Token != "tok-1" {
		t.Errorf("content = %+v", body)
	}

	stored, err := store.GetSnapshot(context.Background(), snap.ID)
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if stored.Pending() {
		t.Error("stored snapshot should be uploaded")
	}
}

func TestCaptureRecordsQueryError(t *testing.T) {
	r, _, _, _ := newReporter(t, source{err: errors.New("store disconnected")})

	snap, err := r.Capture(context.Background(), "x")
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if snap.QueryError != "store disconnected" || len(snap.Purchases) != 0 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestUploadFailureKeepsSnapshotForFlush(t *testing.T) {
	r, store, ledger, _ := newReporter(t, nil)
	ledger.Fail(ledgertest.OpUploadDiagnostic, errors.New("offline"))

	for range 2 {
		if _, err := r.Capture(context.Background(), "x"); err != nil {
			t.Fatalf("Capture: %v", err)
		}
	}
	pending, _ := store.ListPending(context.Background(), 0)
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}

	if n, err := r.Flush(context.Background()); err == nil || n != 0 {
		t.Errorf("Flush while offline = %d, %v", n, err)
	}

	ledger.Fail(ledgertest.OpUploadDiagnostic, nil)
	n, err := r.Flush(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("Flush = %d, %v", n, err)
	}
	pending, _ = store.ListPending(context.Background(), 0)
	if len(pending) != 0 {
		t.Errorf("pending after flush = %d", len(pending))
	}
}

func TestPurgeHonoursRetention(t *testing.T) {
	r, store, _, mock := newReporter(t, nil, diagnostics.WithRetention(time.Hour))

	if _, err := r.Capture(context.Background(), "old"); err != nil {
		t.Fatal(err)
	}
	mock.Add(2 * time.Hour)
	fresh, err := r.Capture(context.Background(), "fresh")
	if err != nil {
		t.Fatal(err)
	}

	n, err := r.Purge(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("Purge = %d, %v", n, err)
	}
	if _, err := store.GetSnapshot(context.Background(), fresh.ID); err != nil {
		t.Errorf("fresh snapshot purged: %v", err)
	}
}

func TestTriggerRunsInBackgroundAndStopsAfterClose(t *testing.T) {
	seen := make(chan string, 4)
	r, _, ledger, _ := newReporter(t, nil, diagnostics.WithOnSnapshot(func(_ context.Context, s *diagnostics.Snapshot) {
		seen <- s.Reason
	}))

	r.Trigger("webhook_not_processed")
	r.Close()

	select {
	case reason := <-seen:
		if reason != "webhook_not_processed" {
			t.Errorf("reason = %q", reason)
		}
	default:
		t.Fatal("Close returned before the triggered capture finished")
	}

	r.Trigger("after_close")
	r.Close()
	if got := len(ledger.Uploads()); got != 1 {
		t.Errorf("uploads = %d, want 1", got)
	}
}
