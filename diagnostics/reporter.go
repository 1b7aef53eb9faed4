// Package diagnostics snapshots what the engine can observe after an
// irrecoverable mismatch, keeps the snapshots in a Store and uploads them
// through the ledger.
package diagnostics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/filecoin-project/go-clock"

	"github.com/xraph/purchasekit/billing"
	"github.com/xraph/purchasekit/customer"
	"github.com/xraph/purchasekit/id"
	"github.com/xraph/purchasekit/ledgerapi"
	"github.com/xraph/purchasekit/types"
)

const (
	DefaultRetention      = 7 * 24 * time.Hour
	DefaultCaptureTimeout = 30 * time.Second
)

// Source lists the purchases the store account owns.
type Source interface {
	QueryOwnedPurchases(ctx context.Context, kind billing.Kind) ([]billing.Purchase, error)
}

// SnapshotFunc observes every saved snapshot.
type SnapshotFunc func(ctx context.Context, s *Snapshot)

type Reporter struct {
	store    Store
	ledger   ledgerapi.Client
	source   Source
	clock    clock.Clock
	logger   *slog.Logger
	device   types.Device
	customer func() *customer.Customer

	retention  time.Duration
	timeout    time.Duration
	onSnapshot SnapshotFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

type Option func(*Reporter)

func WithClock(c clock.Clock) Option { return func(r *Reporter) { r.clock = c } }

func WithLogger(l *slog.Logger) Option { return func(r *Reporter) { r.logger = l } }

func WithDevice(d types.Device) Option { return func(r *Reporter) { r.device = d } }

// WithCustomer sets how the reporter learns the logged-in customer.
func WithCustomer(fn func() *customer.Customer) Option {
	return func(r *Reporter) { r.customer = fn }
}

func WithRetention(d time.Duration) Option { return func(r *Reporter) { r.retention = d } }

// WithCaptureTimeout bounds each background capture started by Trigger.
func WithCaptureTimeout(d time.Duration) Option { return func(r *Reporter) { r.timeout = d } }

func WithOnSnapshot(fn SnapshotFunc) Option { return func(r *Reporter) { r.onSnapshot = fn } }

// NewReporter creates a Reporter. source may be nil, in which case
// snapshots carry no purchases.
func NewReporter(store Store, ledger ledgerapi.Client, source Source, opts ...Option) *Reporter {
	r := &Reporter{
		store:     store,
		ledger:    ledger,
		source:    source,
		clock:     clock.New(),
		logger:    slog.Default(),
		customer:  func() *customer.Customer { return nil },
		retention: DefaultRetention,
		timeout:   DefaultCaptureTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Capture takes a snapshot, saves it and tries to upload it. An upload
// failure leaves the snapshot pending for Flush and is not returned.
func (r *Reporter) Capture(ctx context.Context, reason string) (*Snapshot, error) {
	s := &Snapshot{
		ID:        id.NewDiagnosticID(),
		Reason:    reason,
		Device:    r.device,
		CreatedAt: r.clock.Now().UTC(),
	}
	if c := r.customer(); c != nil {
		s.CustomerID = c.ID
	}
	if r.source != nil {
		purchases, err := r.source.QueryOwnedPurchases(ctx, "")
		if err != nil {
			s.QueryError = err.Error()
		}
		for _, p := range purchases {
			s.Purchases = append(s.Purchases, fromStore(p))
		}
	}

	if err := r.store.SaveSnapshot(ctx, s); err != nil {
		return nil, fmt.Errorf("diagnostics: save snapshot: %w", err)
	}
	r.logger.Info("diagnostics: snapshot captured",
		"snapshot_id", s.ID.String(), "reason", reason, "purchases", len(s.Purchases))
	if r.onSnapshot != nil {
		r.onSnapshot(ctx, s)
	}

	if err := r.upload(ctx, s); err != nil {
		r.logger.Warn("diagnostics: upload failed, kept for flush", "snapshot_id", s.ID.String(), "error", err)
	}
	return s, nil
}

// Trigger captures a snapshot in the background. It never blocks and is a
// no-op once the reporter is closed.
func (r *Reporter) Trigger(reason string) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if _, err := r.Capture(ctx, reason); err != nil {
			r.logger.Error("diagnostics: capture failed", "reason", reason, "error", err)
		}
	}()
}

// Flush uploads every pending snapshot and returns how many succeeded. It
// stops at the first upload error.
func (r *Reporter) Flush(ctx context.Context) (int, error) {
	pending, err := r.store.ListPending(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("diagnostics: list pending: %w", err)
	}
	for i, s := range pending {
		if err := r.upload(ctx, s); err != nil {
			return i, err
		}
	}
	return len(pending), nil
}

// Purge drops snapshots older than the retention window.
func (r *Reporter) Purge(ctx context.Context) (int64, error) {
	return r.store.PurgeSnapshots(ctx, r.clock.Now().UTC().Add(-r.retention))
}

// Close stops accepting triggers and waits for running captures.
func (r *Reporter) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Reporter) upload(ctx context.Context, s *Snapshot) error {
	body, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	err = r.ledger.UploadDiagnostics(ctx, ledgerapi.DiagnosticsUpload{
		CustomerID:        s.CustomerID,
		InstallIdentifier: s.Device.InstallIdentifier,
		FileName:          fmt.Sprintf("diagnostic-%s.json", s.ID),
		Content:           body,
	})
	if err != nil {
		return err
	}
	at := r.clock.Now().UTC()
	if err := r.store.MarkUploaded(ctx, s.ID, at); err != nil {
		return fmt.Errorf("diagnostics: mark uploaded: %w", err)
	}
	s.UploadedAt = &at
	return nil
}
