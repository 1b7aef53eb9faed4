package purchasekit

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/purchasekit/billing"
	"github.com/xraph/purchasekit/diagnostics"
	"github.com/xraph/purchasekit/errs"
)

// ManualDiagnosticReason tags snapshots requested through SendDiagnostic.
const ManualDiagnosticReason = "manual"

// OnPause records when the host app went to the background.
func (s *SDK) OnPause() {
	ss, err := s.session()
	if err != nil {
		return
	}
	ss.mu.Lock()
	ss.pausedAt = ss.clock.Now()
	ss.mu.Unlock()
}

// OnResume forces a sync when the app stayed paused longer than
// Config.ResumeResyncAfter. It reports whether a sync ran.
func (s *SDK) OnResume(ctx context.Context) (bool, error) {
	ss, err := s.session()
	if err != nil {
		return false, err
	}
	ss.mu.Lock()
	paused := ss.pausedAt
	ss.pausedAt = time.Time{}
	ss.mu.Unlock()

	if paused.IsZero() || ss.clock.Since(paused) <= ss.cfg.ResumeResyncAfter {
		return false, nil
	}
	ss.logger.Debug("purchasekit: resumed after long pause, resyncing", "paused_for", ss.clock.Since(paused))
	return true, ss.syncer.EnsureSync(ctx, true)
}

// SendDiagnostic captures a snapshot now and tries to upload it.
func (s *SDK) SendDiagnostic(ctx context.Context) (*diagnostics.Snapshot, error) {
	ss, err := s.session()
	if err != nil {
		return nil, err
	}
	return ss.reporter.Capture(ctx, ManualDiagnosticReason)
}

// FlushDiagnostics uploads snapshots whose upload failed earlier.
func (s *SDK) FlushDiagnostics(ctx context.Context) (int, error) {
	ss, err := s.session()
	if err != nil {
		return 0, err
	}
	return ss.reporter.Flush(ctx)
}

// PurgeDiagnostics drops snapshots older than Config.DiagnosticsRetention.
func (s *SDK) PurgeDiagnostics(ctx context.Context) (int64, error) {
	ss, err := s.session()
	if err != nil {
		return 0, err
	}
	return ss.reporter.Purge(ctx)
}

// Health reports whether a session is open, the store is connected and the
// diagnostics store answers.
func (s *SDK) Health(ctx context.Context) error {
	ss, err := s.session()
	if err != nil {
		return err
	}
	if st := ss.gateway.Status(); st != billing.StatusAvailable {
		return fmt.Errorf("purchasekit: store %s: %w", st, errs.ErrStoreUnavailable)
	}
	return s.store.Ping(ctx)
}
