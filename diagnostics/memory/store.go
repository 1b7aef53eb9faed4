// Package memory provides an in-memory diagnostics store for tests and
// hosts that do not persist snapshots across restarts.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/purchasekit/diagnostics"
	"github.com/xraph/purchasekit/id"
)

var _ diagnostics.Store = (*Store)(nil)

type Store struct {
	mu        sync.RWMutex
	snapshots map[string]*diagnostics.Snapshot
}

func New() *Store {
	return &Store{snapshots: make(map[string]*diagnostics.Snapshot)}
}

func (s *Store) SaveSnapshot(_ context.Context, snap *diagnostics.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.ID.String()] = clone(snap)
	return nil
}

func (s *Store) GetSnapshot(_ context.Context, snapshotID id.ID) (*diagnostics.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[snapshotID.String()]
	if !ok {
		return nil, diagnostics.ErrSnapshotNotFound
	}
	return clone(snap), nil
}

func (s *Store) ListPending(_ context.Context, limit int) ([]*diagnostics.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*diagnostics.Snapshot
	for _, snap := range s.snapshots {
		if snap.Pending() {
			out = append(out, clone(snap))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkUploaded(_ context.Context, snapshotID id.ID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[snapshotID.String()]
	if !ok {
		return diagnostics.ErrSnapshotNotFound
	}
	snap.UploadedAt = &at
	return nil
}

func (s *Store) PurgeSnapshots(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for key, snap := range s.snapshots {
		if snap.CreatedAt.Before(before) {
			delete(s.snapshots, key)
			count++
		}
	}
	return count, nil
}

func (s *Store) Migrate(_ context.Context) error { return nil }
func (s *Store) Ping(_ context.Context) error    { return nil }
func (s *Store) Close() error                    { return nil }

func clone(snap *diagnostics.Snapshot) *diagnostics.Snapshot {
	c := *snap
	c.Purchases = append([]diagnostics.Purchase(nil), snap.Purchases...)
	if snap.UploadedAt != nil {
		at := *snap.UploadedAt
		c.UploadedAt = &at
	}
	return &c
}
