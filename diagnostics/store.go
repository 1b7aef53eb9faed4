package diagnostics

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/purchasekit/id"
)

// ErrSnapshotNotFound is returned by stores for an unknown snapshot id.
var ErrSnapshotNotFound = errors.New("purchasekit: diagnostic snapshot not found")

// Store persists snapshots until they are uploaded and purged.
type Store interface {
	SaveSnapshot(ctx context.Context, s *Snapshot) error
	GetSnapshot(ctx context.Context, snapshotID id.ID) (*Snapshot, error)
	// ListPending returns snapshots not yet uploaded, oldest first. A
	// non-positive limit returns all of them.
	ListPending(ctx context.Context, limit int) ([]*Snapshot, error)
	MarkUploaded(ctx context.Context, snapshotID id.ID, at time.Time) error
	PurgeSnapshots(ctx context.Context, before time.Time) (int64, error)

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
