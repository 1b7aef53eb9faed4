// Package sqlite implements the diagnostics store on SQLite through grove.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate" // registers the sqlite migration executor
	"github.com/xraph/grove/migrate"

	"github.com/xraph/purchasekit/diagnostics"
	"github.com/xraph/purchasekit/id"
)

var _ diagnostics.Store = (*Store)(nil)

type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database.
func (s *Store) DB() *grove.DB { return s.db }

func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("diagnostics/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("diagnostics/sqlite: migration failed: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.db.Ping(ctx) }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) SaveSnapshot(ctx context.Context, snap *diagnostics.Snapshot) error {
	m, err := toModel(snap)
	if err != nil {
		return err
	}
	_, err = s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetSnapshot(ctx context.Context, snapshotID id.ID) (*diagnostics.Snapshot, error) {
	m := new(snapshotModel)
	err := s.sdb.NewSelect(m).Where("id = ?", snapshotID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, diagnostics.ErrSnapshotNotFound
		}
		return nil, err
	}
	return fromModel(m)
}

func (s *Store) ListPending(ctx context.Context, limit int) ([]*diagnostics.Snapshot, error) {
	var models []snapshotModel
	q := s.sdb.NewSelect(&models).
		Where("uploaded_at IS NULL").
		OrderExpr("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]*diagnostics.Snapshot, 0, len(models))
	for i := range models {
		snap, err := fromModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

func (s *Store) MarkUploaded(ctx context.Context, snapshotID id.ID, at time.Time) error {
	res, err := s.sdb.NewUpdate((*snapshotModel)(nil)).
		Set("uploaded_at = ?", at.UTC()).
		Where("id = ?", snapshotID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return diagnostics.ErrSnapshotNotFound
	}
	return nil
}

func (s *Store) PurgeSnapshots(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.sdb.NewDelete((*snapshotModel)(nil)).
		Where("created_at < ?", before.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
