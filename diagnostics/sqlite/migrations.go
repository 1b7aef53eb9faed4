package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the diagnostics store.
var Migrations = migrate.NewGroup("purchasekit_diagnostics")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_purchasekit_diagnostics",
			Version: "20260101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS purchasekit_diagnostics (
    id          TEXT PRIMARY KEY,
    reason      TEXT NOT NULL,
    customer_id TEXT NOT NULL DEFAULT '',
    device      TEXT NOT NULL DEFAULT '{}',
    purchases   TEXT NOT NULL DEFAULT '[]',
    query_error TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMP NOT NULL,
    uploaded_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_purchasekit_diagnostics_pending
    ON purchasekit_diagnostics (uploaded_at, created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS purchasekit_diagnostics`)
				return err
			},
		},
	)
}
