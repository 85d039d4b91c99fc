// Package admin provides administrative operations for database management.
package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// ResetTimeout is the maximum duration for database reset operations.
const ResetTimeout = 30 * time.Second

// Execer runs a statement. *pgxpool.Pool and pgx.Tx implement it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// DataTables are emptied by ResetAll, children first. Users and report
// settings are kept.
var DataTables = []string{
	"attachments",
	"tags",
	"test_packs",
	"imports",
	"itrs",
	"subsystems",
	"systems",
	"projects",
	"activity_log",
}

// ResetAll truncates all tracking data and the import history.
// Attachment bodies in object storage are not deleted.
// This is a destructive operation - use with caution.
func ResetAll(ctx context.Context, db Execer) error {
	ctx, cancel := context.WithTimeout(ctx, ResetTimeout)
	defer cancel()

	for _, table := range DataTables {
		if _, err := db.Exec(ctx, "TRUNCATE TABLE "+table+" CASCADE"); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return nil
}
