package database

import (
	"context"

	"github.com/JonMunkholm/completions/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const importColumns = `id, file_name, test_packs_created, tags_created, rows_skipped, status, error, user_id, created_at`

func scanImport(row pgx.Row) (core.ImportRecord, error) {
	var (
		rec            core.ImportRecord
		id             pgtype.UUID
		status         string
		errMsg, userID pgtype.Text
	)
	if err := row.Scan(&id, &rec.FileName, &rec.TestPacksCreated, &rec.TagsCreated, &rec.RowsSkipped,
		&status, &errMsg, &userID, &rec.CreatedAt); err != nil {
		return core.ImportRecord{}, err
	}
	rec.ID = uuidToString(id)
	rec.Status = core.ImportStatus(status)
	rec.Error = fromPgText(errMsg)
	rec.UserID = fromPgText(userID)
	return rec, nil
}

func (s *Store) InsertImport(ctx context.Context, rec core.ImportRecord) error {
	created := rec.CreatedAt
	if created.IsZero() {
		created = s.now().UTC()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO imports (id, file_name, test_packs_created, tags_created, rows_skipped, status, error, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		toPgUUID(newID(rec.ID)), rec.FileName, rec.TestPacksCreated, rec.TagsCreated, rec.RowsSkipped,
		string(rec.Status), toPgText(rec.Error), toPgText(rec.UserID), created,
	)
	return err
}

func (s *Store) GetImport(ctx context.Context, id string) (core.ImportRecord, error) {
	return one(scanImport(s.db.QueryRow(ctx,
		`SELECT `+importColumns+` FROM imports WHERE id = $1`, toPgUUID(id))))
}

// ListImports returns the most recent imports first.
func (s *Store) ListImports(ctx context.Context, limit int) ([]core.ImportRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+importColumns+` FROM imports ORDER BY created_at DESC, id LIMIT $1`, toPgLimit(limit))
	return collect(rows, err, scanImport)
}

func (s *Store) MarkImportRolledBack(ctx context.Context, id string) error {
	return affected(s.db.Exec(ctx,
		`UPDATE imports SET status = $2 WHERE id = $1`, toPgUUID(id), string(core.ImportRolledBack)))
}
