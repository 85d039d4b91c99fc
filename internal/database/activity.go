package database

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/completions/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const activityColumns = `id, table_name, action, user_id, record_id, details, created_at`

func scanActivity(row pgx.Row) (core.ActivityLogEntry, error) {
	var (
		e                core.ActivityLogEntry
		id               pgtype.UUID
		action           string
		userID, recordID pgtype.Text
		details          []byte
	)
	if err := row.Scan(&id, &e.TableName, &action, &userID, &recordID, &details, &e.CreatedAt); err != nil {
		return core.ActivityLogEntry{}, err
	}
	e.ID = uuidToString(id)
	e.Action = core.ActivityAction(action)
	e.UserID = fromPgText(userID)
	e.RecordID = fromPgText(recordID)
	e.Details = fromJSONB(details)
	return e, nil
}

func (s *Store) InsertActivity(ctx context.Context, in core.ActivityInput) (core.ActivityLogEntry, error) {
	details, err := toJSONB(in.Details)
	if err != nil {
		return core.ActivityLogEntry{}, fmt.Errorf("encode details: %w", err)
	}
	return scanActivity(s.db.QueryRow(ctx, `
		INSERT INTO activity_log (table_name, action, user_id, record_id, details)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+activityColumns,
		in.TableName, string(in.Action), toPgText(in.UserID), toPgText(in.RecordID), details,
	))
}

// ListActivity returns matching entries newest first.
func (s *Store) ListActivity(ctx context.Context, f core.ActivityFilter) ([]core.ActivityLogEntry, error) {
	since := pgtype.Timestamptz{Valid: false}
	if !f.Since.IsZero() {
		since = pgtype.Timestamptz{Time: f.Since, Valid: true}
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+activityColumns+` FROM activity_log
		WHERE ($1::text = '' OR table_name = $1)
		  AND ($2::text = '' OR record_id = $2)
		  AND ($3::text = '' OR action = $3)
		  AND ($4::timestamptz IS NULL OR created_at >= $4)
		ORDER BY created_at DESC, id
		LIMIT $5 OFFSET $6`,
		f.TableName, f.RecordID, string(f.Action), since, toPgLimit(f.Limit), max(f.Offset, 0),
	)
	return collect(rows, err, scanActivity)
}
