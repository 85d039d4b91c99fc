package database

import (
	"context"

	"github.com/JonMunkholm/completions/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const attachmentColumns = `id, table_name, record_id, file_name, content_type, size, object_key, uploaded_by, created_at`

func scanAttachment(row pgx.Row) (core.Attachment, error) {
	var (
		a          core.Attachment
		id         pgtype.UUID
		uploadedBy pgtype.Text
	)
	if err := row.Scan(&id, &a.TableName, &a.RecordID, &a.FileName, &a.ContentType, &a.Size,
		&a.ObjectKey, &uploadedBy, &a.CreatedAt); err != nil {
		return core.Attachment{}, err
	}
	a.ID = uuidToString(id)
	a.UploadedBy = fromPgText(uploadedBy)
	return a, nil
}

func (s *Store) InsertAttachment(ctx context.Context, a core.Attachment) (core.Attachment, error) {
	return scanAttachment(s.db.QueryRow(ctx, `
		INSERT INTO attachments (id, table_name, record_id, file_name, content_type, size, object_key, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+attachmentColumns,
		toPgUUID(newID(a.ID)), a.TableName, a.RecordID, a.FileName, a.ContentType, a.Size,
		a.ObjectKey, toPgText(a.UploadedBy),
	))
}

func (s *Store) ListAttachments(ctx context.Context, tableName, recordID string) ([]core.Attachment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+attachmentColumns+` FROM attachments
		WHERE table_name = $1 AND record_id = $2
		ORDER BY created_at, id`,
		tableName, recordID)
	return collect(rows, err, scanAttachment)
}

func (s *Store) GetAttachment(ctx context.Context, id string) (core.Attachment, error) {
	return one(scanAttachment(s.db.QueryRow(ctx,
		`SELECT `+attachmentColumns+` FROM attachments WHERE id = $1`, toPgUUID(id))))
}

func (s *Store) DeleteAttachment(ctx context.Context, id string) error {
	return affected(s.db.Exec(ctx, `DELETE FROM attachments WHERE id = $1`, toPgUUID(id)))
}
