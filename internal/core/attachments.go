package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AttachmentURLTTL is how long a download link stays valid.
const AttachmentURLTTL = 15 * time.Minute

// Attachment is a file stored in object storage and linked to a record.
type Attachment struct {
	ID          string    `json:"id"`
	TableName   string    `json:"table_name"`
	RecordID    string    `json:"record_id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	ObjectKey   string    `json:"-"`
	UploadedBy  string    `json:"uploaded_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

var attachableTables = map[string]bool{
	TableProjects: true, TableSystems: true, TableSubsystems: true,
	TableITRs: true, TableTestPacks: true, TableTags: true,
}

// UploadAttachment stores body and links it to tableName/recordID.
func (s *Service) UploadAttachment(ctx context.Context, sess *Session, tableName, recordID, fileName, contentType string, size int64, body io.Reader) (Attachment, error) {
	if err := s.checkWrite(sess); err != nil {
		return Attachment{}, err
	}
	if s.objects == nil {
		return Attachment{}, ErrAttachmentsDisabled
	}
	if !attachableTables[tableName] {
		return Attachment{}, &ValidationError{Field: "table_name", Value: tableName, Message: "invalid enum value for attachment target"}
	}
	if size > s.maxFileSize {
		return Attachment{}, fmt.Errorf("%w: exceeds %d MB", ErrFileTooLarge, s.maxFileSize>>20)
	}
	fileName = path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	id := uuid.NewString()
	a := Attachment{
		ID:          id,
		TableName:   tableName,
		RecordID:    recordID,
		FileName:    fileName,
		ContentType: contentType,
		Size:        size,
		ObjectKey:   path.Join(tableName, recordID, id+"-"+fileName),
		UploadedBy:  sess.userID(),
	}
	if err := s.objects.Put(ctx, a.ObjectKey, contentType, body, size); err != nil {
		return Attachment{}, fmt.Errorf("store attachment: %w", err)
	}
	saved, err := s.store.InsertAttachment(ctx, a)
	if err != nil {
		if derr := s.objects.Delete(context.WithoutCancel(ctx), a.ObjectKey); derr != nil {
			slog.Warn("orphaned attachment object", "key", a.ObjectKey, "error", derr)
		}
		return Attachment{}, fmt.Errorf("save attachment: %w", err)
	}
	s.logActivity(ctx, sess, ActivityInput{
		TableName: TableAttachment, Action: ActionInsert, RecordID: saved.ID,
		Details: map[string]any{"file_name": fileName, "table": tableName, "record_id": recordID},
	})
	return saved, nil
}

func (s *Service) ListAttachments(ctx context.Context, sess *Session, tableName, recordID string) ([]Attachment, error) {
	if err := s.checkRead(sess); err != nil {
		return nil, err
	}
	return s.store.ListAttachments(ctx, tableName, recordID)
}

// AttachmentURL returns a short-lived download link.
func (s *Service) AttachmentURL(ctx context.Context, sess *Session, id string) (string, error) {
	if err := s.checkRead(sess); err != nil {
		return "", err
	}
	if s.objects == nil {
		return "", ErrAttachmentsDisabled
	}
	a, err := s.store.GetAttachment(ctx, id)
	if err != nil {
		return "", err
	}
	return s.objects.PresignGet(ctx, a.ObjectKey, AttachmentURLTTL)
}

func (s *Service) DeleteAttachment(ctx context.Context, sess *Session, id string) error {
	if err := s.checkWrite(sess); err != nil {
		return err
	}
	if s.objects == nil {
		return ErrAttachmentsDisabled
	}
	a, err := s.store.GetAttachment(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteAttachment(ctx, id); err != nil {
		return fmt.Errorf("delete attachment: %w", err)
	}
	if err := s.objects.Delete(ctx, a.ObjectKey); err != nil {
		slog.Warn("attachment object not deleted", "key", a.ObjectKey, "error", err)
	}
	s.logActivity(ctx, sess, ActivityInput{TableName: TableAttachment, Action: ActionDelete, RecordID: id})
	return nil
}
