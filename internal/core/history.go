package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// DefaultHistoryLimit is how many imports ListImports returns by default.
const DefaultHistoryLimit = 20

// RollbackResult describes an import rollback.
type RollbackResult struct {
	ImportID         string `json:"import_id"`
	FileName         string `json:"file_name"`
	TestPacksDeleted int64  `json:"test_packs_deleted"`
	Warning          string `json:"warning,omitempty"`
}

// ListImports returns recent imports, newest first.
func (s *Service) ListImports(ctx context.Context, sess *Session, limit int) ([]ImportRecord, error) {
	if err := s.checkRead(sess); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return s.store.ListImports(ctx, limit)
}

func (s *Service) GetImport(ctx context.Context, sess *Session, id string) (ImportRecord, error) {
	if err := s.checkRead(sess); err != nil {
		return ImportRecord{}, err
	}
	return s.store.GetImport(ctx, id)
}

// RollbackImport deletes the test packs created by an import; their tags
// cascade. It is the only undo for a partial import.
func (s *Service) RollbackImport(ctx context.Context, sess *Session, importID string) (RollbackResult, error) {
	result := RollbackResult{ImportID: importID}
	if err := s.checkWrite(sess); err != nil {
		return result, err
	}

	rec, err := s.store.GetImport(ctx, importID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return result, fmt.Errorf("import %s: %w", importID, err)
		}
		return result, fmt.Errorf("get import: %w", err)
	}
	result.FileName = rec.FileName
	if rec.Status == ImportRolledBack {
		return result, ErrImportRolledBack
	}

	deleted, err := s.store.DeleteTestPacksByImport(ctx, importID)
	if err != nil {
		return result, fmt.Errorf("delete by import: %w", err)
	}
	result.TestPacksDeleted = deleted

	if err := s.store.MarkImportRolledBack(ctx, importID); err != nil {
		// rows are already gone; report and continue
		result.Warning = "test packs deleted but history status update failed: " + err.Error()
		slog.Error("mark import rolled back failed", "import_id", importID, "error", err)
	}

	s.logActivity(ctx, sess, ActivityInput{
		TableName: TableTestPacks,
		Action:    ActionDelete,
		RecordID:  importID,
		Details:   map[string]any{"import_id": importID, "file_name": rec.FileName, "rows": deleted, "rollback": true},
	})
	return result, nil
}
