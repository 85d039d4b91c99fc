package core

// import.go runs a workbook through parse, validate, link and the two-phase
// bulk write.
//
// Phase 1 inserts every valid test pack in one batch. Phase 2 inserts every
// linked tag in one batch using the IDs from phase 1. A phase 1 failure
// writes nothing. A phase 2 failure leaves the phase 1 test packs in place
// and the import is recorded as partial; RollbackImport removes them.

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
)

// ImportStatus is the outcome recorded in import history.
type ImportStatus string

const (
	ImportComplete   ImportStatus = "complete"
	ImportPartial    ImportStatus = "partial"
	ImportFailed     ImportStatus = "failed"
	ImportRolledBack ImportStatus = "rolled_back"
)

// ImportRecord is one row of import history.
type ImportRecord struct {
	ID               string       `json:"id"`
	FileName         string       `json:"file_name"`
	TestPacksCreated int          `json:"test_packs_created"`
	TagsCreated      int          `json:"tags_created"`
	RowsSkipped      int          `json:"rows_skipped"`
	Status           ImportStatus `json:"status"`
	Error            string       `json:"error,omitempty"`
	UserID           string       `json:"user_id,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
}

// FailedRow describes one row that was not written.
type FailedRow struct {
	Line   int    `json:"line"`
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// ImportResult summarizes one import.
type ImportResult struct {
	ImportID         string        `json:"import_id"`
	FileName         string        `json:"file_name"`
	TotalRows        int           `json:"total_rows"`
	TestPacksCreated int           `json:"test_packs_created"`
	TagsCreated      int           `json:"tags_created"`
	TestPacksSkipped int           `json:"test_packs_skipped"`
	TagsSkipped      int           `json:"tags_skipped"`
	RowsSkipped      int           `json:"rows_skipped"`
	FailedRows       []FailedRow   `json:"failed_rows,omitempty"`
	Status           ImportStatus  `json:"status"`
	Duration         time.Duration `json:"-"`
	TimedOut         bool          `json:"timed_out"`
	Error            string        `json:"error,omitempty"`
}

// ImportEvent is emitted once per write batch.
type ImportEvent struct {
	ImportID string      `json:"import_id"`
	Phase    ImportPhase `json:"phase"`
	Rows     int         `json:"rows"`
	Err      error       `json:"-"`
}

// ImportObserver receives ImportEvents synchronously.
type ImportObserver func(ImportEvent)

// readLimited reads r, failing with ErrFileTooLarge past max bytes.
func readLimited(r io.Reader, max int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("%w: exceeds %d MB", ErrFileTooLarge, max>>20)
	}
	if len(data) == 0 {
		return nil, &ParseError{Reason: "empty file"}
	}
	return data, nil
}

// ImportWorkbook imports test packs and tags from an .xlsx workbook.
// Row-level problems are reported in the result; a ParseError or
// WriteError is returned as err. On WriteError the result is still
// returned and describes what was written.
func (s *Service) ImportWorkbook(ctx context.Context, sess *Session, fileName string, r io.Reader) (*ImportResult, error) {
	if err := s.checkWrite(sess); err != nil {
		return nil, err
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	start := s.clock.Now()
	stop := s.guard.Track("import " + fileName)

	data, err := readLimited(r, s.maxFileSize)
	if err != nil {
		stop()
		return nil, err
	}
	rows, err := ParseWorkbook(bytes.NewReader(data))
	if err != nil {
		stop()
		return nil, err
	}

	link := LinkRows(ValidateRows(rows))
	result, err := s.WriteGroups(ctx, sess, fileName, link)
	result.TotalRows = len(rows)
	result.TimedOut = stop()
	result.Duration = s.clock.Since(start)

	slog.Info("workbook imported",
		"import_id", result.ImportID,
		"file", fileName,
		"status", result.Status,
		"test_packs", result.TestPacksCreated,
		"tags", result.TagsCreated,
		"skipped", result.RowsSkipped,
		"timed_out", result.TimedOut,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, err
}

// WriteGroups performs the two-phase write of linked groups. The returned
// result is never nil.
func (s *Service) WriteGroups(ctx context.Context, sess *Session, fileName string, link LinkResult) (*ImportResult, error) {
	result := &ImportResult{
		ImportID:         uuid.NewString(),
		FileName:         fileName,
		TestPacksSkipped: link.SkippedPacks,
		TagsSkipped:      link.SkippedTags,
		RowsSkipped:      link.RowsSkipped(),
		FailedRows:       failedRows(link),
		Status:           ImportComplete,
	}
	if err := s.checkWrite(sess); err != nil {
		result.Status = ImportFailed
		result.Error = err.Error()
		return result, err
	}
	defer s.recordImport(ctx, sess, result)

	if len(link.Groups) == 0 {
		return result, nil
	}

	packs := make([]TestPackInput, len(link.Groups))
	for i, g := range link.Groups {
		p := g.Pack
		p.normalize()
		p.ImportID = result.ImportID
		packs[i] = p
	}

	created, err := s.store.InsertTestPacks(ctx, packs)
	if err == nil && len(created) != len(packs) {
		err = fmt.Errorf("store returned %d test packs for %d inserted", len(created), len(packs))
	}
	s.emit(ImportEvent{ImportID: result.ImportID, Phase: PhaseTestPacks, Rows: len(packs), Err: err})
	if err != nil {
		result.Status = ImportFailed
		result.TestPacksSkipped += len(packs)
		result.TagsSkipped += link.TagCount()
		werr := &WriteError{Phase: PhaseTestPacks, Skipped: result.RowsSkipped, Err: err}
		result.Error = werr.Error()
		return result, werr
	}
	result.TestPacksCreated = len(created)
	s.logActivity(ctx, sess, ActivityInput{
		TableName: TableTestPacks,
		Action:    ActionInsert,
		RecordID:  result.ImportID,
		Details:   map[string]any{"import_id": result.ImportID, "file_name": fileName, "rows": len(created)},
	})

	var tags []TagInput
	for i, g := range link.Groups {
		for _, t := range g.Tags {
			t.normalize()
			t.TestPackID = created[i].ID
			t.ImportID = result.ImportID
			tags = append(tags, t)
		}
	}
	if len(tags) == 0 {
		return result, nil
	}

	createdTags, err := s.store.InsertTags(ctx, tags)
	s.emit(ImportEvent{ImportID: result.ImportID, Phase: PhaseTags, Rows: len(tags), Err: err})
	if err != nil {
		result.Status = ImportPartial
		result.TagsSkipped += len(tags)
		werr := &WriteError{Phase: PhaseTags, Skipped: result.RowsSkipped, Err: err}
		result.Error = werr.Error()
		return result, werr
	}
	result.TagsCreated = len(createdTags)
	s.logActivity(ctx, sess, ActivityInput{
		TableName: TableTags,
		Action:    ActionInsert,
		RecordID:  result.ImportID,
		Details:   map[string]any{"import_id": result.ImportID, "file_name": fileName, "rows": len(createdTags)},
	})
	return result, nil
}

func (s *Service) emit(ev ImportEvent) {
	if s.importObserver != nil {
		s.importObserver(ev)
	}
}

// recordImport writes the history row. It runs even when ctx was
// cancelled mid-import so partial imports stay visible for rollback.
func (s *Service) recordImport(ctx context.Context, sess *Session, result *ImportResult) {
	rec := ImportRecord{
		ID:               result.ImportID,
		FileName:         result.FileName,
		TestPacksCreated: result.TestPacksCreated,
		TagsCreated:      result.TagsCreated,
		RowsSkipped:      result.RowsSkipped,
		Status:           result.Status,
		Error:            result.Error,
		UserID:           sess.userID(),
		CreatedAt:        s.clock.Now(),
	}
	if err := s.store.InsertImport(context.WithoutCancel(ctx), rec); err != nil {
		slog.Error("record import history failed", "import_id", rec.ID, "error", err)
	}
}

func failedRows(link LinkResult) []FailedRow {
	out := make([]FailedRow, 0, link.RowsSkipped())
	for _, r := range link.Invalid {
		out = append(out, FailedRow{Line: r.Line, Kind: r.Kind.String(), Reason: r.Err.Error()})
	}
	for _, le := range link.LinkErrors {
		out = append(out, FailedRow{Line: le.Line, Kind: KindTag.String(), Reason: le.Error()})
	}
	slices.SortStableFunc(out, func(a, b FailedRow) int { return a.Line - b.Line })
	return out
}
