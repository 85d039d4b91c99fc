package core

// errors.go defines the error taxonomy of the import pipeline and the
// sentinel errors returned by service calls.
//
// Per-row problems (ValidationError, LinkError) are recovered: the row is
// counted as skipped and the import continues. ParseError and WriteError
// abort the import. Messages are phrased so MapError can match them.

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("record not found")
	ErrNoSession           = errors.New("session required: not signed in")
	ErrSessionEnded        = errors.New("session expired or signed out")
	ErrForbidden           = errors.New("forbidden: insufficient role")
	ErrReleaseDateRequired = errors.New("release date required to release a tag")
	ErrTagReleased         = errors.New("tag already released")
	ErrFileTooLarge        = errors.New("file too large")
	ErrAttachmentsDisabled = errors.New("attachments storage not configured")
	ErrImportRolledBack    = errors.New("import already rolled back")
)

// ParseError reports a workbook that cannot be read as rows.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse workbook: %s: %v", e.Reason, e.Err)
	}
	return "parse workbook: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError represents a single validation error for a field.
type ValidationError struct {
	Line    int    // 1-based sheet line, 0 for form input
	Field   string // Field/column name
	Value   string // The invalid value
	Message string // Human-readable error message
}

func (e *ValidationError) Error() string {
	prefix := ""
	if e.Line > 0 {
		prefix = fmt.Sprintf("line %d: ", e.Line)
	}
	if e.Field != "" {
		return fmt.Sprintf("%s%s: %s", prefix, e.Field, e.Message)
	}
	return prefix + e.Message
}

// LinkError reports a tag row that cannot be matched to its test pack.
type LinkError struct {
	Line    int
	TagName string
	Index   int
	Reason  string
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("line %d: tag %q: test pack index %d %s", e.Line, e.TagName, e.Index, e.Reason)
}

// ImportPhase names one write batch of the bulk writer.
type ImportPhase string

const (
	PhaseTestPacks ImportPhase = "test_packs"
	PhaseTags      ImportPhase = "tags"
)

// WriteError reports a batch insert rejected by the store.
type WriteError struct {
	Phase   ImportPhase
	Skipped int // rows skipped before the failure
	Err     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("import write failed in %s phase (%d rows skipped): %v", e.Phase, e.Skipped, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
