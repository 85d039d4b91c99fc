package core

import (
	"context"
	"log/slog"
	"time"
)

// ActivityAction is the kind of change recorded in the activity log.
type ActivityAction string

const (
	ActionInsert ActivityAction = "INSERT"
	ActionUpdate ActivityAction = "UPDATE"
	ActionDelete ActivityAction = "DELETE"
)

// Table names used in activity entries and attachments.
const (
	TableProjects   = "projects"
	TableSystems    = "systems"
	TableSubsystems = "subsystems"
	TableITRs       = "itrs"
	TableTestPacks  = "test_packs"
	TableTags       = "tags"
	TableUsers      = "users"
	TableImports    = "imports"
	TableReports    = "report_settings"
	TableRecipients = "report_recipients"
	TableAttachment = "attachments"
)

// DefaultActivityLimit bounds timeline queries without an explicit limit.
const DefaultActivityLimit = 50

// ActivityLogEntry is one append-only record of a change.
type ActivityLogEntry struct {
	ID        string         `json:"id"`
	TableName string         `json:"table_name"`
	Action    ActivityAction `json:"action"`
	UserID    string         `json:"user_id,omitempty"`
	RecordID  string         `json:"record_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ActivityInput contains the fields of a new activity entry.
type ActivityInput struct {
	TableName string
	Action    ActivityAction
	UserID    string
	RecordID  string
	Details   map[string]any
}

// ActivityPublisher receives entries as they are appended so live
// timelines update without polling.
type ActivityPublisher interface {
	Publish(entry ActivityLogEntry)
}

// logActivity appends one entry and publishes it. A failed insert is logged
// and swallowed: the change it describes has already been committed.
func (s *Service) logActivity(ctx context.Context, sess *Session, in ActivityInput) {
	in.UserID = sess.userID()
	if ip := GetIPAddressFromContext(ctx); ip != "" {
		if in.Details == nil {
			in.Details = map[string]any{}
		}
		in.Details["ip"] = ip
	}

	entry, err := s.store.InsertActivity(ctx, in)
	if err != nil {
		slog.Error("activity log insert failed",
			"table", in.TableName,
			"action", in.Action,
			"record_id", in.RecordID,
			"error", err,
		)
		return
	}
	if s.publisher != nil {
		s.publisher.Publish(entry)
	}
}

// ListActivity returns the timeline, newest first.
func (s *Service) ListActivity(ctx context.Context, sess *Session, f ActivityFilter) ([]ActivityLogEntry, error) {
	if err := s.checkRead(sess); err != nil {
		return nil, err
	}
	if f.Limit <= 0 {
		f.Limit = DefaultActivityLimit
	}
	return s.store.ListActivity(ctx, f)
}
