package core

import (
	"context"
	"fmt"
	"time"
)

// ReportFrequency is how often the scheduled report goes out.
type ReportFrequency string

const (
	ReportDaily  ReportFrequency = "daily"
	ReportWeekly ReportFrequency = "weekly"
)

// ReportSettings is the single schedule record of the email report.
type ReportSettings struct {
	Enabled    bool            `json:"enabled"`
	Frequency  ReportFrequency `json:"frequency" validate:"oneof=daily weekly"`
	Hour       int             `json:"hour" validate:"min=0,max=23"`
	Minute     int             `json:"minute" validate:"min=0,max=59"`
	Weekday    time.Weekday    `json:"weekday" validate:"min=0,max=6"`
	LastSentAt *time.Time      `json:"last_sent_at,omitempty"`
}

// DefaultReportSettings is used until an admin saves a schedule.
var DefaultReportSettings = ReportSettings{Frequency: ReportWeekly, Hour: 8, Weekday: time.Monday}

// ReportRecipient receives the email report.
type ReportRecipient struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// NextRun returns the first scheduled send time strictly after from, in
// from's location.
func (rs ReportSettings) NextRun(from time.Time) time.Time {
	next := time.Date(from.Year(), from.Month(), from.Day(), rs.Hour, rs.Minute, 0, 0, from.Location())
	if rs.Frequency == ReportWeekly {
		days := (int(rs.Weekday) - int(next.Weekday()) + 7) % 7
		next = next.AddDate(0, 0, days)
		if !next.After(from) {
			next = next.AddDate(0, 0, 7)
		}
		return next
	}
	if !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Due reports whether a scheduled send is owed at now: the most recent
// scheduled time is not after now and the report has not been sent since.
func (rs ReportSettings) Due(now time.Time) bool {
	if !rs.Enabled {
		return false
	}
	period := 24 * time.Hour
	if rs.Frequency == ReportWeekly {
		period = 7 * 24 * time.Hour
	}
	last := rs.NextRun(now.Add(-period))
	if last.After(now) {
		return false
	}
	return rs.LastSentAt == nil || rs.LastSentAt.Before(last)
}

// ReportData is the content of one email report.
type ReportData struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Dashboard   *Dashboard     `json:"dashboard"`
	Imports     []ImportRecord `json:"imports"`
}

// SystemSession is the session used by scheduled jobs and the CLI.
func SystemSession(name string) *Session {
	return NewSession("system:"+name, "", RoleAdmin, time.Time{})
}

func (s *Service) GetReportSettings(ctx context.Context, sess *Session) (ReportSettings, error) {
	if err := s.checkRead(sess); err != nil {
		return ReportSettings{}, err
	}
	return s.store.GetReportSettings(ctx)
}

func (s *Service) SaveReportSettings(ctx context.Context, sess *Session, rs ReportSettings) (ReportSettings, error) {
	if err := s.checkAdmin(sess); err != nil {
		return ReportSettings{}, err
	}
	if rs.Frequency == "" {
		rs.Frequency = ReportWeekly
	}
	if err := s.checkForm(rs); err != nil {
		return ReportSettings{}, err
	}
	saved, err := s.store.SaveReportSettings(ctx, rs)
	if err != nil {
		return ReportSettings{}, fmt.Errorf("save report settings: %w", err)
	}
	s.logActivity(ctx, sess, ActivityInput{
		TableName: TableReports, Action: ActionUpdate, RecordID: "1",
		Details: map[string]any{"enabled": saved.Enabled, "frequency": saved.Frequency},
	})
	return saved, nil
}

func (s *Service) ListRecipients(ctx context.Context, sess *Session) ([]ReportRecipient, error) {
	if err := s.checkAdmin(sess); err != nil {
		return nil, err
	}
	return s.store.ListRecipients(ctx, false)
}

func (s *Service) AddRecipient(ctx context.Context, sess *Session, in RecipientInput) (ReportRecipient, error) {
	if err := s.checkAdmin(sess); err != nil {
		return ReportRecipient{}, err
	}
	in.normalize()
	if err := s.checkForm(in); err != nil {
		return ReportRecipient{}, err
	}
	r, err := s.store.InsertRecipient(ctx, in)
	if err != nil {
		return ReportRecipient{}, fmt.Errorf("add recipient: %w", err)
	}
	s.logActivity(ctx, sess, ActivityInput{
		TableName: TableRecipients, Action: ActionInsert, RecordID: r.ID,
		Details: map[string]any{"email": r.Email},
	})
	return r, nil
}

func (s *Service) RemoveRecipient(ctx context.Context, sess *Session, id string) error {
	if err := s.checkAdmin(sess); err != nil {
		return err
	}
	if err := s.store.DeleteRecipient(ctx, id); err != nil {
		return fmt.Errorf("remove recipient: %w", err)
	}
	s.logActivity(ctx, sess, ActivityInput{TableName: TableRecipients, Action: ActionDelete, RecordID: id})
	return nil
}

// ReportAudience returns the active recipients of the report.
func (s *Service) ReportAudience(ctx context.Context, sess *Session) ([]ReportRecipient, error) {
	if err := s.checkAdmin(sess); err != nil {
		return nil, err
	}
	return s.store.ListRecipients(ctx, true)
}

// BuildReport collects the data of one email report.
func (s *Service) BuildReport(ctx context.Context, sess *Session) (*ReportData, error) {
	dash, err := s.Dashboard(ctx, sess)
	if err != nil {
		return nil, err
	}
	imports, err := s.store.ListImports(ctx, 5)
	if err != nil {
		return nil, fmt.Errorf("list imports: %w", err)
	}
	return &ReportData{GeneratedAt: s.clock.Now(), Dashboard: dash, Imports: imports}, nil
}

// MarkReportSent records a completed send.
func (s *Service) MarkReportSent(ctx context.Context, sess *Session, recipients int) error {
	if err := s.checkAdmin(sess); err != nil {
		return err
	}
	if err := s.store.MarkReportSent(ctx, s.clock.Now()); err != nil {
		return fmt.Errorf("mark report sent: %w", err)
	}
	s.logActivity(ctx, sess, ActivityInput{
		TableName: TableReports, Action: ActionUpdate, RecordID: "1",
		Details: map[string]any{"sent_to": recipients},
	})
	return nil
}
