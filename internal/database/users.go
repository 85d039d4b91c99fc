package database

import (
	"context"
	"errors"
	"time"

	"github.com/JonMunkholm/completions/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const userColumns = `id, email, full_name, role, created_at`

func scanUser(row pgx.Row) (core.User, error) {
	var (
		u        core.User
		id       pgtype.UUID
		fullName pgtype.Text
		role     string
	)
	if err := row.Scan(&id, &u.Email, &fullName, &role, &u.CreatedAt); err != nil {
		return core.User{}, err
	}
	u.ID = uuidToString(id)
	u.FullName = fromPgText(fullName)
	u.Role = core.Role(role)
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := s.db.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY email`)
	return collect(rows, err, scanUser)
}

func (s *Store) GetUser(ctx context.Context, id string) (core.User, error) {
	return one(scanUser(s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, toPgUUID(id))))
}

// GetUserByEmail resolves the account behind a sign-in token.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	return one(scanUser(s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)))
}

func (s *Store) InsertUser(ctx context.Context, in core.UserInput) (core.User, error) {
	return scanUser(s.db.QueryRow(ctx, `
		INSERT INTO users (id, email, full_name, role)
		VALUES ($1, $2, $3, $4)
		RETURNING `+userColumns,
		toPgUUID(newID("")), in.Email, toPgText(in.FullName), string(in.Role),
	))
}

func (s *Store) UpdateUser(ctx context.Context, id string, in core.UserInput) (core.User, error) {
	return one(scanUser(s.db.QueryRow(ctx, `
		UPDATE users SET email = $2, full_name = $3, role = $4
		WHERE id = $1
		RETURNING `+userColumns,
		toPgUUID(id), in.Email, toPgText(in.FullName), string(in.Role),
	)))
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	return affected(s.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, toPgUUID(id)))
}

// Report schedule and recipients

const reportColumns = `enabled, frequency, hour, minute, weekday, last_sent_at`

func scanReportSettings(row pgx.Row) (core.ReportSettings, error) {
	var (
		rs        core.ReportSettings
		frequency string
		weekday   int
		lastSent  pgtype.Timestamptz
	)
	if err := row.Scan(&rs.Enabled, &frequency, &rs.Hour, &rs.Minute, &weekday, &lastSent); err != nil {
		return core.ReportSettings{}, err
	}
	rs.Frequency = core.ReportFrequency(frequency)
	rs.Weekday = time.Weekday(weekday)
	rs.LastSentAt = fromPgTimestamptz(lastSent)
	return rs, nil
}

// GetReportSettings returns the saved schedule, or the default one when
// none has been saved.
func (s *Store) GetReportSettings(ctx context.Context) (core.ReportSettings, error) {
	rs, err := one(scanReportSettings(s.db.QueryRow(ctx,
		`SELECT `+reportColumns+` FROM report_settings WHERE id = 1`)))
	if errors.Is(err, core.ErrNotFound) {
		return core.DefaultReportSettings, nil
	}
	return rs, err
}

// SaveReportSettings upserts the schedule and keeps last_sent_at.
func (s *Store) SaveReportSettings(ctx context.Context, rs core.ReportSettings) (core.ReportSettings, error) {
	return scanReportSettings(s.db.QueryRow(ctx, `
		INSERT INTO report_settings (id, enabled, frequency, hour, minute, weekday)
		VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET enabled = EXCLUDED.enabled, frequency = EXCLUDED.frequency, hour = EXCLUDED.hour,
		    minute = EXCLUDED.minute, weekday = EXCLUDED.weekday
		RETURNING `+reportColumns,
		rs.Enabled, string(rs.Frequency), rs.Hour, rs.Minute, int(rs.Weekday),
	))
}

func (s *Store) MarkReportSent(ctx context.Context, at time.Time) error {
	d := core.DefaultReportSettings
	_, err := s.db.Exec(ctx, `
		INSERT INTO report_settings (id, enabled, frequency, hour, minute, weekday, last_sent_at)
		VALUES (1, $1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET last_sent_at = EXCLUDED.last_sent_at`,
		d.Enabled, string(d.Frequency), d.Hour, d.Minute, int(d.Weekday), at,
	)
	return err
}

const recipientColumns = `id, email, name, active, created_at`

func scanRecipient(row pgx.Row) (core.ReportRecipient, error) {
	var (
		r    core.ReportRecipient
		id   pgtype.UUID
		name pgtype.Text
	)
	if err := row.Scan(&id, &r.Email, &name, &r.Active, &r.CreatedAt); err != nil {
		return core.ReportRecipient{}, err
	}
	r.ID = uuidToString(id)
	r.Name = fromPgText(name)
	return r, nil
}

func (s *Store) ListRecipients(ctx context.Context, activeOnly bool) ([]core.ReportRecipient, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+recipientColumns+` FROM report_recipients WHERE NOT $1 OR active ORDER BY created_at, id`,
		activeOnly)
	return collect(rows, err, scanRecipient)
}

func (s *Store) InsertRecipient(ctx context.Context, in core.RecipientInput) (core.ReportRecipient, error) {
	return scanRecipient(s.db.QueryRow(ctx, `
		INSERT INTO report_recipients (id, email, name, active)
		VALUES ($1, $2, $3, $4)
		RETURNING `+recipientColumns,
		toPgUUID(newID("")), in.Email, toPgText(in.Name), in.Active,
	))
}

func (s *Store) DeleteRecipient(ctx context.Context, id string) error {
	return affected(s.db.Exec(ctx, `DELETE FROM report_recipients WHERE id = $1`, toPgUUID(id)))
}
