package reports

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/JonMunkholm/completions/internal/core"
	"github.com/jonboulle/clockwork"
)

// DefaultCheckInterval is how often the scheduler looks at the saved
// schedule.
const DefaultCheckInterval = time.Minute

// Scheduler sends the report whenever the saved schedule says it is due.
type Scheduler struct {
	svc      *core.Service
	job      *Job
	clock    clockwork.Clock
	interval time.Duration
}

func NewScheduler(svc *core.Service, job *Job, clock clockwork.Clock, interval time.Duration) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	return &Scheduler{svc: svc, job: job, clock: clock, interval: interval}
}

// Run checks immediately, then every interval, until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("report scheduler started", "check_interval", s.interval)

	s.tick(ctx)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("report scheduler stopped")
			return
		case <-ticker.Chan():
			s.tick(ctx)
		}
	}
}

// tick sends the report when due. Failures are logged; the next tick
// tries again because LastSentAt did not move.
func (s *Scheduler) tick(ctx context.Context) {
	sess := core.SystemSession("report-scheduler")

	settings, err := s.svc.GetReportSettings(ctx, sess)
	if err != nil {
		slog.Error("load report settings failed", "error", err)
		return
	}
	if !settings.Due(s.clock.Now()) {
		return
	}

	start := s.clock.Now()
	res, err := s.job.Send(ctx, sess)
	switch {
	case errors.Is(err, ErrNoRecipients):
		slog.Debug("report due but no recipients")
	case err != nil:
		slog.Error("scheduled report failed", "error", err)
	default:
		slog.Info("scheduled report completed",
			"sent", res.Sent,
			"failed", res.Failed,
			"duration_ms", s.clock.Since(start).Milliseconds(),
		)
	}
}
