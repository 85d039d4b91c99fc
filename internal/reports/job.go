package reports

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/JonMunkholm/completions/internal/core"
	"github.com/JonMunkholm/completions/internal/mail"
	"golang.org/x/sync/errgroup"
)

// ErrNoRecipients is returned when no active recipient is configured.
var ErrNoRecipients = errors.New("no active report recipients")

// maxParallelSends bounds concurrent calls to the email API.
const maxParallelSends = 4

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, msg mail.Message) (string, error)
}

// Job builds the report once and mails it to every active recipient
// separately.
type Job struct {
	svc    *core.Service
	sender Sender
}

func NewJob(svc *core.Service, sender Sender) *Job {
	return &Job{svc: svc, sender: sender}
}

// Result counts deliveries of one run.
type Result struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// Send runs the job as sess. The send is recorded when at least one
// recipient got the report.
func (j *Job) Send(ctx context.Context, sess *core.Session) (Result, error) {
	var res Result

	recipients, err := j.svc.ReportAudience(ctx, sess)
	if err != nil {
		return res, err
	}
	if len(recipients) == 0 {
		return res, ErrNoRecipients
	}

	data, err := j.svc.BuildReport(ctx, sess)
	if err != nil {
		return res, fmt.Errorf("build report: %w", err)
	}
	var body bytes.Buffer
	if err := Email(data).Render(ctx, &body); err != nil {
		return res, fmt.Errorf("render report: %w", err)
	}
	subject := Subject(data)

	var sent, failed atomic.Int32
	var lastErr atomic.Value
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelSends)
	for _, r := range recipients {
		g.Go(func() error {
			_, err := j.sender.Send(gctx, mail.Message{To: []string{r.Email}, Subject: subject, HTML: body.String()})
			if err != nil {
				if errors.Is(err, mail.ErrMailDisabled) {
					return err
				}
				failed.Add(1)
				lastErr.Store(err)
				slog.Warn("report delivery failed", "recipient", r.Email, "error", err)
				return nil
			}
			sent.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	res.Sent, res.Failed = int(sent.Load()), int(failed.Load())
	if res.Sent == 0 {
		err, _ := lastErr.Load().(error)
		return res, fmt.Errorf("report not delivered to any recipient: %w", err)
	}
	if err := j.svc.MarkReportSent(ctx, sess, res.Sent); err != nil {
		return res, err
	}
	slog.Info("report sent", "sent", res.Sent, "failed", res.Failed)
	return res, nil
}
