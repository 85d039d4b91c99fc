package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/completions/internal/core"
	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ActivityChannel is the NOTIFY channel fed by the activity_log trigger.
const ActivityChannel = "activity_log"

// Listener forwards activity_log notifications into a Hub, so entries
// written by other processes (the CLI, other server replicas) reach live
// timelines too. It reconnects with exponential backoff.
type Listener struct {
	hub        *Hub
	listen     func(ctx context.Context, connected func(), handle func(payload string)) error
	newBackoff func() backoff.BackOff
}

func NewListener(pool *pgxpool.Pool, hub *Hub) *Listener {
	return &Listener{
		hub:        hub,
		listen:     poolListen(pool),
		newBackoff: newListenBackoff,
	}
}

func newListenBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.RandomizationFactor = 0.2
	b.InitialInterval = 500 * time.Millisecond
	b.Multiplier = 2
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0 // never stop
	b.Reset()
	return b
}

// Run blocks until ctx is done.
func (l *Listener) Run(ctx context.Context) {
	b := l.newBackoff()
	for {
		err := l.listen(ctx, b.Reset, l.handle)
		if ctx.Err() != nil {
			return
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			slog.Error("activity listener giving up", "error", err)
			return
		}
		slog.Warn("activity listener disconnected", "error", err, "retry_in", wait)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (l *Listener) handle(payload string) {
	e, err := decodeNotification(payload)
	if err != nil {
		slog.Warn("bad activity notification", "error", err)
		return
	}
	l.hub.Publish(e)
}

func decodeNotification(payload string) (core.ActivityLogEntry, error) {
	var e core.ActivityLogEntry
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return e, fmt.Errorf("decode activity payload: %w", err)
	}
	if e.ID == "" {
		return e, fmt.Errorf("activity payload without id")
	}
	return e, nil
}

func poolListen(pool *pgxpool.Pool) func(context.Context, func(), func(string)) error {
	return func(ctx context.Context, connected func(), handle func(string)) error {
		pooled, err := pool.Acquire(ctx)
		if err != nil {
			return fmt.Errorf("acquire: %w", err)
		}
		// A LISTENing connection must not go back to the pool.
		conn := pooled.Hijack()
		defer conn.Close(context.Background())

		if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{ActivityChannel}.Sanitize()); err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		connected()
		slog.Debug("listening for activity notifications", "channel", ActivityChannel)

		for {
			n, err := conn.WaitForNotification(ctx)
			if err != nil {
				return err
			}
			handle(n.Payload)
		}
	}
}
