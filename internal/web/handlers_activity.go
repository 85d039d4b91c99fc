package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/JonMunkholm/completions/internal/core"
	"github.com/JonMunkholm/completions/internal/logging"
	"github.com/JonMunkholm/completions/internal/web/templates"
)

var errStreamUnavailable = errors.New("activity stream not configured")

// activityFilter reads table, record_id, action, since, limit and offset.
func activityFilter(r *http.Request) (core.ActivityFilter, error) {
	q := r.URL.Query()
	f := core.ActivityFilter{
		TableName: q.Get("table"),
		RecordID:  q.Get("record_id"),
		Action:    core.ActivityAction(strings.ToUpper(q.Get("action"))),
		Limit:     queryInt(r, "limit", 0),
		Offset:    queryInt(r, "offset", 0),
	}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return f, &core.ValidationError{Field: "since", Value: since, Message: "invalid date, use RFC 3339"}
		}
		f.Since = t
	}
	return f, nil
}

func (s *Server) handleListActivity(w http.ResponseWriter, r *http.Request) {
	f, err := activityFilter(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	entries, err := s.service.ListActivity(r.Context(), session(r), f)
	respond(w, r, http.StatusOK, entries, err)
}

// handleActivityStream pushes new activity entries as Server-Sent Events.
// With since=, entries after that time are replayed first. With
// format=html each event carries a rendered timeline item instead of JSON.
func (s *Server) handleActivityStream(w http.ResponseWriter, r *http.Request) {
	if s.feed == nil {
		respondStatus(w, r, http.StatusServiceUnavailable, errStreamUnavailable)
		return
	}
	f, err := activityFilter(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	sess := session(r)

	// Subscribe before loading the backlog so nothing falls in between
	entries, cancel := s.feed.Subscribe()
	defer cancel()

	var backlog []core.ActivityLogEntry
	if !f.Since.IsZero() {
		backlog, err = s.service.ListActivity(r.Context(), sess, core.ActivityFilter{
			TableName: f.TableName, RecordID: f.RecordID, Action: f.Action,
			Since: f.Since, Limit: core.DefaultActivityLimit,
		})
		if err != nil {
			respondError(w, r, err)
			return
		}
		slices.Reverse(backlog)
	} else if err := sess.Check(s.service.Now()); err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	html := r.URL.Query().Get("format") == "html"
	log := logging.FromContext(r.Context())

	// live entries already replayed from the backlog are skipped
	replayed := make(map[string]bool, len(backlog))
	for _, e := range backlog {
		replayed[e.ID] = true
	}
	send := func(e core.ActivityLogEntry) bool {
		data, err := encodeEvent(r, e, html)
		if err != nil {
			log.Error("encode activity event", "error", err, "activity_id", e.ID)
			return true
		}
		fmt.Fprintf(w, "id: %s\nevent: activity\ndata: %s\n\n", e.ID, data)
		return rc.Flush() == nil
	}

	for _, e := range backlog {
		if !send(e) {
			return
		}
	}
	if err := rc.Flush(); err != nil {
		return
	}

	heartbeat := s.clock.NewTicker(s.cfg.Activity.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.Chan():
			if sess.Check(s.service.Now()) != nil {
				fmt.Fprint(w, "event: session-ended\ndata: {}\n\n")
				rc.Flush()
				return
			}
			fmt.Fprint(w, ": ping\n\n")
			if rc.Flush() != nil {
				return
			}
		case e, ok := <-entries:
			if !ok {
				return
			}
			if replayed[e.ID] || !matches(f, e) {
				continue
			}
			if !send(e) {
				return
			}
		}
	}
}

// matches applies the table, record and action filters to a live entry.
func matches(f core.ActivityFilter, e core.ActivityLogEntry) bool {
	return (f.TableName == "" || f.TableName == e.TableName) &&
		(f.RecordID == "" || f.RecordID == e.RecordID) &&
		(f.Action == "" || f.Action == e.Action)
}

func encodeEvent(r *http.Request, e core.ActivityLogEntry, html bool) ([]byte, error) {
	if !html {
		return json.Marshal(e)
	}
	var buf bytes.Buffer
	if err := templates.ActivityItem(e).Render(r.Context(), &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
