package web

// errors.go turns service errors into responses. The technical error is
// logged with the request ID; the client gets core.MapError's message,
// action and code as JSON, or as an alert fragment for HTMX requests.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/JonMunkholm/completions/internal/core"
	"github.com/JonMunkholm/completions/internal/logging"
	"github.com/JonMunkholm/completions/internal/mail"
	"github.com/JonMunkholm/completions/internal/reports"
	"github.com/JonMunkholm/completions/internal/web/templates"
)

// maxJSONBody caps JSON request bodies.
const maxJSONBody = 1 << 20

var (
	errRateLimited = errors.New("rate limit exceeded")
	errNoFile      = errors.New("no file provided")
	errBadJSON     = errors.New("invalid request body")
)

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusFor picks the HTTP status for err.
func statusFor(err error) int {
	var (
		verr *core.ValidationError
		perr *core.ParseError
		werr *core.WriteError
	)
	switch {
	case errors.Is(err, core.ErrNoSession), errors.Is(err, core.ErrSessionEnded):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrTooManyImports), errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, core.ErrAttachmentsDisabled), errors.Is(err, mail.ErrMailDisabled):
		return http.StatusServiceUnavailable
	case core.IsTransitionError(err):
		if errors.Is(err, core.ErrTagReleased) {
			return http.StatusConflict
		}
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrImportRolledBack), errors.Is(err, reports.ErrNoRecipients):
		return http.StatusConflict
	case errors.As(err, &verr), errors.As(err, &perr),
		errors.Is(err, errNoFile), errors.Is(err, errBadJSON):
		return http.StatusUnprocessableEntity
	case errors.As(err, &werr):
		return http.StatusInternalServerError
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}

	// Store errors are only recognisable by message
	switch core.MapError(err).Code {
	case "DB001", "DB002":
		return http.StatusConflict
	case "DB003", "DB008":
		return http.StatusUnprocessableEntity
	case "DB004", "DB005", "DB006", "DB007":
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondError writes err with the status statusFor picks.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	respondStatus(w, r, statusFor(err), err)
}

// respondStatus logs err and writes the user-facing form of it.
func respondStatus(w http.ResponseWriter, r *http.Request, status int, err error) {
	msg := core.MapError(err)

	level := slog.LevelWarn
	if status >= 500 {
		level = slog.LevelError
	}
	logging.FromContext(r.Context()).Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	)

	// Validation details are safe and more useful than the generic text
	var verr *core.ValidationError
	if errors.As(err, &verr) {
		msg.Message = verr.Error()
	}

	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		if err := templates.ErrorAlert(msg.Message, msg.Action, msg.Code).Render(r.Context(), w); err != nil {
			slog.Error("render error alert", "error", err)
		}
		return
	}
	writeJSON(w, status, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// writeJSON encodes v with status. Encoding errors are logged since the
// header is already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}

// decodeJSON reads a single JSON object into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("%w: expected application/json", errBadJSON)
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadJSON, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("%w: trailing data", errBadJSON)
	}
	return nil
}
