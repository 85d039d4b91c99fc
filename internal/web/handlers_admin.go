package web

import (
	"context"
	"net/http"
	"time"

	"github.com/JonMunkholm/completions/internal/core"
	"github.com/JonMunkholm/completions/internal/logging"
	"github.com/JonMunkholm/completions/internal/mail"
)

// healthTimeout bounds the database ping of a health check.
const healthTimeout = 2 * time.Second

type healthResponse struct {
	Status   string                   `json:"status"`
	Database string                   `json:"database"`
	Imports  core.ImportLimiterStatus `json:"imports"`
	Time     time.Time                `json:"time"`
}

// handleHealth is unauthenticated. It answers 503 when the database does
// not respond.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:   "ok",
		Database: "unknown",
		Imports:  s.service.Limiter().Status(),
		Time:     s.service.Now().UTC(),
	}
	status := http.StatusOK
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			logging.FromContext(r.Context()).Warn("health: database ping failed", "error", err)
			resp.Status, resp.Database = "degraded", "unreachable"
			status = http.StatusServiceUnavailable
		} else {
			resp.Database = "ok"
		}
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.service.CurrentUser(r.Context(), session(r))
	respond(w, r, http.StatusOK, u, err)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.service.Dashboard(r.Context(), session(r))
	respond(w, r, http.StatusOK, d, err)
}

// Users

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.service.ListUsers(r.Context(), session(r))
	respond(w, r, http.StatusOK, users, err)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var in core.UserInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	u, err := s.service.CreateUser(r.Context(), session(r), in)
	respond(w, r, http.StatusCreated, u, err)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var in core.UserInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	u, err := s.service.UpdateUser(r.Context(), session(r), idParam(r), in)
	respond(w, r, http.StatusOK, u, err)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	respondDeleted(w, r, s.service.DeleteUser(r.Context(), session(r), idParam(r)))
}

// Reports

type reportSettingsResponse struct {
	core.ReportSettings
	NextRun *time.Time `json:"next_run,omitempty"`
}

func (s *Server) settingsResponse(rs core.ReportSettings) reportSettingsResponse {
	resp := reportSettingsResponse{ReportSettings: rs}
	if rs.Enabled {
		next := rs.NextRun(s.service.Now())
		resp.NextRun = &next
	}
	return resp
}

func (s *Server) handleGetReportSettings(w http.ResponseWriter, r *http.Request) {
	rs, err := s.service.GetReportSettings(r.Context(), session(r))
	respond(w, r, http.StatusOK, s.settingsResponse(rs), err)
}

func (s *Server) handleSaveReportSettings(w http.ResponseWriter, r *http.Request) {
	var in core.ReportSettings
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	in.LastSentAt = nil
	rs, err := s.service.SaveReportSettings(r.Context(), session(r), in)
	respond(w, r, http.StatusOK, s.settingsResponse(rs), err)
}

func (s *Server) handleListRecipients(w http.ResponseWriter, r *http.Request) {
	recipients, err := s.service.ListRecipients(r.Context(), session(r))
	respond(w, r, http.StatusOK, recipients, err)
}

func (s *Server) handleAddRecipient(w http.ResponseWriter, r *http.Request) {
	var in core.RecipientInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	rec, err := s.service.AddRecipient(r.Context(), session(r), in)
	respond(w, r, http.StatusCreated, rec, err)
}

func (s *Server) handleRemoveRecipient(w http.ResponseWriter, r *http.Request) {
	respondDeleted(w, r, s.service.RemoveRecipient(r.Context(), session(r), idParam(r)))
}

// handleSendReport sends the report now, outside the schedule.
func (s *Server) handleSendReport(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		respondError(w, r, mail.ErrMailDisabled)
		return
	}
	res, err := s.reports.Send(r.Context(), session(r))
	respond(w, r, http.StatusOK, res, err)
}

// Attachments

func (s *Server) handleListAttachments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := s.service.ListAttachments(r.Context(), session(r), q.Get("table"), q.Get("record_id"))
	respond(w, r, http.StatusOK, list, err)
}

// handleUploadAttachment takes a multipart body with table_name,
// record_id and file.
func (s *Server) handleUploadAttachment(w http.ResponseWriter, r *http.Request) {
	file, header, err := s.formFile(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer file.Close()

	a, err := s.service.UploadAttachment(r.Context(), session(r),
		r.FormValue("table_name"), r.FormValue("record_id"),
		header.Filename, header.Header.Get("Content-Type"), header.Size, file)
	respond(w, r, http.StatusCreated, a, err)
}

type attachmentURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) handleAttachmentURL(w http.ResponseWriter, r *http.Request) {
	url, err := s.service.AttachmentURL(r.Context(), session(r), idParam(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if r.URL.Query().Get("redirect") == "1" {
		http.Redirect(w, r, url, http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, attachmentURLResponse{URL: url, ExpiresAt: s.service.Now().Add(core.AttachmentURLTTL).UTC()})
}

func (s *Server) handleDeleteAttachment(w http.ResponseWriter, r *http.Request) {
	respondDeleted(w, r, s.service.DeleteAttachment(r.Context(), session(r), idParam(r)))
}
