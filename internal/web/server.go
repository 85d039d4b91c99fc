// Package web serves the tracker's JSON/HTMX API.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/JonMunkholm/completions/internal/config"
	"github.com/JonMunkholm/completions/internal/core"
	"github.com/JonMunkholm/completions/internal/reports"
	mw "github.com/JonMunkholm/completions/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
)

// Pinger reports database reachability for the health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ActivityFeed delivers activity entries as they are written.
// *realtime.Hub implements it.
type ActivityFeed interface {
	Subscribe() (<-chan core.ActivityLogEntry, func())
}

// ReportSender sends the email report on demand. *reports.Job implements it.
type ReportSender interface {
	Send(ctx context.Context, sess *core.Session) (reports.Result, error)
}

// Deps are the collaborators of a Server. Service is required; the others
// disable their routes' features when nil.
type Deps struct {
	Service *core.Service
	Feed    ActivityFeed
	Reports ReportSender
	DB      Pinger
	Clock   clockwork.Clock
}

// Server is the HTTP server of the tracker.
type Server struct {
	cfg     *config.Config
	service *core.Service
	feed    ActivityFeed
	reports ReportSender
	db      Pinger
	clock   clockwork.Clock
	auth    *mw.Authenticator
	router  *chi.Mux
	server  *http.Server
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Server{
		cfg:     cfg,
		service: deps.Service,
		feed:    deps.Feed,
		reports: deps.Reports,
		db:      deps.DB,
		clock:   clock,
		auth:    mw.NewAuthenticator(cfg.Auth, deps.Service),
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()

	sc := cfg.Server
	s.server = &http.Server{
		Addr:         sc.Addr(),
		Handler:      s.router,
		ReadTimeout:  sc.ReadTimeout,
		WriteTimeout: sc.WriteTimeout,
		IdleTimeout:  sc.IdleTimeout,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(s.securityHeaders)
	s.router.Use(requestMetadata)

	if s.cfg.Rate.Enabled {
		limiter := newRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute, s.clock)
		s.router.Use(limiter.middleware)
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/api/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(s.auth.Middleware)

		// Long-lived stream, no request timeout
		r.Get("/activity/stream", s.handleActivityStream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))

			r.Get("/me", s.handleCurrentUser)
			r.Get("/dashboard", s.handleDashboard)
			r.Get("/activity", s.handleListActivity)

			// Hierarchy
			r.Get("/projects", s.handleListProjects)
			r.Post("/projects", s.handleCreateProject)
			r.Get("/projects/{id}", s.handleGetProject)
			r.Put("/projects/{id}", s.handleUpdateProject)
			r.Delete("/projects/{id}", s.handleDeleteProject)
			r.Get("/projects/{id}/systems", s.handleListSystems)

			r.Post("/systems", s.handleCreateSystem)
			r.Put("/systems/{id}", s.handleUpdateSystem)
			r.Delete("/systems/{id}", s.handleDeleteSystem)
			r.Get("/systems/{id}/subsystems", s.handleListSubsystems)

			r.Post("/subsystems", s.handleCreateSubsystem)
			r.Put("/subsystems/{id}", s.handleUpdateSubsystem)
			r.Delete("/subsystems/{id}", s.handleDeleteSubsystem)
			r.Get("/subsystems/{id}/itrs", s.handleListITRs)

			r.Post("/itrs", s.handleCreateITR)
			r.Put("/itrs/{id}", s.handleUpdateITR)
			r.Delete("/itrs/{id}", s.handleDeleteITR)

			// Test packs and tags
			r.Get("/test-packs", s.handleListTestPacks)
			r.Post("/test-packs", s.handleCreateTestPack)
			r.Get("/test-packs/{id}", s.handleGetTestPack)
			r.Put("/test-packs/{id}", s.handleUpdateTestPack)
			r.Delete("/test-packs/{id}", s.handleDeleteTestPack)
			r.Get("/test-packs/{id}/tags", s.handleListPackTags)

			r.Get("/tags", s.handleListTags)
			r.Post("/tags", s.handleCreateTag)
			r.Put("/tags/{id}", s.handleUpdateTag)
			r.Delete("/tags/{id}", s.handleDeleteTag)
			r.Post("/tags/{id}/release", s.handleReleaseTag)

			// Workbooks
			r.Group(func(r chi.Router) {
				if s.cfg.Rate.Enabled {
					r.Use(newRateLimiter(s.cfg.Rate.ImportLimit, time.Minute, s.clock).middleware)
				}
				r.Post("/import", s.handleImport)
				r.Post("/import/preview", s.handlePreview)
			})
			r.Get("/export", s.handleExport)
			r.Get("/template", s.handleTemplate)

			r.Get("/imports", s.handleListImports)
			r.Get("/imports/{id}", s.handleGetImport)
			r.Post("/imports/{id}/rollback", s.handleRollbackImport)

			// Attachments
			r.Get("/attachments", s.handleListAttachments)
			r.Post("/attachments", s.handleUploadAttachment)
			r.Get("/attachments/{id}/url", s.handleAttachmentURL)
			r.Delete("/attachments/{id}", s.handleDeleteAttachment)

			// Administration
			r.Get("/users", s.handleListUsers)
			r.Post("/users", s.handleCreateUser)
			r.Put("/users/{id}", s.handleUpdateUser)
			r.Delete("/users/{id}", s.handleDeleteUser)

			r.Get("/reports/settings", s.handleGetReportSettings)
			r.Put("/reports/settings", s.handleSaveReportSettings)
			r.Get("/reports/recipients", s.handleListRecipients)
			r.Post("/reports/recipients", s.handleAddRecipient)
			r.Delete("/reports/recipients/{id}", s.handleRemoveRecipient)
			r.Post("/reports/send", s.handleSendReport)
		})
	})
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	slog.Info("server listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server. Start returns
// http.ErrServerClosed afterwards, even if it had not been called yet.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

const contentSecurityPolicy = "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; font-src 'self'"

func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if s.cfg.Security.EnableCSP {
			h.Set("Content-Security-Policy", contentSecurityPolicy)
		}
		next.ServeHTTP(w, r)
	})
}
