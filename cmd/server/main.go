package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/completions/internal/application"
	"github.com/JonMunkholm/completions/internal/config"
	"github.com/JonMunkholm/completions/internal/logging"
	"github.com/JonMunkholm/completions/internal/realtime"
	"github.com/JonMunkholm/completions/internal/reports"
	"github.com/JonMunkholm/completions/internal/web"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"import_max_concurrent", cfg.Import.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := application.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := run(ctx, cfg, app); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// run serves until ctx is cancelled, then drains imports and shuts the
// server down within Server.ShutdownTimeout.
func run(ctx context.Context, cfg *config.Config, app *application.App) error {
	clock := clockwork.NewRealClock()

	deps := web.Deps{
		Service: app.Service,
		Feed:    app.Hub,
		DB:      app.Store,
		Clock:   clock,
	}
	if app.Reports != nil {
		deps.Reports = app.Reports
	}
	server := web.NewServer(cfg, deps)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.Activity.ListenEnabled {
		g.Go(func() error {
			realtime.NewListener(app.Pool, app.Hub).Run(gctx)
			return nil
		})
	}

	if app.Reports != nil && cfg.Reports.SchedulerEnabled {
		g.Go(func() error {
			reports.NewScheduler(app.Service, app.Reports, clock, cfg.Reports.CheckInterval).Run(gctx)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Let running imports finish before connections are cut
		if status := app.Service.Limiter().Status(); status.Active > 0 {
			slog.Info("waiting for imports to complete", "active", status.Active)
			if err := app.Service.Limiter().WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("imports did not complete in time", "error", err)
			} else {
				slog.Info("all imports completed")
			}
		}

		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
