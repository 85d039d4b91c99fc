// Package application assembles the tracker's components from
// configuration. The server and the command line tool share it.
package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/completions/internal/config"
	"github.com/JonMunkholm/completions/internal/core"
	"github.com/JonMunkholm/completions/internal/database"
	"github.com/JonMunkholm/completions/internal/mail"
	"github.com/JonMunkholm/completions/internal/realtime"
	"github.com/JonMunkholm/completions/internal/reports"
	"github.com/JonMunkholm/completions/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
)

// App holds the wired components. Reports is nil when email delivery is
// not configured.
type App struct {
	Config  *config.Config
	Pool    *pgxpool.Pool
	Store   *database.Store
	Hub     *realtime.Hub
	Service *core.Service
	Mail    *mail.Client
	Reports *reports.Job
}

// New connects to the database, applies pending migrations when
// Database.AutoMigrate is set and builds the service with optional
// attachments and email reports.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	pool, err := database.Open(ctx, database.PoolConfig{
		URL:             cfg.Database.URL,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	app := &App{
		Config: cfg,
		Pool:   pool,
		Store:  database.New(pool),
		Hub:    realtime.NewHub(),
	}

	if cfg.Database.AutoMigrate {
		applied, err := database.Migrate(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		if len(applied) > 0 {
			slog.Info("migrations applied", "versions", applied)
		}
	}

	opts := []core.Option{
		core.WithPublisher(app.Hub),
		core.WithImportLimiter(core.NewImportLimiter(cfg.Import.MaxConcurrent, cfg.Import.MaxWaitTime)),
		core.WithOperationTimeout(cfg.Import.OperationTimeout),
		core.WithMaxFileSize(cfg.Import.MaxFileSize),
		core.WithImportObserver(logImportEvent),
	}

	if cfg.Storage.Enabled() {
		objects, err := storage.NewS3(ctx, storage.Config{
			Endpoint:     cfg.Storage.Endpoint,
			Region:       cfg.Storage.Region,
			Bucket:       cfg.Storage.Bucket,
			AccessKey:    cfg.Storage.AccessKey,
			SecretKey:    cfg.Storage.SecretKey,
			UsePathStyle: cfg.Storage.UsePathStyle,
		})
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("object storage: %w", err)
		}
		if err := objects.EnsureBucket(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("object storage: %w", err)
		}
		opts = append(opts, core.WithObjectStorage(objects))
		slog.Info("attachments enabled", "bucket", cfg.Storage.Bucket)
	} else {
		slog.Info("attachments disabled, no storage bucket configured")
	}

	app.Service = core.NewService(app.Store, opts...)

	app.Mail = mail.NewClient(mail.Config{
		APIURL: cfg.Mail.APIURL,
		APIKey: cfg.Mail.APIKey,
		From:   cfg.Mail.From,
	})
	if app.Mail.Enabled() {
		app.Reports = reports.NewJob(app.Service, app.Mail)
	} else {
		slog.Info("email reports disabled, no mail API configured")
	}

	return app, nil
}

// Close releases the database pool.
func (a *App) Close() {
	a.Pool.Close()
}

func logImportEvent(e core.ImportEvent) {
	if e.Err != nil {
		slog.Warn("import batch failed", "import_id", e.ImportID, "phase", e.Phase, "rows", e.Rows, "error", e.Err)
		return
	}
	slog.Debug("import batch", "import_id", e.ImportID, "phase", e.Phase, "rows", e.Rows)
}
