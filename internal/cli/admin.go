package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/JonMunkholm/completions/internal/admin"
	"github.com/JonMunkholm/completions/internal/config"
	"github.com/JonMunkholm/completions/internal/database"
	"github.com/JonMunkholm/completions/internal/mail"
	"github.com/fatih/color"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

func importsCommand(root *rootCommand) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "imports",
		Short: "List and roll back imports",
	}
	cmd.AddCommand(importsListCommand(root), importsRollbackCommand(root))
	return cmd
}

func importsListCommand(root *rootCommand) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show recent imports, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := root.app(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			sess, err := root.session(ctx, app)
			if err != nil {
				return err
			}
			imports, err := app.Service.ListImports(ctx, sess, limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tFILE\tSTATUS\tTEST PACKS\tTAGS\tSKIPPED\tCREATED")
			for _, rec := range imports {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
					rec.ID, rec.FileName, rec.Status, rec.TestPacksCreated, rec.TagsCreated,
					rec.RowsSkipped, rec.CreatedAt.Local().Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of imports to show")
	return cmd
}

func importsRollbackCommand(root *rootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "rollback ID",
		Short: "Delete the test packs and tags an import created",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := root.app(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			sess, err := root.session(ctx, app)
			if err != nil {
				return err
			}
			res, err := app.Service.RollbackImport(ctx, sess, args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			color.New(color.FgGreen).Fprintf(w, "Rolled back %s (%s): %d test packs deleted\n",
				res.ImportID, res.FileName, res.TestPacksDeleted)
			if res.Warning != "" {
				color.New(color.FgYellow).Fprintf(w, "Warning: %s\n", res.Warning)
			}
			return nil
		},
	}
}

// openPool connects without building the service, for schema commands.
func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return database.Open(ctx, database.PoolConfig{
		URL:      cfg.Database.URL,
		MaxConns: 2,
	})
}

func migrateCommand(root *rootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := database.Migrate(ctx, pool)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(applied) == 0 {
				fmt.Fprintln(w, "Database is up to date.")
				return nil
			}
			for _, v := range applied {
				color.New(color.FgGreen).Fprintf(w, "applied %s\n", v)
			}
			return nil
		},
	}
}

func reportCommand(root *rootCommand) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Email reports",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "send",
		Short: "Send the report to every active recipient now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := root.app(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			if app.Reports == nil {
				return mail.ErrMailDisabled
			}
			sess, err := root.session(ctx, app)
			if err != nil {
				return err
			}
			res, err := app.Reports.Send(ctx, sess)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Report sent to %d recipients, %d failed\n", res.Sent, res.Failed)
			return nil
		},
	})
	return cmd
}

var errResetNotConfirmed = errors.New("reset deletes all tracking data; pass --yes to confirm")

func resetCommand(root *rootCommand) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all projects, test packs, tags, imports and activity",
		Long: `Command "reset"

Truncate every tracking table. Users, report settings and recipients are
kept. Attachment files stay in object storage.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errResetNotConfirmed
			}
			ctx := cmd.Context()
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := admin.ResetAll(ctx, pool); err != nil {
				return err
			}
			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "Reset %d tables\n", len(admin.DataTables))
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}
