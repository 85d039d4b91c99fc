// Package cli implements completionsctl, the command line companion of the
// tracker server. Workbooks can be checked, imported and exported without
// the web UI, and the database can be migrated and reset.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/JonMunkholm/completions/internal/application"
	"github.com/JonMunkholm/completions/internal/config"
	"github.com/JonMunkholm/completions/internal/core"
	"github.com/JonMunkholm/completions/internal/logging"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// SystemUser names the session the tool acts as without --as.
const SystemUser = "completionsctl"

const rootLongDescription = `completionsctl manages a completions tracker database.

Configuration is read from the environment, after loading the file given
by --env-file. The same variables as the server apply.`

type rootCommand struct {
	cmd    *cobra.Command
	logger *slog.Logger

	envFile  string
	logLevel string
	asUser   string

	// lookup replaces os.LookupEnv, for tests
	lookup config.Lookup
	// openApp replaces application.New, for tests
	openApp func(ctx context.Context, cfg *config.Config) (*application.App, error)
}

// NewRootCommand builds the command tree writing to out and errOut.
func NewRootCommand(out, errOut io.Writer) *cobra.Command {
	return newRoot(out, errOut).cmd
}

func newRoot(out, errOut io.Writer) *rootCommand {
	root := &rootCommand{
		lookup:  os.LookupEnv,
		openApp: application.New,
	}

	root.cmd = &cobra.Command{
		Use:           "completionsctl",
		Short:         "Manage a completions tracker",
		Long:          rootLongDescription,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			root.logger = logging.New(cmd.ErrOrStderr(), root.logLevel, "text")
			slog.SetDefault(root.logger)
			return nil
		},
	}
	root.cmd.SetOut(out)
	root.cmd.SetErr(errOut)

	flags := root.cmd.PersistentFlags()
	flags.StringVar(&root.envFile, "env-file", ".env", "file with environment variables, ignored when missing")
	flags.StringVar(&root.logLevel, "log-level", "warn", "debug, info, warn or error")
	flags.StringVar(&root.asUser, "as", "", "act as the user with this email instead of the system account")

	root.cmd.AddCommand(
		validateCommand(root),
		importCommand(root),
		exportCommand(root),
		templateCommand(root),
		importsCommand(root),
		migrateCommand(root),
		reportCommand(root),
		resetCommand(root),
	)
	return root
}

// Execute runs the tool with os.Args and returns the exit code.
func Execute(ctx context.Context) int {
	cmd := NewRootCommand(os.Stdout, os.Stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		printError(cmd.ErrOrStderr(), err)
		return 1
	}
	return 0
}

// printError shows err with the user-facing message and code when core
// recognises it.
func printError(w io.Writer, err error) {
	red := color.New(color.FgRed, color.Bold)
	msg := core.MapError(err)
	if msg.Code == "ERR000" {
		red.Fprintf(w, "Error: %v\n", err)
		return
	}
	red.Fprintf(w, "Error: %s (%s)\n", msg.Message, msg.Code)
	if msg.Action != "" {
		fmt.Fprintf(w, "  %s\n", msg.Action)
	}
	fmt.Fprintf(w, "  %v\n", err)
}

// loadConfig loads --env-file, when present, then the configuration.
func (r *rootCommand) loadConfig() (*config.Config, error) {
	if r.envFile != "" {
		err := godotenv.Overload(r.envFile)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			if r.cmd.PersistentFlags().Changed("env-file") {
				return nil, fmt.Errorf("env file %s: %w", r.envFile, err)
			}
		case err != nil:
			return nil, fmt.Errorf("env file %s: %w", r.envFile, err)
		}
	}
	return config.LoadFrom(r.lookup)
}

// app loads the configuration and wires the service. The caller closes it.
func (r *rootCommand) app(ctx context.Context) (*application.App, error) {
	cfg, err := r.loadConfig()
	if err != nil {
		return nil, err
	}
	return r.openApp(ctx, cfg)
}

// session signs in as --as, or returns the system session.
func (r *rootCommand) session(ctx context.Context, app *application.App) (*core.Session, error) {
	if r.asUser == "" {
		return core.SystemSession(SystemUser), nil
	}
	return app.Service.SignIn(ctx, r.asUser, time.Time{})
}
