package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/JonMunkholm/completions/internal/core"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const validateLongDescription = `Command "validate"

Parse, validate and link a workbook without writing anything. Prints the
test packs that would be created and every row that would be skipped.
`

func validateCommand(root *rootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE.xlsx",
		Short: "Check a workbook without importing it",
		Long:  validateLongDescription,
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
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			preview, err := app.Service.PreviewImport(ctx, sess, f)
			if err != nil {
				return err
			}
			printPreview(cmd.OutOrStdout(), preview)
			return nil
		},
	}
}

func printPreview(w io.Writer, p *core.ImportPreview) {
	fmt.Fprintf(w, "%d rows: %d test packs, %d tags, %d skipped\n\n", p.TotalRows, p.TestPacks, p.Tags, p.RowsSkipped)

	if len(p.Groups) > 0 {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "LINE\tTEST PACK\tITR\tPROGRESS\tESTADO\tTAGS\tRELEASED")
		for _, g := range p.Groups {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%d%%\t%s\t%d\t%d\n", g.Line, g.Name, g.ITRName, g.Progress, g.Estado, g.Tags, g.Released)
		}
		tw.Flush()
		fmt.Fprintln(w)
	}
	printFailedRows(w, p.Problems)
}

func printFailedRows(w io.Writer, rows []core.FailedRow) {
	if len(rows) == 0 {
		color.New(color.FgGreen).Fprintln(w, "No problems found.")
		return
	}
	color.New(color.FgYellow).Fprintf(w, "%d rows will be skipped:\n", len(rows))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LINE\tKIND\tREASON")
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", r.Line, r.Kind, r.Reason)
	}
	tw.Flush()
}

const importLongDescription = `Command "import"

Import a workbook of test packs and tags. Rows that fail validation are
skipped and listed. A failed write leaves the rows written so far in place;
roll them back with "completionsctl imports rollback ID".
`

func importCommand(root *rootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE.xlsx",
		Short: "Import a workbook",
		Long:  importLongDescription,
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
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			res, err := app.Service.ImportWorkbook(ctx, sess, filepath.Base(args[0]), f)
			if res != nil {
				printImportResult(cmd.OutOrStdout(), res)
			}
			return err
		},
	}
}

func printImportResult(w io.Writer, res *core.ImportResult) {
	c := color.New(color.FgGreen)
	if res.Status != core.ImportComplete {
		c = color.New(color.FgRed)
	}
	c.Fprintf(w, "Import %s %s\n", res.ImportID, res.Status)
	fmt.Fprintf(w, "  file:        %s\n", res.FileName)
	fmt.Fprintf(w, "  rows:        %d\n", res.TotalRows)
	fmt.Fprintf(w, "  test packs:  %d created, %d skipped\n", res.TestPacksCreated, res.TestPacksSkipped)
	fmt.Fprintf(w, "  tags:        %d created, %d skipped\n", res.TagsCreated, res.TagsSkipped)
	if res.TimedOut {
		color.New(color.FgYellow).Fprintln(w, "  the import ran past the operation timeout")
	}
	fmt.Fprintln(w)
	if len(res.FailedRows) > 0 {
		printFailedRows(w, res.FailedRows)
	}
}

func exportCommand(root *rootCommand) *cobra.Command {
	var (
		out    string
		filter core.TestPackFilter
		estado string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export test packs and tags to a workbook",
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
			filter.Estado = core.Estado(estado)

			var buf bytes.Buffer
			n, err := app.Service.ExportTestPacks(ctx, sess, filter, &buf)
			if err != nil {
				return err
			}
			if out == "" {
				out = core.ExportFileName(app.Service.Now())
			}
			if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d tags to %s\n", n, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default: timestamped name)")
	cmd.Flags().StringVar(&filter.Search, "search", "", "only test packs whose name contains this text")
	cmd.Flags().StringVar(&estado, "estado", "", "only test packs in this state (pendiente or liberado)")
	cmd.Flags().StringVar(&filter.SubsystemID, "subsystem", "", "only test packs of this subsystem")
	cmd.Flags().StringVar(&filter.ImportID, "import", "", "only test packs created by this import")
	return cmd
}

func templateCommand(root *rootCommand) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Write an empty import workbook with instructions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return errors.New("--out is required")
			}
			var buf bytes.Buffer
			if err := core.WriteTemplate(&buf); err != nil {
				return err
			}
			if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Template written to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "completions_template.xlsx", "output file")
	return cmd
}
