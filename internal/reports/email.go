// Package reports renders and sends the scheduled completions email.
package reports

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/JonMunkholm/completions/internal/core"
	"github.com/a-h/templ"
)

// Subject is the email subject line for data.
func Subject(data *core.ReportData) string {
	return fmt.Sprintf("Completions report %s", data.GeneratedAt.Format("2006-01-02"))
}

// Email renders the report body as a self-contained HTML document.
func Email(data *core.ReportData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		d := data.Dashboard

		b.WriteString(`<!DOCTYPE html><html><body style="font-family:sans-serif;color:#1f2937">`)
		fmt.Fprintf(&b, `<h1 style="font-size:20px">%s</h1>`, templ.EscapeString(Subject(data)))

		b.WriteString(`<table cellpadding="6" style="border-collapse:collapse">`)
		row := func(label string, value any) {
			fmt.Fprintf(&b, `<tr><td>%s</td><td style="font-weight:bold">%s</td></tr>`,
				templ.EscapeString(label), templ.EscapeString(fmt.Sprint(value)))
		}
		row("Projects", d.Projects)
		row("Test packs", d.TestPacks)
		row("Tags", d.Tags)
		row("Tags released", fmt.Sprintf("%d%%", d.TagsReleasedPct))
		b.WriteString(`</table>`)

		if len(d.ProjectProgress) > 0 {
			b.WriteString(`<h2 style="font-size:16px">Project progress</h2><ul>`)
			for _, p := range d.ProjectProgress {
				fmt.Fprintf(&b, `<li>%s: %d%% (%s)</li>`,
					templ.EscapeString(p.Name), p.Progress, templ.EscapeString(p.Status))
			}
			b.WriteString(`</ul>`)
		}

		if len(data.Imports) > 0 {
			b.WriteString(`<h2 style="font-size:16px">Recent imports</h2><ul>`)
			for _, imp := range data.Imports {
				fmt.Fprintf(&b, `<li>%s &middot; %s &middot; %d test packs, %d tags, %d rows skipped</li>`,
					templ.EscapeString(imp.FileName), templ.EscapeString(string(imp.Status)),
					imp.TestPacksCreated, imp.TagsCreated, imp.RowsSkipped)
			}
			b.WriteString(`</ul>`)
		}

		b.WriteString(`</body></html>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}
