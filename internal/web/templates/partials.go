// Package templates holds the HTML fragments returned to HTMX requests.
package templates

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/JonMunkholm/completions/internal/core"
	"github.com/a-h/templ"
)

// ErrorAlert renders a dismissible error box with the user message, the
// suggested action and the support code.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<div class="alert alert-error" role="alert">`)
		fmt.Fprintf(&b, `<p class="alert-message">%s</p>`, templ.EscapeString(message))
		if action != "" {
			fmt.Fprintf(&b, `<p class="alert-action">%s</p>`, templ.EscapeString(action))
		}
		if code != "" {
			fmt.Fprintf(&b, `<p class="alert-code">Code: %s</p>`, templ.EscapeString(code))
		}
		b.WriteString(`<button type="button" onclick="this.parentElement.remove()">Dismiss</button></div>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// ImportSummary renders the outcome of an import with its skipped rows.
func ImportSummary(res *core.ImportResult) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		class := "import-" + string(res.Status)
		fmt.Fprintf(&b, `<div class="import-summary %s" data-import-id="%s">`,
			templ.EscapeString(class), templ.EscapeString(res.ImportID))
		fmt.Fprintf(&b, `<h3>%s</h3>`, templ.EscapeString(res.FileName))
		fmt.Fprintf(&b, `<p>%d test packs, %d tags created; %d rows skipped</p>`,
			res.TestPacksCreated, res.TagsCreated, res.RowsSkipped)
		if res.TimedOut {
			b.WriteString(`<p class="import-slow">The import took longer than expected.</p>`)
		}
		if res.Error != "" {
			fmt.Fprintf(&b, `<p class="import-error">%s</p>`, templ.EscapeString(res.Error))
		}
		if len(res.FailedRows) > 0 {
			b.WriteString(`<ul class="import-problems">`)
			for _, fr := range res.FailedRows {
				fmt.Fprintf(&b, `<li>Line %d (%s): %s</li>`,
					fr.Line, templ.EscapeString(fr.Kind), templ.EscapeString(fr.Reason))
			}
			b.WriteString(`</ul>`)
		}
		b.WriteString(`</div>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// ActivityItem renders one timeline entry, used for SSE updates to HTMX
// timelines.
func ActivityItem(e core.ActivityLogEntry) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<li class="activity activity-%s" id="activity-%s"><time datetime="%s">%s</time> %s %s %s</li>`,
			templ.EscapeString(strings.ToLower(string(e.Action))),
			templ.EscapeString(e.ID),
			e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
			e.CreatedAt.UTC().Format("2006-01-02 15:04"),
			templ.EscapeString(string(e.Action)),
			templ.EscapeString(e.TableName),
			templ.EscapeString(e.RecordID),
		)
		return err
	})
}
