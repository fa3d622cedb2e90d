package templates

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"
)

// Layout wraps body in the page shell.
func Layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>%s · splango</title>`+
			`<style>body{font-family:system-ui,sans-serif;margin:2rem}table{border-collapse:collapse}`+
			`th,td{border:1px solid #ccc;padding:.4rem .8rem;text-align:right}th:first-child,td:first-child{text-align:left}`+
			`tr.unknown td{color:#999}</style></head><body>`,
			templ.EscapeString(title)); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</body></html>`)
		return err
	})
}

// FunnelPage renders a funnel report table with one column group per variant.
func FunnelPage(v FunnelView) templ.Component {
	heading := v.Experiment
	if v.Title != "" {
		heading = v.Title
	}
	return Layout(heading, templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &printer{w: w}
		p.printf(`<h1>%s</h1>`, templ.EscapeString(heading))
		p.printf(`<p>Experiment <strong>%s</strong>`, templ.EscapeString(v.Experiment))
		if !v.SavedAt.IsZero() {
			p.printf(` · saved %s`, templ.EscapeString(formatDate(v.SavedAt)))
		}
		p.printf(`</p>`)

		p.printf(`<table><thead><tr><th rowspan="2">Step</th>`)
		for _, variant := range v.Variants {
			p.printf(`<th colspan="3">%s</th>`, templ.EscapeString(variant))
		}
		p.printf(`</tr><tr>`)
		for range v.Variants {
			p.printf(`<th>Count</th><th>Step</th><th>Total</th>`)
		}
		p.printf(`</tr></thead><tbody>`)

		for _, row := range v.Steps {
			if row.Known {
				p.printf(`<tr>`)
			} else {
				p.printf(`<tr class="unknown" title="goal never recorded">`)
			}
			p.printf(`<td>%s</td>`, templ.EscapeString(row.Label))
			for _, c := range row.Cells {
				p.printf(`<td>%s</td><td>%s</td><td>%s</td>`,
					formatCount(c.Count), formatPct(c.Pct), formatPct(c.PctCumulative))
			}
			p.printf(`</tr>`)
		}
		p.printf(`</tbody></table>`)

		if len(v.Reports) > 0 {
			p.printf(`<h2>Saved reports</h2><ul>`)
			for _, r := range v.Reports {
				p.printf(`<li><a href="%s">%s</a></li>`, templ.EscapeString(string(reportURL(r.ID))), templ.EscapeString(r.Title))
			}
			p.printf(`</ul>`)
		}
		return p.err
	}))
}

// NotFound renders a minimal not-found page.
func NotFound(what string) templ.Component {
	return Layout("Not found", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<h1>Not found</h1><p>%s</p>`, templ.EscapeString(what))
		return err
	}))
}

// printer keeps the first write error so rendering code stays linear.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}
