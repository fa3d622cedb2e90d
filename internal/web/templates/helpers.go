package templates

import (
	"net/url"
	"time"

	"github.com/a-h/templ"

	"github.com/emiliopalmerini/splango/internal/util"
)

func formatCount(n int64) string {
	return util.FormatNumber(n)
}

func formatPct(p float64) string {
	return util.FormatPercent(p)
}

func formatDate(t time.Time) string {
	return util.FormatDateTime(t)
}

func reportURL(id string) templ.SafeURL {
	return templ.URL("/reports/" + url.PathEscape(id))
}

func funnelURL(experiment string, goals []string) templ.SafeURL {
	q := url.Values{}
	for _, g := range goals {
		q.Add("goal", g)
	}
	u := "/experiments/" + url.PathEscape(experiment) + "/funnel"
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return templ.URL(u)
}
