package templates

import "time"

// FunnelView is the data rendered by FunnelPage.
type FunnelView struct {
	Experiment string
	Title      string // saved report title, empty for ad hoc funnels
	ReportID   string
	Variants   []string
	Steps      []FunnelRow
	SavedAt    time.Time
	Reports    []ReportLink
}

// FunnelRow is one funnel step; Cells follow Variants order.
type FunnelRow struct {
	Label string
	Known bool
	Cells []FunnelCell
}

type FunnelCell struct {
	Count         int64
	Pct           float64
	PctCumulative float64
}

// ReportLink points at a saved report for the same experiment.
type ReportLink struct {
	ID    string
	Title string
}
