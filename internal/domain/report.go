package domain

import (
	"strings"
	"time"
)

// TitleLength is the maximum length of a saved report title.
const TitleLength = 100

// ExperimentReport is a saved funnel definition for an experiment.
type ExperimentReport struct {
	ID         string
	Experiment string
	Title      string
	Funnel     []string
	CreatedAt  time.Time
}

// JoinFunnel encodes funnel goals one per line.
func JoinFunnel(goals []string) string {
	return strings.Join(goals, "\n")
}

// SplitFunnel decodes a stored funnel, trimming whitespace and skipping blank lines.
func SplitFunnel(s string) []string {
	var goals []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			goals = append(goals, line)
		}
	}
	return goals
}

// FunnelReport is the per-variant funnel for one experiment. Steps[0] is the baseline,
// followed by one step per goal in input order.
type FunnelReport struct {
	Experiment string
	Variants   []string
	Steps      []FunnelStep
}

// FunnelStep holds one cell per variant, in the experiment's variant order.
type FunnelStep struct {
	// Goal is empty for the baseline step.
	Goal  string
	Known bool
	Cells []FunnelCell
}

// IsBaseline reports whether the step counts enrollments rather than a goal.
func (s FunnelStep) IsBaseline() bool {
	return s.Goal == ""
}

// FunnelCell is one (step, variant) entry of a funnel report.
type FunnelCell struct {
	Variant       string
	Count         int64
	Pct           float64
	PctCumulative float64
}

// BaselineStep builds step 0 from per-variant enrollment counts.
func BaselineStep(variants []string, counts []int64) FunnelStep {
	step := FunnelStep{Known: true, Cells: make([]FunnelCell, len(variants))}
	for i, v := range variants {
		step.Cells[i] = FunnelCell{Variant: v, Count: counts[i], Pct: 1, PctCumulative: 1}
	}
	return step
}

// NextStep derives a goal step from the previous step and per-variant goal counts.
// All divisions are zero-safe: a zero denominator yields 0.
func NextStep(prev FunnelStep, goal string, counts []int64) FunnelStep {
	step := FunnelStep{Goal: goal, Known: true, Cells: make([]FunnelCell, len(prev.Cells))}
	for i, p := range prev.Cells {
		var pct float64
		if p.Count > 0 {
			pct = float64(counts[i]) / float64(p.Count)
		}
		step.Cells[i] = FunnelCell{
			Variant:       p.Variant,
			Count:         counts[i],
			Pct:           pct,
			PctCumulative: pct * p.PctCumulative,
		}
	}
	return step
}

// UnknownGoalStep is the zeroed step for a goal that does not exist.
func UnknownGoalStep(prev FunnelStep, goal string) FunnelStep {
	step := NextStep(prev, goal, make([]int64, len(prev.Cells)))
	step.Known = false
	return step
}
