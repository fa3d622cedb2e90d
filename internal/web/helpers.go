package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/emiliopalmerini/splango/internal/domain"
	"github.com/emiliopalmerini/splango/internal/web/templates"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotEnrollable):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnknownExperiment):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnknownVariant),
		errors.Is(err, domain.ErrInvalidGoal),
		errors.Is(err, domain.ErrInvalidExperiment):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

type experimentResponse struct {
	Name       string    `json:"name"`
	Variants   []string  `json:"variants"`
	Enrollable bool      `json:"enrollable"`
	CreatedAt  time.Time `json:"created_at"`
}

type funnelCellResponse struct {
	Variant       string  `json:"variant"`
	Count         int64   `json:"count"`
	Pct           float64 `json:"pct"`
	PctCumulative float64 `json:"pct_cumulative"`
}

type funnelStepResponse struct {
	Goal  *string              `json:"goal"`
	Known bool                 `json:"known"`
	Cells []funnelCellResponse `json:"cells"`
}

type funnelResponse struct {
	Experiment string               `json:"experiment"`
	Variants   []string             `json:"variants"`
	Steps      []funnelStepResponse `json:"steps"`
}

func buildFunnelResponse(report *domain.FunnelReport) funnelResponse {
	resp := funnelResponse{
		Experiment: report.Experiment,
		Variants:   report.Variants,
		Steps:      make([]funnelStepResponse, len(report.Steps)),
	}
	for i, step := range report.Steps {
		out := funnelStepResponse{Known: step.Known, Cells: make([]funnelCellResponse, len(step.Cells))}
		if !step.IsBaseline() {
			goal := step.Goal
			out.Goal = &goal
		}
		for j, c := range step.Cells {
			out.Cells[j] = funnelCellResponse(c)
		}
		resp.Steps[i] = out
	}
	return resp
}

// buildFunnelView converts a report for the HTML page.
func buildFunnelView(report *domain.FunnelReport) templates.FunnelView {
	view := templates.FunnelView{
		Experiment: report.Experiment,
		Variants:   report.Variants,
		Steps:      make([]templates.FunnelRow, len(report.Steps)),
	}
	for i, step := range report.Steps {
		row := templates.FunnelRow{Label: step.Goal, Known: step.Known, Cells: make([]templates.FunnelCell, len(step.Cells))}
		if step.IsBaseline() {
			row.Label = "enrolled"
		}
		for j, c := range step.Cells {
			row.Cells[j] = templates.FunnelCell{Count: c.Count, Pct: c.Pct, PctCumulative: c.PctCumulative}
		}
		view.Steps[i] = row
	}
	return view
}
