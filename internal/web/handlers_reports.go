package web

import (
	"errors"
	"net/http"

	"github.com/a-h/templ"

	"github.com/emiliopalmerini/splango/internal/domain"
	"github.com/emiliopalmerini/splango/internal/web/templates"
)

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		s.logger.Error("failed to render page", "path", r.URL.Path, "error", err)
	}
}

func (s *Server) handleFunnelPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.PathValue("name")

	report, err := s.funnel.Generate(ctx, name, r.URL.Query()["goal"])
	if errors.Is(err, domain.ErrUnknownExperiment) {
		s.render(w, r, http.StatusNotFound, templates.NotFound("No experiment named "+name))
		return
	}
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		s.logger.Error("failed to generate funnel", "experiment", name, "error", err)
		return
	}

	view := buildFunnelView(report)
	saved, err := s.repos.Reports.ListByExperiment(ctx, name)
	if err != nil {
		s.logger.Warn("failed to list saved reports", "experiment", name, "error", err)
	}
	for _, rep := range saved {
		view.Reports = append(view.Reports, templates.ReportLink{ID: rep.ID, Title: rep.Title})
	}

	s.render(w, r, http.StatusOK, templates.FunnelPage(view))
}

func (s *Server) handleSavedReport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	saved, report, err := s.funnel.GenerateSaved(r.Context(), id)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		s.logger.Error("failed to generate saved report", "report_id", id, "error", err)
		return
	}
	if saved == nil {
		s.render(w, r, http.StatusNotFound, templates.NotFound("No report with id "+id))
		return
	}

	view := buildFunnelView(report)
	view.Title = saved.Title
	view.ReportID = saved.ID
	view.SavedAt = saved.CreatedAt
	s.render(w, r, http.StatusOK, templates.FunnelPage(view))
}
