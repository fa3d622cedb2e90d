package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/emiliopalmerini/splango/internal/funnel"
	"github.com/emiliopalmerini/splango/internal/ports"
	"github.com/emiliopalmerini/splango/internal/request"
	"github.com/emiliopalmerini/splango/internal/shared/middleware"
)

type Server struct {
	router   *http.ServeMux
	port     int
	repos    *ports.Repositories
	services request.Services
	funnel   *funnel.Engine
	logger   *slog.Logger
}

func NewServer(port int, repos *ports.Repositories, services request.Services, fe *funnel.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if services.Logger == nil {
		services.Logger = logger
	}
	s := &Server{
		router:   http.NewServeMux(),
		port:     port,
		repos:    repos,
		services: services,
		funnel:   fe,
		logger:   logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Health check
	s.router.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Visitor endpoints run inside a request manager
	s.router.Handle("GET /api/experiments/{name}/variant", s.visitor(s.handleAPIVariant))
	s.router.Handle("POST /api/experiments/{name}/enroll", s.visitor(s.handleAPIEnroll))
	s.router.Handle("POST /api/goals/{name}", s.visitor(s.handleAPIGoal))
	s.router.Handle("POST /api/identify", s.visitor(s.handleAPIIdentify))

	// Admin and reports
	s.router.HandleFunc("GET /api/experiments", s.handleAPIExperiments)
	s.router.HandleFunc("GET /api/reports/funnel", s.handleAPIFunnel)
	s.router.HandleFunc("GET /experiments/{name}/funnel", s.handleFunnelPage)
	s.router.HandleFunc("GET /reports/{id}", s.handleSavedReport)
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      middleware.AccessLog(s.logger, s.router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting server", "addr", fmt.Sprintf("http://localhost:%d", s.port))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("server shutdown", "error", err)
		}
	}()

	err := server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil // Graceful shutdown
	}
	return err
}
