package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/emiliopalmerini/splango/internal/adapters/otel"
	"github.com/emiliopalmerini/splango/internal/adapters/turso"
	"github.com/emiliopalmerini/splango/internal/enrollment"
	"github.com/emiliopalmerini/splango/internal/funnel"
	"github.com/emiliopalmerini/splango/internal/goals"
	"github.com/emiliopalmerini/splango/internal/identity"
	"github.com/emiliopalmerini/splango/internal/ports"
	"github.com/emiliopalmerini/splango/internal/request"
)

// AppContext holds all shared dependencies for CLI commands.
type AppContext struct {
	DB       *turso.DB
	Repos    *ports.Repositories
	Metrics  ports.MetricsExporter
	Logger   *slog.Logger
	Services request.Services
	Funnel   *funnel.Engine
}

// openApp is replaced in tests to run commands against an in-memory store.
var openApp = NewAppContext

// NewAppContext connects to the configured database and metrics collector.
func NewAppContext(ctx context.Context) (*AppContext, error) {
	logger, err := newLogger(os.Stderr, logLevel, logFormat)
	if err != nil {
		return nil, err
	}

	db, err := turso.NewDB()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	var metrics ports.MetricsExporter = otel.NewNoOpExporter()
	if cfg := otel.LoadConfig(); cfg.Enabled {
		exp, err := otel.NewExporter(ctx, cfg)
		if err != nil {
			logger.Warn("metrics disabled", "error", err)
		} else {
			metrics = exp
		}
	}

	app := newApp(turso.NewRepositories(db.DB), metrics, logger)
	app.DB = db
	return app, nil
}

func newApp(repos *ports.Repositories, metrics ports.MetricsExporter, logger *slog.Logger) *AppContext {
	return &AppContext{
		Repos:   repos,
		Metrics: metrics,
		Logger:  logger,
		Services: request.Services{
			Resolver: identity.NewResolver(repos.Subjects, metrics, logger),
			Enroller: enrollment.NewEngine(repos, metrics, logger),
			Ledger:   goals.NewLedger(repos, metrics, logger),
			Logger:   logger,
		},
		Funnel: funnel.NewEngine(repos, logger),
	}
}

// Close flushes metrics and releases the database.
func (a *AppContext) Close() error {
	var errs []error
	if a.Metrics != nil {
		errs = append(errs, a.Metrics.Close(context.Background()))
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
