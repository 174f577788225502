package main

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"github.com/vui-edu/records/internal/domain/audit"
	"github.com/vui-edu/records/internal/domain/catalog"
	cataloghandler "github.com/vui-edu/records/internal/domain/catalog/handler"
	importhandler "github.com/vui-edu/records/internal/domain/importer/handler"
	importrepo "github.com/vui-edu/records/internal/domain/importer/repository"
	importservice "github.com/vui-edu/records/internal/domain/importer/service"
	"github.com/vui-edu/records/internal/domain/student"
	studenthandler "github.com/vui-edu/records/internal/domain/student/handler"
	"github.com/vui-edu/records/internal/domain/warning"
	warninghandler "github.com/vui-edu/records/internal/domain/warning/handler"
	"github.com/vui-edu/records/pkg/config"
	"github.com/vui-edu/records/pkg/metrics"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	Pool   *pgxpool.Pool
	Logger *slog.Logger

	// Repositories
	ImportStore *importrepo.PostgresStore
	CatalogRepo *catalog.PostgresRepository
	StudentRepo *student.PostgresRepository
	WarningRepo *warning.PostgresStore
	AuditSink   audit.Sink
	SearchIndex *catalog.SearchIndex

	// Services
	ImportService  *importservice.ImportService
	CatalogService *catalog.Service
	StudentService *student.Service
	WarningService *warning.Service
	Scheduler      *warning.Scheduler

	// Handlers
	ImportHandler  *importhandler.ImportHandler
	CatalogHandler *cataloghandler.CatalogHandler
	StudentHandler *studenthandler.StudentHandler
	WarningHandler *warninghandler.WarningHandler
}

func buildDependencies(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{Config: cfg, Pool: pool, Logger: logger}

	deps.ImportStore = importrepo.NewPostgresStore(pool, logger, cfg.Import.StudentEmailDomain)
	deps.CatalogRepo = catalog.NewPostgresRepository(pool)
	deps.StudentRepo = student.NewPostgresRepository(pool)
	deps.WarningRepo = warning.NewPostgresStore(pool)
	deps.AuditSink = audit.NewPostgresSink(pool, logger)

	searchIndex, err := catalog.NewSearchIndex(cfg.Search.IndexPath)
	if err != nil {
		return nil, err
	}
	deps.SearchIndex = searchIndex

	importMetrics := metrics.NewImportMetrics(prometheus.DefaultRegisterer)
	tracer := otel.Tracer("records/importer")

	deps.ImportService = importservice.NewImportService(
		deps.ImportStore, deps.AuditSink, logger, importMetrics, tracer)
	deps.CatalogService = catalog.NewService(deps.CatalogRepo, searchIndex, logger)
	deps.StudentService = student.NewService(deps.StudentRepo, logger)
	deps.WarningService = warning.NewService(deps.WarningRepo, logger, warning.Thresholds{
		MinGPA4:        cfg.Warning.MinGPA4,
		MaxDebtCredits: cfg.Warning.MaxDebtCredits,
	})
	deps.Scheduler = warning.NewScheduler(deps.WarningService, logger)

	deps.ImportHandler = importhandler.NewImportHandler(deps.ImportService, logger)
	deps.CatalogHandler = cataloghandler.NewCatalogHandler(deps.CatalogService, logger)
	deps.StudentHandler = studenthandler.NewStudentHandler(deps.StudentService, logger)
	deps.WarningHandler = warninghandler.NewWarningHandler(deps.WarningService, logger)

	if err := deps.CatalogService.RefreshIndex(ctx); err != nil {
		return nil, err
	}
	return deps, nil
}
