package app

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klokku/calaudit/internal/config"
	"github.com/klokku/calaudit/internal/event_bus"
	"github.com/klokku/calaudit/internal/instrumentation"
	"github.com/klokku/calaudit/internal/utils"
	"github.com/klokku/calaudit/pkg/calendar"
	"github.com/klokku/calaudit/pkg/calendar_sync"
	"github.com/klokku/calaudit/pkg/google"
	"github.com/klokku/calaudit/pkg/report"
	"github.com/klokku/calaudit/pkg/user"
	"github.com/klokku/calaudit/pkg/watch_channel"
	log "github.com/sirupsen/logrus"
)

// Dependencies holds all services and handlers for the application.
type Dependencies struct {
	DB              *pgxpool.Pool
	EventBus        *event_bus.EventBus
	Instrumentation *instrumentation.Provider
	Clock           utils.Clock

	UserService user.Service
	UserHandler *user.Handler

	GoogleAuth    *google.GoogleAuth
	GoogleService *google.Service

	CalendarRepository *calendar.RepositoryImpl

	ChannelRepository *watch_channel.RepositoryImpl
	ChannelManager    *watch_channel.Manager
	ChannelRenewer    *watch_channel.Renewer
	ChannelHandler    *watch_channel.Handler

	SyncService *calendar_sync.Service
	SyncHandler *calendar_sync.Handler

	ReportService     *report.ServiceImpl
	CsvReportRenderer *report.CsvRendererImpl
	ReportHandler     *report.Handler
}

// BuildDependencies initializes and wires all application services and handlers.
func BuildDependencies(db *pgxpool.Pool, cfg config.Application, metrics *instrumentation.Provider) *Dependencies {
	deps := &Dependencies{
		DB:              db,
		EventBus:        event_bus.NewEventBus(),
		Instrumentation: metrics,
		Clock:           &utils.SystemClock{},
	}
	metrics.Metrics().Subscribe(deps.EventBus)

	deps.UserService = user.NewUserService(user.NewUserRepo(db))
	deps.UserHandler = user.NewHandler(deps.UserService)

	deps.GoogleAuth = google.NewGoogleAuth(db, deps.UserService, cfg)
	deps.GoogleService = google.NewService(deps.GoogleAuth, metrics.Metrics())

	deps.CalendarRepository = calendar.NewRepository(db)

	deps.ChannelRepository = watch_channel.NewRepository(db)
	deps.ChannelManager = watch_channel.NewManager(deps.ChannelRepository, deps.Clock, deps.EventBus,
		cfg.Sync.WebhookUrl, cfg.Sync.RequestTimeout)
	deps.ChannelRenewer = watch_channel.NewRenewer(deps.ChannelManager, deps.UserService, deps.CalendarRepository,
		deps.GoogleService, cfg.Sync.ChannelRenewalLead)
	deps.ChannelHandler = watch_channel.NewHandler(deps.ChannelManager, deps.CalendarRepository, deps.GoogleService)

	fetcher := calendar_sync.NewCursorFetcher(cfg.Sync.PageSize, cfg.Sync.RequestTimeout)
	deps.SyncService = calendar_sync.NewService(deps.GoogleService, deps.UserService, deps.CalendarRepository,
		deps.ChannelManager, fetcher, deps.EventBus, deps.Clock)
	deps.SyncHandler = calendar_sync.NewHandler(deps.SyncService, deps.UserService)

	deps.ReportService = report.NewService(report.NewRepository(db), deps.CalendarRepository, deps.Clock)
	deps.CsvReportRenderer = report.NewCsvRenderer()
	deps.ReportHandler = report.NewHandler(deps.ReportService, deps.CsvReportRenderer, deps.SyncService, deps.UserService)

	return deps
}

// Close releases the database pool and flushes metrics.
func (d *Dependencies) Close(ctx context.Context) {
	if err := d.Instrumentation.Shutdown(ctx); err != nil {
		log.Warnf("failed to shut down metrics provider: %v", err)
	}
	d.DB.Close()
}
