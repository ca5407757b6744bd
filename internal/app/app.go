package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/klokku/calaudit/internal/config"
	"github.com/klokku/calaudit/internal/database"
	"github.com/klokku/calaudit/internal/instrumentation"
	log "github.com/sirupsen/logrus"
)

const shutdownTimeout = 15 * time.Second

// Application wires configuration, database, router, and server lifecycle.
type Application struct {
	cfg    config.Application
	deps   *Dependencies
	router *mux.Router
	srv    *http.Server
}

// Bootstrap opens the database, applies migrations and builds every service.
// The caller owns the returned dependencies and must Close them.
func Bootstrap(ctx context.Context, cfg config.Application) (*Dependencies, error) {
	if err := database.Migrate(cfg.Database); err != nil {
		return nil, err
	}
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	metrics, err := instrumentation.NewProvider(cfg.Metrics.Enabled)
	if err != nil {
		db.Close()
		return nil, err
	}
	return BuildDependencies(db, cfg, metrics), nil
}

// NewApplication constructs the full HTTP application, ready to Run().
func NewApplication(ctx context.Context, cfg config.Application, addr string) (*Application, error) {
	deps, err := Bootstrap(ctx, cfg)
	if err != nil {
		return nil, err
	}

	r := mux.NewRouter()
	SetupMiddleware(r, deps)
	RegisterRoutes(r, deps)

	srv := &http.Server{
		Handler:      r,
		Addr:         addr,
		WriteTimeout: 2 * time.Minute,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Application{cfg: cfg, deps: deps, router: r, srv: srv}, nil
}

// Run starts the channel renewal schedule and the HTTP server, and blocks until ctx is done.
func (a *Application) Run(ctx context.Context) error {
	defer a.deps.Close(context.Background())

	if a.cfg.Sync.WebhookUrl != "" {
		if err := a.deps.ChannelRenewer.Start(a.cfg.Sync.ChannelRenewalCron); err != nil {
			return err
		}
	} else {
		log.Warn("sync.webhookurl is not set, push notifications are disabled")
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Infof("Starting server on %s", a.srv.Addr)
		serveErr <- a.srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.deps.ChannelRenewer.Stop(shutdownCtx)
	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	return nil
}
