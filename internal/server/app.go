// Package server initializes and runs the verifier backend. It opens the
// database, applies migrations, wires the services and starts the public
// HTTP endpoint with graceful shutdown on OS signals.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/akarpov91/chainanchor/internal/logging"
	"github.com/akarpov91/chainanchor/internal/server/config"
	"github.com/akarpov91/chainanchor/internal/server/httpapi"
	"github.com/akarpov91/chainanchor/internal/server/repositories/repomanager"
	"github.com/akarpov91/chainanchor/internal/server/services"
)

// cleanupInterval is how often expired challenges and sessions are purged.
const cleanupInterval = 5 * time.Minute

type App struct {
	config           *config.Config
	logger           logging.Logger
	db               *sql.DB
	challengeService *services.ChallengeService
	sessionService   *services.SessionService
	storageService   *services.StorageService
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slogger)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	cs := services.NewChallengeService(db, rm, cfg)
	ss := services.NewSessionService(db, rm, cfg)
	st := services.NewStorageService(cfg)

	return &App{
		config:           cfg,
		logger:           logger,
		db:               db,
		challengeService: cs,
		sessionService:   ss,
		storageService:   st,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s := httpapi.NewServer(app.config, app.logger, app.challengeService, app.sessionService, app.storageService)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, "http shutdown error", "error", err)
		}
	}()

	app.logger.Info(ctx, "http server listening", "addr", app.config.EndpointAddr)
	if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// runJanitor purges expired challenges and sessions on a fixed interval so
// the tables do not grow without bound.
func (app *App) runJanitor(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := app.challengeService.Cleanup(ctx); err != nil {
				app.logger.Warn(ctx, "challenge cleanup failed", "error", err)
			} else if n > 0 {
				app.logger.Info(ctx, "expired challenges purged", "count", n)
			}
			if n, err := app.sessionService.Cleanup(ctx); err != nil {
				app.logger.Warn(ctx, "session cleanup failed", "error", err)
			} else if n > 0 {
				app.logger.Info(ctx, "expired sessions purged", "count", n)
			}
		}
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.runJanitor(ctx)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
}
