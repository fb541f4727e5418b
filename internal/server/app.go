// Package server wires the signaling server together: the session store, the
// coordinator with its gRPC and WebSocket transports, and the cleanup sweeper.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/safeshare/internal/logging"
	"github.com/dmitrijs2005/safeshare/internal/server/config"
	"github.com/dmitrijs2005/safeshare/internal/server/httpapi"
	"github.com/dmitrijs2005/safeshare/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/safeshare/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/safeshare/internal/server/services"
	"github.com/dmitrijs2005/safeshare/internal/server/signaling"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/safeshare/internal/server/grpc"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	manager repomanager.RepositoryManager

	grpcServer *gs.GRPCServer
	httpServer *httpapi.HTTPServer
	sweeper    *services.Sweeper
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, logging.ParseLevel(c.LogLevel))
	return newApp(ctx, c, logger)
}

func newApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	rm, err := repomanager.New(c.DatabaseDSN, sessions.WithCandidateLimit(c.MaxCandidatesPerSide))
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	if err := rm.RunMigrations(ctx); err != nil {
		_ = rm.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	var archiver services.Archiver
	if c.S3Bucket != "" {
		a, err := services.NewS3Archiver(ctx, c)
		if err != nil {
			_ = rm.Close()
			return nil, fmt.Errorf("archiver init error: %w", err)
		}
		archiver = a
	}

	svc := services.NewSessionService(rm.Sessions(), c, logger)
	coord := signaling.NewCoordinator(svc, signaling.NewHub(), logger)

	return &App{
		config:     c,
		logger:     logger,
		manager:    rm,
		grpcServer: gs.NewGRPCServer(c, logger, coord),
		httpServer: httpapi.NewHTTPServer(c, logger, rm, coord),
		sweeper:    services.NewSweeper(rm, archiver, c, logger),
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

// Run starts every component and blocks until ctx is cancelled, a signal
// arrives, or one of them fails.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(cancelFunc)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.grpcServer.Run(gctx) })
	g.Go(func() error { return app.httpServer.Run(gctx) })
	g.Go(func() error { return app.sweeper.Run(gctx) })

	err := g.Wait()
	if err != nil {
		app.logger.Error(ctx, "app stopped", "error", err)
	}

	if cerr := app.manager.Close(); cerr != nil {
		app.logger.Warn(ctx, "db close", "error", cerr)
	}

	app.logger.Info(ctx, "App stopped")
	return err
}
