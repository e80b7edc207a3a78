// Package server wires the user store, the HTTP API and the gRPC health
// endpoint together and runs them until a shutdown signal arrives.
package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/chatgate/internal/logging"
	"github.com/dmitrijs2005/chatgate/internal/server/config"
	"github.com/dmitrijs2005/chatgate/internal/server/httpapi"
	"github.com/dmitrijs2005/chatgate/internal/telemetry"

	gs "github.com/dmitrijs2005/chatgate/internal/server/grpc"
)

const (
	serviceName         = "chatgate"
	healthProbeInterval = 15 * time.Second
)

type App struct {
	config *config.Config
	logger logging.Logger
	core   *Core

	shutdownTracing func(context.Context) error
}

func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	shutdownTracing, err := telemetry.Setup(ctx, serviceName, c.OTLPEndpoint)
	if err != nil {
		return nil, err
	}

	core, err := NewCore(ctx, c, logger)
	if err != nil {
		_ = shutdownTracing(ctx)
		return nil, err
	}

	return &App{config: c, logger: logger, core: core, shutdownTracing: shutdownTracing}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) error {
	router := httpapi.NewRouter(app.core.Users, app.core.Tokens, app.logger.With("module", "http"))
	s := httpapi.NewServer(app.config.HTTPAddr, router, app.logger)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, "HTTP server failed", "error", err)
		cancelFunc()
		return err
	}
	return nil
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) error {
	s := gs.NewGRPCServer(app.config.GRPCAddr, app.logger, app.core.Users, healthProbeInterval)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, "gRPC server failed", "error", err)
		cancelFunc()
		return err
	}
	return nil
}

// Run serves until ctx is canceled, a termination signal arrives, or one of
// the servers fails. Resources are released before it returns.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	run := func(fn func(context.Context, context.CancelFunc) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx, cancelFunc); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}

	run(app.startHTTPServer)
	if app.config.GRPCAddr != "" {
		run(app.startGRPCServer)
	}

	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.shutdownTracing(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := app.core.Close(); err != nil {
		errs = append(errs, err)
	}

	app.logger.Info(shutdownCtx, "App stopped")
	return errors.Join(errs...)
}
