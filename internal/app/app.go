package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sandeepkv93/capture-session-service/internal/config"
	"github.com/sandeepkv93/capture-session-service/internal/observability"
)

// BackgroundTask runs until ctx is cancelled.
type BackgroundTask interface {
	Run(ctx context.Context) error
}

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime
	Background    []BackgroundTask

	ShutdownTimeout   time.Duration
	ShutdownDrainWait time.Duration

	cleanup func()
}

func New(cfg *config.Config, logger *slog.Logger, server *http.Server, runtime *observability.Runtime, cleanup func(), background ...BackgroundTask) *App {
	if cleanup == nil {
		cleanup = func() {}
	}
	return &App{
		Config:            cfg,
		Logger:            logger,
		Server:            server,
		Observability:     runtime,
		Background:        background,
		ShutdownTimeout:   cfg.ShutdownTimeout,
		ShutdownDrainWait: cfg.ShutdownHTTPDrainDelay,
		cleanup:           cleanup,
	}
}

// Run serves HTTP and the background tasks until ctx is cancelled, then
// drains the server and flushes telemetry.
func (a *App) Run(ctx context.Context) error {
	defer a.cleanup()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Logger.Info("http server listening", "addr", a.Server.Addr)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	for _, task := range a.Background {
		g.Go(func() error { return task.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown()
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

func (a *App) shutdown() error {
	a.Logger.Info("shutting down")
	if a.ShutdownDrainWait > 0 {
		time.Sleep(a.ShutdownDrainWait)
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()

	var errs []error
	if err := a.Server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
	}
	if err := a.Observability.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown observability: %w", err))
	}
	return errors.Join(errs...)
}

func (a *App) shutdownTimeout() time.Duration {
	if a.ShutdownTimeout <= 0 {
		return 10 * time.Second
	}
	return a.ShutdownTimeout
}
