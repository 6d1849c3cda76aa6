package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cuongbtq/beanstalk-bridge/internal/api/handler"
	"github.com/cuongbtq/beanstalk-bridge/internal/api/router"
	"github.com/cuongbtq/beanstalk-bridge/internal/config"
	"github.com/cuongbtq/beanstalk-bridge/internal/worker"
)

func newServeCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and execute queued task runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateServeConfig(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	d, err := initDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	d.logger.Info("Starting bridge service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.Any("tasks", cfg.TaskNames()),
	)

	pool := worker.NewPool(&worker.Config{
		Logger:      d.logger.Component("worker"),
		Executor:    d.runner,
		Concurrency: cfg.Worker.Concurrency,
		QueueSize:   cfg.Worker.QueueSize,
		RunTimeout:  cfg.Worker.RunTimeout,
	})

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	routerCfg := router.Config{
		ServiceName: cfg.App.Name,
		Gatherer:    d.registry,
	}
	if d.db != nil {
		routerCfg.Database = d.db
	}

	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router.SetupRouter(routerCfg, &handler.Dependencies{
			Logger:    d.logger.Component("api"),
			Store:     d.storage,
			Scheduler: pool,
			Tasks:     cfg.TaskNames(),
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// runs are not tied to the signal so they can finish during shutdown
	workerCtx, cancelWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWorkers()
	pool.Start(workerCtx)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		d.logger.Info("Starting HTTP server", slog.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		d.logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		stopped := make(chan struct{})
		go func() {
			pool.Stop()
			close(stopped)
		}()

		select {
		case <-stopped:
		case <-time.After(cfg.Worker.ShutdownTimeout):
			d.logger.Warn("Worker pool did not stop in time, canceling runs",
				slog.Duration("shutdown_timeout", cfg.Worker.ShutdownTimeout),
			)
			cancelWorkers()
			<-stopped
		}
		return nil
	})

	err = g.Wait()
	d.logger.Info("Bridge service stopped")
	return err
}
