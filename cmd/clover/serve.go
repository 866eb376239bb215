package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/clover/pkg/entitymap"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/routes/entity"
	"github.com/Ramsey-B/clover/pkg/routes/health"
	"github.com/Ramsey-B/clover/pkg/startup"
)

const shutdownTimeout = 15 * time.Second

// pingFunc adapts a connectivity check to health.Pinger.
type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

func newServeCommand(ctx *commandContext) *cobra.Command {
	var reloadInterval time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the committed entity map over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app) error {
				return serve(cmd.Context(), a, reloadInterval)
			})
		},
	}
	cmd.Flags().DurationVar(&reloadInterval, "reload-interval", 0, "Reload the committed map periodically (0 disables)")
	return cmd
}

func serve(ctx context.Context, a *app, reloadInterval time.Duration) error {
	cfg := a.cfg
	logger := a.logger

	view := entitymap.NewView(a.store, logger)
	checker := health.NewChecker(version)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second

	e.Use(echomiddleware.Recover())
	if cfg.TracingEnabled {
		e.Use(otelecho.Middleware(cfg.AppName))
	}
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
	}))

	checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	entity.NewHandler(view).Register(e.Group("/api/v1"))

	s := startup.NewStartup(logger, cfg.StartupMaxAttempts)

	var viewRequires []string
	if a.db != nil {
		db := a.db
		checker.AddCheck("database", db)
		s.AddDependency(&startup.Func{
			DependencyName: "database",
			OnStart:        db.PingContext,
		})
		viewRequires = append(viewRequires, "database")
	}

	if cfg.GraphEnabled {
		client, err := a.graphClient()
		if err != nil {
			return err
		}
		checker.AddCheck("graph", pingFunc(client.VerifyConnectivity))
		s.AddDependency(&startup.Func{
			DependencyName: "graph",
			OnStart:        client.VerifyConnectivity,
		})
	}

	reloadCtx, stopReload := context.WithCancel(ctx)
	defer stopReload()

	s.AddDependency(&startup.Func{
		DependencyName: "entity-view",
		Requires:       viewRequires,
		OnStart: func(ctx context.Context) error {
			if err := view.Reload(ctx); err != nil {
				return err
			}
			if reloadInterval > 0 {
				go reloadLoop(reloadCtx, a, view, reloadInterval)
			}
			return nil
		},
		OnStop: func(context.Context) error {
			stopReload()
			return nil
		},
	})

	serverErr := make(chan error, 1)
	s.AddDependency(&startup.Func{
		DependencyName: "http-server",
		Requires:       []string{"entity-view"},
		OnStart: func(context.Context) error {
			addr := fmt.Sprintf(":%d", cfg.Port)
			go func() {
				logger.WithField("addr", addr).Info("HTTP server listening")
				if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()
			return nil
		},
		OnStop: e.Shutdown,
	})

	if err := s.Start(ctx); err != nil {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		_ = s.Stop(stopCtx)
		return err
	}
	checker.SetReady(true)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case runErr = <-serverErr:
		logger.WithError(runErr).Error("HTTP server failed")
	}
	checker.SetReady(false)

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return errors.Join(runErr, s.Stop(stopCtx))
}

func reloadLoop(ctx context.Context, a *app, view *entitymap.View, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := view.Reload(ctx); err != nil && ctx.Err() == nil {
				a.logger.WithContext(ctx).WithError(err).Warn("Failed to reload entity map view")
			}
		}
	}
}
