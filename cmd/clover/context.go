package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/pkg/logging"
	"github.com/Ramsey-B/clover/pkg/runlock"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/tracing/exporters"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			c.configErr = fmt.Errorf("create data directory: %w", err)
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withApp builds the application for one command and tears it down when fn
// returns, flushing traces even when fn fails.
func (c *commandContext) withApp(ctx context.Context, fn func(*app) error) (err error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.close(context.WithoutCancel(ctx)); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()

	return fn(a)
}

// withLock runs fn while holding the data directory's writer lock.
func (c *commandContext) withLock(ctx context.Context, fn func(*app) error) error {
	return c.withApp(ctx, func(a *app) error {
		lock, err := runlock.Acquire(a.cfg.LockPath())
		if err != nil {
			return err
		}
		defer func() {
			if err := lock.Release(); err != nil {
				a.logger.WithError(err).WithField("path", lock.Path()).Warn("Failed to release run lock")
			}
		}()
		return fn(a)
	})
}

func newLogger(cfg *config.Config) (ectologger.Logger, func() error, error) {
	logger, zapLogger, err := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: cfg.PrettyLogs})
	if err != nil {
		return nil, nil, err
	}
	return logger, zapLogger.Sync, nil
}

func setupTracing(ctx context.Context, cfg *config.Config, logger ectologger.Logger) (func(context.Context) error, error) {
	if !cfg.TracingEnabled {
		return func(context.Context) error { return nil }, nil
	}
	return tracing.Setup(ctx, tracing.Config{
		ServiceName: cfg.AppName,
		Exporter:    cfg.TracingExporter,
		OTLP: exporters.OTLPConfig{
			Endpoint: cfg.OTLPEndpoint,
			Protocol: cfg.OTLPProtocol,
			Insecure: cfg.OTLPInsecure,
		},
		Logger: logger,
	})
}

func sqlitePath(cfg *config.Config) (string, error) {
	path := cfg.DatabaseDSN
	if path == "" {
		path = cfg.StorePath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create database directory: %w", err)
	}
	return path, nil
}
