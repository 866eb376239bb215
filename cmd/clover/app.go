package main

import (
	"context"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/db/migrations"
	"github.com/Ramsey-B/clover/internal/repositories/snapshot"
	"github.com/Ramsey-B/clover/pkg/catalog"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/datasource"
	"github.com/Ramsey-B/clover/pkg/entitymap"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/processor"
)

// app holds the process-wide dependencies of a command.
type app struct {
	cfg     *config.Config
	logger  ectologger.Logger
	catalog *catalog.Catalog
	store   entitymap.Store
	db      database.DB
	graph   *graph.Client
	closers []func(context.Context) error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger, syncLogger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		catalog: catalog.Default(),
	}
	a.onClose(func(context.Context) error {
		// stderr cannot be synced on some platforms; that is not a failure
		_ = syncLogger()
		return nil
	})

	shutdownTracing, err := setupTracing(ctx, cfg, logger)
	if err != nil {
		_ = a.close(ctx)
		return nil, err
	}
	a.onClose(shutdownTracing)

	if err := a.openStore(ctx); err != nil {
		_ = a.close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *app) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// close releases resources in reverse order of acquisition.
func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) openStore(ctx context.Context) error {
	cfg := a.cfg
	if cfg.StoreDriver == "file" {
		store, err := snapshot.NewFileStore(cfg.StorePath, a.logger)
		if err != nil {
			return err
		}
		a.store = store
		return nil
	}

	dsn := cfg.DatabaseDSN
	if cfg.StoreDriver == database.DriverSQLite {
		path, err := sqlitePath(cfg)
		if err != nil {
			return err
		}
		dsn = path
	}

	if cfg.DatabaseMigrationAuto {
		if err := a.migrations().Migrate(cfg.StoreDriver, dsn); err != nil {
			return err
		}
	}

	db, err := database.Open(ctx, a.logger, cfg.StoreDriver, dsn, database.PoolConfig{
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: cfg.DatabaseConnMaxLife,
	})
	if err != nil {
		return err
	}
	a.onClose(func(context.Context) error { return db.Close() })

	a.db = db
	a.store = snapshot.NewRepository(db, a.logger, cfg.DatabaseInsertChunkLen)
	return nil
}

func (a *app) migrations() *database.MigrationService {
	return database.NewMigrationService(a.logger, &database.MigrationConfig{
		Migrations:          migrations.FS,
		MigrationFolderPath: a.cfg.DatabaseMigrationPath,
		AutoRollback:        true,
	})
}

// updater wires the data source, resolution engine and enabled sinks.
func (a *app) updater() (*processor.Updater, error) {
	cfg := a.cfg

	cache, err := datasource.NewCache(cfg.CacheDir)
	if err != nil {
		return nil, err
	}

	httpCfg := datasource.DefaultHTTPConfig()
	if cfg.HTTPTimeout > 0 {
		httpCfg.Timeout = cfg.HTTPTimeout
	}
	httpCfg.RetryMax = cfg.HTTPRetryMax
	if cfg.HTTPRetryWait > 0 {
		httpCfg.RetryWaitMin = cfg.HTTPRetryWait
	}
	provider := datasource.NewHTTPProvider(httpCfg, a.logger)
	source := datasource.NewCachedSource(a.catalog, provider, cache, a.logger)

	sinks, err := a.sinks()
	if err != nil {
		return nil, err
	}

	return processor.NewUpdater(
		processor.Config{
			Sources:         cfg.Sources,
			KeyFields:       cfg.KeyFields,
			FirstSeason:     cfg.FirstSeason,
			RefreshExisting: cfg.RefreshExisting,
		},
		a.logger,
		a.catalog,
		source,
		a.store,
		merging.NewEngine(a.logger),
		sinks...,
	), nil
}

func (a *app) sinks() ([]processor.Sink, error) {
	cfg := a.cfg
	var sinks []processor.Sink

	if cfg.KafkaEnabled {
		producer := kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaOutputTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, a.logger)
		a.onClose(func(context.Context) error { return producer.Close() })
		sinks = append(sinks, events.NewEmitter(producer, a.logger))
	}

	if cfg.GraphEnabled {
		client, err := a.graphClient()
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, graph.NewSyncer(client, a.logger))
	}

	return sinks, nil
}

func (a *app) graphClient() (*graph.Client, error) {
	if a.graph != nil {
		return a.graph, nil
	}
	client, err := graph.NewClient(graph.Config{
		Host:     a.cfg.GraphDBHost,
		Port:     a.cfg.GraphDBPort,
		Username: a.cfg.GraphDBUser,
		Password: a.cfg.GraphDBPassword,
	}, a.logger)
	if err != nil {
		return nil, err
	}
	a.onClose(client.Close)
	a.graph = client
	return client, nil
}
