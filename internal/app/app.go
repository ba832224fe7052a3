// Package app assembles the engine from configuration: storage, cache,
// command and query handlers. Both the worker and the CLI build on it.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/prima-scholar/scholar-hub/config"
	"github.com/prima-scholar/scholar-hub/internal/application/command"
	"github.com/prima-scholar/scholar-hub/internal/application/query"
	"github.com/prima-scholar/scholar-hub/internal/domain/excellence"
	"github.com/prima-scholar/scholar-hub/internal/infrastructure/persistence/memory"
	"github.com/prima-scholar/scholar-hub/internal/infrastructure/persistence/postgres"
	"github.com/prima-scholar/scholar-hub/internal/infrastructure/persistence/redis"
	"github.com/prima-scholar/scholar-hub/pkg/circuitbreaker"
	"github.com/prima-scholar/scholar-hub/pkg/logger"
	"github.com/prima-scholar/scholar-hub/pkg/metrics"
)

const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// App holds the wired engine.
type App struct {
	Config   *config.Config
	Engine   *config.Engine
	Log      *logger.Logger
	Recorder *metrics.Recorder

	DB           *postgres.Connection
	Scholars     *postgres.ScholarRepository
	Trajectories *postgres.TrajectoryRepository
	Predictions  *postgres.PredictionRepository

	Cache        *query.PredictionCache
	Calculate    *command.CalculateExcellenceScoreHandler
	Predict      *query.PredictDistinctionHandler
	Distinctions *query.ListDistinctionsHandler

	closers []func()
}

// NewLogger builds the process logger from observability settings.
func NewLogger(cfg config.ObservabilityConfig) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Output = os.Stdout
	opts.Level = logger.ParseLevel(cfg.LogLevel)
	if cfg.LogFormat == string(logger.FormatText) {
		opts.Format = logger.FormatText
	}
	if cfg.FileLoggingEnabled && cfg.LogFile != "" {
		opts.File = &logger.FileOptions{
			Path:       cfg.LogFile,
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		}
	}
	return logger.New(opts)
}

// Build connects to storage and wires the handlers. The caller must Close
// the returned App.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger, rec *metrics.Recorder) (*App, error) {
	engine, err := config.LoadEngine(cfg.Engine)
	if err != nil {
		return nil, fmt.Errorf("failed to load engine tables: %w", err)
	}

	a := &App{Config: cfg, Engine: engine, Log: log, Recorder: rec}

	// PostgreSQL
	db, err := postgres.NewConnection(ctx, cfg.Database.URL, poolOptions(cfg.Database))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.closers = append(a.closers, db.Close)
	a.DB = db

	if err := db.Ping(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("database connection established")

	a.Scholars = postgres.NewScholarRepository(db)
	a.Trajectories = postgres.NewTrajectoryRepository(db)
	a.Predictions = postgres.NewPredictionRepository(db)

	// Prediction cache
	backend, name, closeBackend := NewCacheBackend(ctx, cfg.Redis, log)
	a.closers = append(a.closers, closeBackend)

	breaker := circuitbreaker.CacheBreaker(
		cfg.Engine.CacheFailureThreshold,
		cfg.Engine.CacheCooldown,
		func(from, to circuitbreaker.State) {
			log.Warn("cache breaker state changed",
				logger.String("backend", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		},
	)
	a.Cache = query.NewPredictionCache(backend,
		query.WithBreaker(breaker),
		query.WithSingleflight(cfg.Features.IsEnabled(config.FeatureCacheSingleflight, "")),
		query.WithFlightTimeout(cfg.Engine.CacheFlightTimeout),
		query.WithBackendName(name),
		query.WithCacheLogger(log),
		query.WithCacheRecorder(rec),
	)

	// Handlers
	a.Calculate = command.NewCalculateExcellenceScoreHandler(
		a.Scholars,
		a.Trajectories,
		engine.Calculator,
		engine.Aggregator,
		command.CalculateExcellenceScoreHandlerConfig{
			PersistMaxRetries: cfg.Engine.PersistMaxRetries,
			PersistRetryDelay: cfg.Engine.PersistRetryDelay,
			PersistTimeout:    cfg.Engine.PersistTimeout,
		},
		command.WithLogger(log),
		command.WithRecorder(rec),
	)

	a.Predict = query.NewPredictDistinctionHandler(
		a.Calculate,
		a.Trajectories,
		engine.Predictor,
		a.Cache,
		query.PredictDistinctionHandlerConfig{
			CacheTTL:       cfg.Engine.PredictionCacheTTL,
			HistoryLimit:   excellence.MaxTrajectoryPoints,
			CacheFeature:   config.FeaturePredictionCache,
			PersistFeature: config.FeaturePersistPredictions,
		},
		query.WithPredictionWriter(a.Predictions),
		query.WithFeatureGate(cfg.Features),
		query.WithPredictLogger(log),
		query.WithPredictRecorder(rec),
	)

	a.Distinctions = query.NewListDistinctionsHandler(engine.Requirements)

	return a, nil
}

// Migrate applies pending schema migrations.
func (a *App) Migrate(ctx context.Context) error {
	applied, err := postgres.NewMigrator(a.DB).Migrate(ctx)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	a.Log.Info("database schema is up to date", logger.Int("applied", applied))
	return nil
}

// Recalculate scores one student; degraded is set when the score could not be
// persisted.
func (a *App) Recalculate(ctx context.Context, studentID string) (bool, error) {
	result, err := a.Calculate.Handle(ctx, command.CalculateExcellenceScoreCommand{StudentID: studentID})
	if err != nil {
		return false, err
	}
	return result.Degraded(), nil
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// NewCacheBackend connects to Redis unless it is disabled, falling back to the
// in-process store when Redis is unreachable.
func NewCacheBackend(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (excellence.PredictionCacheBackend, string, func()) {
	if cfg.Disabled {
		log.Info("redis disabled, using in-process prediction cache")
		return memory.NewPredictionStore(memoryCleanupInterval), BackendMemory, func() {}
	}

	client, err := redis.NewClient(ctx, redisConfig(cfg))
	if err != nil {
		log.Warn("failed to connect to Redis, using in-process prediction cache", logger.Err(err))
		return memory.NewPredictionStore(memoryCleanupInterval), BackendMemory, func() {}
	}

	log.Info("redis connection established", logger.String("addr", redisConfig(cfg).Addr()))
	return redis.NewPredictionStore(client), BackendRedis, func() {
		if err := client.Close(); err != nil {
			log.Warn("failed to close redis client", logger.Err(err))
		}
	}
}
