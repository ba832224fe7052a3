// Package main - точка входа для фонового процесса (Worker) Prima Scholar.
//
// Worker отвечает за:
// - Периодический пересчёт Excellence score активных студентов
// - Очистку старых точек траектории
// - Ops endpoints: health, readiness, Prometheus metrics, статус задач
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prima-scholar/scholar-hub/config"
	"github.com/prima-scholar/scholar-hub/internal/app"
	"github.com/prima-scholar/scholar-hub/internal/infrastructure/scheduler"
	"github.com/prima-scholar/scholar-hub/internal/infrastructure/scheduler/jobs"
	httpserver "github.com/prima-scholar/scholar-hub/internal/interface/http"
	"github.com/prima-scholar/scholar-hub/internal/interface/http/handlers"
	"github.com/prima-scholar/scholar-hub/pkg/logger"
	"github.com/prima-scholar/scholar-hub/pkg/metrics"

	"code.cloudfoundry.org/clock"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	// Корневой контекст отменяется по SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ЛОГИРОВАНИЕ И МЕТРИКИ
	// ─────────────────────────────────────────────────────────────────────────
	log := app.NewLogger(cfg.Observability).With(
		logger.String("app", cfg.App.Name),
		logger.String("version", cfg.App.Version),
	)
	defer func() { _ = log.Sync() }()

	log.Info("starting Prima Scholar worker",
		logger.String("env", string(cfg.App.Environment)),
		logger.Bool("debug", cfg.App.Debug),
	)

	rec := metrics.New()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. БАЗА ДАННЫХ, КЭШ, ОБРАБОТЧИКИ
	// ─────────────────────────────────────────────────────────────────────────
	engine, err := app.Build(ctx, cfg, log, rec)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing connections...")
		engine.Close()
	}()

	if cfg.Database.AutoMigrate {
		log.Info("checking database migrations...")
		if err := engine.Migrate(ctx); err != nil {
			return err
		}
	}

	log.Info("engine ready",
		logger.Int("distinctions", len(engine.Engine.Requirements.Names())),
		logger.CacheBackend(engine.Cache.BackendName()),
		logger.Duration("prediction_ttl", cfg.Engine.PredictionCacheTTL),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	sched, err := setupScheduler(cfg, engine, log, rec)
	if err != nil {
		return err
	}
	if cfg.Scheduler.Enabled {
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	} else {
		log.Warn("scheduler disabled")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. HEALTH CHECKS И OPS SERVER
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("database", handlers.NewPingCheck(engine.DB), handlers.Critical)
	health.AddCheck("prediction_cache", handlers.NewCacheCheck(engine.Cache), handlers.Optional)

	serverCfg := httpserver.DefaultConfig()
	serverCfg.Port = cfg.Observability.MetricsPort
	serverCfg.EnableMetrics = cfg.Observability.MetricsEnabled

	server := httpserver.NewServer(serverCfg, httpserver.Dependencies{
		Logger:        log,
		HealthChecker: health,
		Gatherer:      rec.Registry(),
		Jobs:          sched,
	})
	serverErr := server.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 6. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("Prima Scholar worker is running")

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err, ok := <-serverErr:
		if ok && err != nil {
			runErr = err
			log.Error("ops server stopped", logger.Err(err))
		}
	}

	log.Info("starting graceful shutdown...", logger.Duration("timeout", cfg.App.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("ops server shutdown failed", logger.Err(err))
	}
	if sched.IsRunning() {
		if err := sched.Stop(); err != nil && !errors.Is(err, scheduler.ErrSchedulerNotRunning) {
			log.Warn("scheduler stop failed", logger.Err(err))
		}
	}

	log.Info("shutdown completed")
	return runErr
}

// setupScheduler registers the recalculation and retention jobs. Each job is
// gated by its feature flag at run time.
func setupScheduler(cfg *config.Config, engine *app.App, log *logger.Logger, rec *metrics.Recorder) (*scheduler.Scheduler, error) {
	flags := map[string]string{
		jobs.RecalculateJobName: config.FeatureJobRecalculate,
		jobs.PruneJobName:       config.FeatureJobPruneTrajectory,
	}

	sched := scheduler.New(
		scheduler.Config{
			TickInterval:      time.Second,
			MaxConcurrentJobs: cfg.Scheduler.MaxConcurrentJobs,
			JobTimeout:        cfg.Scheduler.JobTimeout,
		},
		scheduler.WithLogger(log),
		scheduler.WithRecorder(rec),
		scheduler.WithGate(func(job string) bool {
			flag, ok := flags[job]
			return !ok || cfg.Features.IsEnabled(flag, "")
		}),
	)

	clk := clock.NewClock()

	recalculate := jobs.NewRecalculateScoresJob(engine.Scholars, engine.Recalculate, log, clk, jobs.RecalculateScoresConfig{
		BatchSize:     cfg.Scheduler.RecalculateBatchSize,
		Parallelism:   cfg.Scheduler.RecalculateParallelism,
		RatePerSecond: cfg.Scheduler.RecalculateRatePerSec,
	})
	if err := sched.Register(recalculate, scheduler.NewIntervalSchedule(cfg.Scheduler.RecalculateInterval)); err != nil {
		return nil, fmt.Errorf("failed to register %s: %w", recalculate.Name(), err)
	}

	cleanup, err := scheduler.ParseSchedule(cfg.Scheduler.CleanupSchedule)
	if err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule: %w", err)
	}
	prune := jobs.NewPruneTrajectoryJob(engine.Trajectories, cfg.Scheduler.TrajectoryRetention, log, clk)
	if err := sched.Register(prune, cleanup); err != nil {
		return nil, fmt.Errorf("failed to register %s: %w", prune.Name(), err)
	}

	return sched, nil
}
