// Package jobs contains the engine's scheduled jobs.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/prima-scholar/scholar-hub/internal/domain/excellence"
	"github.com/prima-scholar/scholar-hub/internal/domain/shared"
	"github.com/prima-scholar/scholar-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECALCULATE SCORES JOB
// ══════════════════════════════════════════════════════════════════════════════

// RecalculateJobName is the scheduler name of RecalculateScoresJob.
const RecalculateJobName = "recalculate_scores"

// RecalculateFunc recomputes and records the score of one student. degraded
// is true when the score was computed but could not be persisted.
type RecalculateFunc func(ctx context.Context, studentID string) (degraded bool, err error)

// RecalculateScoresConfig contains configuration for the job.
type RecalculateScoresConfig struct {
	// BatchSize is the number of students recalculated per run.
	BatchSize int

	// Parallelism bounds concurrent recalculations.
	Parallelism int

	// RatePerSecond limits recalculations started per second. Zero means
	// unlimited.
	RatePerSecond float64

	// MaxFailureRate above which the run is reported as failed.
	MaxFailureRate float64
}

// DefaultRecalculateScoresConfig returns sensible defaults.
func DefaultRecalculateScoresConfig() RecalculateScoresConfig {
	return RecalculateScoresConfig{
		BatchSize:      500,
		Parallelism:    8,
		RatePerSecond:  20,
		MaxFailureRate: 0.5,
	}
}

// RecalculateStats contains statistics from one run.
type RecalculateStats struct {
	StartedAt     time.Time
	CompletedAt   time.Time
	Duration      time.Duration
	TotalStudents int
	Recalculated  int
	Degraded      int
	Missing       int
	Failed        int
}

// RecalculateScoresJob refreshes the score and today's trajectory point of
// active students, least recently updated first.
type RecalculateScoresJob struct {
	students    excellence.StudentLister
	recalculate RecalculateFunc
	log         *logger.Logger
	clock       clock.Clock
	config      RecalculateScoresConfig

	lastStats atomic.Pointer[RecalculateStats]
}

// NewRecalculateScoresJob creates a new recalculation job.
func NewRecalculateScoresJob(
	students excellence.StudentLister,
	recalculate RecalculateFunc,
	log *logger.Logger,
	clk clock.Clock,
	config RecalculateScoresConfig,
) *RecalculateScoresJob {
	defaults := DefaultRecalculateScoresConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.Parallelism <= 0 {
		config.Parallelism = defaults.Parallelism
	}
	if config.MaxFailureRate <= 0 {
		config.MaxFailureRate = defaults.MaxFailureRate
	}
	if log == nil {
		log = logger.Nop()
	}
	if clk == nil {
		clk = clock.NewClock()
	}

	return &RecalculateScoresJob{
		students:    students,
		recalculate: recalculate,
		log:         log.With(logger.JobName(RecalculateJobName)),
		clock:       clk,
		config:      config,
	}
}

// Name returns the job name.
func (j *RecalculateScoresJob) Name() string {
	return RecalculateJobName
}

// Description returns the job description.
func (j *RecalculateScoresJob) Description() string {
	return "Recalculate excellence scores for active students"
}

// Run executes the job. It fails when the student list cannot be loaded or
// when more than MaxFailureRate of the batch failed.
func (j *RecalculateScoresJob) Run(ctx context.Context) error {
	stats := &RecalculateStats{StartedAt: j.clock.Now()}
	defer func() {
		stats.CompletedAt = j.clock.Now()
		stats.Duration = stats.CompletedAt.Sub(stats.StartedAt)
		j.lastStats.Store(stats)
	}()

	ids, err := j.students.ListActiveStudentIDs(ctx, j.config.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to list active students: %w", err)
	}
	stats.TotalStudents = len(ids)
	if len(ids) == 0 {
		return nil
	}

	failures := j.recalculateAll(ctx, ids, stats)

	j.log.Info("recalculation finished",
		logger.Int("total", stats.TotalStudents),
		logger.Int("recalculated", stats.Recalculated),
		logger.Int("degraded", stats.Degraded),
		logger.Int("missing", stats.Missing),
		logger.Int("failed", stats.Failed),
	)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("recalculation interrupted: %w", err)
	}
	if float64(stats.Failed)/float64(stats.TotalStudents) > j.config.MaxFailureRate {
		return fmt.Errorf("recalculation failed for %d/%d students: %w",
			stats.Failed, stats.TotalStudents, failures.ErrorOrNil())
	}
	return nil
}

func (j *RecalculateScoresJob) recalculateAll(ctx context.Context, ids []string, stats *RecalculateStats) *multierror.Error {
	var (
		mu       sync.Mutex
		failures *multierror.Error
		limiter  = j.limiter()
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.config.Parallelism)

	for _, id := range ids {
		if err := limiter.Wait(gctx); err != nil {
			break
		}

		g.Go(func() error {
			degraded, err := j.recalculate(gctx, id)

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				stats.Recalculated++
				if degraded {
					stats.Degraded++
				}
			case shared.IsNotFound(err):
				stats.Missing++
			case errors.Is(err, context.Canceled):
				// run stopped; not counted against the student
			default:
				stats.Failed++
				failures = multierror.Append(failures, fmt.Errorf("%s: %w", id, err))
				j.log.Warn("recalculation failed", logger.StudentID(id), logger.Err(err))
			}
			return nil
		})
	}

	_ = g.Wait()
	return failures
}

func (j *RecalculateScoresJob) limiter() *rate.Limiter {
	if j.config.RatePerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := j.config.Parallelism
	return rate.NewLimiter(rate.Limit(j.config.RatePerSecond), burst)
}

// LastRunStats returns statistics from the last run.
func (j *RecalculateScoresJob) LastRunStats() *RecalculateStats {
	return j.lastStats.Load()
}
