// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/cenkalti/backoff/v5"

	"github.com/prima-scholar/scholar-hub/internal/domain/excellence"
	"github.com/prima-scholar/scholar-hub/internal/domain/shared"
	"github.com/prima-scholar/scholar-hub/pkg/logger"
	"github.com/prima-scholar/scholar-hub/pkg/metrics"
)

// ══════════════════════════════════════════════════════════════════════════════
// CALCULATE EXCELLENCE SCORE COMMAND
// Computes the excellence score of one student and records it (together with
// today's trajectory point). The write is best-effort: a computed score is
// always returned, a failed write only marks the result as degraded.
// ══════════════════════════════════════════════════════════════════════════════

// CalculateExcellenceScoreCommand identifies the student to score.
type CalculateExcellenceScoreCommand struct {
	// StudentID is the internal ID of the student.
	StudentID string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c CalculateExcellenceScoreCommand) Validate() error {
	if c.StudentID == "" {
		return shared.ErrInvalidStudentID
	}
	return nil
}

// CalculateExcellenceScoreResult contains the computed score.
type CalculateExcellenceScoreResult struct {
	// Score is the complete aggregation result.
	Score excellence.ScoreResult

	// Metrics are the raw inputs the score was computed from. Prediction
	// reuses them for its confidence estimate.
	Metrics excellence.RawStudentMetrics

	// DurabilityWarning is set when the score could not be persisted.
	// It matches shared.ErrDegradedDurability.
	DurabilityWarning error
}

// Degraded reports whether persistence failed for this result.
func (r CalculateExcellenceScoreResult) Degraded() bool {
	return r.DurabilityWarning != nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// CalculateExcellenceScoreHandlerConfig contains configuration for the handler.
type CalculateExcellenceScoreHandlerConfig struct {
	PersistMaxRetries int
	PersistRetryDelay time.Duration
	PersistTimeout    time.Duration
}

// DefaultCalculateExcellenceScoreHandlerConfig returns default configuration.
func DefaultCalculateExcellenceScoreHandlerConfig() CalculateExcellenceScoreHandlerConfig {
	return CalculateExcellenceScoreHandlerConfig{
		PersistMaxRetries: 3,
		PersistRetryDelay: 100 * time.Millisecond,
		PersistTimeout:    5 * time.Second,
	}
}

// CalculateExcellenceScoreHandler handles the CalculateExcellenceScoreCommand.
type CalculateExcellenceScoreHandler struct {
	metricsRepo excellence.MetricsRepository
	scoreWriter excellence.ScoreWriter
	calculator  *excellence.FactorCalculator
	aggregator  *excellence.ScoreAggregator

	log      *logger.Logger
	recorder *metrics.Recorder
	clock    clock.Clock
	config   CalculateExcellenceScoreHandlerConfig
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*CalculateExcellenceScoreHandler)

// WithLogger sets the handler logger.
func WithLogger(l *logger.Logger) HandlerOption {
	return func(h *CalculateExcellenceScoreHandler) { h.log = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r *metrics.Recorder) HandlerOption {
	return func(h *CalculateExcellenceScoreHandler) { h.recorder = r }
}

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) HandlerOption {
	return func(h *CalculateExcellenceScoreHandler) { h.clock = c }
}

// NewCalculateExcellenceScoreHandler creates a new CalculateExcellenceScoreHandler.
func NewCalculateExcellenceScoreHandler(
	metricsRepo excellence.MetricsRepository,
	scoreWriter excellence.ScoreWriter,
	calculator *excellence.FactorCalculator,
	aggregator *excellence.ScoreAggregator,
	config CalculateExcellenceScoreHandlerConfig,
	opts ...HandlerOption,
) *CalculateExcellenceScoreHandler {
	if config.PersistMaxRetries <= 0 {
		config = DefaultCalculateExcellenceScoreHandlerConfig()
	}

	h := &CalculateExcellenceScoreHandler{
		metricsRepo: metricsRepo,
		scoreWriter: scoreWriter,
		calculator:  calculator,
		aggregator:  aggregator,
		log:         logger.Nop(),
		clock:       clock.NewClock(),
		config:      config,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = h.log.With(logger.Component("calculate_score"))
	return h
}

// Handle executes the command. It fails only when the student has no
// metrics (shared.ErrStudentNotFound) or the metrics cannot be read.
func (h *CalculateExcellenceScoreHandler) Handle(ctx context.Context, cmd CalculateExcellenceScoreCommand) (CalculateExcellenceScoreResult, error) {
	if err := cmd.Validate(); err != nil {
		return CalculateExcellenceScoreResult{}, err
	}

	started := h.clock.Now()

	raw, err := h.metricsRepo.FetchComprehensiveStudentData(ctx, cmd.StudentID)
	if err != nil {
		if shared.IsNotFound(err) {
			return CalculateExcellenceScoreResult{}, err
		}
		return CalculateExcellenceScoreResult{}, fmt.Errorf("calculate_score: fetch metrics: %w", err)
	}

	factors := h.calculator.ComputeFactors(raw)
	score := h.aggregator.Aggregate(factors, raw.AcademicLevel, h.clock.Now().UTC())
	score.StudentID = cmd.StudentID

	result := CalculateExcellenceScoreResult{
		Score:   score,
		Metrics: raw,
	}

	if err := h.persist(ctx, cmd.StudentID, score); err != nil {
		result.DurabilityWarning = shared.WrapError("excellence", "PersistScore", shared.ErrDegradedDurability,
			"score computed but not recorded", err)
		h.recorder.PersistFailed("persist_score")
		h.log.Warn("score not persisted",
			logger.StudentID(cmd.StudentID),
			logger.Score(score.Score),
			logger.Err(err),
		)
	}

	took := h.clock.Since(started)
	h.recorder.ScoreComputed(score.Score, took)
	h.log.Debug("score computed",
		logger.StudentID(cmd.StudentID),
		logger.Score(score.Score),
		logger.String("level", string(score.Level)),
		logger.Latency(took),
	)

	return result, nil
}

// persist writes the score with exponential backoff bounded by the
// configured number of tries and timeout.
func (h *CalculateExcellenceScoreHandler) persist(ctx context.Context, studentID string, score excellence.ScoreResult) error {
	if h.scoreWriter == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, h.config.PersistTimeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = h.config.PersistRetryDelay
	b.MaxInterval = 10 * h.config.PersistRetryDelay

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := h.scoreWriter.PersistScore(ctx, studentID, score)
		if shared.IsValidation(err) || shared.IsNotFound(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(h.config.PersistMaxRetries)),
		backoff.WithMaxElapsedTime(h.config.PersistTimeout),
	)
	return err
}
