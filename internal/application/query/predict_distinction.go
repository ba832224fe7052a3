package query

import (
	"context"
	"fmt"
	"time"

	"code.cloudfoundry.org/clock"

	"github.com/prima-scholar/scholar-hub/internal/application/command"
	"github.com/prima-scholar/scholar-hub/internal/domain/excellence"
	"github.com/prima-scholar/scholar-hub/internal/domain/shared"
	"github.com/prima-scholar/scholar-hub/pkg/logger"
	"github.com/prima-scholar/scholar-hub/pkg/metrics"
)

// ══════════════════════════════════════════════════════════════════════════════
// PREDICT DISTINCTION QUERY
// Вероятность и сроки получения награды. Балл считается заново (или берётся
// из кэша прогноза), история траектории - последние 10 точек.
// ══════════════════════════════════════════════════════════════════════════════

// PredictDistinctionQuery содержит параметры запроса прогноза.
type PredictDistinctionQuery struct {
	// StudentID - внутренний ID студента.
	StudentID string

	// Distinction - имя награды из таблицы требований.
	Distinction string

	// BypassCache - всегда вычислять заново.
	BypassCache bool
}

// Validate проверяет корректность параметров запроса.
func (q PredictDistinctionQuery) Validate() error {
	if q.StudentID == "" {
		return shared.ErrInvalidStudentID
	}
	if q.Distinction == "" {
		return shared.NewDomainError("excellence", "Predict", shared.ErrInvalidInput, "distinction cannot be empty")
	}
	return nil
}

// PredictDistinctionResult - прогноз с признаками деградации.
type PredictDistinctionResult struct {
	Prediction excellence.PredictionResult

	// Cached - результат взят из кэша без пересчёта.
	Cached bool

	// Warnings - нефатальные ошибки записи (shared.ErrDegradedDurability).
	Warnings []error
}

// Degraded сообщает, была ли хоть одна запись неуспешной.
func (r PredictDistinctionResult) Degraded() bool {
	return len(r.Warnings) > 0
}

// ScoreCalculator вычисляет балл студента.
type ScoreCalculator interface {
	Handle(ctx context.Context, cmd command.CalculateExcellenceScoreCommand) (command.CalculateExcellenceScoreResult, error)
}

// FeatureGate проверяет feature flags.
type FeatureGate interface {
	IsEnabled(feature, studentID string) bool
}

// PredictDistinctionHandlerConfig - настройки обработчика.
type PredictDistinctionHandlerConfig struct {
	// CacheTTL - время жизни прогноза в кэше. 0 отключает запись в кэш.
	CacheTTL time.Duration

	// HistoryLimit - сколько точек траектории читать.
	HistoryLimit int

	// CacheFeature и PersistFeature - имена флагов; пустое имя = всегда включено.
	CacheFeature   string
	PersistFeature string
}

// DefaultPredictDistinctionHandlerConfig возвращает настройки по умолчанию.
func DefaultPredictDistinctionHandlerConfig() PredictDistinctionHandlerConfig {
	return PredictDistinctionHandlerConfig{
		CacheTTL:     10 * time.Minute,
		HistoryLimit: excellence.MaxTrajectoryPoints,
	}
}

// PredictDistinctionHandler обрабатывает PredictDistinctionQuery.
type PredictDistinctionHandler struct {
	scorer      ScoreCalculator
	history     excellence.TrajectoryRepository
	predictor   *excellence.DistinctionPredictor
	predictions excellence.PredictionWriter
	cache       *PredictionCache
	features    FeatureGate
	config      PredictDistinctionHandlerConfig

	log      *logger.Logger
	recorder *metrics.Recorder
	clock    clock.Clock
}

// PredictOption настраивает обработчик.
type PredictOption func(*PredictDistinctionHandler)

// WithPredictionWriter включает запись прогнозов.
func WithPredictionWriter(w excellence.PredictionWriter) PredictOption {
	return func(h *PredictDistinctionHandler) { h.predictions = w }
}

// WithFeatureGate задаёт feature flags.
func WithFeatureGate(g FeatureGate) PredictOption {
	return func(h *PredictDistinctionHandler) { h.features = g }
}

// WithPredictLogger задаёт логгер.
func WithPredictLogger(l *logger.Logger) PredictOption {
	return func(h *PredictDistinctionHandler) { h.log = l }
}

// WithPredictRecorder задаёт сборщик метрик.
func WithPredictRecorder(r *metrics.Recorder) PredictOption {
	return func(h *PredictDistinctionHandler) { h.recorder = r }
}

// WithPredictClock подменяет часы.
func WithPredictClock(c clock.Clock) PredictOption {
	return func(h *PredictDistinctionHandler) { h.clock = c }
}

// NewPredictDistinctionHandler создаёт обработчик. cache может быть nil.
func NewPredictDistinctionHandler(
	scorer ScoreCalculator,
	history excellence.TrajectoryRepository,
	predictor *excellence.DistinctionPredictor,
	cache *PredictionCache,
	config PredictDistinctionHandlerConfig,
	opts ...PredictOption,
) *PredictDistinctionHandler {
	if config.HistoryLimit <= 0 || config.HistoryLimit > excellence.MaxTrajectoryPoints {
		config.HistoryLimit = excellence.MaxTrajectoryPoints
	}
	if cache == nil {
		cache = NewPredictionCache(nil)
	}

	h := &PredictDistinctionHandler{
		scorer:    scorer,
		history:   history,
		predictor: predictor,
		cache:     cache,
		config:    config,
		log:       logger.Nop(),
		clock:     clock.NewClock(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = h.log.With(logger.Component("predict_distinction"))
	return h
}

// Handle выполняет запрос.
// Ошибки: shared.ErrUnknownDistinction (до любого I/O), shared.ErrStudentNotFound.
func (h *PredictDistinctionHandler) Handle(ctx context.Context, q PredictDistinctionQuery) (PredictDistinctionResult, error) {
	if err := q.Validate(); err != nil {
		return PredictDistinctionResult{}, err
	}
	if _, err := h.predictor.Requirements().Lookup(q.Distinction); err != nil {
		return PredictDistinctionResult{}, err
	}

	var warnings []error
	compute := func(ctx context.Context) (excellence.PredictionResult, error) {
		prediction, warns, err := h.compute(ctx, q)
		warnings = warns
		return prediction, err
	}

	var (
		prediction excellence.PredictionResult
		cached     bool
		err        error
	)
	if q.BypassCache || !h.enabled(h.config.CacheFeature, q.StudentID) {
		prediction, err = compute(ctx)
	} else {
		prediction, cached, err = h.cache.GetOrCompute(ctx, q.StudentID, q.Distinction, compute, h.config.CacheTTL)
	}
	if err != nil {
		return PredictDistinctionResult{}, err
	}

	h.recorder.PredictionServed(q.Distinction, prediction.Probability, cached)
	h.log.Debug("prediction served",
		logger.StudentID(q.StudentID),
		logger.Distinction(q.Distinction),
		logger.Float64("probability", prediction.Probability),
		logger.Bool("cached", cached),
	)

	return PredictDistinctionResult{
		Prediction: prediction,
		Cached:     cached,
		Warnings:   warnings,
	}, nil
}

func (h *PredictDistinctionHandler) compute(ctx context.Context, q PredictDistinctionQuery) (excellence.PredictionResult, []error, error) {
	var warnings []error

	scored, err := h.scorer.Handle(ctx, command.CalculateExcellenceScoreCommand{StudentID: q.StudentID})
	if err != nil {
		return excellence.PredictionResult{}, nil, err
	}
	if scored.DurabilityWarning != nil {
		warnings = append(warnings, scored.DurabilityWarning)
	}

	history, err := h.history.FetchTrajectoryHistory(ctx, q.StudentID, h.config.HistoryLimit)
	if err != nil {
		return excellence.PredictionResult{}, nil, fmt.Errorf("predict_distinction: fetch history: %w", err)
	}

	prediction, err := h.predictor.Predict(q.Distinction, excellence.PredictionInput{
		StudentID: q.StudentID,
		Score:     scored.Score,
		History:   history,
		Metrics:   scored.Metrics,
		Now:       h.clock.Now().UTC(),
	})
	if err != nil {
		return excellence.PredictionResult{}, nil, err
	}

	if h.predictions != nil && h.enabled(h.config.PersistFeature, q.StudentID) {
		if err := h.predictions.PersistPrediction(ctx, q.StudentID, prediction); err != nil {
			h.recorder.PersistFailed("persist_prediction")
			h.log.Warn("prediction not persisted",
				logger.StudentID(q.StudentID),
				logger.Distinction(q.Distinction),
				logger.Err(err),
			)
			warnings = append(warnings, shared.WrapError("excellence", "PersistPrediction",
				shared.ErrDegradedDurability, "prediction computed but not recorded", err))
		}
	}

	return prediction, warnings, nil
}

func (h *PredictDistinctionHandler) enabled(feature, studentID string) bool {
	if feature == "" || h.features == nil {
		return true
	}
	return h.features.IsEnabled(feature, studentID)
}

// ══════════════════════════════════════════════════════════════════════════════
// LIST DISTINCTIONS QUERY
// ══════════════════════════════════════════════════════════════════════════════

// DistinctionDTO - требования одной награды.
type DistinctionDTO struct {
	Name                   string   `json:"name"`
	GPAMin                 float64  `json:"gpa_min"`
	ExcellenceScoreMin     float64  `json:"excellence_score_min"`
	WeightGPA              float64  `json:"weight_gpa"`
	WeightExcellence       float64  `json:"weight_excellence"`
	AdditionalRequirements []string `json:"additional_requirements"`
}

// ListDistinctionsHandler перечисляет настроенные награды.
type ListDistinctionsHandler struct {
	table *excellence.RequirementTable
}

// NewListDistinctionsHandler создаёт обработчик.
func NewListDistinctionsHandler(table *excellence.RequirementTable) *ListDistinctionsHandler {
	return &ListDistinctionsHandler{table: table}
}

// Handle возвращает награды в порядке имён.
func (h *ListDistinctionsHandler) Handle(_ context.Context) []DistinctionDTO {
	all := h.table.All()
	out := make([]DistinctionDTO, 0, len(all))
	for _, req := range all {
		out = append(out, DistinctionDTO{
			Name:                   req.Name,
			GPAMin:                 req.GPAMin,
			ExcellenceScoreMin:     req.ExcellenceScoreMin,
			WeightGPA:              req.WeightGPA,
			WeightExcellence:       req.WeightExcellence,
			AdditionalRequirements: append([]string(nil), req.AdditionalRequirements...),
		})
	}
	return out
}
