package excellence

import (
	"math"
	"sort"
	"time"
)

// PredictorConfig - параметры смешивания вероятности.
type PredictorConfig struct {
	// ProbabilityCeiling - жёсткий потолок вероятности (неустранимая неопределённость).
	ProbabilityCeiling float64 `koanf:"probability_ceiling"`

	// TrajectoryBase и TrajectoryWeight: adjusted = base · (TrajectoryBase + momentum · TrajectoryWeight).
	TrajectoryBase   float64 `koanf:"trajectory_base"`
	TrajectoryWeight float64 `koanf:"trajectory_weight"`

	// MaxProjectionDays - дальше этого горизонта дата не прогнозируется.
	MaxProjectionDays int `koanf:"max_projection_days"`

	Confidence ConfidencePolicy `koanf:"confidence"`
}

// DefaultPredictorConfig возвращает стандартные параметры.
func DefaultPredictorConfig() PredictorConfig {
	return PredictorConfig{
		ProbabilityCeiling: 95,
		TrajectoryBase:     0.7,
		TrajectoryWeight:   0.3,
		MaxProjectionDays:  730,
		Confidence:         DefaultConfidencePolicy(),
	}
}

// PredictionInput - снимок данных для одного прогноза.
type PredictionInput struct {
	StudentID string
	Score     ScoreResult
	History   []TrajectoryPoint
	Metrics   RawStudentMetrics
	Now       time.Time
}

// DistinctionPredictor вычисляет вероятность, разрыв и ожидаемую дату
// достижения награды. Не хранит изменяемого состояния: одинаковые входные
// данные дают побитово одинаковый результат.
type DistinctionPredictor struct {
	table    *RequirementTable
	analyzer *TrajectoryAnalyzer
	weights  FactorWeights
	cfg      PredictorConfig
}

// NewDistinctionPredictor создаёт предиктор. Таблица требований и веса
// внедряются и далее только читаются.
func NewDistinctionPredictor(table *RequirementTable, analyzer *TrajectoryAnalyzer, weights FactorWeights, cfg PredictorConfig) *DistinctionPredictor {
	if analyzer == nil {
		analyzer = NewTrajectoryAnalyzer()
	}
	return &DistinctionPredictor{
		table:    table,
		analyzer: analyzer,
		weights:  weights,
		cfg:      cfg,
	}
}

// Requirements возвращает таблицу требований.
func (p *DistinctionPredictor) Requirements() *RequirementTable {
	return p.table
}

// Predict возвращает прогноз или ErrUnknownDistinction.
func (p *DistinctionPredictor) Predict(distinction string, in PredictionInput) (PredictionResult, error) {
	req, err := p.table.Lookup(distinction)
	if err != nil {
		return PredictionResult{}, err
	}

	score := in.Score.Score
	gpa := in.Metrics.CurrentGPA

	gpaFactor := 1.0
	if req.GPAMin > 0 {
		gpaFactor = math.Min(gpa/req.GPAMin, 1.0)
	}
	excellenceFactor := 1.0
	if req.ExcellenceScoreMin > 0 {
		excellenceFactor = math.Min(score/req.ExcellenceScoreMin, 1.0)
	}

	base := (gpaFactor*req.WeightGPA + excellenceFactor*req.WeightExcellence) * 100

	trend := p.analyzer.Analyze(in.History)
	adjusted := base * (p.cfg.TrajectoryBase + trend.Momentum*p.cfg.TrajectoryWeight)
	probability := clamp(adjusted, 0, p.cfg.ProbabilityCeiling)

	confidence := p.cfg.Confidence.Confidence(in.Metrics, in.Now)
	// статус проекции решается по тому же округлённому разрыву, что и в ответе
	gap := round(math.Max(0, req.ExcellenceScoreMin-score), 2)

	status, eta := p.project(gap, trend, in.Now)

	return PredictionResult{
		StudentID:                in.StudentID,
		Distinction:              req.Name,
		Probability:              round(probability, 1),
		Confidence:               round(confidence, 1),
		CurrentScore:             round(score, 2),
		RequiredScore:            req.ExcellenceScoreMin,
		Gap:                      gap,
		CurrentGPA:               gpa,
		RequiredGPA:              req.GPAMin,
		TrajectoryFactor:         round(trend.Momentum, 2),
		Projection:               status,
		EstimatedAchievementDate: eta,
		ImprovementFactors:       p.improvementFactors(in.Score, req),
		KeyFactors:               append([]string(nil), req.AdditionalRequirements...),
		ComputedAt:               in.Now,
	}, nil
}

// project оценивает дату достижения порога. Дата есть только при
// положительной траектории и ненулевом разрыве.
func (p *DistinctionPredictor) project(gap float64, trend Trend, now time.Time) (ProjectionStatus, *time.Time) {
	if gap == 0 {
		return ProjectionMet, nil
	}
	if trend.Momentum <= NeutralMomentum || trend.SlopePerDay <= 0 {
		return ProjectionNone, nil
	}

	days := math.Ceil(gap / trend.SlopePerDay)
	if p.cfg.MaxProjectionDays > 0 && days > float64(p.cfg.MaxProjectionDays) {
		return ProjectionNone, nil
	}

	eta := now.AddDate(0, 0, int(days))
	return ProjectionEstimated, &eta
}

// improvementFactors ранжирует факторы по взвешенному отставанию от уровня,
// при котором итоговый балл достиг бы порога награды.
func (p *DistinctionPredictor) improvementFactors(s ScoreResult, req DistinctionRequirement) []ImprovementFactor {
	multiplier := s.LevelMultiplier
	if multiplier <= 0 {
		multiplier = DefaultLevelMultiplier
	}
	target := math.Min(100, req.ExcellenceScoreMin/multiplier)

	out := make([]ImprovementFactor, 0, len(AllFactors))
	for _, name := range AllFactors {
		current := s.Factors.Get(name)
		deficit := p.weights.Get(name) * math.Max(0, target-current)
		if deficit <= 0 {
			continue
		}
		out = append(out, ImprovementFactor{
			Factor:  name,
			Current: round(current, 2),
			Target:  round(target, 2),
			Deficit: round(deficit, 2),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Deficit > out[j].Deficit
	})
	return out
}
