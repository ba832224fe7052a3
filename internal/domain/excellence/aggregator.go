package excellence

import (
	"fmt"
	"math"
	"time"

	"github.com/prima-scholar/scholar-hub/internal/domain/shared"
)

// weightTolerance - допуск при проверке суммы весов.
const weightTolerance = 1e-9

// ══════════════════════════════════════════════════════════════════════════════
// WEIGHTS
// ══════════════════════════════════════════════════════════════════════════════

// FactorWeights - веса пяти факторов в итоговом балле.
type FactorWeights struct {
	AcademicPerformance  float64 `koanf:"academic_performance" json:"academic_performance"`
	ResearchEngagement   float64 `koanf:"research_engagement" json:"research_engagement"`
	CriticalThinking     float64 `koanf:"critical_thinking" json:"critical_thinking"`
	LeadershipService    float64 `koanf:"leadership_service" json:"leadership_service"`
	InnovationCreativity float64 `koanf:"innovation_creativity" json:"innovation_creativity"`
}

// DefaultFactorWeights возвращает стандартные веса 0.40/0.25/0.20/0.10/0.05.
func DefaultFactorWeights() FactorWeights {
	return FactorWeights{
		AcademicPerformance:  0.40,
		ResearchEngagement:   0.25,
		CriticalThinking:     0.20,
		LeadershipService:    0.10,
		InnovationCreativity: 0.05,
	}
}

// Get возвращает вес фактора по имени.
func (w FactorWeights) Get(name FactorName) float64 {
	return ExcellenceFactors(w).Get(name)
}

// Sum возвращает сумму всех весов.
func (w FactorWeights) Sum() float64 {
	return w.AcademicPerformance + w.ResearchEngagement + w.CriticalThinking +
		w.LeadershipService + w.InnovationCreativity
}

// Validate проверяет, что веса неотрицательны и в сумме дают 1.0.
func (w FactorWeights) Validate() error {
	for _, name := range AllFactors {
		if w.Get(name) < 0 {
			return shared.WrapError("excellence", "Validate", shared.ErrInvalidConfig,
				"factor weight cannot be negative", fmt.Errorf("%s=%v", name, w.Get(name)))
		}
	}
	if sum := w.Sum(); math.Abs(sum-1.0) > weightTolerance {
		return shared.WrapError("excellence", "Validate", shared.ErrInvalidConfig,
			"factor weights must sum to 1.0", fmt.Errorf("sum=%v", sum))
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Level multipliers
// ─────────────────────────────────────────────────────────────────────────────

// DefaultLevelMultiplier применяется к неизвестному уровню обучения.
const DefaultLevelMultiplier = 1.0

// LevelMultipliers - множители итогового балла по уровню обучения.
type LevelMultipliers map[AcademicLevel]float64

// DefaultLevelMultipliers возвращает стандартные множители.
func DefaultLevelMultipliers() LevelMultipliers {
	return LevelMultipliers{
		LevelUndergraduate: 1.0,
		LevelGraduate:      1.3,
		LevelDoctoral:      1.6,
		LevelPostdoc:       2.0,
	}
}

// For возвращает множитель для уровня (1.0 для неизвестного).
func (lm LevelMultipliers) For(level AcademicLevel) float64 {
	if m, ok := lm[level]; ok {
		return m
	}
	return DefaultLevelMultiplier
}

// Validate проверяет, что все множители положительны.
func (lm LevelMultipliers) Validate() error {
	for level, m := range lm {
		if m <= 0 || math.IsNaN(m) {
			return shared.WrapError("excellence", "Validate", shared.ErrInvalidConfig,
				"level multiplier must be positive", fmt.Errorf("%s=%v", level, m))
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SCORE AGGREGATOR
// ══════════════════════════════════════════════════════════════════════════════

// ScoreResult - итог одного вычисления балла.
// Инвариант: Score = min(100, Σ(factor·weight) · LevelMultiplier).
type ScoreResult struct {
	StudentID       string            `json:"student_id"`
	Score           float64           `json:"score"`
	Factors         ExcellenceFactors `json:"factors"`
	Level           AcademicLevel     `json:"academic_level"`
	LevelMultiplier float64           `json:"level_multiplier"`
	ComputedAt      time.Time         `json:"computed_at"`
}

// ScoreAggregator объединяет факторы в один ограниченный балл.
type ScoreAggregator struct {
	weights     FactorWeights
	multipliers LevelMultipliers
}

// NewScoreAggregator создаёт агрегатор. Веса и множители проверяются
// при создании, чтобы некорректная конфигурация не дошла до расчётов.
func NewScoreAggregator(weights FactorWeights, multipliers LevelMultipliers) (*ScoreAggregator, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	if err := multipliers.Validate(); err != nil {
		return nil, err
	}
	return &ScoreAggregator{weights: weights, multipliers: multipliers}, nil
}

// Weights возвращает веса факторов.
func (a *ScoreAggregator) Weights() FactorWeights {
	return a.weights
}

// Multiplier возвращает множитель уровня.
func (a *ScoreAggregator) Multiplier(level AcademicLevel) float64 {
	return a.multipliers.For(level)
}

// Aggregate вычисляет итоговый балл.
func (a *ScoreAggregator) Aggregate(f ExcellenceFactors, level AcademicLevel, at time.Time) ScoreResult {
	var weighted float64
	for _, name := range AllFactors {
		weighted += f.Get(name) * a.weights.Get(name)
	}

	multiplier := a.multipliers.For(level)

	return ScoreResult{
		Score:           clampScore(weighted * multiplier),
		Factors:         f,
		Level:           level,
		LevelMultiplier: multiplier,
		ComputedAt:      at,
	}
}
