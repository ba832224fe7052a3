package excellence

import (
	"math"
	"time"
)

// ProjectionStatus - итог прогноза даты достижения.
type ProjectionStatus string

const (
	// ProjectionEstimated - дата оценена по положительной траектории.
	ProjectionEstimated ProjectionStatus = "projected"

	// ProjectionMet - порог уже достигнут, прогноз не нужен.
	ProjectionMet ProjectionStatus = "met"

	// ProjectionNone - траектория плоская или нисходящая, уверенной даты нет.
	ProjectionNone ProjectionStatus = "no_projection"
)

// ImprovementFactor - фактор, сильнее всего отстающий от требуемого уровня.
type ImprovementFactor struct {
	Factor  FactorName `json:"factor"`
	Current float64    `json:"current"`
	Target  float64    `json:"target"`
	// Deficit - взвешенное отставание: weight · max(0, target − current).
	Deficit float64 `json:"deficit"`
}

// PredictionResult - прогноз достижения одной награды.
type PredictionResult struct {
	StudentID   string `json:"student_id"`
	Distinction string `json:"distinction"`

	Probability float64 `json:"probability"`
	Confidence  float64 `json:"confidence"`

	CurrentScore  float64 `json:"current_score"`
	RequiredScore float64 `json:"required_score"`
	Gap           float64 `json:"gap"`
	CurrentGPA    float64 `json:"current_gpa"`
	RequiredGPA   float64 `json:"required_gpa"`

	TrajectoryFactor         float64          `json:"trajectory_factor"`
	Projection               ProjectionStatus `json:"projection"`
	EstimatedAchievementDate *time.Time       `json:"estimated_achievement_date,omitempty"`

	ImprovementFactors []ImprovementFactor `json:"improvement_factors"`
	KeyFactors         []string            `json:"key_factors"`

	ComputedAt time.Time `json:"computed_at"`
}

// HasProjection сообщает, есть ли оценённая дата достижения.
func (r PredictionResult) HasProjection() bool {
	return r.Projection == ProjectionEstimated && r.EstimatedAchievementDate != nil
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
