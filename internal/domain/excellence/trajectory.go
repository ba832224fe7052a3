package excellence

import (
	"sort"
	"time"
)

const (
	// MaxTrajectoryPoints - сколько последних точек учитывается при анализе.
	MaxTrajectoryPoints = 10

	// NeutralMomentum - значение импульса при недостаточной истории.
	NeutralMomentum = 0.5

	// momentumSlopeScale переводит наклон (баллов за точку) в импульс.
	momentumSlopeScale = 20.0
)

// TrajectoryPoint - одна точка истории балла.
type TrajectoryPoint struct {
	Date  time.Time `json:"date"`
	Score float64   `json:"excellence_score"`
}

// Trend - результат анализа траектории.
type Trend struct {
	// Points - сколько точек вошло в регрессию.
	Points int `json:"points"`

	// Slope - наклон МНК-прямой в баллах за точку истории.
	Slope float64 `json:"slope"`

	// SlopePerDay - наклон, приведённый к баллам за календарный день.
	SlopePerDay float64 `json:"slope_per_day"`

	// Momentum - импульс в диапазоне [0, 1].
	Momentum float64 `json:"momentum"`

	// Insufficient - истории недостаточно (меньше двух точек).
	// Это политика, а не ошибка: Momentum в этом случае равен NeutralMomentum.
	Insufficient bool `json:"insufficient"`
}

// TrajectoryAnalyzer оценивает направление и силу изменения балла.
type TrajectoryAnalyzer struct{}

// NewTrajectoryAnalyzer создаёт анализатор.
func NewTrajectoryAnalyzer() *TrajectoryAnalyzer {
	return &TrajectoryAnalyzer{}
}

// Momentum возвращает импульс в диапазоне [0, 1].
func (ta *TrajectoryAnalyzer) Momentum(history []TrajectoryPoint) float64 {
	return ta.Analyze(history).Momentum
}

// Analyze строит МНК-прямую по последним MaxTrajectoryPoints точкам.
// Входной срез не изменяется.
func (ta *TrajectoryAnalyzer) Analyze(history []TrajectoryPoint) Trend {
	points := recentChronological(history)

	if len(points) < 2 {
		return Trend{
			Points:       len(points),
			Momentum:     NeutralMomentum,
			Insufficient: true,
		}
	}

	slope := olsSlope(points)

	return Trend{
		Points:      len(points),
		Slope:       slope,
		SlopePerDay: slope / meanSpacingDays(points),
		Momentum:    clamp(NeutralMomentum+slope/momentumSlopeScale, 0, 1),
	}
}

// recentChronological сортирует копию истории от ранних к поздним
// и оставляет последние MaxTrajectoryPoints точек.
func recentChronological(history []TrajectoryPoint) []TrajectoryPoint {
	points := make([]TrajectoryPoint, len(history))
	copy(points, history)

	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Date.Before(points[j].Date)
	})

	if len(points) > MaxTrajectoryPoints {
		points = points[len(points)-MaxTrajectoryPoints:]
	}
	return points
}

// olsSlope: b = (nΣxy − ΣxΣy) / (nΣx² − (Σx)²), x = 0..n-1.
// Для n >= 2 знаменатель всегда положителен.
func olsSlope(points []TrajectoryPoint) float64 {
	n := float64(len(points))
	var sumX, sumY, sumXY, sumXX float64
	for i, p := range points {
		x := float64(i)
		sumX += x
		sumY += p.Score
		sumXY += x * p.Score
		sumXX += x * x
	}
	return (n*sumXY - sumX*sumY) / (n*sumXX - sumX*sumX)
}

// meanSpacingDays - средний интервал между точками в днях (не меньше одного дня).
func meanSpacingDays(points []TrajectoryPoint) float64 {
	span := points[len(points)-1].Date.Sub(points[0].Date).Hours() / 24
	spacing := span / float64(len(points)-1)
	if spacing < 1 {
		return 1
	}
	return spacing
}
