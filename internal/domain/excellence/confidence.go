package excellence

import (
	"math"
	"time"
)

// ConfidencePolicy - правила оценки уверенности прогноза.
// Уверенность отражает объём данных за прогнозом и не зависит от вероятности.
type ConfidencePolicy struct {
	Base            float64       `koanf:"base"`
	CompletenessMax float64       `koanf:"completeness_max"`
	ManySessions    int           `koanf:"many_sessions"`
	ManyBonus       float64       `koanf:"many_bonus"`
	SomeSessions    int           `koanf:"some_sessions"`
	SomeBonus       float64       `koanf:"some_bonus"`
	LongevityAge    time.Duration `koanf:"longevity_age"`
	LongevityBonus  float64       `koanf:"longevity_bonus"`
	Cap             float64       `koanf:"cap"`
}

// DefaultConfidencePolicy: 70 + до 20 за полноту + 10/5 за сессии + 5 за 90 дней, не выше 95.
func DefaultConfidencePolicy() ConfidencePolicy {
	return ConfidencePolicy{
		Base:            70,
		CompletenessMax: 20,
		ManySessions:    10,
		ManyBonus:       10,
		SomeSessions:    5,
		SomeBonus:       5,
		LongevityAge:    90 * 24 * time.Hour,
		LongevityBonus:  5,
		Cap:             95,
	}
}

// completenessFields - ожидаемые поля профиля.
var completenessFields = []func(RawStudentMetrics) bool{
	func(m RawStudentMetrics) bool { return m.CurrentGPA != 0 },
	func(m RawStudentMetrics) bool { return len(m.Sessions) > 0 },
	func(m RawStudentMetrics) bool { return m.AchievementsCount != 0 },
	func(m RawStudentMetrics) bool { return m.ResearchProjects != 0 },
	func(m RawStudentMetrics) bool { return m.LeadershipRoles != 0 },
}

// Completeness возвращает долю заполненных ожидаемых полей в диапазоне [0, 1].
func Completeness(m RawStudentMetrics) float64 {
	present := 0
	for _, has := range completenessFields {
		if has(m) {
			present++
		}
	}
	return float64(present) / float64(len(completenessFields))
}

// Confidence вычисляет уверенность прогноза для метрик на момент now.
func (p ConfidencePolicy) Confidence(m RawStudentMetrics, now time.Time) float64 {
	c := p.Base + Completeness(m)*p.CompletenessMax

	switch sessions := m.SessionCount(); {
	case sessions >= p.ManySessions:
		c += p.ManyBonus
	case sessions >= p.SomeSessions:
		c += p.SomeBonus
	}

	if !m.ProfileCreatedAt.IsZero() && m.ProfileAge(now) >= p.LongevityAge {
		c += p.LongevityBonus
	}

	return math.Max(0, math.Min(c, p.Cap))
}
