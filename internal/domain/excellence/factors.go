package excellence

import "math"

// ══════════════════════════════════════════════════════════════════════════════
// FACTORS
// ══════════════════════════════════════════════════════════════════════════════

// FactorName - имя одного из пяти под-факторов.
type FactorName string

const (
	FactorAcademicPerformance  FactorName = "academic_performance"
	FactorResearchEngagement   FactorName = "research_engagement"
	FactorCriticalThinking     FactorName = "critical_thinking"
	FactorLeadershipService    FactorName = "leadership_service"
	FactorInnovationCreativity FactorName = "innovation_creativity"
)

// AllFactors - все факторы в каноническом порядке.
var AllFactors = []FactorName{
	FactorAcademicPerformance,
	FactorResearchEngagement,
	FactorCriticalThinking,
	FactorLeadershipService,
	FactorInnovationCreativity,
}

// ExcellenceFactors - пять ограниченных значений в диапазоне [0, 100].
// Создаётся заново на каждое вычисление и не изменяется после создания.
type ExcellenceFactors struct {
	AcademicPerformance  float64 `json:"academic_performance"`
	ResearchEngagement   float64 `json:"research_engagement"`
	CriticalThinking     float64 `json:"critical_thinking"`
	LeadershipService    float64 `json:"leadership_service"`
	InnovationCreativity float64 `json:"innovation_creativity"`
}

// Get возвращает значение фактора по имени.
func (f ExcellenceFactors) Get(name FactorName) float64 {
	switch name {
	case FactorAcademicPerformance:
		return f.AcademicPerformance
	case FactorResearchEngagement:
		return f.ResearchEngagement
	case FactorCriticalThinking:
		return f.CriticalThinking
	case FactorLeadershipService:
		return f.LeadershipService
	case FactorInnovationCreativity:
		return f.InnovationCreativity
	default:
		return 0
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Coefficients
// ─────────────────────────────────────────────────────────────────────────────

// Bonus - линейный бонус с потолком: min(count * Per, Cap).
type Bonus struct {
	Per float64 `koanf:"per" json:"per"`
	Cap float64 `koanf:"cap" json:"cap"`
}

// Apply применяет бонус к количеству.
func (b Bonus) Apply(count float64) float64 {
	return math.Min(count*b.Per, b.Cap)
}

// FactorCoefficients - таблица констант для расчёта факторов.
// Все значения задаются конфигурацией, а не выводятся.
type FactorCoefficients struct {
	// Академическая успеваемость
	GPAScale     float64              `koanf:"gpa_scale"`
	Honors       Bonus                `koanf:"honors"`
	TrendBonus   map[GPATrend]float64 `koanf:"trend_bonus"`
	Achievements Bonus                `koanf:"achievements"`

	// Исследования
	ResearchBase       float64 `koanf:"research_base"`
	ResearchProjects   Bonus   `koanf:"research_projects"`
	PublicationPoints  float64 `koanf:"publication_points"`
	PresentationPoints float64 `koanf:"presentation_points"`
	DisseminationCap   float64 `koanf:"dissemination_cap"`
	SessionQuality     Bonus   `koanf:"session_quality"`

	// Критическое мышление
	CriticalFloor         float64                    `koanf:"critical_floor"`
	SophisticationScores  map[Sophistication]float64 `koanf:"sophistication_scores"`
	DefaultSophistication float64                    `koanf:"default_sophistication"`
	Frameworks            Bonus                      `koanf:"frameworks"`
	EliteDocuments        Bonus                      `koanf:"elite_documents"`

	// Лидерство и служение
	LeadershipBase      float64 `koanf:"leadership_base"`
	LeadershipRoles     Bonus   `koanf:"leadership_roles"`
	ServiceHoursDivisor float64 `koanf:"service_hours_divisor"`
	ServiceCap          float64 `koanf:"service_cap"`
	ImpactCap           float64 `koanf:"impact_cap"`

	// Инновации
	InnovationBase       float64 `koanf:"innovation_base"`
	OriginalProjects     Bonus   `koanf:"original_projects"`
	CreativeWorks        Bonus   `koanf:"creative_works"`
	InnovativeApproaches Bonus   `koanf:"innovative_approaches"`
}

// DefaultFactorCoefficients возвращает стандартную таблицу коэффициентов.
func DefaultFactorCoefficients() FactorCoefficients {
	return FactorCoefficients{
		GPAScale: 4.0,
		Honors:   Bonus{Per: 2, Cap: 10},
		TrendBonus: map[GPATrend]float64{
			TrendImproving: 5,
			TrendStable:    0,
			TrendDeclining: -5,
		},
		Achievements: Bonus{Per: 3, Cap: 15},

		ResearchBase:       20,
		ResearchProjects:   Bonus{Per: 15, Cap: 40},
		PublicationPoints:  20,
		PresentationPoints: 10,
		DisseminationCap:   30,
		SessionQuality:     Bonus{Per: 10, Cap: 10},

		CriticalFloor: 40,
		SophisticationScores: map[Sophistication]float64{
			SophisticationBasic:        10,
			SophisticationIntermediate: 25,
			SophisticationAdvanced:     40,
			SophisticationScholar:      60,
		},
		DefaultSophistication: 10,
		Frameworks:            Bonus{Per: 3, Cap: 20},
		EliteDocuments:        Bonus{Per: 5, Cap: 15},

		LeadershipBase:      10,
		LeadershipRoles:     Bonus{Per: 15, Cap: 45},
		ServiceHoursDivisor: 10,
		ServiceCap:          25,
		ImpactCap:           20,

		InnovationBase:       30,
		OriginalProjects:     Bonus{Per: 10, Cap: 30},
		CreativeWorks:        Bonus{Per: 15, Cap: 25},
		InnovativeApproaches: Bonus{Per: 2, Cap: 15},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// FACTOR CALCULATOR
// ══════════════════════════════════════════════════════════════════════════════

// FactorCalculator вычисляет пять под-факторов из сырых метрик.
// Не хранит изменяемого состояния, безопасен для конкурентного использования.
type FactorCalculator struct {
	c FactorCoefficients
}

// NewFactorCalculator создаёт калькулятор с указанной таблицей коэффициентов.
func NewFactorCalculator(c FactorCoefficients) *FactorCalculator {
	return &FactorCalculator{c: c}
}

// ComputeFactors - тотальная функция: никогда не возвращает ошибку.
func (fc *FactorCalculator) ComputeFactors(m RawStudentMetrics) ExcellenceFactors {
	return ExcellenceFactors{
		AcademicPerformance:  clampScore(fc.academicPerformance(m)),
		ResearchEngagement:   clampScore(fc.researchEngagement(m)),
		CriticalThinking:     clampScore(fc.criticalThinking(m)),
		LeadershipService:    clampScore(fc.leadershipService(m)),
		InnovationCreativity: clampScore(fc.innovationCreativity(m)),
	}
}

func (fc *FactorCalculator) academicPerformance(m RawStudentMetrics) float64 {
	var base float64
	if fc.c.GPAScale > 0 {
		base = math.Min(m.CurrentGPA/fc.c.GPAScale*100, 100)
	}

	trend := m.GPATrend
	if trend == "" {
		trend = TrendStable
	}

	return base +
		fc.c.Honors.Apply(float64(m.HonorsCourses)) +
		fc.c.TrendBonus[trend] +
		fc.c.Achievements.Apply(float64(m.AchievementsCount))
}

func (fc *FactorCalculator) researchEngagement(m RawStudentMetrics) float64 {
	dissemination := float64(m.Publications)*fc.c.PublicationPoints +
		float64(m.Presentations)*fc.c.PresentationPoints

	return fc.c.ResearchBase +
		fc.c.ResearchProjects.Apply(float64(m.ResearchProjects)) +
		math.Min(dissemination, fc.c.DisseminationCap) +
		fc.c.SessionQuality.Apply(m.AverageSessionQuality())
}

func (fc *FactorCalculator) criticalThinking(m RawStudentMetrics) float64 {
	return math.Max(fc.c.CriticalFloor, fc.meanSophistication(m.Sessions)) +
		fc.c.Frameworks.Apply(float64(m.FrameworksEngaged)) +
		fc.c.EliteDocuments.Apply(float64(m.EliteTierDocuments))
}

// meanSophistication усредняет баллы сложности по сессиям.
// Пустой тег считается basic, неизвестный - DefaultSophistication.
func (fc *FactorCalculator) meanSophistication(sessions []MentorshipSession) float64 {
	if len(sessions) == 0 {
		return 0
	}
	var sum float64
	for _, s := range sessions {
		tag := s.Sophistication
		if tag == "" {
			tag = SophisticationBasic
		}
		score, ok := fc.c.SophisticationScores[tag]
		if !ok {
			score = fc.c.DefaultSophistication
		}
		sum += score
	}
	return sum / float64(len(sessions))
}

func (fc *FactorCalculator) leadershipService(m RawStudentMetrics) float64 {
	var service float64
	if fc.c.ServiceHoursDivisor > 0 {
		service = math.Min(m.ServiceHours/fc.c.ServiceHoursDivisor, fc.c.ServiceCap)
	}

	return fc.c.LeadershipBase +
		fc.c.LeadershipRoles.Apply(float64(m.LeadershipRoles)) +
		service +
		math.Min(m.LeadershipImpactScore, fc.c.ImpactCap)
}

func (fc *FactorCalculator) innovationCreativity(m RawStudentMetrics) float64 {
	return fc.c.InnovationBase +
		fc.c.OriginalProjects.Apply(float64(m.OriginalProjects)) +
		fc.c.CreativeWorks.Apply(float64(m.CreativeWorks)) +
		fc.c.InnovativeApproaches.Apply(float64(m.InnovativeApproaches))
}

// clampScore ограничивает значение диапазоном [0, 100].
func clampScore(v float64) float64 {
	return clamp(v, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(v, hi))
}
