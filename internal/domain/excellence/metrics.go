package excellence

import "time"

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// AcademicLevel - уровень обучения студента (влияет на множитель итогового балла).
type AcademicLevel string

const (
	LevelUndergraduate AcademicLevel = "undergraduate"
	LevelGraduate      AcademicLevel = "graduate"
	LevelDoctoral      AcademicLevel = "doctoral"
	LevelPostdoc       AcademicLevel = "postdoc"
)

// String возвращает строковое представление уровня.
func (l AcademicLevel) String() string {
	return string(l)
}

// GPATrend - тег динамики GPA за последние семестры.
type GPATrend string

const (
	TrendImproving GPATrend = "improving"
	TrendStable    GPATrend = "stable"
	TrendDeclining GPATrend = "declining"
)

// Sophistication - уровень интеллектуальной сложности менторской сессии.
type Sophistication string

const (
	SophisticationBasic        Sophistication = "basic"
	SophisticationIntermediate Sophistication = "intermediate"
	SophisticationAdvanced     Sophistication = "advanced"
	SophisticationScholar      Sophistication = "scholar"
)

// ══════════════════════════════════════════════════════════════════════════════
// RAW METRICS
// ══════════════════════════════════════════════════════════════════════════════

// MentorshipSession - краткая сводка одной менторской сессии.
type MentorshipSession struct {
	// QualityScore - оценка качества сессии (0-10).
	QualityScore float64 `json:"quality_score"`

	// Sophistication - уровень сложности обсуждения.
	Sophistication Sophistication `json:"sophistication"`
}

// RawStudentMetrics - сырые сигналы о студенте, из которых считаются факторы.
// Передаётся целиком на одно вычисление и не изменяется во время него.
// Отсутствующие поля равны нулевым значениям.
type RawStudentMetrics struct {
	StudentID     string        `json:"student_id"`
	AcademicLevel AcademicLevel `json:"academic_level"`

	// Академическая успеваемость
	CurrentGPA        float64  `json:"current_gpa"`
	HonorsCourses     int      `json:"honors_courses"`
	GPATrend          GPATrend `json:"gpa_trend"`
	AchievementsCount int      `json:"achievements_count"`

	// Исследования
	ResearchProjects int `json:"research_projects"`
	Publications     int `json:"publications"`
	Presentations    int `json:"presentations"`

	// Менторство (самые свежие сессии)
	Sessions []MentorshipSession `json:"sessions"`

	// Критическое мышление
	FrameworksEngaged  int `json:"frameworks_engaged"`
	EliteTierDocuments int `json:"elite_tier_documents"`

	// Лидерство и служение
	LeadershipRoles       int     `json:"leadership_roles"`
	ServiceHours          float64 `json:"service_hours"`
	LeadershipImpactScore float64 `json:"leadership_impact_score"`

	// Инновации
	OriginalProjects     int `json:"original_projects"`
	CreativeWorks        int `json:"creative_works"`
	InnovativeApproaches int `json:"innovative_approaches"`

	// ProfileCreatedAt - дата создания профиля (для бонуса за длительность наблюдения).
	ProfileCreatedAt time.Time `json:"profile_created_at"`
}

// SessionCount возвращает количество менторских сессий.
func (m RawStudentMetrics) SessionCount() int {
	return len(m.Sessions)
}

// AverageSessionQuality возвращает среднюю оценку качества сессий (0, если сессий нет).
func (m RawStudentMetrics) AverageSessionQuality() float64 {
	if len(m.Sessions) == 0 {
		return 0
	}
	var sum float64
	for _, s := range m.Sessions {
		sum += s.QualityScore
	}
	return sum / float64(len(m.Sessions))
}

// ProfileAge возвращает возраст профиля относительно now.
// Для профиля без даты создания возвращает 0.
func (m RawStudentMetrics) ProfileAge(now time.Time) time.Duration {
	if m.ProfileCreatedAt.IsZero() || now.Before(m.ProfileCreatedAt) {
		return 0
	}
	return now.Sub(m.ProfileCreatedAt)
}
