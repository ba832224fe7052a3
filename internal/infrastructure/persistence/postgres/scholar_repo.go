package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/prima-scholar/scholar-hub/internal/domain/excellence"
	"github.com/prima-scholar/scholar-hub/internal/domain/shared"
)

// recentSessionsLimit bounds how many mentorship sessions feed the
// critical-thinking factor.
const recentSessionsLimit = 50

// ScholarRepository implements excellence.MetricsRepository and
// excellence.StudentLister.
type ScholarRepository struct {
	db      Querier
	timeout time.Duration
}

// NewScholarRepository creates a new ScholarRepository.
func NewScholarRepository(conn *Connection) *ScholarRepository {
	return &ScholarRepository{db: conn.Pool(), timeout: conn.queryTimeout}
}

const selectProfileSQL = `
	SELECT sp.student_id, sp.academic_level,
	       sp.current_gpa::float8, sp.honors_courses, sp.gpa_trend,
	       (SELECT COUNT(*) FROM achievement_records ar
	         WHERE ar.student_id = sp.student_id AND ar.verification_status <> 'rejected'),
	       sp.research_projects, sp.publications, sp.presentations,
	       sp.frameworks_engaged, sp.elite_tier_documents,
	       sp.leadership_roles, sp.service_hours::float8, sp.leadership_impact_score::float8,
	       sp.original_projects, sp.creative_works, sp.innovative_approaches,
	       sp.created_at
	FROM scholar_profiles sp
	WHERE sp.student_id = $1`

const selectSessionsSQL = `
	SELECT session_quality_score::float8, query_sophistication
	FROM mentorship_sessions
	WHERE student_id = $1
	ORDER BY created_at DESC
	LIMIT $2`

// FetchComprehensiveStudentData loads the profile, achievement count and
// recent mentorship sessions of one student.
func (r *ScholarRepository) FetchComprehensiveStudentData(ctx context.Context, studentID string) (excellence.RawStudentMetrics, error) {
	ctx, cancel := withQueryTimeout(ctx, r.timeout)
	defer cancel()

	m, err := scanProfile(r.db.QueryRow(ctx, selectProfileSQL, studentID))
	if err != nil {
		if IsNoRows(err) {
			return excellence.RawStudentMetrics{}, shared.WrapError("scholar", "FetchComprehensiveStudentData",
				shared.ErrNotFound, "student not found", fmt.Errorf("%q", studentID))
		}
		return excellence.RawStudentMetrics{}, fmt.Errorf("failed to load scholar profile: %w", err)
	}

	rows, err := r.db.Query(ctx, selectSessionsSQL, studentID, recentSessionsLimit)
	if err != nil {
		return excellence.RawStudentMetrics{}, fmt.Errorf("failed to query mentorship sessions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return excellence.RawStudentMetrics{}, fmt.Errorf("failed to scan mentorship session: %w", err)
		}
		m.Sessions = append(m.Sessions, s)
	}
	if err := rows.Err(); err != nil {
		return excellence.RawStudentMetrics{}, fmt.Errorf("failed to read mentorship sessions: %w", err)
	}

	return m, nil
}

// ListActiveStudentIDs returns active students, least recently scored first.
func (r *ScholarRepository) ListActiveStudentIDs(ctx context.Context, limit int) ([]string, error) {
	ctx, cancel := withQueryTimeout(ctx, r.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 500
	}

	rows, err := r.db.Query(ctx, `
		SELECT student_id
		FROM scholar_profiles
		WHERE status = 'active'
		ORDER BY last_updated ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list active students: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan student ids: %w", err)
	}
	return ids, nil
}

func scanProfile(row pgx.Row) (excellence.RawStudentMetrics, error) {
	var (
		m            excellence.RawStudentMetrics
		level, trend string
		achievements int64
		createdAt    time.Time
	)

	err := row.Scan(
		&m.StudentID, &level,
		&m.CurrentGPA, &m.HonorsCourses, &trend,
		&achievements,
		&m.ResearchProjects, &m.Publications, &m.Presentations,
		&m.FrameworksEngaged, &m.EliteTierDocuments,
		&m.LeadershipRoles, &m.ServiceHours, &m.LeadershipImpactScore,
		&m.OriginalProjects, &m.CreativeWorks, &m.InnovativeApproaches,
		&createdAt,
	)
	if err != nil {
		return excellence.RawStudentMetrics{}, err
	}

	m.AcademicLevel = excellence.AcademicLevel(level)
	m.GPATrend = excellence.GPATrend(trend)
	m.AchievementsCount = int(achievements)
	m.ProfileCreatedAt = createdAt.UTC()
	return m, nil
}

func scanSession(row pgx.Row) (excellence.MentorshipSession, error) {
	var (
		s     excellence.MentorshipSession
		level string
	)
	if err := row.Scan(&s.QualityScore, &level); err != nil {
		return excellence.MentorshipSession{}, err
	}
	s.Sophistication = excellence.Sophistication(level)
	return s, nil
}
