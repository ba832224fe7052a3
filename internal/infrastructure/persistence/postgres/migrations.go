package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION SUPPORT
// ══════════════════════════════════════════════════════════════════════════════

// Migration represents a database migration.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator applies embedded migrations and tracks them in schema_migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

// NewMigrator creates a new migrator with embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{
		conn:       conn,
		migrations: GetMigrations(),
		tableName:  "schema_migrations",
	}
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.conn.Pool().Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, m.tableName))
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.conn.Pool().Query(ctx, fmt.Sprintf("SELECT version, applied_at FROM %s", m.tableName))
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var at time.Time
		if err := rows.Scan(&version, &at); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		out[version] = at
	}
	return out, rows.Err()
}

// Migrate applies all pending migrations in version order and returns how
// many were applied.
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return 0, err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, mig := range m.migrations {
		if _, ok := done[mig.Version]; ok {
			continue
		}
		err := m.conn.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName),
				mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return count, fmt.Errorf("%w: version %d (%s): %v", ErrMigrationFailed, mig.Version, mig.Name, err)
		}
		count++
	}
	return count, nil
}

// Rollback reverts the most recently applied migration.
func (m *Migrator) Rollback(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return err
	}

	last := 0
	for v := range done {
		if v > last {
			last = v
		}
	}
	if last == 0 {
		return nil
	}

	var target *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == last {
			target = &m.migrations[i]
		}
	}
	if target == nil || target.DownSQL == "" {
		return fmt.Errorf("%w: missing down SQL for migration %d", ErrMigrationFailed, last)
	}

	return m.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, target.DownSQL); err != nil {
			return fmt.Errorf("failed to rollback migration %d: %w", last, err)
		}
		_, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE version = $1", m.tableName), last)
		return err
	})
}

// Status returns every embedded migration with its applied state.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Migration, len(m.migrations))
	copy(out, m.migrations)
	for i := range out {
		if at, ok := done[out[i].Version]; ok {
			out[i].IsApplied = true
			out[i].AppliedAt = at
		}
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetMigrations returns all embedded migrations sorted by version.
func GetMigrations() []Migration {
	migs := []Migration{
		{Version: 1, Name: "create_scholar_profiles", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_activity_records", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_excellence_trajectory", UpSQL: migration003Up, DownSQL: migration003Down},
		{Version: 4, Name: "create_distinction_predictions", UpSQL: migration004Up, DownSQL: migration004Down},
	}
	sort.Slice(migs, func(i, j int) bool { return migs[i].Version < migs[j].Version })
	return migs
}

// ──────────────────────────────────────────────────────────────────────────────
// 001: scholar profiles
// ──────────────────────────────────────────────────────────────────────────────

const migration001Up = `
CREATE TABLE IF NOT EXISTS scholar_profiles (
    student_id VARCHAR(100) PRIMARY KEY,
    academic_level VARCHAR(20) NOT NULL DEFAULT 'undergraduate',
    current_gpa NUMERIC(3,2) NOT NULL DEFAULT 0.00,
    gpa_trend VARCHAR(20) NOT NULL DEFAULT 'stable',
    honors_courses INTEGER NOT NULL DEFAULT 0,
    research_projects INTEGER NOT NULL DEFAULT 0,
    publications INTEGER NOT NULL DEFAULT 0,
    presentations INTEGER NOT NULL DEFAULT 0,
    frameworks_engaged INTEGER NOT NULL DEFAULT 0,
    elite_tier_documents INTEGER NOT NULL DEFAULT 0,
    leadership_roles INTEGER NOT NULL DEFAULT 0,
    service_hours NUMERIC(8,2) NOT NULL DEFAULT 0,
    leadership_impact_score NUMERIC(5,2) NOT NULL DEFAULT 0.00,
    original_projects INTEGER NOT NULL DEFAULT 0,
    creative_works INTEGER NOT NULL DEFAULT 0,
    innovative_approaches INTEGER NOT NULL DEFAULT 0,
    target_distinction VARCHAR(100) NOT NULL DEFAULT 'Dean_List',
    excellence_score NUMERIC(5,2) NOT NULL DEFAULT 0.00,
    status VARCHAR(20) NOT NULL DEFAULT 'active',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_updated TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_academic_level CHECK (academic_level IN ('undergraduate', 'graduate', 'doctoral', 'postdoc')),
    CONSTRAINT valid_gpa_trend CHECK (gpa_trend IN ('improving', 'stable', 'declining')),
    CONSTRAINT valid_gpa CHECK (current_gpa >= 0 AND current_gpa <= 4),
    CONSTRAINT valid_score CHECK (excellence_score >= 0 AND excellence_score <= 100),
    CONSTRAINT valid_status CHECK (status IN ('active', 'inactive', 'graduated'))
);

CREATE INDEX IF NOT EXISTS idx_scholar_profiles_score ON scholar_profiles(excellence_score DESC);
CREATE INDEX IF NOT EXISTS idx_scholar_profiles_active ON scholar_profiles(last_updated) WHERE status = 'active';
`

const migration001Down = `
DROP TABLE IF EXISTS scholar_profiles CASCADE;
`

// ──────────────────────────────────────────────────────────────────────────────
// 002: mentorship sessions and achievements
// ──────────────────────────────────────────────────────────────────────────────

const migration002Up = `
CREATE TABLE IF NOT EXISTS mentorship_sessions (
    id BIGSERIAL PRIMARY KEY,
    student_id VARCHAR(100) NOT NULL REFERENCES scholar_profiles(student_id) ON DELETE CASCADE,
    query_sophistication VARCHAR(20) NOT NULL DEFAULT 'basic',
    session_quality_score NUMERIC(4,2) NOT NULL DEFAULT 0.00,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_sophistication CHECK (query_sophistication IN ('basic', 'intermediate', 'advanced', 'scholar'))
);

CREATE INDEX IF NOT EXISTS idx_mentorship_sessions_student ON mentorship_sessions(student_id, created_at DESC);

CREATE TABLE IF NOT EXISTS achievement_records (
    id BIGSERIAL PRIMARY KEY,
    student_id VARCHAR(100) NOT NULL REFERENCES scholar_profiles(student_id) ON DELETE CASCADE,
    achievement_type VARCHAR(100) NOT NULL,
    achievement_name VARCHAR(255) NOT NULL,
    impact_score NUMERIC(5,2) NOT NULL DEFAULT 0.00,
    verification_status VARCHAR(20) NOT NULL DEFAULT 'pending',
    achievement_date DATE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_verification CHECK (verification_status IN ('pending', 'verified', 'rejected'))
);

CREATE INDEX IF NOT EXISTS idx_achievement_records_student ON achievement_records(student_id);
`

const migration002Down = `
DROP TABLE IF EXISTS achievement_records;
DROP TABLE IF EXISTS mentorship_sessions;
`

// ──────────────────────────────────────────────────────────────────────────────
// 003: excellence trajectory, one row per student per day
// ──────────────────────────────────────────────────────────────────────────────

const migration003Up = `
CREATE TABLE IF NOT EXISTS excellence_trajectory (
    id BIGSERIAL PRIMARY KEY,
    student_id VARCHAR(100) NOT NULL REFERENCES scholar_profiles(student_id) ON DELETE CASCADE,
    excellence_score NUMERIC(5,2) NOT NULL,
    trajectory_date DATE NOT NULL,
    factors_breakdown JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT uq_trajectory_student_day UNIQUE (student_id, trajectory_date)
);

CREATE INDEX IF NOT EXISTS idx_trajectory_student_date ON excellence_trajectory(student_id, trajectory_date DESC);
CREATE INDEX IF NOT EXISTS idx_trajectory_date ON excellence_trajectory(trajectory_date);
`

const migration003Down = `
DROP TABLE IF EXISTS excellence_trajectory;
`

// ──────────────────────────────────────────────────────────────────────────────
// 004: distinction predictions
// ──────────────────────────────────────────────────────────────────────────────

const migration004Up = `
CREATE TABLE IF NOT EXISTS distinction_predictions (
    id UUID PRIMARY KEY,
    student_id VARCHAR(100) NOT NULL REFERENCES scholar_profiles(student_id) ON DELETE CASCADE,
    distinction_type VARCHAR(100) NOT NULL,
    current_probability NUMERIC(5,2) NOT NULL,
    confidence_level NUMERIC(5,2) NOT NULL,
    required_improvement_points NUMERIC(6,2) NOT NULL DEFAULT 0,
    projection VARCHAR(20) NOT NULL,
    predicted_achievement_date DATE,
    factors_analysis JSONB NOT NULL DEFAULT '[]'::jsonb,
    key_factors JSONB NOT NULL DEFAULT '[]'::jsonb,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_probability CHECK (current_probability >= 0 AND current_probability <= 95),
    CONSTRAINT valid_confidence CHECK (confidence_level >= 0 AND confidence_level <= 95)
);

CREATE INDEX IF NOT EXISTS idx_predictions_student ON distinction_predictions(student_id, distinction_type, created_at DESC);
`

const migration004Down = `
DROP TABLE IF EXISTS distinction_predictions;
`
