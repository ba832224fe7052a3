package excellence

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Контракт с хранилищем. Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// MetricsRepository - источник сырых метрик студента.
type MetricsRepository interface {
	// FetchComprehensiveStudentData возвращает все метрики студента.
	// Возвращает ErrStudentNotFound, если профиля нет.
	FetchComprehensiveStudentData(ctx context.Context, studentID string) (RawStudentMetrics, error)
}

// TrajectoryRepository - история балла студента.
type TrajectoryRepository interface {
	// FetchTrajectoryHistory возвращает до limit (не более 10) последних
	// точек в хронологическом порядке, от ранних к поздним.
	FetchTrajectoryHistory(ctx context.Context, studentID string, limit int) ([]TrajectoryPoint, error)
}

// ScoreWriter сохраняет балл и точку траектории за текущий день.
// Запись best-effort: ошибка не мешает вернуть вычисленный балл.
type ScoreWriter interface {
	PersistScore(ctx context.Context, studentID string, result ScoreResult) error
}

// PredictionWriter сохраняет прогноз. Запись best-effort.
type PredictionWriter interface {
	PersistPrediction(ctx context.Context, studentID string, result PredictionResult) error
}

// ─────────────────────────────────────────────────────────────────────────────
// Maintenance
// ─────────────────────────────────────────────────────────────────────────────

// StudentLister перечисляет активных студентов для фонового пересчёта.
type StudentLister interface {
	ListActiveStudentIDs(ctx context.Context, limit int) ([]string, error)
}

// TrajectoryPruner удаляет точки траектории старше cutoff.
type TrajectoryPruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHE
// ══════════════════════════════════════════════════════════════════════════════

// CacheEntry - закэшированный прогноз.
// После ExpiresAt запись считается отсутствующей (ленивое истечение).
type CacheEntry struct {
	StudentID   string           `json:"student_id"`
	Distinction string           `json:"distinction"`
	Value       PredictionResult `json:"value"`
	ExpiresAt   time.Time        `json:"expires_at"`
}

// Expired сообщает, истекла ли запись к моменту now.
func (e CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// PredictionCacheBackend - хранилище записей кэша прогнозов.
// Должно поддерживать конкурентные чтение и запись на уровне отдельной записи.
type PredictionCacheBackend interface {
	// Get возвращает запись и признак её наличия.
	Get(ctx context.Context, studentID, distinction string) (CacheEntry, bool, error)

	// Set сохраняет запись на ttl.
	Set(ctx context.Context, entry CacheEntry, ttl time.Duration) error

	// Ping проверяет доступность (только для health-отчётов).
	Ping(ctx context.Context) error
}
