package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prima-scholar/scholar-hub/internal/domain/excellence"
	"github.com/prima-scholar/scholar-hub/internal/domain/shared"
	"github.com/prima-scholar/scholar-hub/pkg/metrics"
)

var fixedNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type fakeMetricsRepo struct {
	data map[string]excellence.RawStudentMetrics
	err  error
}

func (f *fakeMetricsRepo) FetchComprehensiveStudentData(_ context.Context, id string) (excellence.RawStudentMetrics, error) {
	if f.err != nil {
		return excellence.RawStudentMetrics{}, f.err
	}
	m, ok := f.data[id]
	if !ok {
		return excellence.RawStudentMetrics{}, shared.ErrStudentNotFound
	}
	return m, nil
}

type fakeScoreWriter struct {
	mu       sync.Mutex
	failures int
	err      error
	calls    int
	written  []excellence.ScoreResult
}

func (f *fakeScoreWriter) PersistScore(_ context.Context, _ string, r excellence.ScoreResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return f.err
	}
	f.written = append(f.written, r)
	return nil
}

func newTestHandler(t *testing.T, repo excellence.MetricsRepository, writer excellence.ScoreWriter, rec *metrics.Recorder) *CalculateExcellenceScoreHandler {
	t.Helper()
	agg, err := excellence.NewScoreAggregator(excellence.DefaultFactorWeights(), excellence.DefaultLevelMultipliers())
	require.NoError(t, err)

	return NewCalculateExcellenceScoreHandler(
		repo,
		writer,
		excellence.NewFactorCalculator(excellence.DefaultFactorCoefficients()),
		agg,
		CalculateExcellenceScoreHandlerConfig{
			PersistMaxRetries: 3,
			PersistRetryDelay: time.Millisecond,
			PersistTimeout:    time.Second,
		},
		WithClock(fakeclock.NewFakeClock(fixedNow)),
		WithRecorder(rec),
	)
}

func sampleMetrics() excellence.RawStudentMetrics {
	return excellence.RawStudentMetrics{
		StudentID:         "stu-1",
		AcademicLevel:     excellence.LevelUndergraduate,
		CurrentGPA:        3.6,
		HonorsCourses:     2,
		GPATrend:          excellence.TrendImproving,
		AchievementsCount: 3,
		ResearchProjects:  1,
		Publications:      1,
		LeadershipRoles:   1,
		ServiceHours:      40,
		OriginalProjects:  1,
	}
}

func TestCalculateExcellenceScore_Success(t *testing.T) {
	repo := &fakeMetricsRepo{data: map[string]excellence.RawStudentMetrics{"stu-1": sampleMetrics()}}
	writer := &fakeScoreWriter{}
	rec := metrics.New()
	h := newTestHandler(t, repo, writer, rec)

	res, err := h.Handle(context.Background(), CalculateExcellenceScoreCommand{StudentID: "stu-1"})
	require.NoError(t, err)

	assert.False(t, res.Degraded())
	assert.Equal(t, "stu-1", res.Score.StudentID)
	assert.Equal(t, fixedNow, res.Score.ComputedAt)
	assert.Greater(t, res.Score.Score, 0.0)
	assert.LessOrEqual(t, res.Score.Score, 100.0)
	assert.Equal(t, 3.6, res.Metrics.CurrentGPA)

	require.Len(t, writer.written, 1)
	assert.Equal(t, res.Score, writer.written[0])
}

func TestCalculateExcellenceScore_NotFound(t *testing.T) {
	writer := &fakeScoreWriter{}
	h := newTestHandler(t, &fakeMetricsRepo{}, writer, nil)

	_, err := h.Handle(context.Background(), CalculateExcellenceScoreCommand{StudentID: "ghost"})

	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err))
	assert.Zero(t, writer.calls, "no partial work on missing student")
}

func TestCalculateExcellenceScore_RepoFailure(t *testing.T) {
	h := newTestHandler(t, &fakeMetricsRepo{err: errors.New("connection refused")}, &fakeScoreWriter{}, nil)

	_, err := h.Handle(context.Background(), CalculateExcellenceScoreCommand{StudentID: "stu-1"})

	require.Error(t, err)
	assert.False(t, shared.IsNotFound(err))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestCalculateExcellenceScore_EmptyID(t *testing.T) {
	h := newTestHandler(t, &fakeMetricsRepo{}, nil, nil)

	_, err := h.Handle(context.Background(), CalculateExcellenceScoreCommand{})

	assert.True(t, shared.IsValidation(err))
}

func TestCalculateExcellenceScore_RetriesTransientWrite(t *testing.T) {
	repo := &fakeMetricsRepo{data: map[string]excellence.RawStudentMetrics{"stu-1": sampleMetrics()}}
	writer := &fakeScoreWriter{failures: 2, err: errors.New("deadlock detected")}
	h := newTestHandler(t, repo, writer, nil)

	res, err := h.Handle(context.Background(), CalculateExcellenceScoreCommand{StudentID: "stu-1"})
	require.NoError(t, err)

	assert.False(t, res.Degraded())
	assert.Equal(t, 3, writer.calls)
	assert.Len(t, writer.written, 1)
}

func TestCalculateExcellenceScore_DegradedDurability(t *testing.T) {
	repo := &fakeMetricsRepo{data: map[string]excellence.RawStudentMetrics{"stu-1": sampleMetrics()}}
	writer := &fakeScoreWriter{failures: 100, err: errors.New("disk full")}
	rec := metrics.New()
	h := newTestHandler(t, repo, writer, rec)

	res, err := h.Handle(context.Background(), CalculateExcellenceScoreCommand{StudentID: "stu-1"})
	require.NoError(t, err, "persistence failure must not fail the score")

	assert.True(t, res.Degraded())
	assert.True(t, shared.IsDegradedDurability(res.DurabilityWarning))
	assert.Greater(t, res.Score.Score, 0.0)
	assert.Equal(t, 3, writer.calls)

	n, err := testutil.GatherAndCount(rec.Registry(), "prima_scholar_persistence_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCalculateExcellenceScore_ValidationErrorIsNotRetried(t *testing.T) {
	repo := &fakeMetricsRepo{data: map[string]excellence.RawStudentMetrics{"stu-1": sampleMetrics()}}
	writer := &fakeScoreWriter{failures: 100, err: shared.ErrInvalidStudentID}
	h := newTestHandler(t, repo, writer, nil)

	res, err := h.Handle(context.Background(), CalculateExcellenceScoreCommand{StudentID: "stu-1"})
	require.NoError(t, err)

	assert.True(t, res.Degraded())
	assert.Equal(t, 1, writer.calls)
}
