package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prima-scholar/scholar-hub/internal/application/command"
	"github.com/prima-scholar/scholar-hub/internal/domain/excellence"
	"github.com/prima-scholar/scholar-hub/internal/domain/shared"
)

type fakeScorer struct {
	calls   int
	score   float64
	gpa     float64
	warning error
	err     error
}

func (f *fakeScorer) Handle(_ context.Context, cmd command.CalculateExcellenceScoreCommand) (command.CalculateExcellenceScoreResult, error) {
	f.calls++
	if f.err != nil {
		return command.CalculateExcellenceScoreResult{}, f.err
	}
	return command.CalculateExcellenceScoreResult{
		Score: excellence.ScoreResult{
			StudentID:       cmd.StudentID,
			Score:           f.score,
			Level:           excellence.LevelUndergraduate,
			LevelMultiplier: 1,
			ComputedAt:      fixedNow,
		},
		Metrics:           excellence.RawStudentMetrics{StudentID: cmd.StudentID, CurrentGPA: f.gpa},
		DurabilityWarning: f.warning,
	}, nil
}

type fakeHistory struct {
	points []excellence.TrajectoryPoint
	limit  int
	err    error
}

func (f *fakeHistory) FetchTrajectoryHistory(_ context.Context, _ string, limit int) ([]excellence.TrajectoryPoint, error) {
	f.limit = limit
	return f.points, f.err
}

type fakePredictionWriter struct {
	calls int
	err   error
}

func (f *fakePredictionWriter) PersistPrediction(context.Context, string, excellence.PredictionResult) error {
	f.calls++
	return f.err
}

type gate map[string]bool

func (g gate) IsEnabled(feature, _ string) bool {
	enabled, ok := g[feature]
	return !ok || enabled
}

func newPredictor(t *testing.T) *excellence.DistinctionPredictor {
	t.Helper()
	table, err := excellence.NewRequirementTable(excellence.DefaultRequirements())
	require.NoError(t, err)
	return excellence.NewDistinctionPredictor(table, excellence.NewTrajectoryAnalyzer(),
		excellence.DefaultFactorWeights(), excellence.DefaultPredictorConfig())
}

type predictFixture struct {
	scorer  *fakeScorer
	history *fakeHistory
	writer  *fakePredictionWriter
	handler *PredictDistinctionHandler
}

func newPredictFixture(t *testing.T, features gate) *predictFixture {
	t.Helper()
	clk := fakeclock.NewFakeClock(fixedNow)
	f := &predictFixture{
		scorer:  &fakeScorer{score: 70, gpa: 3.2},
		history: &fakeHistory{},
		writer:  &fakePredictionWriter{},
	}
	cache := NewPredictionCache(newFakeBackend(), WithCacheClock(clk))
	f.handler = NewPredictDistinctionHandler(f.scorer, f.history, newPredictor(t), cache,
		PredictDistinctionHandlerConfig{
			CacheTTL:       10 * time.Minute,
			CacheFeature:   "cache.predictions",
			PersistFeature: "persist.predictions",
		},
		WithPredictionWriter(f.writer),
		WithFeatureGate(features),
		WithPredictClock(clk),
	)
	return f
}

func TestPredictDistinction_DeanListThroughCache(t *testing.T) {
	f := newPredictFixture(t, nil)
	q := PredictDistinctionQuery{StudentID: "stu-2", Distinction: "Dean_List"}

	first, err := f.handler.Handle(context.Background(), q)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.False(t, first.Degraded())
	assert.InDelta(t, 78.3, first.Prediction.Probability, 0.15)
	assert.Equal(t, 5.0, first.Prediction.Gap)
	assert.Equal(t, excellence.ProjectionNone, first.Prediction.Projection)
	assert.Equal(t, excellence.MaxTrajectoryPoints, f.history.limit)

	second, err := f.handler.Handle(context.Background(), q)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Prediction, second.Prediction)

	assert.Equal(t, 1, f.scorer.calls)
	assert.Equal(t, 1, f.writer.calls)
}

func TestPredictDistinction_UnknownDistinctionBeforeIO(t *testing.T) {
	f := newPredictFixture(t, nil)

	_, err := f.handler.Handle(context.Background(), PredictDistinctionQuery{StudentID: "stu-1", Distinction: "Nobel_Prize"})

	require.Error(t, err)
	assert.True(t, shared.IsUnknownDistinction(err))
	assert.Zero(t, f.scorer.calls)
}

func TestPredictDistinction_Validation(t *testing.T) {
	f := newPredictFixture(t, nil)

	_, err := f.handler.Handle(context.Background(), PredictDistinctionQuery{Distinction: "Dean_List"})
	assert.True(t, shared.IsValidation(err))

	_, err = f.handler.Handle(context.Background(), PredictDistinctionQuery{StudentID: "stu-1"})
	assert.True(t, shared.IsValidation(err))
}

func TestPredictDistinction_NotFound(t *testing.T) {
	f := newPredictFixture(t, nil)
	f.scorer.err = shared.ErrStudentNotFound

	_, err := f.handler.Handle(context.Background(), PredictDistinctionQuery{StudentID: "ghost", Distinction: "Dean_List"})

	assert.True(t, shared.IsNotFound(err))
	assert.Zero(t, f.writer.calls)
}

func TestPredictDistinction_HistoryFailure(t *testing.T) {
	f := newPredictFixture(t, nil)
	f.history.err = errors.New("relation does not exist")

	_, err := f.handler.Handle(context.Background(), PredictDistinctionQuery{StudentID: "stu-1", Distinction: "Dean_List"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch history")
}

func TestPredictDistinction_DurabilityWarnings(t *testing.T) {
	f := newPredictFixture(t, nil)
	f.scorer.warning = shared.WrapError("excellence", "PersistScore", shared.ErrDegradedDurability, "score not recorded", errors.New("disk full"))
	f.writer.err = errors.New("disk full")

	res, err := f.handler.Handle(context.Background(), PredictDistinctionQuery{StudentID: "stu-1", Distinction: "Dean_List"})
	require.NoError(t, err)

	assert.True(t, res.Degraded())
	require.Len(t, res.Warnings, 2)
	for _, w := range res.Warnings {
		assert.True(t, shared.IsDegradedDurability(w))
	}
	assert.Greater(t, res.Prediction.Probability, 0.0)
}

func TestPredictDistinction_FeatureFlags(t *testing.T) {
	f := newPredictFixture(t, gate{"cache.predictions": false, "persist.predictions": false})
	q := PredictDistinctionQuery{StudentID: "stu-1", Distinction: "Summa_Cum_Laude"}

	for i := 0; i < 2; i++ {
		res, err := f.handler.Handle(context.Background(), q)
		require.NoError(t, err)
		assert.False(t, res.Cached)
	}

	assert.Equal(t, 2, f.scorer.calls)
	assert.Zero(t, f.writer.calls)
}

func TestPredictDistinction_BypassCache(t *testing.T) {
	f := newPredictFixture(t, nil)
	q := PredictDistinctionQuery{StudentID: "stu-1", Distinction: "Dean_List"}

	_, err := f.handler.Handle(context.Background(), q)
	require.NoError(t, err)

	q.BypassCache = true
	res, err := f.handler.Handle(context.Background(), q)
	require.NoError(t, err)

	assert.False(t, res.Cached)
	assert.Equal(t, 2, f.scorer.calls)
}

func TestListDistinctions(t *testing.T) {
	table, err := excellence.NewRequirementTable(excellence.DefaultRequirements())
	require.NoError(t, err)

	list := NewListDistinctionsHandler(table).Handle(context.Background())

	require.Len(t, list, 6)
	assert.Equal(t, "Dean_List", list[0].Name)
	assert.Equal(t, "Summa_Cum_Laude", list[5].Name)
	assert.Equal(t, 3.5, list[0].GPAMin)
	assert.Equal(t, []string{"top_15_percent", "full_time_enrollment"}, list[0].AdditionalRequirements)

	list[0].AdditionalRequirements[0] = "mutated"
	again := NewListDistinctionsHandler(table).Handle(context.Background())
	assert.Equal(t, "top_15_percent", again[0].AdditionalRequirements[0])
}
