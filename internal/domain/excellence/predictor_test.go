package excellence

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prima-scholar/scholar-hub/internal/domain/shared"
)

func newTestPredictor(t *testing.T) *DistinctionPredictor {
	t.Helper()
	table, err := NewRequirementTable(DefaultRequirements())
	require.NoError(t, err)
	return NewDistinctionPredictor(table, NewTrajectoryAnalyzer(), DefaultFactorWeights(), DefaultPredictorConfig())
}

func TestPredict_SummaExample(t *testing.T) {
	p := newTestPredictor(t)

	result, err := p.Predict("Summa_Cum_Laude", PredictionInput{
		StudentID: "stu-1",
		Score:     ScoreResult{Score: 96, LevelMultiplier: 1},
		History:   dailySeries(fixedNow.AddDate(0, 0, -1), 90, 92),
		Metrics:   RawStudentMetrics{CurrentGPA: 3.9},
		Now:       fixedNow,
	})
	require.NoError(t, err)

	assert.Equal(t, "Summa_Cum_Laude", result.Distinction)
	assert.Equal(t, 0.6, result.TrajectoryFactor)
	assert.Equal(t, 88.0, result.Probability)
	assert.Equal(t, 0.0, result.Gap)
	assert.Equal(t, ProjectionMet, result.Projection)
	assert.Nil(t, result.EstimatedAchievementDate)
	assert.Equal(t, 95.0, result.RequiredScore)
	assert.Equal(t, 3.9, result.RequiredGPA)
	assert.Equal(t, []string{"thesis_defense", "faculty_recommendation"}, result.KeyFactors)
}

func TestPredict_DeanListExample(t *testing.T) {
	p := newTestPredictor(t)

	result, err := p.Predict("Dean_List", PredictionInput{
		StudentID: "stu-2",
		Score:     ScoreResult{Score: 70, LevelMultiplier: 1},
		Metrics:   RawStudentMetrics{CurrentGPA: 3.2},
		Now:       fixedNow,
	})
	require.NoError(t, err)

	assert.InDelta(t, 78.3, result.Probability, 0.15)
	assert.Equal(t, 5.0, result.Gap)
	assert.Equal(t, 0.5, result.TrajectoryFactor)
	// neutral momentum never yields a date
	assert.Equal(t, ProjectionNone, result.Projection)
	assert.Nil(t, result.EstimatedAchievementDate)
	assert.False(t, result.HasProjection())
}

func TestPredict_UnknownDistinction(t *testing.T) {
	p := newTestPredictor(t)

	_, err := p.Predict("Nobel_Prize", PredictionInput{Now: fixedNow})

	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrUnknownDistinction))
	assert.True(t, shared.IsUnknownDistinction(err))
	assert.False(t, shared.IsNotFound(err))
}

func TestPredict_ProjectsDateOnRisingTrend(t *testing.T) {
	p := newTestPredictor(t)

	result, err := p.Predict("Dean_List", PredictionInput{
		Score:   ScoreResult{Score: 70, LevelMultiplier: 1},
		History: dailySeries(fixedNow.AddDate(0, 0, -2), 60, 65, 70),
		Metrics: RawStudentMetrics{CurrentGPA: 3.2},
		Now:     fixedNow,
	})
	require.NoError(t, err)

	assert.Equal(t, 0.75, result.TrajectoryFactor)
	assert.Equal(t, ProjectionEstimated, result.Projection)
	require.NotNil(t, result.EstimatedAchievementDate)
	assert.Equal(t, fixedNow.AddDate(0, 0, 1), *result.EstimatedAchievementDate)
	assert.True(t, result.HasProjection())
}

func TestPredict_GapRoundingToZeroMeansMet(t *testing.T) {
	p := newTestPredictor(t)

	result, err := p.Predict("Summa_Cum_Laude", PredictionInput{
		Score:   ScoreResult{Score: 94.996, LevelMultiplier: 1},
		History: dailySeries(fixedNow.AddDate(0, 0, -2), 90, 92.5, 94.996),
		Metrics: RawStudentMetrics{CurrentGPA: 3.95},
		Now:     fixedNow,
	})
	require.NoError(t, err)

	assert.Zero(t, result.Gap)
	assert.Equal(t, ProjectionMet, result.Projection)
	assert.Nil(t, result.EstimatedAchievementDate)
	assert.False(t, result.HasProjection())
}

func TestPredict_NoProjection(t *testing.T) {
	p := newTestPredictor(t)

	tests := []struct {
		name    string
		history []TrajectoryPoint
	}{
		{"declining", dailySeries(fixedNow.AddDate(0, 0, -2), 74, 72, 70)},
		{"flat", dailySeries(fixedNow.AddDate(0, 0, -2), 70, 70, 70)},
		{"beyond horizon", dailySeries(fixedNow.AddDate(0, 0, -1), 70, 70.005)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := p.Predict("Dean_List", PredictionInput{
				Score:   ScoreResult{Score: 70, LevelMultiplier: 1},
				History: tt.history,
				Metrics: RawStudentMetrics{CurrentGPA: 3.2},
				Now:     fixedNow,
			})
			require.NoError(t, err)
			assert.Equal(t, ProjectionNone, result.Projection)
			assert.Nil(t, result.EstimatedAchievementDate)
		})
	}
}

func TestPredict_Ceilings(t *testing.T) {
	p := newTestPredictor(t)

	metrics := fullMetrics()
	metrics.CurrentGPA = 4.0
	metrics.ProfileCreatedAt = fixedNow.AddDate(-1, 0, 0)
	for i := 0; i < 12; i++ {
		metrics.Sessions = append(metrics.Sessions, MentorshipSession{QualityScore: 9})
	}

	for _, name := range p.Requirements().Names() {
		result, err := p.Predict(name, PredictionInput{
			Score:   ScoreResult{Score: 100, LevelMultiplier: 1},
			History: dailySeries(fixedNow.AddDate(0, 0, -1), 0, 100),
			Metrics: metrics,
			Now:     fixedNow,
		})
		require.NoError(t, err)
		assert.Equal(t, 95.0, result.Probability, name)
		assert.Equal(t, 95.0, result.Confidence, name)
		assert.Equal(t, 1.0, result.TrajectoryFactor, name)
	}
}

func TestPredict_Idempotent(t *testing.T) {
	p := newTestPredictor(t)

	in := PredictionInput{
		StudentID: "stu-3",
		Score:     ScoreResult{Score: 82.4, LevelMultiplier: 1.3, Factors: ExcellenceFactors{70, 60, 50, 40, 30}},
		History:   dailySeries(fixedNow.AddDate(0, 0, -4), 70, 73, 71, 78, 82.4),
		Metrics:   fullMetrics(),
		Now:       fixedNow,
	}

	first, err := p.Predict("Magna_Cum_Laude", in)
	require.NoError(t, err)
	second, err := p.Predict("Magna_Cum_Laude", in)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestPredict_ImprovementFactorsRanked(t *testing.T) {
	p := newTestPredictor(t)

	result, err := p.Predict("Dean_List", PredictionInput{
		Score: ScoreResult{
			Score:           15.5,
			LevelMultiplier: 1,
			Factors:         ExcellenceFactors{0, 20, 40, 10, 30},
		},
		Now: fixedNow,
	})
	require.NoError(t, err)

	require.Len(t, result.ImprovementFactors, 5)
	got := make([]FactorName, 0, 5)
	for _, f := range result.ImprovementFactors {
		got = append(got, f.Factor)
		assert.Equal(t, 75.0, f.Target)
	}
	assert.Equal(t, []FactorName{
		FactorAcademicPerformance,
		FactorResearchEngagement,
		FactorCriticalThinking,
		FactorLeadershipService,
		FactorInnovationCreativity,
	}, got)
	assert.Equal(t, 30.0, result.ImprovementFactors[0].Deficit)
}

func TestPredict_ImprovementFactorsScaleWithLevel(t *testing.T) {
	p := newTestPredictor(t)

	// postdoc multiplier 2.0 lowers the per-factor target to 37.5
	result, err := p.Predict("Dean_List", PredictionInput{
		Score: ScoreResult{
			Score:           100,
			LevelMultiplier: 2.0,
			Factors:         ExcellenceFactors{90, 20, 40, 10, 30},
		},
		Now: fixedNow,
	})
	require.NoError(t, err)

	require.Len(t, result.ImprovementFactors, 3)
	assert.Equal(t, FactorResearchEngagement, result.ImprovementFactors[0].Factor)
	assert.Equal(t, FactorLeadershipService, result.ImprovementFactors[1].Factor)
	assert.Equal(t, FactorInnovationCreativity, result.ImprovementFactors[2].Factor)
}

func TestConfidencePolicy(t *testing.T) {
	policy := DefaultConfidencePolicy()

	tests := []struct {
		name    string
		metrics RawStudentMetrics
		want    float64
	}{
		{"empty profile", RawStudentMetrics{}, 70},
		{
			"partial profile with five sessions",
			RawStudentMetrics{
				CurrentGPA:        3.1,
				AchievementsCount: 1,
				Sessions:          make([]MentorshipSession, 5),
				ProfileCreatedAt:  fixedNow.AddDate(0, 0, -30),
			},
			87,
		},
		{
			"long-standing profile",
			RawStudentMetrics{CurrentGPA: 3.1, ProfileCreatedAt: fixedNow.Add(-90 * 24 * time.Hour)},
			79,
		},
		{
			"complete profile capped",
			func() RawStudentMetrics {
				m := fullMetrics()
				m.Sessions = make([]MentorshipSession, 10)
				m.ProfileCreatedAt = fixedNow.AddDate(-1, 0, 0)
				return m
			}(),
			95,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, policy.Confidence(tt.metrics, fixedNow), 1e-9)
		})
	}
}
