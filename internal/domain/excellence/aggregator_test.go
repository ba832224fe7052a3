package excellence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prima-scholar/scholar-hub/internal/domain/shared"
)

var fixedNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func TestFactorWeights_DefaultsSumToOne(t *testing.T) {
	w := DefaultFactorWeights()

	assert.InDelta(t, 1.0, w.Sum(), 1e-12)
	assert.NoError(t, w.Validate())
}

func TestFactorWeights_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*FactorWeights)
		wantErr bool
	}{
		{"defaults", func(*FactorWeights) {}, false},
		{"sum above one", func(w *FactorWeights) { w.AcademicPerformance = 0.5 }, true},
		{"sum below one", func(w *FactorWeights) { w.InnovationCreativity = 0 }, true},
		{"negative weight", func(w *FactorWeights) {
			w.InnovationCreativity = -0.05
			w.AcademicPerformance = 0.50
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := DefaultFactorWeights()
			tt.mutate(&w)
			err := w.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.ErrorIs(t, err, shared.ErrInvalidConfig)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewScoreAggregator_RejectsInvalidConfig(t *testing.T) {
	bad := DefaultFactorWeights()
	bad.ResearchEngagement = 0.9

	_, err := NewScoreAggregator(bad, DefaultLevelMultipliers())
	assert.True(t, shared.IsValidation(err))

	_, err = NewScoreAggregator(DefaultFactorWeights(), LevelMultipliers{LevelGraduate: 0})
	assert.True(t, shared.IsValidation(err))
}

func TestLevelMultipliers_For(t *testing.T) {
	lm := DefaultLevelMultipliers()

	assert.Equal(t, 1.0, lm.For(LevelUndergraduate))
	assert.Equal(t, 1.3, lm.For(LevelGraduate))
	assert.Equal(t, 1.6, lm.For(LevelDoctoral))
	assert.Equal(t, 2.0, lm.For(LevelPostdoc))
	assert.Equal(t, 1.0, lm.For("high_school"))
	assert.Equal(t, 1.0, lm.For(""))
}

func TestAggregate(t *testing.T) {
	agg, err := NewScoreAggregator(DefaultFactorWeights(), DefaultLevelMultipliers())
	require.NoError(t, err)

	baseline := ExcellenceFactors{
		AcademicPerformance:  0,
		ResearchEngagement:   20,
		CriticalThinking:     40,
		LeadershipService:    10,
		InnovationCreativity: 30,
	}

	t.Run("weighted sum", func(t *testing.T) {
		r := agg.Aggregate(baseline, LevelUndergraduate, fixedNow)
		assert.InDelta(t, 15.5, r.Score, 1e-9)
		assert.Equal(t, 1.0, r.LevelMultiplier)
		assert.Equal(t, baseline, r.Factors)
		assert.Equal(t, fixedNow, r.ComputedAt)
	})

	t.Run("level multiplier", func(t *testing.T) {
		r := agg.Aggregate(baseline, LevelDoctoral, fixedNow)
		assert.InDelta(t, 15.5*1.6, r.Score, 1e-9)
		assert.Equal(t, LevelDoctoral, r.Level)
	})

	t.Run("capped at 100", func(t *testing.T) {
		f := ExcellenceFactors{100, 90, 67, 60, 65}
		assert.InDelta(t, 85.15, agg.Aggregate(f, LevelUndergraduate, fixedNow).Score, 1e-9)
		assert.Equal(t, 100.0, agg.Aggregate(f, LevelGraduate, fixedNow).Score)
	})

	t.Run("unknown level uses 1.0", func(t *testing.T) {
		r := agg.Aggregate(baseline, "visiting", fixedNow)
		assert.InDelta(t, 15.5, r.Score, 1e-9)
		assert.Equal(t, DefaultLevelMultiplier, r.LevelMultiplier)
	})
}

func TestAggregate_ScoreBounded(t *testing.T) {
	agg, err := NewScoreAggregator(DefaultFactorWeights(), DefaultLevelMultipliers())
	require.NoError(t, err)
	fc := NewFactorCalculator(DefaultFactorCoefficients())

	levels := []AcademicLevel{LevelUndergraduate, LevelGraduate, LevelDoctoral, LevelPostdoc, "unknown"}
	for _, level := range levels {
		for _, m := range []RawStudentMetrics{{}, fullMetrics()} {
			r := agg.Aggregate(fc.ComputeFactors(m), level, fixedNow)
			assert.GreaterOrEqual(t, r.Score, 0.0)
			assert.LessOrEqual(t, r.Score, 100.0)
		}
	}
}
