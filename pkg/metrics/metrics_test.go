package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counters(t *testing.T) {
	r := New()

	r.ScoreComputed(72.5, 15*time.Millisecond)
	r.ScoreComputed(81, 20*time.Millisecond)
	r.PredictionServed("Dean_List", 78.3, false)
	r.PredictionServed("Dean_List", 78.3, true)
	r.CacheResult(CacheHit)
	r.CacheResult(CacheMiss)
	r.CacheResult(CacheMiss)
	r.PersistFailed("persist_score")
	r.JobFinished("recalculate_scores", true, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.scoresComputed))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.predictions.WithLabelValues("Dean_List", "cache")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.predictions.WithLabelValues("Dean_List", "computed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.cacheResults.WithLabelValues(CacheMiss)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.persistFailures.WithLabelValues("persist_score")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.jobRuns.WithLabelValues("recalculate_scores", "success")))
}

func TestRecorder_SharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(WithRegistry(reg), WithNamespace("test"))
	r.CacheResult(CacheError)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "test_cache_results_total")
	assert.Same(t, reg, r.Registry())
}

func TestRecorder_NilSafe(t *testing.T) {
	var r *Recorder

	assert.NotPanics(t, func() {
		r.ScoreComputed(50, time.Millisecond)
		r.PredictionServed("Dean_List", 10, true)
		r.CacheResult(CacheHit)
		r.PersistFailed("persist_prediction")
		r.JobFinished("prune_trajectory", false, time.Millisecond)
	})
	assert.Nil(t, r.Registry())
}
