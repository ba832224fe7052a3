package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prima-scholar/scholar-hub/internal/domain/excellence"
	"github.com/prima-scholar/scholar-hub/internal/domain/shared"
	"github.com/prima-scholar/scholar-hub/pkg/circuitbreaker"
	"github.com/prima-scholar/scholar-hub/pkg/metrics"
)

var fixedNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type fakeBackend struct {
	mu      sync.Mutex
	entries map[string]excellence.CacheEntry
	getErr  error
	setErr  error
	pingErr error
	gets    int
	sets    int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{entries: make(map[string]excellence.CacheEntry)}
}

func (f *fakeBackend) Get(_ context.Context, studentID, distinction string) (excellence.CacheEntry, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return excellence.CacheEntry{}, false, f.getErr
	}
	e, ok := f.entries[cacheKey(studentID, distinction)]
	return e, ok, nil
}

func (f *fakeBackend) Set(_ context.Context, e excellence.CacheEntry, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	if f.setErr != nil {
		return f.setErr
	}
	f.entries[cacheKey(e.StudentID, e.Distinction)] = e
	return nil
}

func (f *fakeBackend) Ping(context.Context) error { return f.pingErr }

type countingCompute struct {
	calls atomic.Int32
	value excellence.PredictionResult
	err   error
}

func (c *countingCompute) fn(context.Context) (excellence.PredictionResult, error) {
	n := c.calls.Add(1)
	if c.err != nil {
		return excellence.PredictionResult{}, c.err
	}
	v := c.value
	v.Probability = float64(n)
	return v, nil
}

func TestPredictionCache_HitReturnsCachedValueUnchanged(t *testing.T) {
	clk := fakeclock.NewFakeClock(fixedNow)
	rec := metrics.New()
	cache := NewPredictionCache(newFakeBackend(), WithCacheClock(clk), WithCacheRecorder(rec))
	compute := &countingCompute{value: excellence.PredictionResult{Distinction: "Dean_List"}}
	ctx := context.Background()

	first, cached, err := cache.GetOrCompute(ctx, "stu-1", "Dean_List", compute.fn, time.Minute)
	require.NoError(t, err)
	assert.False(t, cached)

	second, cached, err := cache.GetOrCompute(ctx, "stu-1", "Dean_List", compute.fn, time.Minute)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), compute.calls.Load())

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.CacheResults(metrics.CacheHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.CacheResults(metrics.CacheMiss)))
}

func TestPredictionCache_ExpiryIsMiss(t *testing.T) {
	clk := fakeclock.NewFakeClock(fixedNow)
	backend := newFakeBackend()
	cache := NewPredictionCache(backend, WithCacheClock(clk))
	compute := &countingCompute{}
	ctx := context.Background()

	_, _, err := cache.GetOrCompute(ctx, "stu-1", "Dean_List", compute.fn, time.Minute)
	require.NoError(t, err)

	clk.Increment(59 * time.Second)
	_, cached, _ := cache.GetOrCompute(ctx, "stu-1", "Dean_List", compute.fn, time.Minute)
	assert.True(t, cached)

	clk.Increment(time.Second)
	v, cached, err := cache.GetOrCompute(ctx, "stu-1", "Dean_List", compute.fn, time.Minute)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2.0, v.Probability)
}

func TestPredictionCache_KeysAreIndependent(t *testing.T) {
	cache := NewPredictionCache(newFakeBackend(), WithCacheClock(fakeclock.NewFakeClock(fixedNow)))
	compute := &countingCompute{}
	ctx := context.Background()

	_, _, _ = cache.GetOrCompute(ctx, "stu-1", "Dean_List", compute.fn, time.Minute)
	_, cached, _ := cache.GetOrCompute(ctx, "stu-1", "Summa_Cum_Laude", compute.fn, time.Minute)
	assert.False(t, cached)
	_, cached, _ = cache.GetOrCompute(ctx, "stu-2", "Dean_List", compute.fn, time.Minute)
	assert.False(t, cached)

	assert.Equal(t, int32(3), compute.calls.Load())
}

func TestPredictionCache_ZeroTTLNeverStores(t *testing.T) {
	backend := newFakeBackend()
	cache := NewPredictionCache(backend)
	compute := &countingCompute{}

	for i := 0; i < 3; i++ {
		_, cached, err := cache.GetOrCompute(context.Background(), "stu-1", "Dean_List", compute.fn, 0)
		require.NoError(t, err)
		assert.False(t, cached)
	}
	assert.Zero(t, backend.sets)
	assert.Equal(t, int32(3), compute.calls.Load())
}

func TestPredictionCache_ComputeErrorNotCached(t *testing.T) {
	backend := newFakeBackend()
	cache := NewPredictionCache(backend)
	compute := &countingCompute{err: shared.ErrStudentNotFound}

	_, _, err := cache.GetOrCompute(context.Background(), "ghost", "Dean_List", compute.fn, time.Minute)

	assert.True(t, shared.IsNotFound(err))
	assert.Zero(t, backend.sets)
}

func TestPredictionCache_BackendFailureDegradesToCompute(t *testing.T) {
	backend := newFakeBackend()
	backend.getErr = errors.New("dial tcp: connection refused")
	backend.setErr = errors.New("dial tcp: connection refused")
	rec := metrics.New()
	cache := NewPredictionCache(backend, WithCacheRecorder(rec))
	compute := &countingCompute{}

	v, cached, err := cache.GetOrCompute(context.Background(), "stu-1", "Dean_List", compute.fn, time.Minute)

	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 1.0, v.Probability)
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.CacheResults(metrics.CacheError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.CacheResults(metrics.CacheStoreFailed)))
}

func TestPredictionCache_BreakerSkipsFailingBackend(t *testing.T) {
	clk := fakeclock.NewFakeClock(fixedNow)
	backend := newFakeBackend()
	backend.getErr = errors.New("timeout")
	backend.setErr = errors.New("timeout")
	breaker := circuitbreaker.CacheBreaker(2, 30*time.Second, nil, circuitbreaker.WithClock(clk))
	cache := NewPredictionCache(backend, WithBreaker(breaker), WithCacheClock(clk))
	compute := &countingCompute{}
	ctx := context.Background()

	// get + set failures open the breaker on the first request
	_, _, err := cache.GetOrCompute(ctx, "stu-1", "Dean_List", compute.fn, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, circuitbreaker.StateOpen, breaker.State())

	callsBefore := backend.gets
	_, _, err = cache.GetOrCompute(ctx, "stu-1", "Dean_List", compute.fn, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, callsBefore, backend.gets, "open breaker must not touch the backend")

	backend.getErr, backend.setErr = nil, nil
	clk.Increment(30 * time.Second)
	_, _, err = cache.GetOrCompute(ctx, "stu-1", "Dean_List", compute.fn, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, circuitbreaker.StateClosed, breaker.State())
	assert.Equal(t, 2, backend.sets)
	assert.Len(t, backend.entries, 1)
}

func TestPredictionCache_NilBackend(t *testing.T) {
	cache := NewPredictionCache(nil)
	compute := &countingCompute{}

	_, cached, err := cache.GetOrCompute(context.Background(), "stu-1", "Dean_List", compute.fn, time.Minute)
	require.NoError(t, err)
	assert.False(t, cached)

	assert.ErrorIs(t, cache.Available(context.Background()), shared.ErrCacheUnavailable)
}

func TestPredictionCache_Available(t *testing.T) {
	backend := newFakeBackend()
	cache := NewPredictionCache(backend, WithBackendName("memory"))

	assert.NoError(t, cache.Available(context.Background()))
	assert.Equal(t, "memory", cache.BackendName())

	backend.pingErr = errors.New("down")
	assert.ErrorIs(t, cache.Available(context.Background()), shared.ErrCacheUnavailable)
}

func TestPredictionCache_SingleflightCollapsesConcurrentMisses(t *testing.T) {
	cache := NewPredictionCache(newFakeBackend(), WithSingleflight(true))

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	compute := func(context.Context) (excellence.PredictionResult, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return excellence.PredictionResult{Probability: 42}, nil
	}

	const workers = 8
	var wg sync.WaitGroup
	results := make([]float64, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _, err := cache.GetOrCompute(context.Background(), "stu-1", "Dean_List", compute, time.Minute)
			assert.NoError(t, err)
			results[i] = v.Probability
		}(i)
	}

	<-started
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, 42.0, r)
	}
}

func TestPredictionCache_SingleflightFollowerOutlivesCancelledLeader(t *testing.T) {
	cache := NewPredictionCache(newFakeBackend(), WithSingleflight(true))

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	compute := func(ctx context.Context) (excellence.PredictionResult, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		if err := ctx.Err(); err != nil {
			return excellence.PredictionResult{}, err
		}
		return excellence.PredictionResult{Probability: 42}, nil
	}

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, _, err := cache.GetOrCompute(leaderCtx, "stu-1", "Dean_List", compute, time.Minute)
		leaderErr <- err
	}()
	<-started

	type outcome struct {
		value excellence.PredictionResult
		err   error
	}
	follower := make(chan outcome, 1)
	go func() {
		v, _, err := cache.GetOrCompute(context.Background(), "stu-1", "Dean_List", compute, time.Minute)
		follower <- outcome{v, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelLeader()
	assert.ErrorIs(t, <-leaderErr, context.Canceled)

	close(release)
	got := <-follower
	require.NoError(t, got.err)
	assert.Equal(t, 42.0, got.value.Probability)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPredictionCache_FlightTimeoutBoundsSharedLoad(t *testing.T) {
	cache := NewPredictionCache(newFakeBackend(), WithSingleflight(true), WithFlightTimeout(20*time.Millisecond))
	compute := func(ctx context.Context) (excellence.PredictionResult, error) {
		<-ctx.Done()
		return excellence.PredictionResult{}, ctx.Err()
	}

	_, _, err := cache.GetOrCompute(context.Background(), "stu-1", "Dean_List", compute, time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPredictionCache_StoredEntryPastExpiryIsMiss(t *testing.T) {
	clk := fakeclock.NewFakeClock(fixedNow)
	backend := newFakeBackend()
	backend.entries[cacheKey("stu-1", "Dean_List")] = excellence.CacheEntry{
		StudentID:   "stu-1",
		Distinction: "Dean_List",
		Value:       excellence.PredictionResult{Distinction: "Dean_List", Probability: 99},
		ExpiresAt:   fixedNow.Add(-time.Second),
	}
	rec := metrics.New()
	cache := NewPredictionCache(backend, WithCacheClock(clk), WithCacheRecorder(rec))
	compute := &countingCompute{}

	v, cached, err := cache.GetOrCompute(context.Background(), "stu-1", "Dean_List", compute.fn, time.Minute)

	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 1.0, v.Probability)
	assert.Equal(t, int32(1), compute.calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.CacheResults(metrics.CacheMiss)))
	assert.Equal(t, fixedNow.Add(time.Minute), backend.entries[cacheKey("stu-1", "Dean_List")].ExpiresAt)
}
