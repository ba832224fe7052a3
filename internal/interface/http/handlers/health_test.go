package handlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(context.Context) error { return nil }

func failing(msg string) HealthCheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func newChecker() *CompositeHealthChecker {
	return NewCompositeHealthCheckerWithClock("test", fakeclock.NewFakeClock(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)))
}

func TestCheck_NoChecks(t *testing.T) {
	status := newChecker().Check(context.Background())

	assert.True(t, status.Healthy)
	assert.True(t, status.Ready)
	assert.Equal(t, "No health checks registered", status.Message)
}

func TestCheck_AllPass(t *testing.T) {
	c := newChecker()
	c.AddCheck("database", ok, Critical)
	c.AddCheck("prediction_cache", ok, Optional)

	status := c.Check(context.Background())

	assert.True(t, status.Healthy)
	assert.False(t, status.Degraded)
	assert.Len(t, status.Checks, 2)
	assert.Equal(t, "test", status.Version)
	assert.Equal(t, "All checks passed", status.Message)
}

func TestCheck_OptionalFailureDegrades(t *testing.T) {
	c := newChecker()
	c.AddCheck("database", ok, Critical)
	c.AddCheck("prediction_cache", failing("cache: unavailable"), Optional)

	status := c.Check(context.Background())

	assert.True(t, status.Healthy)
	assert.True(t, status.Ready)
	assert.True(t, status.Degraded)
	assert.Equal(t, "Running degraded: prediction_cache", status.Message)
	require.Contains(t, status.Checks, "prediction_cache")
	assert.True(t, status.Checks["prediction_cache"].Optional)
	assert.Equal(t, "cache: unavailable", status.Checks["prediction_cache"].Message)
}

func TestCheck_CriticalFailure(t *testing.T) {
	c := newChecker()
	c.AddCheck("database", failing("connection refused"), Critical)
	c.AddCheck("prediction_cache", failing("down"), Optional)

	status := c.Check(context.Background())

	assert.False(t, status.Healthy)
	assert.False(t, status.Ready)
	assert.True(t, status.Degraded)
	assert.Equal(t, "Critical checks failed: database", status.Message)
}

func TestCheck_Timeout(t *testing.T) {
	c := newChecker()
	c.SetTimeout(10 * time.Millisecond)
	c.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, Critical)

	status := c.Check(context.Background())

	assert.False(t, status.Healthy)
	assert.Equal(t, context.DeadlineExceeded.Error(), status.Checks["slow"].Message)
}

func TestRemoveCheck(t *testing.T) {
	c := newChecker()
	c.AddCheck("database", failing("down"), Critical)
	c.RemoveCheck("database")

	assert.True(t, c.Check(context.Background()).Healthy)
}

type stubCache struct{ err error }

func (s stubCache) Available(context.Context) error { return s.err }
func (s stubCache) Ping(context.Context) error      { return s.err }

func TestPredefinedChecks(t *testing.T) {
	down := errors.New("down")

	assert.NoError(t, NewCacheCheck(stubCache{})(context.Background()))
	assert.ErrorIs(t, NewCacheCheck(stubCache{err: down})(context.Background()), down)
	assert.ErrorIs(t, NewPingCheck(stubCache{err: down})(context.Background()), down)
}
