package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prima-scholar/scholar-hub/config"
	"github.com/prima-scholar/scholar-hub/internal/domain/excellence"
	"github.com/prima-scholar/scholar-hub/pkg/logger"
)

func TestNewCacheBackend_Disabled(t *testing.T) {
	backend, name, closeFn := NewCacheBackend(context.Background(), config.RedisConfig{Disabled: true}, logger.Nop())
	defer closeFn()

	assert.Equal(t, BackendMemory, name)
	require.NoError(t, backend.Ping(context.Background()))
}

func TestNewCacheBackend_FallsBackWhenUnreachable(t *testing.T) {
	cfg := config.RedisConfig{Host: "127.0.0.1", Port: 1, DialTimeout: 50 * time.Millisecond}

	backend, name, closeFn := NewCacheBackend(context.Background(), cfg, logger.Nop())
	defer closeFn()

	assert.Equal(t, BackendMemory, name)

	entry := excellence.CacheEntry{StudentID: "stu-1", Distinction: "Dean_List", ExpiresAt: time.Now().Add(time.Minute)}
	require.NoError(t, backend.Set(context.Background(), entry, time.Minute))
	_, ok, err := backend.Get(context.Background(), "stu-1", "Dean_List")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPoolOptions(t *testing.T) {
	opts := poolOptions(config.DatabaseConfig{
		MaxOpenConns:    4,
		MaxIdleConns:    10,
		ConnMaxLifetime: time.Minute,
		QueryTimeout:    3 * time.Second,
	})

	assert.Equal(t, int32(4), opts.MaxConns)
	assert.Equal(t, int32(4), opts.MinConns)
	assert.Equal(t, time.Minute, opts.MaxConnLifetime)
	assert.Equal(t, 30*time.Minute, opts.MaxConnIdleTime)
	assert.Equal(t, 3*time.Second, opts.QueryTimeout)
}

func TestRedisConfig(t *testing.T) {
	rc := redisConfig(config.RedisConfig{Host: "cache", Port: 6380, DB: 2})

	assert.Equal(t, "cache:6380", rc.Addr())
	assert.Equal(t, 2, rc.DB)
	assert.Equal(t, 10, rc.PoolSize)
	assert.Equal(t, 1, rc.MaxRetries)
}

func TestNewLogger_FileOutput(t *testing.T) {
	path := t.TempDir() + "/engine.log"
	log := NewLogger(config.ObservabilityConfig{
		LogLevel:           "debug",
		LogFormat:          "text",
		FileLoggingEnabled: true,
		LogFile:            path,
	})
	log.Info("hello")
	_ = log.Sync()

	assert.FileExists(t, path)
}
