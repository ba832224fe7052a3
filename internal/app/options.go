package app

import (
	"time"

	"github.com/prima-scholar/scholar-hub/config"
	"github.com/prima-scholar/scholar-hub/internal/infrastructure/persistence/postgres"
	"github.com/prima-scholar/scholar-hub/internal/infrastructure/persistence/redis"
)

const memoryCleanupInterval = 5 * time.Minute

func poolOptions(cfg config.DatabaseConfig) postgres.PoolOptions {
	opts := postgres.DefaultPoolOptions()
	if cfg.MaxOpenConns > 0 {
		opts.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		opts.MinConns = min(int32(cfg.MaxIdleConns), opts.MaxConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		opts.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime > 0 {
		opts.MaxConnIdleTime = cfg.ConnMaxIdleTime
	}
	opts.QueryTimeout = cfg.QueryTimeout
	return opts
}

func redisConfig(cfg config.RedisConfig) redis.Config {
	rc := redis.DefaultConfig()
	rc.URL = cfg.URL
	if cfg.Host != "" {
		rc.Host = cfg.Host
	}
	if cfg.Port > 0 {
		rc.Port = cfg.Port
	}
	rc.Password = cfg.Password
	rc.DB = cfg.DB
	if cfg.PoolSize > 0 {
		rc.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		rc.MinIdleConns = cfg.MinIdleConns
	}
	if cfg.DialTimeout > 0 {
		rc.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		rc.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		rc.WriteTimeout = cfg.WriteTimeout
	}
	return rc
}
