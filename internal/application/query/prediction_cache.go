// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"time"

	"code.cloudfoundry.org/clock"
	"golang.org/x/sync/singleflight"

	"github.com/prima-scholar/scholar-hub/internal/domain/excellence"
	"github.com/prima-scholar/scholar-hub/internal/domain/shared"
	"github.com/prima-scholar/scholar-hub/pkg/circuitbreaker"
	"github.com/prima-scholar/scholar-hub/pkg/logger"
	"github.com/prima-scholar/scholar-hub/pkg/metrics"
)

// ══════════════════════════════════════════════════════════════════════════════
// PREDICTION CACHE
// TTL-кэш перед предиктором. Кэш - только оптимизация: любая ошибка
// хранилища логируется и запрос уходит на вычисление.
// ══════════════════════════════════════════════════════════════════════════════

// ComputeFunc вычисляет свежий прогноз при промахе кэша.
type ComputeFunc func(ctx context.Context) (excellence.PredictionResult, error)

// PredictionCache - декоратор get-or-compute над PredictionCacheBackend.
type PredictionCache struct {
	backend       excellence.PredictionCacheBackend
	backendName   string
	breaker       *circuitbreaker.CircuitBreaker
	dedup         bool
	flightTimeout time.Duration
	group         singleflight.Group

	clock    clock.Clock
	log      *logger.Logger
	recorder *metrics.Recorder
}

// PredictionCacheOption настраивает PredictionCache.
type PredictionCacheOption func(*PredictionCache)

// WithBreaker ставит circuit breaker перед хранилищем.
func WithBreaker(cb *circuitbreaker.CircuitBreaker) PredictionCacheOption {
	return func(c *PredictionCache) { c.breaker = cb }
}

// WithSingleflight включает схлопывание одновременных промахов по одному ключу.
func WithSingleflight(enabled bool) PredictionCacheOption {
	return func(c *PredictionCache) { c.dedup = enabled }
}

// WithFlightTimeout ограничивает общую загрузку при схлопывании промахов.
// Ноль - без ограничения.
func WithFlightTimeout(d time.Duration) PredictionCacheOption {
	return func(c *PredictionCache) { c.flightTimeout = d }
}

// WithBackendName задаёт имя хранилища для логов.
func WithBackendName(name string) PredictionCacheOption {
	return func(c *PredictionCache) { c.backendName = name }
}

// WithCacheClock подменяет часы.
func WithCacheClock(clk clock.Clock) PredictionCacheOption {
	return func(c *PredictionCache) { c.clock = clk }
}

// WithCacheLogger задаёт логгер.
func WithCacheLogger(l *logger.Logger) PredictionCacheOption {
	return func(c *PredictionCache) { c.log = l }
}

// WithCacheRecorder задаёт сборщик метрик.
func WithCacheRecorder(r *metrics.Recorder) PredictionCacheOption {
	return func(c *PredictionCache) { c.recorder = r }
}

// NewPredictionCache создаёт кэш. backend может быть nil - тогда каждый
// запрос вычисляется заново.
func NewPredictionCache(backend excellence.PredictionCacheBackend, opts ...PredictionCacheOption) *PredictionCache {
	c := &PredictionCache{
		backend:     backend,
		backendName: "none",
		clock:       clock.NewClock(),
		log:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With(logger.Component("prediction_cache"), logger.CacheBackend(c.backendName))
	return c
}

func cacheKey(studentID, distinction string) string {
	return studentID + "\x00" + distinction
}

// GetOrCompute возвращает закэшированный прогноз, если он ещё не истёк,
// иначе вызывает compute и сохраняет результат на ttl.
// Второе значение сообщает, пришёл ли результат из кэша.
// Ошибки compute возвращаются как есть и не кэшируются.
func (c *PredictionCache) GetOrCompute(
	ctx context.Context,
	studentID, distinction string,
	compute ComputeFunc,
	ttl time.Duration,
) (excellence.PredictionResult, bool, error) {
	if entry, ok := c.lookup(ctx, studentID, distinction); ok {
		return entry.Value, true, nil
	}

	load := func(ctx context.Context) (excellence.PredictionResult, error) {
		value, err := compute(ctx)
		if err != nil {
			return excellence.PredictionResult{}, err
		}
		c.store(ctx, studentID, distinction, value, ttl)
		return value, nil
	}

	if !c.dedup {
		value, err := load(ctx)
		return value, false, err
	}

	// Общая загрузка не наследует отмену первого вызывающего: ожидающие
	// получают результат или ошибку своего собственного контекста.
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(cacheKey(studentID, distinction), func() (any, error) {
		if c.flightTimeout <= 0 {
			return load(detached)
		}
		loadCtx, cancel := context.WithTimeout(detached, c.flightTimeout)
		defer cancel()
		return load(loadCtx)
	})

	select {
	case <-ctx.Done():
		return excellence.PredictionResult{}, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return excellence.PredictionResult{}, false, res.Err
		}
		return res.Val.(excellence.PredictionResult), false, nil
	}
}

// Available проверяет доступность хранилища. Используется только в health-отчётах.
func (c *PredictionCache) Available(ctx context.Context) error {
	if c.backend == nil {
		return shared.NewDomainError("cache", "Ping", shared.ErrCacheUnavailable, "no cache backend configured")
	}
	if err := c.backend.Ping(ctx); err != nil {
		return shared.WrapError("cache", "Ping", shared.ErrCacheUnavailable, "cache backend unreachable", err)
	}
	return nil
}

// BackendName возвращает имя хранилища.
func (c *PredictionCache) BackendName() string {
	return c.backendName
}

func (c *PredictionCache) lookup(ctx context.Context, studentID, distinction string) (excellence.CacheEntry, bool) {
	if c.backend == nil {
		c.recorder.CacheResult(metrics.CacheBypass)
		return excellence.CacheEntry{}, false
	}

	var (
		entry excellence.CacheEntry
		found bool
	)
	err := c.guard(ctx, func(ctx context.Context) error {
		var err error
		entry, found, err = c.backend.Get(ctx, studentID, distinction)
		return err
	})
	if err != nil {
		c.degrade("get", studentID, distinction, err)
		return excellence.CacheEntry{}, false
	}

	if !found || entry.Expired(c.clock.Now()) {
		c.recorder.CacheResult(metrics.CacheMiss)
		return excellence.CacheEntry{}, false
	}

	c.recorder.CacheResult(metrics.CacheHit)
	return entry, true
}

func (c *PredictionCache) store(ctx context.Context, studentID, distinction string, value excellence.PredictionResult, ttl time.Duration) {
	if c.backend == nil || ttl <= 0 {
		return
	}

	entry := excellence.CacheEntry{
		StudentID:   studentID,
		Distinction: distinction,
		Value:       value,
		ExpiresAt:   c.clock.Now().Add(ttl),
	}
	err := c.guard(ctx, func(ctx context.Context) error {
		return c.backend.Set(ctx, entry, ttl)
	})
	if err != nil {
		c.recorder.CacheResult(metrics.CacheStoreFailed)
		c.degrade("set", studentID, distinction, err)
	}
}

func (c *PredictionCache) guard(ctx context.Context, fn func(context.Context) error) error {
	if c.breaker == nil {
		return fn(ctx)
	}
	return c.breaker.Execute(ctx, fn)
}

// degrade logs a backend failure. Requests continue without the cache.
func (c *PredictionCache) degrade(op, studentID, distinction string, err error) {
	if circuitbreaker.IsRejection(err) {
		c.recorder.CacheResult(metrics.CacheBypass)
		c.log.Debug("cache bypassed, breaker open",
			logger.Operation(op),
			logger.StudentID(studentID),
			logger.Distinction(distinction),
		)
		return
	}

	if op == "get" {
		c.recorder.CacheResult(metrics.CacheError)
	}
	c.log.Warn("cache backend unavailable",
		logger.Operation(op),
		logger.StudentID(studentID),
		logger.Distinction(distinction),
		logger.Err(shared.WrapError("cache", op, shared.ErrCacheUnavailable, "backend call failed", err)),
	)
}
