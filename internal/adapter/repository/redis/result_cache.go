package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/V4T54L/event-analytics/internal/adapter/metrics"
	"github.com/V4T54L/event-analytics/internal/domain"
)

// errCallerGone marks a command that failed because the caller's own context
// ended. The breaker does not count it against Redis.
var errCallerGone = errors.New("caller context done")

// Connection states. The zero value is unattempted; disabled is terminal.
const (
	stateUnattempted int32 = iota
	stateConnecting
	stateConnected
	stateDisabled
)

// ResultCache implements domain.ResultCache on Redis string keys.
//
// The connection is established lazily by the first caller. Callers that
// arrive while the ping is in flight get a miss. If the ping fails the cache
// stays disabled for the life of the process. Once connected, commands go
// through a circuit breaker so an outage turns into immediate misses.
type ResultCache struct {
	client    *redis.Client
	logger    *slog.Logger
	metrics   *metrics.Metrics
	breaker   *gobreaker.CircuitBreaker[[]byte]
	opTimeout time.Duration
	state     atomic.Int32
}

// NewResultCache wraps client. No I/O happens until the first call.
// m may be nil.
func NewResultCache(client *redis.Client, logger *slog.Logger, m *metrics.Metrics, opTimeout time.Duration) *ResultCache {
	c := &ResultCache{
		client:    client,
		logger:    logger.With("component", "redis_result_cache"),
		metrics:   m,
		opTimeout: opTimeout,
	}

	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "redis-result-cache",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redis.Nil) || errors.Is(err, errCallerGone)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				c.logger.Warn("redis circuit opened, serving misses", "from", from.String())
				return
			}
			c.logger.Info("redis circuit state changed", "from", from.String(), "to", to.String())
		},
	})
	c.setState(stateUnattempted)
	return c
}

// Get returns the cached value for key. Every failure is reported as a miss.
func (c *ResultCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if !c.ready(ctx) {
		c.count("miss")
		return nil, false
	}

	val, err := c.execute(ctx, func(opCtx context.Context) ([]byte, error) {
		return c.client.Get(opCtx, key).Bytes()
	})
	switch {
	case err == nil:
		c.count("hit")
		return val, true
	case errors.Is(err, redis.Nil):
		c.count("miss")
	default:
		c.count("error")
		c.logger.Debug("cache get failed", "key", key, "error", err)
	}
	return nil, false
}

// Put stores value under key with the given ttl.
func (c *ResultCache) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !c.ready(ctx) {
		return domain.ErrCacheUnavailable
	}
	_, err := c.execute(ctx, func(opCtx context.Context) ([]byte, error) {
		return nil, c.client.Set(opCtx, key, value, ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("cache put: %w: %v", domain.ErrCacheUnavailable, err)
	}
	return nil
}

// Invalidate removes key. A missing key is not an error.
func (c *ResultCache) Invalidate(ctx context.Context, key string) error {
	if !c.ready(ctx) {
		return domain.ErrCacheUnavailable
	}
	_, err := c.execute(ctx, func(opCtx context.Context) ([]byte, error) {
		return nil, c.client.Del(opCtx, key).Err()
	})
	if err != nil {
		return fmt.Errorf("cache invalidate: %w: %v", domain.ErrCacheUnavailable, err)
	}
	return nil
}

// execute runs op through the breaker with the per-operation timeout. Failures
// caused by the caller's context ending are reported as errCallerGone; a
// timeout of the operation itself still counts as a Redis failure.
func (c *ResultCache) execute(ctx context.Context, op func(opCtx context.Context) ([]byte, error)) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", errCallerGone, err)
	}
	return c.breaker.Execute(func() ([]byte, error) {
		opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
		defer cancel()
		val, err := op(opCtx)
		if err != nil && ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", errCallerGone, err)
		}
		return val, err
	})
}

// Close releases the underlying client.
func (c *ResultCache) Close() error {
	return c.client.Close()
}

// ready drives the connection state machine. Only the caller that wins the
// CAS out of unattempted performs I/O; no lock is held while it does.
func (c *ResultCache) ready(ctx context.Context) bool {
	switch c.state.Load() {
	case stateConnected:
		return true
	case stateConnecting, stateDisabled:
		return false
	}
	if !c.state.CompareAndSwap(stateUnattempted, stateConnecting) {
		return c.state.Load() == stateConnected
	}
	c.setState(stateConnecting)

	// The outcome is permanent, so a cancelled request must not decide it.
	pingCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opTimeout)
	defer cancel()

	if err := c.client.Ping(pingCtx).Err(); err != nil {
		c.setState(stateDisabled)
		level := slog.LevelWarn
		if !isNetworkError(err) {
			level = slog.LevelError
		}
		c.logger.Log(ctx, level, "redis unreachable, result caching disabled", "addr", c.client.Options().Addr, "error", err)
		return false
	}

	c.setState(stateConnected)
	c.logger.Info("connected to redis", "addr", c.client.Options().Addr)
	return true
}

func (c *ResultCache) setState(s int32) {
	c.state.Store(s)
	if c.metrics != nil {
		c.metrics.CacheState.Set(float64(s))
	}
}

func (c *ResultCache) count(result string) {
	if c.metrics != nil {
		c.metrics.CacheRequests.WithLabelValues(result).Inc()
	}
}

func isNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, redis.ErrClosed) || errors.Is(err, context.DeadlineExceeded)
}

// NopCache is the domain.ResultCache used when no Redis address is configured.
type NopCache struct{}

func (NopCache) Get(context.Context, string) ([]byte, bool) { return nil, false }

func (NopCache) Put(context.Context, string, []byte, time.Duration) error {
	return domain.ErrCacheUnavailable
}

func (NopCache) Invalidate(context.Context, string) error { return domain.ErrCacheUnavailable }
