// Package cache implements cache-aside reads and writes over the shared KV
// store, with protection against penetration (absence markers) and breakdown
// (a distributed mutex, or logical expiry with asynchronous rebuild).
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/seckill-cache/internal/core/lock"
	"github.com/rl1809/seckill-cache/internal/metrics"
	"github.com/rl1809/seckill-cache/internal/port"
	"github.com/rl1809/seckill-cache/internal/workerpool"
)

// Strategy names a read path. It is used in config and as a metric label.
type Strategy string

const (
	StrategyPassThrough   Strategy = "pass_through"
	StrategyMutex         Strategy = "mutex"
	StrategyLogicalExpire Strategy = "logical_expire"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyPassThrough, StrategyMutex, StrategyLogicalExpire:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("cache: unknown strategy %q", s)
	}
}

var (
	// ErrLockTimeout is transient; the caller may retry.
	ErrLockTimeout = errors.New("cache: rebuild lock not acquired")

	// ErrStoreUnavailable wraps every KV failure on a read or write path.
	ErrStoreUnavailable = port.ErrStoreUnavailable
)

type Options struct {
	// NullTTL is the lifetime of an absence marker. It is capped at half the
	// entry TTL when it is not strictly shorter.
	NullTTL        time.Duration
	LockTTL   time.Duration
	LockRetry lock.RetryPolicy
	// RebuildTimeout bounds one background rebuild. It must be shorter than
	// LockTTL so the rebuild lock outlives the load.
	RebuildTimeout time.Duration

	Now     func() time.Time
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

func DefaultOptions() Options {
	return Options{
		NullTTL:        2 * time.Minute,
		LockTTL:        10 * time.Second,
		LockRetry:      lock.DefaultRetryPolicy(),
		RebuildTimeout: 5 * time.Second,
		Now:            time.Now,
	}
}

// Client is the byte-level half of the cache. Typed wraps it with a codec.
type Client struct {
	kv      port.KVStore
	locker  *lock.Locker
	pool    *workerpool.WorkerPool
	ownPool bool

	opts    Options
	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewClient builds a client. Zero option fields take their defaults. When pool
// is nil the client starts and owns a rebuild pool, stopped by Close.
func NewClient(kv port.KVStore, pool *workerpool.WorkerPool, opts Options) *Client {
	def := DefaultOptions()
	if opts.NullTTL <= 0 {
		opts.NullTTL = def.NullTTL
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = def.LockTTL
	}
	if opts.LockRetry == (lock.RetryPolicy{}) {
		opts.LockRetry = def.LockRetry
	}
	if opts.RebuildTimeout <= 0 {
		opts.RebuildTimeout = def.RebuildTimeout
	}
	if opts.RebuildTimeout >= opts.LockTTL {
		opts.RebuildTimeout = opts.LockTTL / 2
	}
	if opts.Now == nil {
		opts.Now = def.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	c := &Client{
		kv:      kv,
		locker:  lock.NewLocker(kv),
		pool:    pool,
		opts:    opts,
		log:     opts.Logger,
		metrics: opts.Metrics,
	}
	if c.pool == nil {
		c.pool = workerpool.NewWorkerPool(workerpool.Config{Name: "cache-rebuild", Logger: opts.Logger})
		c.ownPool = true
	}

	return c
}

// Close stops the rebuild pool if the client created it.
func (c *Client) Close(timeout time.Duration) error {
	if !c.ownPool {
		return nil
	}
	return c.pool.Stop(timeout)
}

// Delete invalidates key. Write paths call it after updating the backing store.
func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.kv.Del(ctx, key); err != nil {
		return storeErr("del", key, err)
	}
	return nil
}

type state int

const (
	stateMiss state = iota
	stateHit
	stateHitAbsent
)

type lookup struct {
	state state
	raw   []byte
}

func (c *Client) get(ctx context.Context, key string) (lookup, error) {
	raw, ok, err := c.kv.Get(ctx, key)
	if err != nil {
		return lookup{}, storeErr("get", key, err)
	}
	if !ok {
		return lookup{state: stateMiss}, nil
	}
	// the absence marker is checked before anything tries to decode it
	if len(raw) == 0 {
		return lookup{state: stateHitAbsent}, nil
	}

	return lookup{state: stateHit, raw: raw}, nil
}

func (c *Client) set(ctx context.Context, key string, raw []byte, ttl time.Duration) error {
	if err := c.kv.Set(ctx, key, raw, ttl); err != nil {
		return storeErr("set", key, err)
	}
	return nil
}

func (c *Client) setAbsent(ctx context.Context, key string, ttl time.Duration) error {
	return c.set(ctx, key, []byte{}, c.absentTTL(ttl))
}

func (c *Client) absentTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 || c.opts.NullTTL < ttl {
		return c.opts.NullTTL
	}
	if half := ttl / 2; half > 0 {
		return half
	}
	return ttl
}

// heal drops an entry nothing can decode so the next read rebuilds it.
func (c *Client) heal(ctx context.Context, key string, cause error) {
	c.log.Warn("Dropping undecodable cache entry", zap.String("key", key), zap.Error(cause))
	if err := c.kv.Del(ctx, key); err != nil {
		c.log.Warn("Failed to drop cache entry", zap.String("key", key), zap.Error(err))
	}
}

func (c *Client) acquire(ctx context.Context, key string) (*lock.Lock, error) {
	l, err := c.locker.Acquire(ctx, key, c.opts.LockTTL, c.opts.LockRetry)
	switch {
	case err == nil:
		c.metrics.RecordLockAttempt("cache", "acquired")
		return l, nil
	case errors.Is(err, lock.ErrTimeout):
		c.metrics.RecordLockAttempt("cache", "timeout")
		return nil, fmt.Errorf("%w: %w", ErrLockTimeout, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, err
	default:
		c.metrics.RecordLockAttempt("cache", "error")
		return nil, storeErr("lock", key, err)
	}
}

func (c *Client) tryAcquire(ctx context.Context, key string) (*lock.Lock, error) {
	l, err := c.locker.TryAcquire(ctx, key, c.opts.LockTTL)
	if err != nil {
		c.metrics.RecordLockAttempt("cache", "error")
		return nil, storeErr("lock", key, err)
	}
	if l == nil {
		c.metrics.RecordLockAttempt("cache", "busy")
		return nil, nil
	}
	c.metrics.RecordLockAttempt("cache", "acquired")
	return l, nil
}

// release never fails the caller. The lock TTL bounds a lost release.
func (c *Client) release(ctx context.Context, l *lock.Lock) {
	ok, err := l.Release(context.WithoutCancel(ctx))
	if err != nil {
		c.log.Warn("Failed to release cache lock", zap.String("lock", l.Key()), zap.Error(err))
		return
	}
	if !ok {
		c.log.Warn("Cache lock expired before release", zap.String("lock", l.Key()))
	}
}

func storeErr(op, key string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrStoreUnavailable, op, key, err)
}
