package cache

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rl1809/seckill-cache/internal/codec"
	"github.com/rl1809/seckill-cache/internal/core/lock"
	"github.com/rl1809/seckill-cache/internal/wire"
	"github.com/rl1809/seckill-cache/internal/workerpool"
)

// Loader reads id from the backing store. found is false when the record does
// not exist; that is not an error.
type Loader[K comparable, V any] func(ctx context.Context, id K) (v V, found bool, err error)

// Typed reads and writes values of type V keyed by ids of type K. Each Typed
// coalesces its own misses; flights are never shared across value types.
type Typed[K comparable, V any] struct {
	c       *Client
	codec   codec.Codec[V]
	flights singleflight.Group
}

func NewTyped[K comparable, V any](c *Client, cd codec.Codec[V]) *Typed[K, V] {
	return &Typed[K, V]{c: c, codec: cd}
}

func Key[K comparable](prefix string, id K) string {
	return prefix + fmt.Sprint(id)
}

// Set stores v under key with a physical TTL.
func (t *Typed[K, V]) Set(ctx context.Context, key string, v V, ttl time.Duration) error {
	raw, err := t.codec.Encode(v)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	return t.c.set(ctx, key, raw, ttl)
}

// SetWithLogicalExpire stores v without a physical TTL. The entry goes stale at
// now+ttl but stays readable until rebuilt or deleted.
func (t *Typed[K, V]) SetWithLogicalExpire(ctx context.Context, key string, v V, ttl time.Duration) error {
	raw, err := t.codec.Encode(v)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	env := wire.EncodeEnvelope(t.c.opts.Now().Add(ttl), raw)
	return t.c.set(ctx, key, env, 0)
}

func (t *Typed[K, V]) Delete(ctx context.Context, key string) error {
	return t.c.Delete(ctx, key)
}

type loadResult[V any] struct {
	v     V
	found bool
}

// QueryWithPassThrough reads through the cache and remembers absent ids with a
// short-lived marker. Concurrent misses for one key in this process share a
// single load.
func (t *Typed[K, V]) QueryWithPassThrough(ctx context.Context, keyPrefix string, id K, load Loader[K, V], ttl time.Duration) (V, bool, error) {
	key := Key(keyPrefix, id)

	v, found, resolved, err := t.readPhysical(ctx, key, StrategyPassThrough)
	if err != nil || resolved {
		return v, found, err
	}

	ch := t.flights.DoChan(key, func() (any, error) {
		fctx := context.WithoutCancel(ctx)
		// a flight that finished just before this one may have filled the key
		v, found, resolved, err := t.readPhysical(fctx, key, "")
		if err != nil {
			return nil, err
		}
		if resolved {
			return loadResult[V]{v: v, found: found}, nil
		}
		v, found, err = t.loadAndFill(fctx, StrategyPassThrough, key, id, load, ttl)
		if err != nil {
			return nil, err
		}
		return loadResult[V]{v: v, found: found}, nil
	})

	var zero V
	select {
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, false, res.Err
		}
		r, ok := res.Val.(loadResult[V])
		if !ok {
			return zero, false, fmt.Errorf("cache: unexpected flight result %T for %s", res.Val, key)
		}
		return r.v, r.found, nil
	}
}

// QueryWithMutex rebuilds a missing entry under a distributed lock so that only
// one caller across all processes loads it. Others wait with bounded backoff
// and then find the rebuilt entry.
func (t *Typed[K, V]) QueryWithMutex(ctx context.Context, keyPrefix, lockPrefix string, id K, load Loader[K, V], ttl time.Duration) (V, bool, error) {
	key := Key(keyPrefix, id)

	v, found, resolved, err := t.readPhysical(ctx, key, StrategyMutex)
	if err != nil || resolved {
		return v, found, err
	}

	l, err := t.c.acquire(ctx, Key(lockPrefix, id))
	if err != nil {
		return v, false, err
	}
	defer t.c.release(ctx, l)

	v, found, resolved, err = t.readPhysical(ctx, key, "")
	if err != nil || resolved {
		return v, found, err
	}

	return t.loadAndFill(ctx, StrategyMutex, key, id, load, ttl)
}

// QueryWithLogicalExpire never blocks on a rebuild. Fresh entries are returned
// as is; stale ones are returned while a single background task refreshes them.
// Entries must be warmed with SetWithLogicalExpire; a cold key reads as absent.
func (t *Typed[K, V]) QueryWithLogicalExpire(ctx context.Context, keyPrefix, lockPrefix string, id K, load Loader[K, V], ttl time.Duration) (V, bool, error) {
	key := Key(keyPrefix, id)
	strategy := string(StrategyLogicalExpire)

	v, found, stale, err := t.readLogical(ctx, key)
	if err != nil {
		t.c.metrics.RecordCacheLookup(strategy, "error")
		return v, false, err
	}
	if !found {
		t.c.metrics.RecordCacheLookup(strategy, "miss")
		return v, false, nil
	}
	if !stale {
		t.c.metrics.RecordCacheLookup(strategy, "hit")
		return v, true, nil
	}
	t.c.metrics.RecordCacheLookup(strategy, "stale")

	l, err := t.c.tryAcquire(ctx, Key(lockPrefix, id))
	if err != nil {
		var zero V
		return zero, false, err
	}
	if l == nil {
		return v, true, nil
	}

	// another rebuilder may have refreshed the entry since the first read
	cur, curFound, curStale, err := t.readLogical(ctx, key)
	if err != nil {
		t.c.release(ctx, l)
		var zero V
		return zero, false, err
	}
	if !curFound || !curStale {
		t.c.release(ctx, l)
		return cur, curFound, nil
	}

	t.rebuild(ctx, key, id, load, ttl, l)
	return cur, true, nil
}

// readPhysical resolves key for the TTL-based strategies. resolved is false on
// a miss, in which case the caller has to load.
func (t *Typed[K, V]) readPhysical(ctx context.Context, key string, strategy Strategy) (v V, found, resolved bool, err error) {
	l, err := t.c.get(ctx, key)
	if err != nil {
		t.recordLookup(strategy, "error")
		return v, false, false, err
	}

	switch l.state {
	case stateHitAbsent:
		t.recordLookup(strategy, "absent")
		return v, false, true, nil
	case stateHit:
		payload := l.raw
		if wire.IsEnvelope(payload) {
			if env, err := wire.DecodeEnvelope(payload); err == nil {
				payload = env.Payload
			}
		}
		v, err := t.codec.Decode(payload)
		if err != nil {
			t.c.heal(ctx, key, err)
			t.recordLookup(strategy, "miss")
			var zero V
			return zero, false, false, nil
		}
		t.recordLookup(strategy, "hit")
		return v, true, true, nil
	default:
		t.recordLookup(strategy, "miss")
		return v, false, false, nil
	}
}

// readLogical decodes an envelope entry. found is false for a miss, a marker
// or an entry that could not be decoded.
func (t *Typed[K, V]) readLogical(ctx context.Context, key string) (v V, found, stale bool, err error) {
	l, err := t.c.get(ctx, key)
	if err != nil || l.state != stateHit {
		return v, false, false, err
	}

	env, err := wire.DecodeEnvelope(l.raw)
	if err != nil {
		t.c.heal(ctx, key, err)
		return v, false, false, nil
	}
	v, err = t.codec.Decode(env.Payload)
	if err != nil {
		t.c.heal(ctx, key, err)
		var zero V
		return zero, false, false, nil
	}

	return v, true, env.Expired(t.c.opts.Now()), nil
}

func (t *Typed[K, V]) loadAndFill(ctx context.Context, strategy Strategy, key string, id K, load Loader[K, V], ttl time.Duration) (V, bool, error) {
	var zero V

	v, found, err := load(ctx, id)
	if err != nil {
		t.c.metrics.RecordLoaderCall(string(strategy), "error")
		return zero, false, fmt.Errorf("cache: load %s: %w", key, err)
	}
	if !found {
		t.c.metrics.RecordLoaderCall(string(strategy), "absent")
		if err := t.c.setAbsent(ctx, key, ttl); err != nil {
			return zero, false, err
		}
		return zero, false, nil
	}

	t.c.metrics.RecordLoaderCall(string(strategy), "found")
	if err := t.Set(ctx, key, v, ttl); err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// rebuild hands the refresh to the worker pool. The lock is released when the
// task ends, or right away if the pool refuses the task. A task that waited in
// the backlog past the lock TTL finds the lock gone and is dropped, since
// another reader may already have scheduled its own rebuild.
func (t *Typed[K, V]) rebuild(ctx context.Context, key string, id K, load Loader[K, V], ttl time.Duration, held *lock.Lock) {
	taskCtx := context.WithoutCancel(ctx)

	err := t.c.pool.Submit(workerpool.Task{
		ID:      "rebuild:" + key,
		Context: taskCtx,
		Fn: func(taskCtx context.Context) error {
			owned, err := held.Refresh(taskCtx, t.c.opts.LockTTL)
			if err != nil {
				t.c.metrics.RecordRebuild("error")
				return storeErr("refresh", held.Key(), err)
			}
			if !owned {
				t.c.metrics.RecordRebuild("lock_lost")
				t.c.log.Warn("Rebuild lock expired while queued", zap.String("key", key))
				return nil
			}
			defer t.c.release(taskCtx, held)

			ctx, cancel := context.WithTimeout(taskCtx, t.c.opts.RebuildTimeout)
			defer cancel()

			v, found, err := load(ctx, id)
			if err != nil {
				t.c.metrics.RecordRebuild("error")
				return fmt.Errorf("cache: rebuild %s: %w", key, err)
			}
			if !found {
				t.c.metrics.RecordRebuild("vanished")
				return t.c.Delete(ctx, key)
			}
			if err := t.SetWithLogicalExpire(ctx, key, v, ttl); err != nil {
				t.c.metrics.RecordRebuild("error")
				return err
			}
			t.c.metrics.RecordRebuild("ok")
			return nil
		},
	})
	if err != nil {
		t.c.log.Warn("Rebuild not scheduled", zap.String("key", key), zap.Error(err))
		t.c.release(ctx, held)
		return
	}

	t.c.metrics.UpdateRebuildQueueSize(t.c.pool.Stats().QueuedTasks)
}

func (t *Typed[K, V]) recordLookup(strategy Strategy, result string) {
	if strategy == "" {
		return
	}
	t.c.metrics.RecordCacheLookup(string(strategy), result)
}
