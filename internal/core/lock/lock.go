// Package lock provides a mutual-exclusion primitive on top of the shared KV
// store, visible to every process that talks to the same store.
//
// A lock is a key written with SET NX and a TTL. The value is a random owner
// token so that only the holder can release it; a crashed holder's lock
// disappears when the TTL runs out.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/rl1809/seckill-cache/internal/port"
)

var (
	// ErrTimeout means the lock stayed busy for the whole retry budget.
	ErrTimeout = errors.New("lock: acquire timed out")

	errBusy = errors.New("lock: busy")
)

// RetryPolicy bounds how long Acquire keeps trying. Intervals grow
// exponentially from InitialInterval up to MaxInterval.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxAttempts     int
	MaxElapsed      time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     500 * time.Millisecond,
		MaxAttempts:     20,
		MaxElapsed:      3 * time.Second,
	}
}

type Locker struct {
	kv port.KVStore
}

func NewLocker(kv port.KVStore) *Locker {
	return &Locker{kv: kv}
}

// Lock is a held lock. Release it exactly once.
type Lock struct {
	kv    port.KVStore
	key   string
	token []byte
}

func (l *Lock) Key() string { return l.key }

// TryAcquire makes a single attempt. It returns (nil, nil) when the lock is held
// by someone else.
func (lk *Locker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	token := []byte(uuid.NewString())
	ok, err := lk.kv.SetNX(ctx, key, token, ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, nil
	}

	return &Lock{kv: lk.kv, key: key, token: token}, nil
}

// Acquire retries TryAcquire with exponential backoff until it succeeds, the
// policy is exhausted (ErrTimeout) or ctx is done.
func (lk *Locker) Acquire(ctx context.Context, key string, ttl time.Duration, policy RetryPolicy) (*Lock, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = policy.InitialInterval
	eb.MaxInterval = policy.MaxInterval
	eb.MaxElapsedTime = policy.MaxElapsed
	eb.Multiplier = 2
	eb.RandomizationFactor = 0.2
	eb.Reset()

	var b backoff.BackOff = eb
	if policy.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(policy.MaxAttempts-1))
	}
	b = backoff.WithContext(b, ctx)

	var held *Lock
	err := backoff.Retry(func() error {
		l, err := lk.TryAcquire(ctx, key, ttl)
		if err != nil {
			return backoff.Permanent(err)
		}
		if l == nil {
			return errBusy
		}
		held = l
		return nil
	}, b)

	switch {
	case err == nil:
		return held, nil
	case errors.Is(err, errBusy):
		return nil, fmt.Errorf("%w: %s", ErrTimeout, key)
	default:
		return nil, err
	}
}

// Refresh restarts the TTL of a lock this holder still owns. It reports false
// when the lock has expired or been taken over, in which case the holder no
// longer excludes anyone.
func (l *Lock) Refresh(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := l.kv.ExpireIfEquals(ctx, l.key, l.token, ttl)
	if err != nil {
		return false, fmt.Errorf("refresh %s: %w", l.key, err)
	}
	return ok, nil
}

// Release deletes the lock if this holder still owns it. It reports false when
// the lock had already expired or been taken over.
func (l *Lock) Release(ctx context.Context) (bool, error) {
	ok, err := l.kv.DelIfEquals(ctx, l.key, l.token)
	if err != nil {
		return false, fmt.Errorf("release %s: %w", l.key, err)
	}
	return ok, nil
}
