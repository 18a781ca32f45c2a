package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T) (*RedisAdapter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisAdapter(client), mr
}

func TestGet_Miss(t *testing.T) {
	adapter, _ := newTestAdapter(t)

	v, ok, err := adapter.Get(context.Background(), "cache:shop:404")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestSet_WithTTL(t *testing.T) {
	adapter, mr := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, adapter.Set(ctx, "cache:shop:1", []byte(`{"id":1}`), 30*time.Minute))

	v, ok, err := adapter.Get(ctx, "cache:shop:1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"id":1}`, string(v))
	assert.Equal(t, 30*time.Minute, mr.TTL("cache:shop:1"))

	mr.FastForward(31 * time.Minute)
	_, ok, err = adapter.Get(ctx, "cache:shop:1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSet_NoTTL(t *testing.T) {
	adapter, mr := newTestAdapter(t)

	require.NoError(t, adapter.Set(context.Background(), "cache:shop:2", []byte("x"), 0))
	assert.Equal(t, time.Duration(0), mr.TTL("cache:shop:2"))
}

func TestSet_EmptyValueIsStored(t *testing.T) {
	adapter, _ := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, adapter.Set(ctx, "cache:shop:0", []byte{}, time.Minute))

	v, ok, err := adapter.Get(ctx, "cache:shop:0")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, v)
}

func TestSetNX_Concurrent(t *testing.T) {
	adapter, _ := newTestAdapter(t)
	ctx := context.Background()

	var successCount atomic.Int32
	var wg sync.WaitGroup
	concurrency := 100

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := adapter.SetNX(ctx, "lock:shop:1", []byte("1"), 10*time.Second)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if ok {
				successCount.Add(1)
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), successCount.Load())
}

func TestSetNX_ExpiresWithTTL(t *testing.T) {
	adapter, mr := newTestAdapter(t)
	ctx := context.Background()

	ok, err := adapter.SetNX(ctx, "lock:shop:1", []byte("a"), 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(11 * time.Second)

	ok, err = adapter.SetNX(ctx, "lock:shop:1", []byte("b"), 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDelIfEquals(t *testing.T) {
	adapter, mr := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("lock:order:1:2", "owner-a"))

	ok, err := adapter.DelIfEquals(ctx, "lock:order:1:2", []byte("owner-b"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, mr.Exists("lock:order:1:2"))

	ok, err = adapter.DelIfEquals(ctx, "lock:order:1:2", []byte("owner-a"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, mr.Exists("lock:order:1:2"))

	ok, err = adapter.DelIfEquals(ctx, "lock:order:1:2", []byte("owner-a"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExpireIfEquals(t *testing.T) {
	adapter, mr := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("lock:shop:3", "owner-a"))
	mr.SetTTL("lock:shop:3", time.Second)

	ok, err := adapter.ExpireIfEquals(ctx, "lock:shop:3", []byte("owner-b"), 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, time.Second, mr.TTL("lock:shop:3"))

	ok, err = adapter.ExpireIfEquals(ctx, "lock:shop:3", []byte("owner-a"), 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 10*time.Second, mr.TTL("lock:shop:3"))

	ok, err = adapter.ExpireIfEquals(ctx, "lock:shop:missing", []byte("owner-a"), 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIncr_Concurrent(t *testing.T) {
	adapter, _ := newTestAdapter(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	seen := sync.Map{}
	total := 200

	for i := 0; i < total; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := adapter.Incr(ctx, "icr:order:2026:10:15")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if _, dup := seen.LoadOrStore(n, struct{}{}); dup {
				t.Errorf("duplicate counter value %d", n)
			}
		}()
	}

	wg.Wait()

	n, err := adapter.Incr(ctx, "icr:order:2026:10:15")
	require.NoError(t, err)
	assert.Equal(t, int64(total+1), n)
}

func TestRPushLRangeExpire(t *testing.T) {
	adapter, mr := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, adapter.RPush(ctx, "cache:shop-type", []byte("a"), []byte("b"), []byte("c")))
	require.NoError(t, adapter.Expire(ctx, "cache:shop-type", time.Hour))

	items, err := adapter.LRange(ctx, "cache:shop-type", 0, -1)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "a", string(items[0]))
	assert.Equal(t, "c", string(items[2]))
	assert.Equal(t, time.Hour, mr.TTL("cache:shop-type"))

	items, err = adapter.LRange(ctx, "cache:missing", 0, -1)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestDel(t *testing.T) {
	adapter, mr := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("a", "1"))
	require.NoError(t, mr.Set("b", "1"))

	require.NoError(t, adapter.Del(ctx, "a", "b", "missing"))
	assert.False(t, mr.Exists("a"))
	assert.False(t, mr.Exists("b"))
	require.NoError(t, adapter.Del(ctx))
}

func TestGet_ServerDown(t *testing.T) {
	adapter, mr := newTestAdapter(t)
	mr.Close()

	_, _, err := adapter.Get(context.Background(), "cache:shop:1")
	assert.Error(t, err)
}
