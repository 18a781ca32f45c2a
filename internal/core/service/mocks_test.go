package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/seckill-cache/internal/adapter/storage"
	"github.com/rl1809/seckill-cache/internal/core/domain"
	"github.com/rl1809/seckill-cache/internal/port"
)

// Mock SeckillRepository. Transactions are serialized and staged so a failed
// transaction leaves nothing behind.
type mockSeckillRepo struct {
	mu       sync.Mutex
	vouchers map[int64]domain.SeckillVoucher
	orders   map[[2]int64]domain.VoucherOrder

	findCalls atomic.Int32
	txCalls   atomic.Int32
}

func newMockSeckillRepo(vouchers ...domain.SeckillVoucher) *mockSeckillRepo {
	r := &mockSeckillRepo{
		vouchers: make(map[int64]domain.SeckillVoucher),
		orders:   make(map[[2]int64]domain.VoucherOrder),
	}
	for _, v := range vouchers {
		r.vouchers[v.VoucherID] = v
	}
	return r
}

func (r *mockSeckillRepo) FindVoucher(ctx context.Context, voucherID int64) (*domain.SeckillVoucher, error) {
	r.findCalls.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.vouchers[voucherID]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (r *mockSeckillRepo) InTx(ctx context.Context, fn func(tx port.SeckillTx) error) error {
	r.txCalls.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &mockSeckillTx{repo: r, stock: make(map[int64]int)}
	if err := fn(tx); err != nil {
		return err
	}

	for id, stock := range tx.stock {
		v := r.vouchers[id]
		v.Stock = stock
		r.vouchers[id] = v
	}
	for _, o := range tx.orders {
		r.orders[[2]int64{o.UserID, o.VoucherID}] = o
	}
	return nil
}

func (r *mockSeckillRepo) stock(voucherID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.vouchers[voucherID].Stock
}

func (r *mockSeckillRepo) orderCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

type mockSeckillTx struct {
	repo   *mockSeckillRepo
	stock  map[int64]int
	orders []domain.VoucherOrder
}

func (t *mockSeckillTx) CountOrders(ctx context.Context, userID, voucherID int64) (int, error) {
	n := 0
	if _, ok := t.repo.orders[[2]int64{userID, voucherID}]; ok {
		n++
	}
	for _, o := range t.orders {
		if o.UserID == userID && o.VoucherID == voucherID {
			n++
		}
	}
	return n, nil
}

func (t *mockSeckillTx) DecrementStock(ctx context.Context, voucherID int64) (bool, error) {
	stock, ok := t.stock[voucherID]
	if !ok {
		stock = t.repo.vouchers[voucherID].Stock
	}
	if stock <= 0 {
		return false, nil
	}
	t.stock[voucherID] = stock - 1
	return true, nil
}

func (t *mockSeckillTx) InsertOrder(ctx context.Context, order domain.VoucherOrder) error {
	if n, _ := t.CountOrders(ctx, order.UserID, order.VoucherID); n > 0 {
		return domain.ErrDuplicateOrder
	}
	t.orders = append(t.orders, order)
	return nil
}

// Mock ShopRepository
type mockShopRepo struct {
	mu        sync.Mutex
	shops     map[int64]domain.Shop
	types     []domain.ShopType
	findCalls atomic.Int32
	listCalls atomic.Int32
}

func newMockShopRepo() *mockShopRepo {
	return &mockShopRepo{shops: make(map[int64]domain.Shop)}
}

func (r *mockShopRepo) FindShop(ctx context.Context, id int64) (*domain.Shop, error) {
	r.findCalls.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.shops[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *mockShopRepo) UpdateShop(ctx context.Context, shop domain.Shop) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.shops[shop.ID]; ok {
		r.shops[shop.ID] = shop
	}
	return nil
}

func (r *mockShopRepo) ListShopTypes(ctx context.Context) ([]domain.ShopType, error) {
	r.listCalls.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()

	out := append([]domain.ShopType(nil), r.types...)
	sort.Slice(out, func(i, j int) bool { return out[i].Sort < out[j].Sort })
	return out, nil
}

// failingKV passes everything through except the operations it is told to fail.
type failingKV struct {
	port.KVStore
	failSetNX bool
	failIncr  bool
}

var errConnRefused = errors.New("dial tcp: connection refused")

func (f *failingKV) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if f.failSetNX {
		return false, errConnRefused
	}
	return f.KVStore.SetNX(ctx, key, value, ttl)
}

func (f *failingKV) Incr(ctx context.Context, key string) (int64, error) {
	if f.failIncr {
		return 0, errConnRefused
	}
	return f.KVStore.Incr(ctx, key)
}

func newTestKV(t *testing.T) (*storage.RedisAdapter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return storage.NewRedisAdapter(client), mr
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
