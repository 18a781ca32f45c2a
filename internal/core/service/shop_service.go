package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/seckill-cache/internal/core/cache"
	"github.com/rl1809/seckill-cache/internal/core/domain"
	"github.com/rl1809/seckill-cache/internal/port"
)

type ShopConfig struct {
	Strategy cache.Strategy
	TTL      time.Duration
	Logger   *zap.Logger
}

type ShopService struct {
	repo     port.ShopRepository
	shops    *cache.Typed[int64, domain.Shop]
	strategy cache.Strategy
	ttl      time.Duration
	log      *zap.Logger
}

func NewShopService(repo port.ShopRepository, shops *cache.Typed[int64, domain.Shop], cfg ShopConfig) *ShopService {
	if cfg.Strategy == "" {
		cfg.Strategy = cache.StrategyLogicalExpire
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &ShopService{
		repo:     repo,
		shops:    shops,
		strategy: cfg.Strategy,
		ttl:      cfg.TTL,
		log:      cfg.Logger,
	}
}

func (s *ShopService) QueryByID(ctx context.Context, id int64) (*domain.Shop, error) {
	var (
		shop domain.Shop
		ok   bool
		err  error
	)

	switch s.strategy {
	case cache.StrategyPassThrough:
		shop, ok, err = s.shops.QueryWithPassThrough(ctx, CacheShopKey, id, s.load, s.ttl)
	case cache.StrategyMutex:
		shop, ok, err = s.shops.QueryWithMutex(ctx, CacheShopKey, LockShopKey, id, s.load, s.ttl)
	default:
		shop, ok, err = s.shops.QueryWithLogicalExpire(ctx, CacheShopKey, LockShopKey, id, s.load, s.ttl)
	}
	if err != nil {
		return nil, fmt.Errorf("query shop %d: %w", id, err)
	}
	if !ok {
		return nil, domain.ErrShopNotFound
	}

	return &shop, nil
}

// Update writes the store first and then brings the cache in line. Logical-expiry
// entries are rewritten since a deleted one would read as absent until warmed.
func (s *ShopService) Update(ctx context.Context, shop domain.Shop) error {
	if shop.ID == 0 {
		return domain.ErrShopIDRequired
	}

	if err := s.repo.UpdateShop(ctx, shop); err != nil {
		return fmt.Errorf("update shop %d: %w", shop.ID, err)
	}

	if s.strategy == cache.StrategyLogicalExpire {
		return s.Warm(ctx, shop.ID, s.ttl)
	}
	if err := s.shops.Delete(ctx, cache.Key(CacheShopKey, shop.ID)); err != nil {
		return fmt.Errorf("invalidate shop %d: %w", shop.ID, err)
	}

	return nil
}

// Warm loads the shop and stores it as a logical-expiry entry going stale after ttl.
func (s *ShopService) Warm(ctx context.Context, id int64, ttl time.Duration) error {
	shop, ok, err := s.load(ctx, id)
	if err != nil {
		return fmt.Errorf("warm shop %d: %w", id, err)
	}
	if !ok {
		return domain.ErrShopNotFound
	}

	if err := s.shops.SetWithLogicalExpire(ctx, cache.Key(CacheShopKey, id), shop, ttl); err != nil {
		return fmt.Errorf("warm shop %d: %w", id, err)
	}

	s.log.Debug("Shop cache warmed", zap.Int64("shop_id", id), zap.Duration("ttl", ttl))
	return nil
}

func (s *ShopService) load(ctx context.Context, id int64) (domain.Shop, bool, error) {
	shop, err := s.repo.FindShop(ctx, id)
	if err != nil || shop == nil {
		return domain.Shop{}, false, err
	}
	return *shop, true, nil
}
