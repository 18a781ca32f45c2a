package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/seckill-cache/internal/codec"
	"github.com/rl1809/seckill-cache/internal/core/cache"
	"github.com/rl1809/seckill-cache/internal/core/domain"
	"github.com/rl1809/seckill-cache/internal/core/lock"
	"github.com/rl1809/seckill-cache/internal/port"
)

// ShopTypeService caches the shop type list as a KV list, one encoded type per
// element, in sort order.
type ShopTypeService struct {
	repo   port.ShopRepository
	kv     port.KVStore
	locker *lock.Locker
	codec  codec.Codec[domain.ShopType]
	ttl    time.Duration
	log    *zap.Logger
}

func NewShopTypeService(repo port.ShopRepository, kv port.KVStore, cd codec.Codec[domain.ShopType], ttl time.Duration, logger *zap.Logger) *ShopTypeService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ShopTypeService{
		repo:   repo,
		kv:     kv,
		locker: lock.NewLocker(kv),
		codec:  cd,
		ttl:    ttl,
		log:    logger,
	}
}

func (s *ShopTypeService) List(ctx context.Context) ([]domain.ShopType, error) {
	types, err := s.cached(ctx)
	if err != nil {
		return nil, err
	}
	if len(types) > 0 {
		return types, nil
	}

	types, err = s.repo.ListShopTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list shop types: %w", err)
	}
	if len(types) == 0 {
		return nil, domain.ErrShopTypeNotFound
	}

	s.fill(ctx, types)
	return types, nil
}

func (s *ShopTypeService) cached(ctx context.Context) ([]domain.ShopType, error) {
	items, err := s.kv.LRange(ctx, CacheShopTypeKey, 0, -1)
	if err != nil {
		return nil, fmt.Errorf("%w: lrange %s: %w", cache.ErrStoreUnavailable, CacheShopTypeKey, err)
	}

	types := make([]domain.ShopType, 0, len(items))
	for _, raw := range items {
		st, err := s.codec.Decode(raw)
		if err != nil {
			s.log.Warn("Dropping undecodable shop type list", zap.Error(err))
			if err := s.kv.Del(ctx, CacheShopTypeKey); err != nil {
				return nil, fmt.Errorf("%w: del %s: %w", cache.ErrStoreUnavailable, CacheShopTypeKey, err)
			}
			return nil, nil
		}
		types = append(types, st)
	}

	return types, nil
}

// fill writes the list once. Only the holder of the fill lock pushes, so
// concurrent misses cannot append the list twice. Failures only cost a reload.
func (s *ShopTypeService) fill(ctx context.Context, types []domain.ShopType) {
	l, err := s.locker.TryAcquire(ctx, LockShopTypeKey, 10*time.Second)
	if err != nil || l == nil {
		return
	}
	defer l.Release(context.WithoutCancel(ctx))

	if existing, err := s.kv.LRange(ctx, CacheShopTypeKey, 0, 0); err != nil || len(existing) > 0 {
		return
	}

	values := make([][]byte, 0, len(types))
	for _, st := range types {
		raw, err := s.codec.Encode(st)
		if err != nil {
			s.log.Warn("Failed to encode shop type", zap.Int64("id", st.ID), zap.Error(err))
			return
		}
		values = append(values, raw)
	}

	if err := s.kv.RPush(ctx, CacheShopTypeKey, values...); err != nil {
		s.log.Warn("Failed to cache shop types", zap.Error(err))
		return
	}
	if err := s.kv.Expire(ctx, CacheShopTypeKey, s.ttl); err != nil {
		s.log.Warn("Failed to set shop type TTL", zap.Error(err))
	}
}
