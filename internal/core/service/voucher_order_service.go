package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/seckill-cache/internal/core/cache"
	"github.com/rl1809/seckill-cache/internal/core/domain"
	"github.com/rl1809/seckill-cache/internal/core/lock"
	"github.com/rl1809/seckill-cache/internal/metrics"
	"github.com/rl1809/seckill-cache/internal/port"
)

type IDGenerator interface {
	NextID(ctx context.Context, prefix string) (int64, error)
}

type VoucherOrderConfig struct {
	// VoucherTTL bounds how long a cached voucher serves the window and stock
	// fast-path checks.
	VoucherTTL   time.Duration
	OrderLockTTL time.Duration

	Now     func() time.Time
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// VoucherOrderService runs the seckill purchase: window check, stock fast path,
// per-buyer distributed lock, then count, decrement and insert in one transaction.
type VoucherOrderService struct {
	repo     port.SeckillRepository
	vouchers *cache.Typed[int64, domain.SeckillVoucher]
	locker   *lock.Locker
	ids      IDGenerator

	voucherTTL time.Duration
	lockTTL    time.Duration
	now        func() time.Time
	log        *zap.Logger
	metrics    *metrics.Metrics
}

func NewVoucherOrderService(
	repo port.SeckillRepository,
	vouchers *cache.Typed[int64, domain.SeckillVoucher],
	locker *lock.Locker,
	ids IDGenerator,
	cfg VoucherOrderConfig,
) *VoucherOrderService {
	if cfg.VoucherTTL <= 0 {
		cfg.VoucherTTL = time.Minute
	}
	if cfg.OrderLockTTL <= 0 {
		cfg.OrderLockTTL = 10 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &VoucherOrderService{
		repo:       repo,
		vouchers:   vouchers,
		locker:     locker,
		ids:        ids,
		voucherTTL: cfg.VoucherTTL,
		lockTTL:    cfg.OrderLockTTL,
		now:        cfg.Now,
		log:        cfg.Logger,
		metrics:    cfg.Metrics,
	}
}

// Seckill buys one unit of voucherID for userID and returns the new order id.
// Business rejections are the domain errors matched by domain.IsRejection.
func (s *VoucherOrderService) Seckill(ctx context.Context, userID, voucherID int64) (int64, error) {
	orderID, err := s.seckill(ctx, userID, voucherID)
	s.metrics.RecordSeckill(outcome(err))
	if err != nil && !domain.IsRejection(err) {
		s.log.Error("Seckill failed",
			zap.Int64("user_id", userID),
			zap.Int64("voucher_id", voucherID),
			zap.Error(err))
	}
	return orderID, err
}

func (s *VoucherOrderService) seckill(ctx context.Context, userID, voucherID int64) (int64, error) {
	v, ok, err := s.vouchers.QueryWithPassThrough(ctx, CacheVoucherKey, voucherID, s.loadVoucher, s.voucherTTL)
	if err != nil {
		return 0, fmt.Errorf("load voucher %d: %w", voucherID, err)
	}
	if !ok {
		return 0, domain.ErrVoucherNotFound
	}

	switch v.Stage(s.now()) {
	case domain.StageNotStarted:
		return 0, domain.ErrSeckillNotStarted
	case domain.StageEnded:
		return 0, domain.ErrSeckillEnded
	}

	// fast path only, the conditional decrement decides
	if v.Stock < 1 {
		return 0, domain.ErrSoldOut
	}

	lockKey := fmt.Sprintf("%s%d:%d", LockOrderKey, userID, voucherID)
	l, err := s.locker.TryAcquire(ctx, lockKey, s.lockTTL)
	if err != nil {
		s.metrics.RecordLockAttempt("order", "error")
		return 0, fmt.Errorf("%w: order lock: %w", cache.ErrStoreUnavailable, err)
	}
	if l == nil {
		s.metrics.RecordLockAttempt("order", "busy")
		return 0, domain.ErrDuplicateOrder
	}
	s.metrics.RecordLockAttempt("order", "acquired")
	defer func() {
		if _, err := l.Release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("Failed to release order lock", zap.String("lock", lockKey), zap.Error(err))
		}
	}()

	orderID, err := s.createOrder(ctx, userID, voucherID)
	if errors.Is(err, domain.ErrSoldOut) {
		// let the fast path see the drained stock
		if err := s.vouchers.Delete(ctx, cache.Key(CacheVoucherKey, voucherID)); err != nil {
			s.log.Warn("Failed to invalidate voucher cache", zap.Int64("voucher_id", voucherID), zap.Error(err))
		}
	}
	return orderID, err
}

func (s *VoucherOrderService) createOrder(ctx context.Context, userID, voucherID int64) (int64, error) {
	var orderID int64

	err := s.repo.InTx(ctx, func(tx port.SeckillTx) error {
		n, err := tx.CountOrders(ctx, userID, voucherID)
		if err != nil {
			return err
		}
		if n > 0 {
			return domain.ErrDuplicateOrder
		}

		ok, err := tx.DecrementStock(ctx, voucherID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrSoldOut
		}

		id, err := s.ids.NextID(ctx, OrderIDPrefix)
		if err != nil {
			return fmt.Errorf("next order id: %w", err)
		}

		order := domain.VoucherOrder{
			ID:         id,
			UserID:     userID,
			VoucherID:  voucherID,
			PayType:    domain.PayTypeBalance,
			Status:     domain.OrderStatusUnpaid,
			CreateTime: s.now(),
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}

		orderID = id
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Info("Order created",
		zap.Int64("order_id", orderID),
		zap.Int64("user_id", userID),
		zap.Int64("voucher_id", voucherID))
	return orderID, nil
}

func (s *VoucherOrderService) loadVoucher(ctx context.Context, id int64) (domain.SeckillVoucher, bool, error) {
	v, err := s.repo.FindVoucher(ctx, id)
	if err != nil || v == nil {
		return domain.SeckillVoucher{}, false, err
	}
	return *v, true, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrVoucherNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrSeckillNotStarted):
		return "not_started"
	case errors.Is(err, domain.ErrSeckillEnded):
		return "ended"
	case errors.Is(err, domain.ErrSoldOut):
		return "sold_out"
	case errors.Is(err, domain.ErrDuplicateOrder):
		return "duplicate"
	default:
		return "error"
	}
}
