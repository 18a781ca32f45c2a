package domain

import "errors"

var (
	ErrShopNotFound     = errors.New("shop not found")
	ErrShopIDRequired   = errors.New("shop id is required")
	ErrShopTypeNotFound = errors.New("shop types not found")
	ErrVoucherNotFound  = errors.New("voucher not found")
)

// Seckill rejections. They are business outcomes, not system failures.
var (
	ErrSeckillNotStarted = errors.New("seckill has not started")
	ErrSeckillEnded      = errors.New("seckill has ended")
	ErrSoldOut           = errors.New("voucher sold out")
	ErrDuplicateOrder    = errors.New("voucher already purchased by user")
)

// IsRejection reports whether err is a seckill business rejection.
func IsRejection(err error) bool {
	return errors.Is(err, ErrSeckillNotStarted) ||
		errors.Is(err, ErrSeckillEnded) ||
		errors.Is(err, ErrSoldOut) ||
		errors.Is(err, ErrDuplicateOrder) ||
		errors.Is(err, ErrVoucherNotFound)
}
