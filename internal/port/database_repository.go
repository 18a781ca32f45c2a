package port

import (
	"context"

	"github.com/rl1809/seckill-cache/internal/core/domain"
)

type ShopRepository interface {
	// FindShop returns nil, nil when the shop does not exist
	FindShop(ctx context.Context, id int64) (*domain.Shop, error)

	// UpdateShop overwrites the mutable shop columns
	UpdateShop(ctx context.Context, shop domain.Shop) error

	// ListShopTypes returns all shop types ordered by sort
	ListShopTypes(ctx context.Context) ([]domain.ShopType, error)
}

type SeckillRepository interface {
	// FindVoucher returns nil, nil when the voucher does not exist
	FindVoucher(ctx context.Context, voucherID int64) (*domain.SeckillVoucher, error)

	// InTx runs fn in one transaction, committing only when fn returns nil
	InTx(ctx context.Context, fn func(tx SeckillTx) error) error
}

type SeckillTx interface {
	// CountOrders counts orders placed by user for voucher
	CountOrders(ctx context.Context, userID, voucherID int64) (int, error)

	// DecrementStock takes one unit when stock > 0, returns false otherwise
	DecrementStock(ctx context.Context, voucherID int64) (bool, error)

	// InsertOrder persists a new order, duplicates map to domain.ErrDuplicateOrder
	InsertOrder(ctx context.Context, order domain.VoucherOrder) error
}
