package service

// KV key layout shared by every instance.
const (
	CacheShopKey     = "cache:shop:"
	LockShopKey      = "lock:shop:"
	CacheShopTypeKey = "cache:shop-type"
	LockShopTypeKey  = "lock:shop-type"
	CacheVoucherKey  = "cache:seckill-voucher:"
	LockOrderKey     = "lock:order:"

	OrderIDPrefix = "order:"
)
