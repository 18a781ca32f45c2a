package domain

import "time"

type OrderStatus int

const (
	OrderStatusUnpaid OrderStatus = iota + 1
	OrderStatusPaid
	OrderStatusConsumed
	OrderStatusCancelled
)

type PayType int

const (
	PayTypeBalance PayType = iota + 1
	PayTypeAlipay
	PayTypeWechat
)

// VoucherOrder is immutable once inserted. At most one exists per (UserID, VoucherID).
type VoucherOrder struct {
	ID         int64
	UserID     int64
	VoucherID  int64
	PayType    PayType
	Status     OrderStatus
	CreateTime time.Time
}
