package domain

import "time"

// Stage is the time-gated phase of a seckill voucher.
type Stage string

const (
	StageNotStarted Stage = "not_started"
	StageActive     Stage = "active"
	StageEnded      Stage = "ended"
)

type SeckillVoucher struct {
	VoucherID  int64     `json:"voucherId" msgpack:"voucherId" cbor:"voucherId"`
	Stock      int       `json:"stock" msgpack:"stock" cbor:"stock"`
	BeginTime  time.Time `json:"beginTime" msgpack:"beginTime" cbor:"beginTime"`
	EndTime    time.Time `json:"endTime" msgpack:"endTime" cbor:"endTime"`
	CreateTime time.Time `json:"createTime" msgpack:"createTime" cbor:"createTime"`
	UpdateTime time.Time `json:"updateTime" msgpack:"updateTime" cbor:"updateTime"`
}

// Stage reports the phase at now. Both window bounds are inclusive.
func (v SeckillVoucher) Stage(now time.Time) Stage {
	switch {
	case now.Before(v.BeginTime):
		return StageNotStarted
	case now.After(v.EndTime):
		return StageEnded
	default:
		return StageActive
	}
}
