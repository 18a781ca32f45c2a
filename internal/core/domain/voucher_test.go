package domain

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSeckillVoucherStage(t *testing.T) {
	begin := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)
	end := begin.Add(time.Hour)
	v := SeckillVoucher{VoucherID: 1, Stock: 10, BeginTime: begin, EndTime: end}

	assert.Equal(t, StageNotStarted, v.Stage(begin.Add(-time.Second)))
	assert.Equal(t, StageActive, v.Stage(begin))
	assert.Equal(t, StageActive, v.Stage(begin.Add(30*time.Minute)))
	assert.Equal(t, StageActive, v.Stage(end))
	assert.Equal(t, StageEnded, v.Stage(end.Add(time.Nanosecond)))
}

func TestIsRejection(t *testing.T) {
	assert.True(t, IsRejection(ErrSoldOut))
	assert.True(t, IsRejection(fmt.Errorf("decrement stock: %w", ErrSoldOut)))
	assert.True(t, IsRejection(ErrDuplicateOrder))
	assert.False(t, IsRejection(ErrShopNotFound))
	assert.False(t, IsRejection(nil))
}
