package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/seckill-cache/internal/core/domain"
	"github.com/rl1809/seckill-cache/internal/port"
)

func getMySQLDB(t *testing.T) *sql.DB {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/seckill?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	require.NoError(t, NewMySQLAdapter(db).Migrate(context.Background()))
	return db
}

func seedVoucher(t *testing.T, db *sql.DB, voucherID int64, stock int, begin, end time.Time) {
	t.Helper()
	ctx := context.Background()
	_, err := db.ExecContext(ctx, `DELETE FROM tb_voucher_order WHERE voucher_id = ?`, voucherID)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `
		INSERT INTO tb_seckill_voucher (voucher_id, stock, begin_time, end_time) VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE stock = VALUES(stock), begin_time = VALUES(begin_time), end_time = VALUES(end_time)`,
		voucherID, stock, begin, end)
	require.NoError(t, err)
}

func TestFindVoucher(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	begin := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
	end := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	seedVoucher(t, db, 9001, 50, begin, end)

	v, err := adapter.FindVoucher(ctx, 9001)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, int64(9001), v.VoucherID)
	assert.Equal(t, 50, v.Stock)
	assert.True(t, v.BeginTime.Equal(begin))
}

func TestFindVoucher_NotFound(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	v, err := NewMySQLAdapter(db).FindVoucher(context.Background(), -1)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestInTx_DecrementAndInsert(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	seedVoucher(t, db, 9002, 1, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))

	order := domain.VoucherOrder{
		ID:         time.Now().UnixNano(),
		UserID:     42,
		VoucherID:  9002,
		PayType:    domain.PayTypeBalance,
		Status:     domain.OrderStatusUnpaid,
		CreateTime: time.Now(),
	}

	err := adapter.InTx(ctx, func(tx port.SeckillTx) error {
		count, err := tx.CountOrders(ctx, order.UserID, order.VoucherID)
		if err != nil {
			return err
		}
		assert.Equal(t, 0, count)

		ok, err := tx.DecrementStock(ctx, order.VoucherID)
		if err != nil {
			return err
		}
		assert.True(t, ok)

		return tx.InsertOrder(ctx, order)
	})
	require.NoError(t, err)

	var stock int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT stock FROM tb_seckill_voucher WHERE voucher_id = 9002`).Scan(&stock))
	assert.Equal(t, 0, stock)

	// stock is gone, conditional decrement must refuse
	err = adapter.InTx(ctx, func(tx port.SeckillTx) error {
		ok, err := tx.DecrementStock(ctx, 9002)
		if err != nil {
			return err
		}
		assert.False(t, ok)
		return nil
	})
	require.NoError(t, err)
}

func TestInTx_DuplicateInsertRollsBackDecrement(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	seedVoucher(t, db, 9003, 5, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))

	first := domain.VoucherOrder{ID: time.Now().UnixNano(), UserID: 7, VoucherID: 9003, PayType: domain.PayTypeBalance, Status: domain.OrderStatusUnpaid, CreateTime: time.Now()}
	require.NoError(t, adapter.InTx(ctx, func(tx port.SeckillTx) error {
		if _, err := tx.DecrementStock(ctx, 9003); err != nil {
			return err
		}
		return tx.InsertOrder(ctx, first)
	}))

	second := first
	second.ID++
	err := adapter.InTx(ctx, func(tx port.SeckillTx) error {
		if _, err := tx.DecrementStock(ctx, 9003); err != nil {
			return err
		}
		return tx.InsertOrder(ctx, second)
	})
	assert.True(t, errors.Is(err, domain.ErrDuplicateOrder), "got %v", err)

	var stock int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT stock FROM tb_seckill_voucher WHERE voucher_id = 9003`).Scan(&stock))
	assert.Equal(t, 4, stock)
}

func TestDecrementStock_Concurrent(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	initialStock := 20
	totalRequests := 50
	seedVoucher(t, db, 9004, initialStock, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))

	var successCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := adapter.InTx(ctx, func(tx port.SeckillTx) error {
				ok, err := tx.DecrementStock(ctx, 9004)
				if ok {
					successCount.Add(1)
				}
				return err
			})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(initialStock), successCount.Load())

	var stock int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT stock FROM tb_seckill_voucher WHERE voucher_id = 9004`).Scan(&stock))
	assert.Equal(t, 0, stock)
}

func TestFindShop_NotFound(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	shop, err := NewMySQLAdapter(db).FindShop(context.Background(), -1)
	require.NoError(t, err)
	assert.Nil(t, shop)
}

func TestUpdateShop(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)

	res, err := db.ExecContext(ctx, `INSERT INTO tb_shop (name, type_id) VALUES ('update-test', 1)`)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	defer db.ExecContext(ctx, `DELETE FROM tb_shop WHERE id = ?`, id)

	shop, err := adapter.FindShop(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, shop)

	shop.Name = "renamed"
	shop.Score = 45
	require.NoError(t, adapter.UpdateShop(ctx, *shop))

	got, err := adapter.FindShop(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, 45, got.Score)
}
