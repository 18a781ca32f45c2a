package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/seckill-cache/internal/core/domain"
	"github.com/rl1809/seckill-cache/internal/port"
)

const mysqlErrDuplicateEntry = 1062

//go:embed schema.sql
var schemaSQL string

var (
	_ port.ShopRepository    = (*MySQLAdapter)(nil)
	_ port.SeckillRepository = (*MySQLAdapter)(nil)
)

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// Migrate creates the tables the adapter reads and writes when they are missing.
func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) FindShop(ctx context.Context, id int64) (*domain.Shop, error) {
	var s domain.Shop
	err := m.db.QueryRowContext(ctx, `
		SELECT id, name, type_id, images, area, address, x, y, avg_price,
		       sold, comments, score, open_hours, create_time, update_time
		FROM tb_shop WHERE id = ?`, id,
	).Scan(&s.ID, &s.Name, &s.TypeID, &s.Images, &s.Area, &s.Address, &s.X, &s.Y, &s.AvgPrice,
		&s.Sold, &s.Comments, &s.Score, &s.OpenHours, &s.CreateTime, &s.UpdateTime)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query shop: %w", err)
	}

	return &s, nil
}

func (m *MySQLAdapter) UpdateShop(ctx context.Context, shop domain.Shop) error {
	_, err := m.db.ExecContext(ctx, `
		UPDATE tb_shop
		SET name = ?, type_id = ?, images = ?, area = ?, address = ?, x = ?, y = ?,
		    avg_price = ?, sold = ?, comments = ?, score = ?, open_hours = ?, update_time = NOW()
		WHERE id = ?`,
		shop.Name, shop.TypeID, shop.Images, shop.Area, shop.Address, shop.X, shop.Y,
		shop.AvgPrice, shop.Sold, shop.Comments, shop.Score, shop.OpenHours, shop.ID,
	)
	if err != nil {
		return fmt.Errorf("update shop: %w", err)
	}

	return nil
}

func (m *MySQLAdapter) ListShopTypes(ctx context.Context) ([]domain.ShopType, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT id, name, icon, sort FROM tb_shop_type ORDER BY sort ASC`)
	if err != nil {
		return nil, fmt.Errorf("query shop types: %w", err)
	}
	defer rows.Close()

	var types []domain.ShopType
	for rows.Next() {
		var st domain.ShopType
		if err := rows.Scan(&st.ID, &st.Name, &st.Icon, &st.Sort); err != nil {
			return nil, fmt.Errorf("scan shop type: %w", err)
		}
		types = append(types, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shop types: %w", err)
	}

	return types, nil
}

func (m *MySQLAdapter) FindVoucher(ctx context.Context, voucherID int64) (*domain.SeckillVoucher, error) {
	var v domain.SeckillVoucher
	err := m.db.QueryRowContext(ctx, `
		SELECT voucher_id, stock, begin_time, end_time, create_time, update_time
		FROM tb_seckill_voucher WHERE voucher_id = ?`, voucherID,
	).Scan(&v.VoucherID, &v.Stock, &v.BeginTime, &v.EndTime, &v.CreateTime, &v.UpdateTime)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query voucher: %w", err)
	}

	return &v, nil
}

func (m *MySQLAdapter) InTx(ctx context.Context, fn func(tx port.SeckillTx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&mysqlSeckillTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type mysqlSeckillTx struct {
	tx *sql.Tx
}

func (t *mysqlSeckillTx) CountOrders(ctx context.Context, userID, voucherID int64) (int, error) {
	var count int
	err := t.tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM tb_voucher_order WHERE user_id = ? AND voucher_id = ?`,
		userID, voucherID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}

	return count, nil
}

func (t *mysqlSeckillTx) DecrementStock(ctx context.Context, voucherID int64) (bool, error) {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE tb_seckill_voucher
		SET stock = stock - 1, update_time = NOW()
		WHERE voucher_id = ? AND stock > 0`,
		voucherID,
	)
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", err)
	}

	return rows == 1, nil
}

func (t *mysqlSeckillTx) InsertOrder(ctx context.Context, order domain.VoucherOrder) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO tb_voucher_order (id, user_id, voucher_id, pay_type, status, create_time, update_time)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.UserID, order.VoucherID, order.PayType, order.Status,
		order.CreateTime, order.CreateTime,
	)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlErrDuplicateEntry {
			return domain.ErrDuplicateOrder
		}
		return fmt.Errorf("insert order: %w", err)
	}

	return nil
}
