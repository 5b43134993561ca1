package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"orderdesk/models"
)

// SQLiteSchema mirrors PostgresSchema. Timestamps are unix microseconds so
// range filters compare numerically.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS orders (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL DEFAULT '',
	items      TEXT NOT NULL,
	amount     REAL NOT NULL,
	address    TEXT NOT NULL DEFAULT '{}',
	status     TEXT NOT NULL,
	payment    INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders (created_at);
`

// SQLiteStore is the single-node OrderStore used for local runs and tests.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (or creates) the database at path. Use ":memory:" for an
// ephemeral store.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// a single connection keeps :memory: databases shared and serializes writers
	db.SetMaxOpenConns(1)
	return db, nil
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	if _, err := s.db.ExecContext(context.Background(), SQLiteSchema); err != nil {
		return fmt.Errorf("migrate sqlite schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Create(ctx context.Context, order *models.Order) error {
	items, address, err := encodeOrderJSON(order)
	if err != nil {
		return err
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = s.now()
	}
	order.UpdatedAt = order.CreatedAt

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, items, amount, address, status, payment, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.UserID, string(items), order.Amount, string(address),
		string(order.Status), order.Payment, order.CreatedAt.UnixMicro(), order.UpdatedAt.UnixMicro(),
	)
	if err != nil {
		return fmt.Errorf("insert order %s: %w", order.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	order, err := scanSQLiteOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	return order, err
}

func (s *SQLiteStore) List(ctx context.Context, filter ListFilter) ([]*models.Order, int, error) {
	where := []string{"1 = 1"}
	args := []interface{}{}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM orders WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	query := "SELECT " + orderColumns + " FROM orders WHERE " + cond + " ORDER BY created_at DESC, id DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	orders, err := s.queryOrders(ctx, query, args...)
	return orders, total, err
}

func (s *SQLiteStore) Range(ctx context.Context, from, to time.Time) ([]*models.Order, error) {
	query := "SELECT " + orderColumns + " FROM orders WHERE 1 = 1"
	args := []interface{}{}
	if !from.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, from.UnixMicro())
	}
	if !to.IsZero() {
		query += " AND created_at <= ?"
		args = append(args, to.UnixMicro())
	}
	query += " ORDER BY created_at"
	return s.queryOrders(ctx, query, args...)
}

func (s *SQLiteStore) CompareAndSetStatus(ctx context.Context, id string, from, to models.Status, guard PaymentGuard) (*models.Order, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = ?
		WHERE id = ? AND status = ? AND (? IS NULL OR payment = ?)`,
		string(to), s.now().UnixMicro(), id, string(from), guard.arg(), guard.arg(),
	)
	if err != nil {
		return nil, fmt.Errorf("update status of order %s: %w", id, err)
	}
	return s.afterConditionalUpdate(ctx, id, res)
}

func (s *SQLiteStore) MarkPaid(ctx context.Context, id string) (*models.Order, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET payment = 1, updated_at = CASE WHEN payment = 1 THEN updated_at ELSE ? END
		WHERE id = ? AND status NOT IN (?, ?)`,
		s.now().UnixMicro(), id, string(models.StatusCompleted), string(models.StatusCancelled),
	)
	if err != nil {
		return nil, fmt.Errorf("mark order %s paid: %w", id, err)
	}
	return s.afterConditionalUpdate(ctx, id, res)
}

func (s *SQLiteStore) CountCustomers(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT user_id) FROM orders WHERE user_id <> ''`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count customers: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) afterConditionalUpdate(ctx context.Context, id string, res sql.Result) (*models.Order, error) {
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected for order %s: %w", id, err)
	}
	if affected == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrStale
	}
	return s.Get(ctx, id)
}

func (s *SQLiteStore) queryOrders(ctx context.Context, query string, args ...interface{}) ([]*models.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	orders := make([]*models.Order, 0)
	for rows.Next() {
		order, err := scanSQLiteOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

type sqlScanner interface {
	Scan(dest ...interface{}) error
}

func scanSQLiteOrder(row sqlScanner) (*models.Order, error) {
	var (
		order              models.Order
		items, address     string
		status             string
		createdAt, updated int64
	)
	err := row.Scan(&order.ID, &order.UserID, &items, &order.Amount, &address, &status, &order.Payment, &createdAt, &updated)
	if err != nil {
		return nil, err
	}
	order.Status = models.Status(status)
	order.CreatedAt = time.UnixMicro(createdAt)
	order.UpdatedAt = time.UnixMicro(updated)
	if err := decodeOrderJSON(&order, []byte(items), []byte(address)); err != nil {
		return nil, err
	}
	return &order, nil
}
