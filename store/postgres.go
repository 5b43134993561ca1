package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"orderdesk/models"
)

// PostgresSchema creates the orders table. Items and address are kept as jsonb
// on the order row since they are written once and only read back whole.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS orders (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL DEFAULT '',
	items      JSONB NOT NULL,
	amount     NUMERIC(12,2) NOT NULL,
	address    JSONB NOT NULL DEFAULT '{}'::jsonb,
	status     TEXT NOT NULL,
	payment    BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders (created_at);
CREATE INDEX IF NOT EXISTS idx_orders_status ON orders (status);
CREATE INDEX IF NOT EXISTS idx_orders_user_id ON orders (user_id);
`

const orderColumns = `id, user_id, items, amount, address, status, payment, created_at, updated_at`

// PostgresStore is the primary OrderStore, backed by a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate applies PostgresSchema. It is safe to run repeatedly.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("migrate orders schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, order *models.Order) error {
	items, address, err := encodeOrderJSON(order)
	if err != nil {
		return err
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	order.UpdatedAt = order.CreatedAt

	query := `
		INSERT INTO orders (id, user_id, items, amount, address, status, payment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`
	_, err = s.pool.Exec(ctx, query,
		order.ID,
		order.UserID,
		string(items),
		order.Amount,
		string(address),
		string(order.Status),
		order.Payment,
		order.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order %s: %w", order.ID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	order, err := scanPgOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(id)
	}
	return order, err
}

func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]*models.Order, int, error) {
	where := []string{"TRUE"}
	args := []interface{}{}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM orders WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	query := "SELECT " + orderColumns + " FROM orders WHERE " + cond + " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	orders, err := s.queryOrders(ctx, query, args...)
	return orders, total, err
}

func (s *PostgresStore) Range(ctx context.Context, from, to time.Time) ([]*models.Order, error) {
	query := "SELECT " + orderColumns + " FROM orders WHERE TRUE"
	args := []interface{}{}
	if !from.IsZero() {
		args = append(args, from)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	query += " ORDER BY created_at"
	return s.queryOrders(ctx, query, args...)
}

func (s *PostgresStore) CompareAndSetStatus(ctx context.Context, id string, from, to models.Status, guard PaymentGuard) (*models.Order, error) {
	query := `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3 AND ($4::boolean IS NULL OR payment = $4::boolean)
		RETURNING ` + orderColumns
	order, err := scanPgOrder(s.pool.QueryRow(ctx, query, string(to), id, string(from), guard.arg()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.staleOrMissing(ctx, id)
	}
	return order, err
}

func (s *PostgresStore) MarkPaid(ctx context.Context, id string) (*models.Order, error) {
	query := `
		UPDATE orders SET payment = TRUE, updated_at = CASE WHEN payment THEN updated_at ELSE NOW() END
		WHERE id = $1 AND status NOT IN ($2, $3)
		RETURNING ` + orderColumns
	row := s.pool.QueryRow(ctx, query, id, string(models.StatusCompleted), string(models.StatusCancelled))
	order, err := scanPgOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.staleOrMissing(ctx, id)
	}
	return order, err
}

func (s *PostgresStore) CountCustomers(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(DISTINCT user_id) FROM orders WHERE user_id <> ''`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count customers: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) staleOrMissing(ctx context.Context, id string) error {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check order %s: %w", id, err)
	}
	if !exists {
		return notFound(id)
	}
	return ErrStale
}

func (s *PostgresStore) queryOrders(ctx context.Context, query string, args ...interface{}) ([]*models.Order, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]*models.Order, 0)
	for rows.Next() {
		order, err := scanPgOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func scanPgOrder(row pgx.Row) (*models.Order, error) {
	var (
		order   models.Order
		items   []byte
		address []byte
		status  string
	)
	err := row.Scan(
		&order.ID,
		&order.UserID,
		&items,
		&order.Amount,
		&address,
		&status,
		&order.Payment,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	order.Status = models.Status(status)
	if err := decodeOrderJSON(&order, items, address); err != nil {
		return nil, err
	}
	return &order, nil
}
