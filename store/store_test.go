package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderdesk/apperr"
	"orderdesk/models"
)

func newOrder(id, user string, created time.Time) *models.Order {
	return &models.Order{
		ID:     id,
		UserID: user,
		Items: []models.OrderItem{
			{ProductID: "p1", Name: "Margherita", Category: "Pizza", UnitPrice: 10, Quantity: 2},
		},
		Amount:    22,
		Address:   models.JSONB{"street": "1 Main St"},
		Status:    models.StatusFoodProcessing,
		CreatedAt: created,
	}
}

// runStoreContract exercises behaviour every backend must share.
func runStoreContract(t *testing.T, s OrderStore) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Create(ctx, newOrder("o-1", "u-1", base)))
	require.NoError(t, s.Create(ctx, newOrder("o-2", "u-2", base.Add(24*time.Hour))))
	require.NoError(t, s.Create(ctx, newOrder("o-3", "u-1", base.Add(48*time.Hour))))

	t.Run("get round trips", func(t *testing.T) {
		o, err := s.Get(ctx, "o-1")
		require.NoError(t, err)
		assert.Equal(t, "u-1", o.UserID)
		assert.Equal(t, 22.0, o.Amount)
		assert.Equal(t, models.StatusFoodProcessing, o.Status)
		assert.False(t, o.Payment)
		require.Len(t, o.Items, 1)
		assert.Equal(t, "Pizza", o.Items[0].Category)
		assert.Equal(t, "1 Main St", o.Address["street"])
		assert.True(t, o.CreatedAt.Equal(base))
	})

	t.Run("get unknown", func(t *testing.T) {
		_, err := s.Get(ctx, "missing")
		assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	})

	t.Run("list filters and pages", func(t *testing.T) {
		orders, total, err := s.List(ctx, ListFilter{UserID: "u-1"})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, orders, 2)
		assert.Equal(t, "o-3", orders[0].ID, "newest first")

		orders, total, err = s.List(ctx, ListFilter{Limit: 1, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, orders, 1)
		assert.Equal(t, "o-2", orders[0].ID)
	})

	t.Run("range is inclusive", func(t *testing.T) {
		orders, err := s.Range(ctx, base.Add(24*time.Hour), base.Add(48*time.Hour))
		require.NoError(t, err)
		require.Len(t, orders, 2)
		assert.Equal(t, "o-2", orders[0].ID)
	})

	t.Run("compare and set", func(t *testing.T) {
		o, err := s.CompareAndSetStatus(ctx, "o-1", models.StatusFoodProcessing, models.StatusOutForDelivery, AnyPayment)
		require.NoError(t, err)
		assert.Equal(t, models.StatusOutForDelivery, o.Status)
		assert.Equal(t, 22.0, o.Amount)

		_, err = s.CompareAndSetStatus(ctx, "o-1", models.StatusFoodProcessing, models.StatusCancelled, AnyPayment)
		assert.ErrorIs(t, err, ErrStale)

		_, err = s.CompareAndSetStatus(ctx, "o-1", models.StatusOutForDelivery, models.StatusDelivered, MustBePaid)
		assert.ErrorIs(t, err, ErrStale, "unpaid order cannot be delivered")

		_, err = s.CompareAndSetStatus(ctx, "nope", models.StatusFoodProcessing, models.StatusCancelled, AnyPayment)
		assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	})

	t.Run("mark paid", func(t *testing.T) {
		o, err := s.MarkPaid(ctx, "o-1")
		require.NoError(t, err)
		assert.True(t, o.Payment)

		o, err = s.MarkPaid(ctx, "o-1")
		require.NoError(t, err)
		assert.True(t, o.Payment)

		_, err = s.CompareAndSetStatus(ctx, "o-2", models.StatusFoodProcessing, models.StatusCancelled, AnyPayment)
		require.NoError(t, err)
		_, err = s.MarkPaid(ctx, "o-2")
		assert.ErrorIs(t, err, ErrStale)
	})

	t.Run("unpaid guard", func(t *testing.T) {
		_, err := s.CompareAndSetStatus(ctx, "o-1", models.StatusOutForDelivery, models.StatusCancelled, MustBeUnpaid)
		assert.ErrorIs(t, err, ErrStale, "a paid order is not cancelled as unpaid")
		o, err := s.Get(ctx, "o-1")
		require.NoError(t, err)
		assert.Equal(t, models.StatusOutForDelivery, o.Status)

		o, err = s.CompareAndSetStatus(ctx, "o-3", models.StatusFoodProcessing, models.StatusCancelled, MustBeUnpaid)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, o.Status)
		assert.False(t, o.Payment)
	})

	t.Run("count customers", func(t *testing.T) {
		n, err := s.CountCustomers(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer db.Close()

	s, err := NewSQLiteStore(db)
	require.NoError(t, err)
	runStoreContract(t, s)
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	defer pool.Close()

	s := NewPostgresStore(pool)
	require.NoError(t, s.Migrate(ctx))
	_, err = pool.Exec(ctx, "TRUNCATE orders")
	require.NoError(t, err)
	runStoreContract(t, s)
}

func TestMemoryStoreConcurrentCompareAndSet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newOrder("o-1", "u-1", time.Now())))

	targets := []models.Status{models.StatusOutForDelivery, models.StatusCancelled}
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		stale   int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(target models.Status) {
			defer wg.Done()
			_, err := s.CompareAndSetStatus(ctx, "o-1", models.StatusFoodProcessing, target, AnyPayment)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				success++
			} else if errors.Is(err, ErrStale) {
				stale++
			}
		}(targets[i%2])
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	assert.Equal(t, 19, stale)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newOrder("o-1", "u-1", time.Now())))

	o, err := s.Get(ctx, "o-1")
	require.NoError(t, err)
	o.Amount = 1000
	o.Items[0].Quantity = 99

	again, err := s.Get(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, 22.0, again.Amount)
	assert.Equal(t, 2, again.Items[0].Quantity)
}

func newMockSQLiteStore(t *testing.T) (*SQLiteStore, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS orders").WillReturnResult(sqlmock.NewResult(0, 0))
	s, err := NewSQLiteStore(db)
	require.NoError(t, err)
	return s, mock, db
}

func TestSQLiteStoreUpdateError(t *testing.T) {
	s, mock, db := newMockSQLiteStore(t)
	defer db.Close()

	mock.ExpectExec("UPDATE orders SET status").
		WillReturnError(errors.New("database is locked"))

	_, err := s.CompareAndSetStatus(context.Background(), "o-1", models.StatusFoodProcessing, models.StatusOutForDelivery, AnyPayment)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStoreStaleUpdate(t *testing.T) {
	s, mock, db := newMockSQLiteStore(t)
	defer db.Close()

	now := time.Now().UnixMicro()
	mock.ExpectExec("UPDATE orders SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT (.+) FROM orders WHERE id = ?").
		WithArgs("o-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "items", "amount", "address", "status", "payment", "created_at", "updated_at"}).
			AddRow("o-1", "u-1", "[]", 12.0, "{}", string(models.StatusCancelled), 0, now, now))

	_, err := s.CompareAndSetStatus(context.Background(), "o-1", models.StatusFoodProcessing, models.StatusOutForDelivery, AnyPayment)
	assert.ErrorIs(t, err, ErrStale)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStoreUnpaidGuardBindsPaymentFlag(t *testing.T) {
	s, mock, db := newMockSQLiteStore(t)
	defer db.Close()

	now := time.Now().UnixMicro()
	mock.ExpectExec("UPDATE orders SET status").
		WithArgs(string(models.StatusCancelled), sqlmock.AnyArg(), "o-1", string(models.StatusFoodProcessing), false, false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM orders WHERE id = ?").
		WithArgs("o-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "items", "amount", "address", "status", "payment", "created_at", "updated_at"}).
			AddRow("o-1", "u-1", "[]", 12.0, "{}", string(models.StatusCancelled), 0, now, now))

	o, err := s.CompareAndSetStatus(context.Background(), "o-1", models.StatusFoodProcessing, models.StatusCancelled, MustBeUnpaid)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, o.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
