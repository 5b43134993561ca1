package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"orderdesk/store"
)

// Connect sets up the Postgres connection pool and checks it answers.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	log.Println("[DB] Successfully connected to the database")
	return pool, nil
}

// OpenStore builds the OrderStore selected by driver and applies its schema.
// The returned close function releases the underlying connections.
func OpenStore(ctx context.Context, driver, databaseURL, sqlitePath string) (store.OrderStore, func(), error) {
	switch driver {
	case "memory":
		log.Println("[DB] using in-memory order store, data is lost on exit")
		return store.NewMemoryStore(), func() {}, nil
	case "sqlite":
		db, err := store.OpenSQLite(sqlitePath)
		if err != nil {
			return nil, nil, err
		}
		s, err := store.NewSQLiteStore(db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		log.Printf("[DB] using SQLite order store at %s", sqlitePath)
		return s, closeSQL(db), nil
	case "postgres":
		pool, err := Connect(ctx, databaseURL)
		if err != nil {
			return nil, nil, err
		}
		s := store.NewPostgresStore(pool)
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, func() {
			pool.Close()
			log.Println("[DB] Database connection pool closed")
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", driver)
}

func closeSQL(db *sql.DB) func() {
	return func() {
		if err := db.Close(); err != nil {
			log.Printf("[DB] close: %v", err)
		}
	}
}
