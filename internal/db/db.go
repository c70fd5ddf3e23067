// Package db opens the PostgreSQL connection pool and applies schema
// migrations at startup.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"conforma/internal/platform/config"
)

// Open connects to PostgreSQL and verifies the connection.
func Open(cfg config.Postgres) (*sql.DB, error) {
	conn, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return conn, nil
}
