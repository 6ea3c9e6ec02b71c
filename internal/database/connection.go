package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"callcore/internal/config"
)

// Connection holds the database pool.
type Connection struct {
	DB *sql.DB
}

// NewConnection opens the pool and checks connectivity.
func NewConnection(cfg config.DatabaseConfig) (*Connection, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Connection{DB: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS callcore_call_log (
	id               BIGINT AUTO_INCREMENT PRIMARY KEY,
	phone            VARCHAR(64)  NOT NULL,
	telecom_call_id  CHAR(36)     NOT NULL,
	address          VARCHAR(128) NOT NULL,
	direction        CHAR(2)      NOT NULL,
	cause            VARCHAR(32)  NOT NULL,
	created_at       DATETIME(3)  NOT NULL,
	connected_at     DATETIME(3)  NULL,
	disconnected_at  DATETIME(3)  NOT NULL,
	duration_sec     INT          NOT NULL DEFAULT 0,
	hold_sec         INT          NOT NULL DEFAULT 0,
	multiparty       TINYINT(1)   NOT NULL DEFAULT 0,
	INDEX idx_phone_created (phone, created_at),
	UNIQUE KEY uq_telecom_call_id (telecom_call_id)
)`

// EnsureSchema creates the call log table when missing.
func (c *Connection) EnsureSchema(ctx context.Context) error {
	if _, err := c.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating call log table: %w", err)
	}
	return nil
}

// Close closes the pool.
func (c *Connection) Close() error {
	return c.DB.Close()
}
