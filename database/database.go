package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"time"

	"checkout-pipeline/config"

	"github.com/go-sql-driver/mysql"
)

// schema is applied statement by statement; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS order_lines (
		line_id                     VARCHAR(64)    NOT NULL PRIMARY KEY,
		order_id                    VARCHAR(64)    NOT NULL,
		customer                    VARCHAR(255)   NOT NULL,
		product_id                  VARCHAR(64)    NOT NULL,
		product_name                VARCHAR(255)   NOT NULL DEFAULT '',
		quantity                    INT            NOT NULL,
		unit_price                  DECIMAL(12,2)  NOT NULL,
		total_price                 DECIMAL(14,2)  NOT NULL,
		status                      VARCHAR(16)    NOT NULL,
		created_at                  DATETIME(6)    NOT NULL,
		processed_at                DATETIME(6)    NULL,
		contract_file_name          VARCHAR(255)   NULL,
		contract_original_file_name VARCHAR(255)   NULL,
		contract_content_type       VARCHAR(127)   NULL,
		INDEX idx_order_lines_order_id (order_id),
		INDEX idx_order_lines_customer (customer, created_at),
		INDEX idx_order_lines_status (status)
	)`,
	`CREATE TABLE IF NOT EXISTS inventory (
		product_id VARCHAR(64) NOT NULL PRIMARY KEY,
		stock      INT         NOT NULL DEFAULT 0,
		version    BIGINT      NOT NULL DEFAULT 0,
		CHECK (stock >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS stock_deductions (
		line_id    VARCHAR(64) NOT NULL PRIMARY KEY,
		order_id   VARCHAR(64) NOT NULL,
		product_id VARCHAR(64) NOT NULL,
		quantity   INT         NOT NULL,
		applied_at DATETIME(6) NOT NULL,
		INDEX idx_stock_deductions_order_id (order_id)
	)`,
}

// DSN builds the driver connection string. clientFoundRows makes UPDATE
// report matched rows, which the finalize stage counts.
func DSN(cfg *config.Config) string {
	mc := mysql.NewConfig()
	mc.User = cfg.DBUser
	mc.Passwd = cfg.DBPassword
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.DBHost, cfg.DBPort)
	mc.DBName = cfg.DBName
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.ClientFoundRows = true
	return mc.FormatDSN()
}

// Open connects, pings and migrates.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}

	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate[%d]: %w", i, err)
		}
	}
	return nil
}
