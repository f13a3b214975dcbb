package mysql

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	// test ping
	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS csv_analyses (
  id           VARCHAR(64)  NOT NULL PRIMARY KEY,
  tenant_id    VARCHAR(64)  NOT NULL,
  csv_path     TEXT         NOT NULL,
  prompt       TEXT         NOT NULL,
  output_path  TEXT         NOT NULL,
  status       VARCHAR(16)  NOT NULL,
  report       LONGTEXT     NULL,
  report_url   TEXT         NULL,
  error        TEXT         NULL,
  messages     INT          NOT NULL DEFAULT 0,
  duration_ms  BIGINT       NOT NULL DEFAULT 0,
  created_at   DATETIME(3)  NOT NULL,
  INDEX idx_csv_analyses_tenant_created (tenant_id, created_at)
) DEFAULT CHARSET=utf8mb4;
`

// EnsureSchema buat tabel csv_analyses kalau belum ada
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
