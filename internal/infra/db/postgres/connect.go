package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
)

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

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
  id           VARCHAR(64)  PRIMARY KEY,
  tenant_id    VARCHAR(64)  NOT NULL,
  csv_path     TEXT         NOT NULL,
  prompt       TEXT         NOT NULL,
  output_path  TEXT         NOT NULL,
  status       VARCHAR(16)  NOT NULL,
  report       TEXT,
  report_url   TEXT,
  error        TEXT,
  messages     INTEGER      NOT NULL DEFAULT 0,
  duration_ms  BIGINT       NOT NULL DEFAULT 0,
  created_at   TIMESTAMPTZ  NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_csv_analyses_tenant_created ON csv_analyses (tenant_id, created_at DESC);
`

// EnsureSchema creates the csv_analyses table and its index when missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
