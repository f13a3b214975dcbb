package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	domain "github.com/bryanwahyu/csvanalyst/internal/domain/analysis"
)

type AnalysisRepository struct {
	db *sql.DB
}

func NewAnalysisRepository(db *sql.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// Save insert/update Analysis record
func (r *AnalysisRepository) Save(ctx context.Context, a *domain.Analysis) error {
	const q = `
INSERT INTO csv_analyses
  (id, tenant_id, csv_path, prompt, output_path, status, report, report_url, error, messages, duration_ms, created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
  status=VALUES(status), report=VALUES(report), report_url=VALUES(report_url), error=VALUES(error),
  messages=VALUES(messages), duration_ms=VALUES(duration_ms);
`
	tenant := stringOrDash(a.TenantID)
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q,
		a.ID, tenant, a.CSVPath, a.Prompt, a.OutputPath, string(a.Status),
		nullString(a.Report), nullString(a.ReportURL), nullString(a.Error),
		a.Messages, a.DurationMS, createdAt.UTC(),
	)
	return err
}

const selectColumns = `
SELECT id, tenant_id, csv_path, prompt, output_path, status, report, report_url, error, messages, duration_ms, created_at
FROM csv_analyses`

// Get by ID + Tenant
func (r *AnalysisRepository) Get(ctx context.Context, tenant string, id domain.ID) (*domain.Analysis, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` WHERE tenant_id=? AND id=? LIMIT 1;`, stringOrDash(tenant), id)
	a, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return a, err
}

// Paginate returns a page of analyses ordered by created_at desc
func (r *AnalysisRepository) Paginate(ctx context.Context, tenant string, page, pageSize int) ([]*domain.Analysis, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	rows, err := r.db.QueryContext(ctx,
		selectColumns+` WHERE tenant_id=? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?;`,
		stringOrDash(tenant), pageSize, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(s scanner) (*domain.Analysis, error) {
	var a domain.Analysis
	var report, url, errMsg sql.NullString
	var status string
	if err := s.Scan(
		&a.ID, &a.TenantID, &a.CSVPath, &a.Prompt, &a.OutputPath, &status,
		&report, &url, &errMsg, &a.Messages, &a.DurationMS, &a.CreatedAt,
	); err != nil {
		return nil, err
	}
	a.Status = domain.Status(status)
	a.Report = report.String
	a.ReportURL = url.String
	a.Error = errMsg.String
	return &a, nil
}
