package postgres

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

// Save inserts or updates an analysis record
func (r *AnalysisRepository) Save(ctx context.Context, a *domain.Analysis) error {
	const q = `
INSERT INTO csv_analyses
  (id, tenant_id, csv_path, prompt, output_path, status, report, report_url, error, messages, duration_ms, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (id) DO UPDATE SET
  status=EXCLUDED.status,
  report=EXCLUDED.report,
  report_url=EXCLUDED.report_url,
  error=EXCLUDED.error,
  messages=EXCLUDED.messages,
  duration_ms=EXCLUDED.duration_ms;
`
	tenant := stringOrDash(a.TenantID)
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q,
		a.ID, tenant, a.CSVPath, a.Prompt, a.OutputPath, string(a.Status),
		nullString(a.Report), nullString(a.ReportURL), nullString(a.Error),
		a.Messages, a.DurationMS, createdAt,
	)
	return err
}

const selectColumns = `
SELECT id, tenant_id, csv_path, prompt, output_path, status, report, report_url, error, messages, duration_ms, created_at
FROM csv_analyses`

// Get returns domain.ErrNotFound when the tenant has no such analysis
func (r *AnalysisRepository) Get(ctx context.Context, tenant string, id domain.ID) (*domain.Analysis, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` WHERE tenant_id=$1 AND id=$2 LIMIT 1;`, stringOrDash(tenant), id)
	var a domain.Analysis
	var report, url, errMsg sql.NullString
	var status string
	if err := row.Scan(
		&a.ID, &a.TenantID, &a.CSVPath, &a.Prompt, &a.OutputPath, &status,
		&report, &url, &errMsg, &a.Messages, &a.DurationMS, &a.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	a.Status = domain.Status(status)
	a.Report, a.ReportURL, a.Error = report.String, url.String, errMsg.String
	return &a, nil
}

// Paginate returns a page of analysis records ordered by created_at desc
func (r *AnalysisRepository) Paginate(ctx context.Context, tenant string, page, pageSize int) ([]*domain.Analysis, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	rows, err := r.db.QueryContext(ctx,
		selectColumns+` WHERE tenant_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3;`,
		stringOrDash(tenant), pageSize, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Analysis
	for rows.Next() {
		var a domain.Analysis
		var report, url, errMsg sql.NullString
		var status string
		if err := rows.Scan(
			&a.ID, &a.TenantID, &a.CSVPath, &a.Prompt, &a.OutputPath, &status,
			&report, &url, &errMsg, &a.Messages, &a.DurationMS, &a.CreatedAt,
		); err != nil {
			return nil, err
		}
		a.Status = domain.Status(status)
		a.Report, a.ReportURL, a.Error = report.String, url.String, errMsg.String
		out = append(out, &a)
	}
	return out, rows.Err()
}
