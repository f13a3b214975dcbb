package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/csvanalyst/internal/domain/analysis"
)

var columns = []string{
	"id", "tenant_id", "csv_path", "prompt", "output_path", "status",
	"report", "report_url", "error", "messages", "duration_ms", "created_at",
}

func newMock(t *testing.T) (*AnalysisRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewAnalysisRepository(db), mock
}

func TestSaveUpserts(t *testing.T) {
	repo, mock := newMock(t)
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO csv_analyses") + ".*" + regexp.QuoteMeta("ON CONFLICT (id) DO UPDATE SET")).
		WithArgs("a1", "acme", "data/s.csv", "q", "out/r.txt", "success",
			"report", nil, nil, 4, int64(1500), created).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Save(context.Background(), &domain.Analysis{
		ID: "a1", TenantID: "acme", CSVPath: "data/s.csv", Prompt: "q", OutputPath: "out/r.txt",
		Status: domain.StatusSuccess, Report: "report", Messages: 4, DurationMS: 1500, CreatedAt: created,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveEmptyTenantStoredAsDash(t *testing.T) {
	repo, mock := newMock(t)
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO csv_analyses")).
		WithArgs("a1", "-", "c.csv", "", "o.txt", "running",
			nil, nil, nil, 0, int64(0), created).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Save(context.Background(), &domain.Analysis{
		ID: "a1", CSVPath: "c.csv", OutputPath: "o.txt", Status: domain.StatusRunning, CreatedAt: created,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet(t *testing.T) {
	repo, mock := newMock(t)
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM csv_analyses WHERE tenant_id=$1 AND id=$2")).
		WithArgs("acme", "a1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("a1", "acme", "c.csv", "q", "o.txt", "failed", nil, nil, "boom", 2, int64(10), created))

	a, err := repo.Get(context.Background(), "acme", "a1")
	require.NoError(t, err)
	assert.Equal(t, domain.ID("a1"), a.ID)
	assert.Equal(t, domain.StatusFailed, a.Status)
	assert.Equal(t, "boom", a.Error)
	assert.Empty(t, a.Report)
	assert.Equal(t, 2, a.Messages)
	assert.True(t, created.Equal(a.CreatedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetNotFound(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM csv_analyses WHERE tenant_id=$1 AND id=$2")).
		WithArgs("acme", "missing").
		WillReturnRows(sqlmock.NewRows(columns))

	_, err := repo.Get(context.Background(), "acme", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaginate(t *testing.T) {
	repo, mock := newMock(t)
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE tenant_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3")).
		WithArgs("acme", 10, 20).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("b", "acme", "c.csv", "q", "o.txt", "success", "r2", "http://m/b", nil, 1, int64(5), created).
			AddRow("a", "acme", "c.csv", "q", "o.txt", "success", "r1", nil, nil, 1, int64(5), created.Add(-time.Hour)))

	list, err := repo.Paginate(context.Background(), "acme", 3, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, domain.ID("b"), list[0].ID)
	assert.Equal(t, "http://m/b", list[0].ReportURL)
	assert.Equal(t, "r1", list[1].Report)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaginateDefaults(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("LIMIT $2 OFFSET $3")).
		WithArgs("acme", 20, 0).
		WillReturnRows(sqlmock.NewRows(columns))

	list, err := repo.Paginate(context.Background(), "acme", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NoError(t, mock.ExpectationsWereMet())
}
