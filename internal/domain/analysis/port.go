package analysis

import "context"

// Repository port (interface untuk persistence)
type Repository interface {
	Save(ctx context.Context, a *Analysis) error
	// Get returns ErrNotFound when no row matches.
	Get(ctx context.Context, tenant string, id ID) (*Analysis, error)
	Paginate(ctx context.Context, tenant string, page, pageSize int) ([]*Analysis, error)
}

// ReportStore port (interface untuk arsip report)
type ReportStore interface {
	Upload(ctx context.Context, localPath, key string) (string, error)
}
