package analysis

import (
	"time"
)

// ID tipe untuk Analysis
type ID string

// Status enum
type Status string

const (
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Aggregate Root: Analysis
// One agent run over a CSV file and the report it left behind.
type Analysis struct {
	ID         ID        `json:"id"`
	TenantID   string    `json:"tenant_id"`
	CSVPath    string    `json:"csv_path"`
	Prompt     string    `json:"prompt"`
	OutputPath string    `json:"output_path"`
	Status     Status    `json:"status"`
	Report     string    `json:"report,omitempty"`
	ReportURL  string    `json:"report_url,omitempty"`
	Error      string    `json:"error,omitempty"`
	Messages   int       `json:"messages"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}
