package analysis

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/csvanalyst/internal/application"
	"github.com/bryanwahyu/csvanalyst/internal/domain/agent"
	domain "github.com/bryanwahyu/csvanalyst/internal/domain/analysis"
	"github.com/bryanwahyu/csvanalyst/internal/infra/ai/prompt"
)

const (
	// FallbackReport dikembalikan kalau agent tidak menulis file report
	FallbackReport = "Analysis completed but no report file was generated. Check agent output above."
	// FallbackStreamingReport is the streaming variant's fallback.
	FallbackStreamingReport = "Analysis complete. Check the output file."

	DefaultOutputPath = "output/analysis_report.txt"

	previewPrompt  = 100
	previewMessage = 200
)

// Service implements use-cases untuk Analysis.
// Repo and Reports are optional; nil disables persistence or archiving.
type Service struct {
	Agent   agent.Querier
	Repo    domain.Repository
	Reports domain.ReportStore
	Clock   application.Clock
	Options agent.Options
	Logger  *slog.Logger
}

// AnalyzeCommand is one analysis request.
type AnalyzeCommand struct {
	TenantID   string
	CSVPath    string
	Prompt     string
	OutputPath string
	// Streaming selects the short prompt and its fallback sentence.
	Streaming bool
	// Verbose logs progress, plus agent text when OnMessage is nil.
	Verbose bool
	// OnMessage receives every streamed message in order.
	OnMessage func(agent.Message)
	// ID is generated when empty.
	ID domain.ID
}

type AnalyzeResult struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	Report     string `json:"report"`
	ReportPath string `json:"report_path"`
	ReportURL  string `json:"report_url,omitempty"`
	Generated  bool   `json:"generated"`
	Messages   int    `json:"messages"`
	DurationMS int64  `json:"duration_ms"`
}

// Outcome hasil dari AnalyzeAsync
type Outcome struct {
	Result AnalyzeResult
	Err    error
}

// ResolvePaths returns absolute CSV and output paths. Calling it again with
// the same inputs yields the same paths.
func ResolvePaths(csvPath, outputPath string) (string, string, error) {
	csvAbs, err := filepath.Abs(csvPath)
	if err != nil {
		return "", "", fmt.Errorf("resolve csv path: %w", err)
	}
	outAbs, err := filepath.Abs(outputPath)
	if err != nil {
		return "", "", fmt.Errorf("resolve output path: %w", err)
	}
	return csvAbs, outAbs, nil
}

// BuildPrompt resolves the paths and formats the instruction sent to the agent.
func BuildPrompt(cmd AnalyzeCommand) (string, error) {
	csvAbs, outAbs, err := ResolvePaths(cmd.CSVPath, outputPathOf(cmd))
	if err != nil {
		return "", err
	}
	if cmd.Streaming {
		return prompt.StreamingPrompt(csvAbs, cmd.Prompt, outAbs), nil
	}
	return prompt.AnalysisPrompt(csvAbs, cmd.Prompt, outAbs), nil
}

// Analyze runs the agent once and returns the report it wrote, or a fallback
// sentence when no report exists. The output file is read only after the
// message stream has been drained. Agent errors are returned as-is, no retry.
func (s *Service) Analyze(ctx context.Context, cmd AnalyzeCommand) (AnalyzeResult, error) {
	log := s.logger()
	start := s.now()
	outputPath := outputPathOf(cmd)

	id := cmd.ID
	if id == "" {
		id = domain.ID(uuid.New().String())
	}
	res := AnalyzeResult{ID: string(id), Status: string(domain.StatusFailed), ReportPath: outputPath}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return res, fmt.Errorf("create output directory: %w", err)
	}

	fullPrompt, err := BuildPrompt(cmd)
	if err != nil {
		return res, err
	}

	record := &domain.Analysis{
		ID:         id,
		TenantID:   cmd.TenantID,
		CSVPath:    cmd.CSVPath,
		Prompt:     cmd.Prompt,
		OutputPath: outputPath,
		Status:     domain.StatusRunning,
		CreatedAt:  start,
	}
	if s.Repo != nil {
		if err := s.Repo.Save(ctx, record); err != nil {
			return res, fmt.Errorf("save analysis: %w", err)
		}
	}

	if cmd.Verbose {
		log.Info("starting analysis", "id", id, "csv", cmd.CSVPath)
		log.Info("user prompt", "prompt", truncate(cmd.Prompt, previewPrompt))
	}

	opts := s.Options
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = prompt.GetSystemPrompt()
	}

	count, runErr := s.drain(ctx, fullPrompt, opts, cmd)
	res.Messages = count

	if runErr != nil {
		s.finish(record, domain.StatusFailed, "", runErr, count, start)
		return res, runErr
	}

	if cmd.Verbose {
		log.Info("analysis complete, checking output file", "id", id)
	}

	report, generated, err := readReport(outputPath)
	if err != nil {
		s.finish(record, domain.StatusFailed, "", err, count, start)
		return res, err
	}
	if !generated {
		report = FallbackReport
		if cmd.Streaming {
			report = FallbackStreamingReport
		}
	} else if cmd.Verbose {
		log.Info("report saved", "path", outputPath)
	}

	res.Report = report
	res.Generated = generated
	res.Status = string(domain.StatusSuccess)

	if generated && s.Reports != nil {
		key := fmt.Sprintf("%s/%s/%s", tenantOrDefault(cmd.TenantID), id, filepath.Base(outputPath))
		url, err := s.Reports.Upload(ctx, outputPath, key)
		if err != nil {
			// report sudah ada di disk, arsip gagal tidak membatalkan hasil
			log.Warn("report upload failed", "id", id, "error", err)
		} else {
			res.ReportURL = url
			record.ReportURL = url
		}
	}

	res.DurationMS = s.finish(record, domain.StatusSuccess, report, nil, count, start)
	return res, nil
}

// AnalyzeAsync runs Analyze on its own goroutine. The channel yields exactly
// one Outcome and is then closed.
func (s *Service) AnalyzeAsync(ctx context.Context, cmd AnalyzeCommand) <-chan Outcome {
	out := make(chan Outcome, 1)
	go func() {
		defer close(out)
		res, err := s.Analyze(ctx, cmd)
		out <- Outcome{Result: res, Err: err}
	}()
	return out
}

// Run → jalanin analisa dengan context.Background() dan tunggu sampai selesai
func (s *Service) Run(cmd AnalyzeCommand) (AnalyzeResult, error) {
	o := <-s.AnalyzeAsync(context.Background(), cmd)
	return o.Result, o.Err
}

// Get ambil 1 analysis by id
func (s *Service) Get(ctx context.Context, tenant string, id domain.ID) (*domain.Analysis, error) {
	if s.Repo == nil {
		return nil, domain.ErrNotFound
	}
	return s.Repo.Get(ctx, tenant, id)
}

// List returns one page of analyses, newest first.
func (s *Service) List(ctx context.Context, tenant string, page, pageSize int) (domain.PaginatedResult, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	out := domain.PaginatedResult{Data: []*domain.Analysis{}, Page: page, PageSize: pageSize}
	if s.Repo == nil {
		return out, nil
	}
	list, err := s.Repo.Paginate(ctx, tenant, page, pageSize)
	if err != nil {
		return out, err
	}
	if list != nil {
		out.Data = list
	}
	return out, nil
}

// drain consumes the stream to completion. The first error message is
// remembered and returned once the channel closes.
func (s *Service) drain(ctx context.Context, fullPrompt string, opts agent.Options, cmd AnalyzeCommand) (int, error) {
	messages, err := s.Agent.Query(ctx, fullPrompt, opts)
	if err != nil {
		return 0, fmt.Errorf("agent query: %w", err)
	}

	var (
		count    int
		agentErr error
	)
	for m := range messages {
		count++
		if m.Type == agent.MessageError && agentErr == nil {
			agentErr = fmt.Errorf("agent failed: %s", m.Error)
		}
		// kalau ada OnMessage, caller yang menampilkan teks
		if cmd.Verbose && cmd.OnMessage == nil && m.HasContent() {
			s.logger().Info("agent", "text", truncate(m.Content, previewMessage))
		}
		if cmd.OnMessage != nil {
			cmd.OnMessage(m)
		}
	}
	if agentErr == nil && ctx.Err() != nil {
		agentErr = ctx.Err()
	}
	return count, agentErr
}

// finish persists the final state and returns the elapsed milliseconds.
func (s *Service) finish(record *domain.Analysis, status domain.Status, report string, cause error, messages int, start time.Time) int64 {
	dur := s.now().Sub(start).Milliseconds()
	if s.Repo == nil {
		return dur
	}
	record.Status = status
	record.Report = report
	record.Messages = messages
	record.DurationMS = dur
	if cause != nil {
		record.Error = cause.Error()
	}
	// context.Background supaya status tetap tersimpan walau ctx dibatalkan
	if err := s.Repo.Save(context.Background(), record); err != nil {
		s.logger().Error("failed to save analysis result", "id", record.ID, "error", err)
	}
	return dur
}

func readReport(path string) (string, bool, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read report: %w", err)
	}
	return string(b), true, nil
}

func outputPathOf(cmd AnalyzeCommand) string {
	if cmd.OutputPath == "" {
		return DefaultOutputPath
	}
	return cmd.OutputPath
}

func tenantOrDefault(t string) string {
	if t == "" {
		return "local"
	}
	return t
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// truncate potong string ke n rune dan tambahkan "..."
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
