package analysis

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/csvanalyst/internal/domain/agent"
	domain "github.com/bryanwahyu/csvanalyst/internal/domain/analysis"
)

// fakeAgent replays messages and optionally writes a report after the last one.
type fakeAgent struct {
	messages []agent.Message
	queryErr error
	// writeTo/report simulate the agent's file-write side effect
	writeTo string
	report  string

	mu      sync.Mutex
	calls   int
	prompts []string
	opts    []agent.Options
}

func (f *fakeAgent) Query(ctx context.Context, p string, opts agent.Options) (<-chan agent.Message, error) {
	f.mu.Lock()
	f.calls++
	f.prompts = append(f.prompts, p)
	f.opts = append(f.opts, opts)
	f.mu.Unlock()

	if f.queryErr != nil {
		return nil, f.queryErr
	}
	ch := make(chan agent.Message)
	go func() {
		defer close(ch)
		for _, m := range f.messages {
			ch <- m
		}
		if f.writeTo != "" {
			_ = os.WriteFile(f.writeTo, []byte(f.report), 0o644)
		}
	}()
	return ch, nil
}

type memRepo struct {
	mu    sync.Mutex
	saved []domain.Analysis
	rows  map[domain.ID]domain.Analysis
}

func newMemRepo() *memRepo { return &memRepo{rows: map[domain.ID]domain.Analysis{}} }

func (r *memRepo) Save(_ context.Context, a *domain.Analysis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, *a)
	r.rows[a.ID] = *a
	return nil
}

func (r *memRepo) Get(_ context.Context, tenant string, id domain.ID) (*domain.Analysis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[id]
	if !ok || a.TenantID != tenant {
		return nil, domain.ErrNotFound
	}
	return &a, nil
}

func (r *memRepo) Paginate(_ context.Context, tenant string, _, _ int) ([]*domain.Analysis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Analysis
	for _, a := range r.rows {
		if a.TenantID == tenant {
			a := a
			out = append(out, &a)
		}
	}
	return out, nil
}

type fakeStore struct {
	keys []string
	err  error
}

func (s *fakeStore) Upload(_ context.Context, localPath, key string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.keys = append(s.keys, key)
	return "http://minio/reports/" + key, nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func setup(t *testing.T) (csvPath, outputPath string) {
	t.Helper()
	dir := t.TempDir()
	csvPath = filepath.Join(dir, "sales.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("product,revenue\na,1\n"), 0o644))
	return csvPath, filepath.Join(dir, "out", "analysis_report.txt")
}

func TestAnalyzeReturnsReportContent(t *testing.T) {
	csvPath, out := setup(t)
	report := "Top product: a\nRevenue: 1\n"
	fa := &fakeAgent{
		messages: []agent.Message{{Type: agent.MessageText, Content: "exploring"}},
		writeTo:  out,
		report:   report,
	}
	svc := &Service{Agent: fa, Options: agent.DefaultOptions()}

	res, err := svc.Analyze(context.Background(), AnalyzeCommand{CSVPath: csvPath, Prompt: "top?", OutputPath: out})
	require.NoError(t, err)

	assert.Equal(t, report, res.Report)
	assert.True(t, res.Generated)
	assert.Equal(t, string(domain.StatusSuccess), res.Status)
	assert.Equal(t, 1, res.Messages)
	assert.Equal(t, 1, fa.calls)
}

func TestAnalyzeFallbackWhenNoReport(t *testing.T) {
	csvPath, out := setup(t)
	svc := &Service{Agent: &fakeAgent{}}

	res, err := svc.Analyze(context.Background(), AnalyzeCommand{CSVPath: csvPath, Prompt: "q", OutputPath: out})
	require.NoError(t, err)
	assert.Equal(t, FallbackReport, res.Report)
	assert.False(t, res.Generated)

	res, err = svc.Analyze(context.Background(), AnalyzeCommand{CSVPath: csvPath, Prompt: "q", OutputPath: out, Streaming: true})
	require.NoError(t, err)
	assert.Equal(t, FallbackStreamingReport, res.Report)
}

func TestAnalyzeCreatesOutputDirectory(t *testing.T) {
	csvPath, out := setup(t)
	svc := &Service{Agent: &fakeAgent{}}

	_, err := svc.Analyze(context.Background(), AnalyzeCommand{CSVPath: csvPath, OutputPath: out})
	require.NoError(t, err)

	info, err := os.Stat(filepath.Dir(out))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestAnalyzeSendsPromptAndOptions(t *testing.T) {
	csvPath, out := setup(t)
	fa := &fakeAgent{}
	svc := &Service{Agent: fa, Options: agent.DefaultOptions()}

	_, err := svc.Analyze(context.Background(), AnalyzeCommand{CSVPath: csvPath, Prompt: "daily trends", OutputPath: out})
	require.NoError(t, err)

	require.Len(t, fa.prompts, 1)
	csvAbs, outAbs, err := ResolvePaths(csvPath, out)
	require.NoError(t, err)
	assert.Contains(t, fa.prompts[0], "Analyze the CSV file located at: "+csvAbs)
	assert.Contains(t, fa.prompts[0], "Save your final analysis and conclusions to: "+outAbs)
	assert.Contains(t, fa.prompts[0], "daily trends")

	opts := fa.opts[0]
	assert.NotEmpty(t, opts.SystemPrompt)
	assert.Equal(t, []string{"Bash", "Read", "Write", "Glob", "Grep"}, opts.AllowedTools)
	assert.Equal(t, "acceptEdits", opts.PermissionMode)
	assert.Equal(t, 30, opts.MaxTurns)
}

func TestAnalyzeForwardsMessagesInOrder(t *testing.T) {
	csvPath, out := setup(t)
	msgs := []agent.Message{
		{Type: agent.MessageText, Content: "one"},
		{Type: agent.MessageToolCall, ToolName: "Bash"},
		{Type: agent.MessageText, Content: "two"},
	}
	svc := &Service{Agent: &fakeAgent{messages: msgs}}

	var got []agent.Message
	_, err := svc.Analyze(context.Background(), AnalyzeCommand{
		CSVPath: csvPath, OutputPath: out, Verbose: true,
		OnMessage: func(m agent.Message) { got = append(got, m) },
	})
	require.NoError(t, err)
	assert.Equal(t, msgs, got)
}

func TestAnalyzePropagatesQueryError(t *testing.T) {
	csvPath, out := setup(t)
	boom := errors.New("boom")
	svc := &Service{Agent: &fakeAgent{queryErr: boom}}

	_, err := svc.Analyze(context.Background(), AnalyzeCommand{CSVPath: csvPath, OutputPath: out})
	assert.ErrorIs(t, err, boom)
}

func TestAnalyzePropagatesStreamError(t *testing.T) {
	csvPath, out := setup(t)
	fa := &fakeAgent{
		messages: []agent.Message{
			{Type: agent.MessageText, Content: "start"},
			{Type: agent.MessageError, Error: "rate limited"},
		},
		writeTo: out,
		report:  "partial",
	}
	repo := newMemRepo()
	svc := &Service{Agent: fa, Repo: repo}

	res, err := svc.Analyze(context.Background(), AnalyzeCommand{CSVPath: csvPath, OutputPath: out})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
	assert.Equal(t, 2, res.Messages)

	stored := repo.rows[domain.ID(res.ID)]
	assert.Equal(t, domain.StatusFailed, stored.Status)
	assert.Contains(t, stored.Error, "rate limited")
}

func TestAsyncMatchesBlocking(t *testing.T) {
	csvPath, out := setup(t)
	fa := &fakeAgent{writeTo: out, report: "same report"}
	svc := &Service{Agent: fa, Clock: fixedClock{t: time.Unix(1700000000, 0)}}
	cmd := AnalyzeCommand{ID: "fixed", CSVPath: csvPath, Prompt: "q", OutputPath: out}

	direct, err := svc.Analyze(context.Background(), cmd)
	require.NoError(t, err)

	o := <-svc.AnalyzeAsync(context.Background(), cmd)
	require.NoError(t, o.Err)

	blocking, err := svc.Run(cmd)
	require.NoError(t, err)

	assert.Equal(t, direct, o.Result)
	assert.Equal(t, direct, blocking)
}

func TestResolvePathsIdempotent(t *testing.T) {
	a1, o1, err := ResolvePaths("data/sales.csv", "output/report.txt")
	require.NoError(t, err)
	a2, o2, err := ResolvePaths("data/sales.csv", "output/report.txt")
	require.NoError(t, err)

	assert.True(t, filepath.IsAbs(a1))
	assert.Equal(t, a1, a2)
	assert.Equal(t, o1, o2)

	p1, err := BuildPrompt(AnalyzeCommand{CSVPath: "data/sales.csv", Prompt: "q"})
	require.NoError(t, err)
	p2, err := BuildPrompt(AnalyzeCommand{CSVPath: "data/sales.csv", Prompt: "q"})
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
	assert.Contains(t, p1, a1)
}

func TestAnalyzePersistsAndArchives(t *testing.T) {
	csvPath, out := setup(t)
	repo := newMemRepo()
	store := &fakeStore{}
	svc := &Service{
		Agent:   &fakeAgent{writeTo: out, report: "r"},
		Repo:    repo,
		Reports: store,
	}

	res, err := svc.Analyze(context.Background(), AnalyzeCommand{TenantID: "acme", CSVPath: csvPath, Prompt: "q", OutputPath: out})
	require.NoError(t, err)

	require.Len(t, repo.saved, 2)
	assert.Equal(t, domain.StatusRunning, repo.saved[0].Status)
	assert.Equal(t, domain.StatusSuccess, repo.saved[1].Status)
	assert.Equal(t, "r", repo.saved[1].Report)

	require.Len(t, store.keys, 1)
	assert.Equal(t, "acme/"+res.ID+"/analysis_report.txt", store.keys[0])
	assert.Equal(t, "http://minio/reports/"+store.keys[0], res.ReportURL)

	got, err := svc.Get(context.Background(), "acme", domain.ID(res.ID))
	require.NoError(t, err)
	assert.Equal(t, res.ReportURL, got.ReportURL)
}

func TestAnalyzeUploadFailureKeepsResult(t *testing.T) {
	csvPath, out := setup(t)
	svc := &Service{
		Agent:   &fakeAgent{writeTo: out, report: "r"},
		Reports: &fakeStore{err: errors.New("minio down")},
	}

	res, err := svc.Analyze(context.Background(), AnalyzeCommand{CSVPath: csvPath, OutputPath: out})
	require.NoError(t, err)
	assert.Equal(t, "r", res.Report)
	assert.Empty(t, res.ReportURL)
}

func TestGetAndListWithoutRepo(t *testing.T) {
	svc := &Service{Agent: &fakeAgent{}}

	_, err := svc.Get(context.Background(), "acme", "x")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	page, err := svc.List(context.Background(), "acme", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.PageSize)
	assert.Empty(t, page.Data)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
	assert.Equal(t, "éé...", truncate("ééé", 2))
}
