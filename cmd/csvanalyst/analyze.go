package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bryanwahyu/csvanalyst/internal/application"
	appanalysis "github.com/bryanwahyu/csvanalyst/internal/application/analysis"
	"github.com/bryanwahyu/csvanalyst/internal/config"
	"github.com/bryanwahyu/csvanalyst/internal/domain/agent"
)

const (
	defaultCSVPath = "data/sample_sales.csv"

	defaultPrompt = `
Analyze this sales data and provide:
1. Summary statistics for all numeric columns
2. Top 3 products by total revenue
3. Daily revenue trends
4. Any interesting patterns or insights you discover
`

	rule = "============================================================"
)

type analyzeFlags struct {
	csvPath string
	prompt  string
	output  string
	quiet   bool
	stream  bool
}

// analyze runs one analysis from the command line and returns the exit code.
func (a *app) analyze(ctx context.Context, cfg *config.Config, f analyzeFlags) int {
	out := a.stdout

	csvPath := f.csvPath
	if csvPath == "" {
		csvPath = defaultCSVPath
	}
	userPrompt := f.prompt
	if userPrompt == "" {
		userPrompt = defaultPrompt
	}
	outputPath := f.output
	if outputPath == "" {
		outputPath = cfg.Output.Path
	}

	fmt.Fprintln(out, rule)
	fmt.Fprintln(out, "CSV Analysis Agent")
	fmt.Fprintln(out, rule)

	if err := appanalysis.ValidateEnvironment(a.lookupEnv, cfg.Agent.APIKeyEnv); err != nil {
		fmt.Fprintf(out, "ERROR: %s environment variable not set.\n", cfg.Agent.APIKeyEnv)
		fmt.Fprintf(out, "Please set it with: export %s='your-api-key'\n", cfg.Agent.APIKeyEnv)
		return 1
	}
	if err := appanalysis.ValidateCSVPath(csvPath); err != nil {
		fmt.Fprintf(out, "ERROR: CSV file not found at: %s\n", csvPath)
		fmt.Fprintln(out, "Please ensure the file exists or pass a different path.")
		return 1
	}

	fmt.Fprintf(out, "\nCSV File: %s\n", csvPath)
	fmt.Fprintf(out, "Output: %s\n", outputPath)
	fmt.Fprintf(out, "\nUser Prompt:\n%s\n", userPrompt)
	fmt.Fprintln(out, "\n"+rule)
	fmt.Fprintln(out, "Starting analysis... (this may take a few minutes)")
	fmt.Fprint(out, rule+"\n\n")

	svc := &appanalysis.Service{
		Agent:   a.newAgent(cfg),
		Clock:   application.SystemClock{},
		Options: cfg.AgentOptions(),
		Logger:  a.logger,
	}

	cmd := appanalysis.AnalyzeCommand{
		CSVPath:    csvPath,
		Prompt:     userPrompt,
		OutputPath: outputPath,
		Streaming:  f.stream,
		Verbose:    !f.quiet,
	}
	if !f.quiet {
		cmd.OnMessage = func(m agent.Message) { printProgress(a, m) }
	}

	res, err := svc.Analyze(ctx, cmd)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(out, "\nAnalysis interrupted.")
			return 1
		}
		fmt.Fprintf(out, "\nERROR: Analysis failed with error: %v\n", err)
		return 1
	}

	fmt.Fprintln(out, "\n"+rule)
	fmt.Fprintln(out, "ANALYSIS COMPLETE")
	fmt.Fprintln(out, rule)
	fmt.Fprintf(out, "\nResults saved to: %s\n", outputPath)
	fmt.Fprintln(out, "\n--- Analysis Report ---")
	fmt.Fprintln(out, res.Report)
	return 0
}

func printProgress(a *app, m agent.Message) {
	switch m.Type {
	case agent.MessageText:
		if m.HasContent() {
			fmt.Fprintf(a.stdout, "[Agent] %s\n", preview(m.Content, 200))
		}
	case agent.MessageToolCall:
		fmt.Fprintf(a.stdout, "[Tool] %s\n", m.ToolName)
	case agent.MessageError:
		fmt.Fprintf(a.stderr, "[Error] %s\n", m.Error)
	}
}

func preview(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
