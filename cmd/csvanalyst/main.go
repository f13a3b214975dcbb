package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/csvanalyst/internal/config"
	"github.com/bryanwahyu/csvanalyst/internal/domain/agent"
	"github.com/bryanwahyu/csvanalyst/internal/infra/agent/claude"
	"github.com/bryanwahyu/csvanalyst/internal/logger"
)

// app holds everything the commands touch outside the process, so tests can
// swap the agent and capture output.
type app struct {
	stdout    io.Writer
	stderr    io.Writer
	lookupEnv func(string) (string, bool)
	newAgent  func(cfg *config.Config) agent.Querier
	logger    *slog.Logger
}

func defaultApp() *app {
	return &app{
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		lookupEnv: os.LookupEnv,
		logger:    slog.Default(),
		newAgent: func(cfg *config.Config) agent.Querier {
			return claude.New(cfg.Agent.Binary, cfg.Agent.Timeout)
		},
	}
}

func main() {
	logger.Init(logger.Config{})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], defaultApp())
	stop()
	os.Exit(code)
}

// exitError carries a process exit code out of a command without printing
// anything extra; the command already told the user what went wrong.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func execute(ctx context.Context, args []string, a *app) int {
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var ee exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	fmt.Fprintf(a.stderr, "ERROR: %v\n", err)
	return 1
}

func (a *app) rootCmd() *cobra.Command {
	var (
		configPath string
		opts       analyzeFlags
	)
	cmd := &cobra.Command{
		Use:   "csvanalyst [csv_path] [prompt]",
		Short: "Analyze a CSV file with an autonomous coding agent",
		Long: "Hands a CSV file and a question to the Claude CLI agent, which explores the data\n" +
			"with its own tools and writes a report file. The report is printed when done.",
		Args:          cobra.MaximumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(configPath)
			if err != nil {
				return err
			}
			if len(args) >= 1 {
				opts.csvPath = args[0]
			}
			if len(args) >= 2 {
				opts.prompt = args[1]
			}
			if code := a.analyze(cmd.Context(), cfg, opts); code != 0 {
				return exitError{code: code}
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $CONFIG_PATH or config.yaml)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "report output path (default from config)")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "do not print agent progress")
	cmd.Flags().BoolVar(&opts.stream, "stream", false, "use the short streaming prompt")

	cmd.AddCommand(a.serveCmd(&configPath))
	return cmd
}

func (a *app) loadConfig(flagPath string) (*config.Config, error) {
	path := flagPath
	if path == "" {
		path = "config.yaml"
		if v, ok := a.lookupEnv("CONFIG_PATH"); ok && v != "" {
			path = v
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config load error: %w", err)
	}
	return cfg, nil
}
