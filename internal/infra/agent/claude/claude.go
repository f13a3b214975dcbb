package claude

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/bryanwahyu/csvanalyst/internal/domain/agent"
)

const (
	DefaultBinary  = "claude"
	readBufferSize = 64 * 1024
)

// Agent implements agent.Querier by running the Claude CLI in print mode
// and decoding its stream-json output.
type Agent struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

// New buat Agent. timeout 0 berarti tanpa batas waktu.
func New(binary string, timeout time.Duration) *Agent {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Agent{binary: binary, timeout: timeout, logger: slog.Default()}
}

// Query starts the CLI and streams its messages. The returned channel is
// closed once the process has exited and every message has been delivered.
func (a *Agent) Query(ctx context.Context, prompt string, opts agent.Options) (<-chan agent.Message, error) {
	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if a.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, a.timeout)
	}

	cmd := exec.CommandContext(runCtx, a.binary, buildArgs(prompt, opts)...)
	cmd.Dir = opts.WorkDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start %s: %w", a.binary, err)
	}
	a.logger.Debug("agent started", "binary", a.binary, "pid", cmd.Process.Pid, "max_turns", opts.MaxTurns)

	messages := make(chan agent.Message)

	go func() {
		defer close(messages)
		defer cancel()

		stderrCh := make(chan string, 1)
		go func() {
			b, _ := io.ReadAll(stderr)
			stderrCh <- string(b)
		}()

		// send follows the caller's ctx; runCtx expiring kills the process,
		// which ends the stream and is reported after Wait
		send := func(m agent.Message) bool {
			select {
			case messages <- m:
				return true
			case <-ctx.Done():
				return false
			}
		}

		reader := bufio.NewReaderSize(stdout, readBufferSize)
		consumerGone := false
		for !consumerGone {
			line, err := reader.ReadBytes('\n')
			for _, m := range parseLine(bytes.TrimSpace(line)) {
				if !send(m) {
					consumerGone = true
					break
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					a.logger.Warn("agent stdout read error", "error", err)
				}
				break
			}
		}
		// drain so the process can exit
		_, _ = io.Copy(io.Discard, reader)

		stderrContent := strings.TrimSpace(<-stderrCh)
		waitErr := cmd.Wait()
		if consumerGone || waitErr == nil || ctx.Err() != nil {
			return
		}
		msg := stderrContent
		if msg == "" || errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			msg = exitMessage(runCtx, waitErr)
		}
		send(agent.Message{Type: agent.MessageError, Error: msg})
	}()

	return messages, nil
}

func exitMessage(ctx context.Context, err error) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "agent timed out"
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return fmt.Sprintf("agent exited with code %d", ee.ExitCode())
	}
	return err.Error()
}

// buildArgs maps Options to CLI flags.
func buildArgs(prompt string, opts agent.Options) []string {
	args := []string{
		"-p", prompt,
		"--output-format", "stream-json",
		"--verbose",
	}
	if opts.SystemPrompt != "" {
		args = append(args, "--system-prompt", opts.SystemPrompt)
	}
	if len(opts.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(opts.AllowedTools, ","))
	}
	if opts.PermissionMode != "" {
		args = append(args, "--permission-mode", opts.PermissionMode)
	}
	if opts.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(opts.MaxTurns))
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	return args
}

// cliEvent represents a raw event from Claude CLI verbose stream-json output.
type cliEvent struct {
	Type    string          `json:"type"`
	Subtype string          `json:"subtype,omitempty"`
	Message json.RawMessage `json:"message,omitempty"`
	Result  string          `json:"result,omitempty"`
	IsError bool            `json:"is_error,omitempty"`
}

type cliMessage struct {
	Content []cliContentBlock `json:"content"`
}

type cliContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

// parseLine decodes a single stream-json line. Unknown, system and
// malformed lines yield nothing.
func parseLine(line []byte) []agent.Message {
	if len(line) == 0 {
		return nil
	}
	var ev cliEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		return nil
	}

	switch ev.Type {
	case "assistant":
		return parseAssistant(ev)
	case "user":
		return parseUser(ev)
	case "result":
		if ev.IsError || strings.HasPrefix(ev.Subtype, "error") {
			msg := ev.Result
			if msg == "" {
				msg = ev.Subtype
			}
			return []agent.Message{{Type: agent.MessageError, Error: msg}}
		}
		return []agent.Message{{Type: agent.MessageResult, Content: ev.Result}}
	default:
		return nil
	}
}

func parseAssistant(ev cliEvent) []agent.Message {
	var msg cliMessage
	if ev.Message == nil || json.Unmarshal(ev.Message, &msg) != nil {
		return nil
	}

	var out []agent.Message
	var text []string
	flush := func() {
		if len(text) > 0 {
			out = append(out, agent.Message{Type: agent.MessageText, Content: strings.Join(text, "")})
			text = nil
		}
	}
	for _, b := range msg.Content {
		switch b.Type {
		case "text":
			if b.Text != "" {
				text = append(text, b.Text)
			}
		case "tool_use":
			flush()
			out = append(out, agent.Message{
				Type:      agent.MessageToolCall,
				ToolName:  b.Name,
				ToolInput: b.Input,
				ToolUseID: b.ID,
			})
		}
	}
	flush()
	return out
}

func parseUser(ev cliEvent) []agent.Message {
	var msg cliMessage
	if ev.Message == nil || json.Unmarshal(ev.Message, &msg) != nil {
		return nil
	}
	var out []agent.Message
	for _, b := range msg.Content {
		if b.Type != "tool_result" {
			continue
		}
		out = append(out, agent.Message{
			Type:       agent.MessageToolResult,
			ToolUseID:  b.ToolUseID,
			ToolResult: toolResultText(b.Content),
		})
	}
	return out
}

// tool_result content is either a plain string or a list of text blocks.
func toolResultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []cliContentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var parts []string
		for _, b := range blocks {
			if b.Type == "text" {
				parts = append(parts, b.Text)
			}
		}
		return strings.Join(parts, "\n")
	}
	return string(raw)
}
