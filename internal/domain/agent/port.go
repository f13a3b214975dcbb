package agent

import "context"

// Querier port ke agent eksternal.
// Query returns a channel of messages that is closed when the agent finishes.
// A failed run is reported as a MessageError on the channel.
type Querier interface {
	Query(ctx context.Context, prompt string, opts Options) (<-chan Message, error)
}

// Options konfigurasi statis untuk satu kali query
type Options struct {
	SystemPrompt   string
	AllowedTools   []string
	PermissionMode string
	MaxTurns       int
	Model          string
	WorkDir        string
}

const (
	PermissionAcceptEdits = "acceptEdits"
	DefaultMaxTurns       = 30
)

// DefaultAllowedTools tools yang boleh dipakai agent untuk analisa
var DefaultAllowedTools = []string{"Bash", "Read", "Write", "Glob", "Grep"}

// DefaultOptions returns the analysis options without a system prompt.
func DefaultOptions() Options {
	tools := make([]string, len(DefaultAllowedTools))
	copy(tools, DefaultAllowedTools)
	return Options{
		AllowedTools:   tools,
		PermissionMode: PermissionAcceptEdits,
		MaxTurns:       DefaultMaxTurns,
	}
}
