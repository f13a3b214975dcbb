package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

type Config struct {
	// Level, Format and File fall back to LOG_LEVEL, LOG_FORMAT and LOG_FILE.
	Level  string
	Format string
	File   string
	// Fallback is used when no log file is configured.
	Fallback io.Writer
}

// Init installs the global slog logger and returns it.
func Init(cfg Config) *slog.Logger {
	level := parseLevel(firstNonEmpty(cfg.Level, os.Getenv("LOG_LEVEL")))
	opts := &slog.HandlerOptions{Level: level}

	w := cfg.Fallback
	if w == nil {
		w = os.Stderr
	}

	logFile := firstNonEmpty(cfg.File, os.Getenv("LOG_FILE"))
	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
			slog.Error("failed to create log directory, using fallback", "file", logFile, "error", err)
		} else {
			f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				slog.Error("failed to open log file, using fallback", "file", logFile, "error", err)
			} else {
				w = f
			}
		}
	}

	var handler slog.Handler
	if strings.EqualFold(firstNonEmpty(cfg.Format, os.Getenv("LOG_FORMAT")), "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	l := slog.New(handler)
	slog.SetDefault(l)
	return l
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// NewRequestLogger creates a logger with a unique requestId for API handlers.
func NewRequestLogger() *slog.Logger {
	return slog.With("requestId", uuid.Must(uuid.NewV7()).String())
}
