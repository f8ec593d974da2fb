package utils

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	slogmulti "github.com/samber/slog-multi"
)

// Logger writes every record to the console (text) and to the per-run log file (JSON).
type Logger struct {
	*slog.Logger
	file *os.File
}

func ParseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(level)))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return l, nil
}

// NewLogger opens (appending) the log file at logPath. Every record is tagged
// with the stage name and a fresh run id.
func NewLogger(logPath, stage string, level slog.Level) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	l := newLogger(os.Stderr, logFile, stage, level)
	l.file = logFile
	return l, nil
}

func newLogger(console, file io.Writer, stage string, level slog.Level) *Logger {
	handler := slogmulti.Fanout(
		slog.NewTextHandler(console, &slog.HandlerOptions{Level: level}),
		slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level}),
	)
	return &Logger{
		Logger: slog.New(handler).With("stage", stage, "run_id", uuid.NewString()),
	}
}

// NewWriterLogger logs to w only; used by tests and by subcommands that have no log file.
func NewWriterLogger(w io.Writer, stage string, level slog.Level) *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})).With("stage", stage),
	}
}

// Close releases the log file.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}
