package corpusdb

import (
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with corpusdb-specific context helpers.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug).
func NewJSONLogger(level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

// WithAccount adds an account id field to the logger.
func (l *Logger) WithAccount(id string) *Logger {
	return &Logger{Logger: l.Logger.With("account_id", id)}
}

// WithKnowledgeBase adds a knowledge base id field to the logger.
func (l *Logger) WithKnowledgeBase(id string) *Logger {
	return &Logger{Logger: l.Logger.With("knowledge_base_id", id)}
}

// WithDocument adds a document id field to the logger.
func (l *Logger) WithDocument(id string) *Logger {
	return &Logger{Logger: l.Logger.With("document_id", id)}
}
