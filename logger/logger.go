// Package logger configures the global zerolog logger and request-scoped loggers.
package logger

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Config represents logger configuration.
type Config struct {
	Output string // "stdout", "stderr", or file path
	Level  string // "debug", "info", "warn", "error"
}

// Init initializes the global zerolog logger with the given configuration.
// The returned closer releases the log file, if any.
func Init(cfg Config) (io.Closer, error) {
	level := ParseLevel(cfg.Level)

	var writer io.Writer
	var closer io.Closer = nopCloser{}
	console := true
	switch strings.ToLower(cfg.Output) {
	case "stdout", "":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open log file %s", cfg.Output)
		}
		writer, closer, console = f, f, false
	}

	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
		parts := strings.Split(file, string(filepath.Separator))
		if len(parts) > 1 {
			return filepath.Join(parts[len(parts)-2:]...) + ":" + strconv.Itoa(line)
		}
		return filepath.Base(file) + ":" + strconv.Itoa(line)
	}

	logger := New(writer, level, console)
	zerolog.DefaultContextLogger = &logger
	zlog.Logger = logger

	return closer, nil
}

// New builds a logger writing to w. Console output is human readable, anything else is JSON.
// Caller information is only attached at debug level.
func New(w io.Writer, level zerolog.Level, console bool) zerolog.Logger {
	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}
	ctx := zerolog.New(w).Level(level).With().Timestamp()
	if level == zerolog.DebugLevel {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}

// ParseLevel parses the log level string.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithRequest returns a context carrying a child logger tagged with a fresh
// request id and the chat the request came from.
func WithRequest(ctx context.Context, chatID int64) (context.Context, string) {
	requestID := uuid.NewString()
	l := zerolog.Ctx(ctx).With().
		Str("request_id", requestID).
		Int64("chat_id", chatID).
		Logger()
	return l.WithContext(ctx), requestID
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
