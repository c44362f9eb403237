package logging

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/Vodeneev/surebet/internal/pkg/config"
)

// SetupLogger installs the global slog logger for a binary. Records always go
// to stdout as text; with cfg.JSONFile set they are also appended to that
// file as JSON. The returned closer releases the file, if any.
func SetupLogger(cfg *config.LoggingConfig, serviceName string) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	return setupLogger(os.Stdout, cfg.JSONFile, level, serviceName)
}

func setupLogger(stdout io.Writer, jsonFile string, level slog.Level, serviceName string) (*slog.Logger, io.Closer, error) {
	opts := &slog.HandlerOptions{Level: level}
	handlers := []slog.Handler{slog.NewTextHandler(stdout, opts)}

	var closer io.Closer = nopCloser{}
	if jsonFile != "" {
		f, err := os.OpenFile(jsonFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			log.Printf("Warning: failed to open JSON log file %s: %v", jsonFile, err)
			log.Println("Continuing with stdout logging only")
		} else {
			handlers = append(handlers, slog.NewJSONHandler(f, opts))
			closer = f
		}
	}

	logger := slog.New(NewMultiHandler(handlers...)).With("service", serviceName)
	slog.SetDefault(logger)

	return logger, closer, nil
}

// ParseLevel accepts DEBUG, INFO, WARN/WARNING and ERROR in any case. Empty
// means INFO.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "INFO":
		return slog.LevelInfo, nil
	case "DEBUG":
		return slog.LevelDebug, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// MultiHandler sends each record to every handler that accepts its level.
type MultiHandler struct {
	handlers []slog.Handler
}

// NewMultiHandler combines handlers.
func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: handlers}
}

func (m *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *MultiHandler) Handle(ctx context.Context, record slog.Record) error {
	var lastErr error
	for _, h := range m.handlers {
		if h.Enabled(ctx, record.Level) {
			if err := h.Handle(ctx, record.Clone()); err != nil {
				lastErr = err
			}
		}
	}
	return lastErr
}

func (m *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}
	return &MultiHandler{handlers: handlers}
}

func (m *MultiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithGroup(name)
	}
	return &MultiHandler{handlers: handlers}
}
