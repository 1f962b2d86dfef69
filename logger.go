package pgmux

import (
	"context"
	"log"
	"log/slog"

	"github.com/riverside-labs/pgmux/internal/resilience"
)

// Logger is the sink pgmux reports resilience-layer events to: retry
// attempts, breaker transitions, worker lifecycle. A nil Logger (the
// zero value of Config.Logger) means no logging: it is replaced by a
// no-op logger at construction, so call sites log without a nil check
// of their own. It is a type alias for
// resilience.Logger so a Config.Logger can be handed straight to the
// resilience package without an adapter.
type Logger = resilience.Logger

// nopLogger is used whenever Config.Logger is nil, so call sites don't
// need their own nil checks.
type nopLogger = resilience.NopLogger

// SlogLogger adapts a *slog.Logger into the Logger interface.
type SlogLogger struct {
	logger *slog.Logger
	ctx    context.Context
}

// NewSlogLogger wraps logger, falling back to slog.Default() when nil.
func NewSlogLogger(logger *slog.Logger) SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return SlogLogger{logger: logger, ctx: context.Background()}
}

// WithContext returns a copy of l that attaches ctx to every log call.
func (l SlogLogger) WithContext(ctx context.Context) SlogLogger {
	return SlogLogger{logger: l.logger, ctx: ctx}
}

func (l SlogLogger) Debug(msg string, kv ...any) { l.logger.DebugContext(l.ctx, msg, kv...) }
func (l SlogLogger) Info(msg string, kv ...any)  { l.logger.InfoContext(l.ctx, msg, kv...) }
func (l SlogLogger) Warn(msg string, kv ...any)  { l.logger.WarnContext(l.ctx, msg, kv...) }
func (l SlogLogger) Error(msg string, kv ...any) { l.logger.ErrorContext(l.ctx, msg, kv...) }

// SimpleLogger writes to the standard library's log package, for
// programs that don't otherwise use slog.
type SimpleLogger struct{}

func (SimpleLogger) Debug(msg string, kv ...any) { simpleLog("DEBUG", msg, kv) }
func (SimpleLogger) Info(msg string, kv ...any)  { simpleLog("INFO", msg, kv) }
func (SimpleLogger) Warn(msg string, kv ...any)  { simpleLog("WARN", msg, kv) }
func (SimpleLogger) Error(msg string, kv ...any) { simpleLog("ERROR", msg, kv) }

func simpleLog(level, msg string, kv []any) {
	log.Printf("[%s] %s %v", level, msg, kv)
}
