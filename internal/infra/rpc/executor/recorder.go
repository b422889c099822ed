package executor

import (
	"context"
	"log/slog"
	"time"
)

// LogRecorder logs retries at debug level and failed outcomes at warn level.
type LogRecorder struct {
	Logger *slog.Logger
}

// NewLogRecorder returns a recorder logging to logger, or slog.Default when nil.
func NewLogRecorder(logger *slog.Logger) *LogRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogRecorder{Logger: logger.With("component", "executor")}
}

func (r *LogRecorder) OnRetry(ctx context.Context, method string, attempt int, err error, delay time.Duration) {
	r.Logger.DebugContext(ctx, "Retrying RPC",
		"method", method,
		"attempt", attempt,
		"backoff", delay,
		"error", err,
	)
}

func (r *LogRecorder) OnOutcome(ctx context.Context, o Outcome) {
	if o.Err == nil {
		r.Logger.DebugContext(ctx, "RPC completed",
			"method", o.Method,
			"attempts", o.Attempts,
			"elapsed", o.Elapsed,
		)
		return
	}
	r.Logger.WarnContext(ctx, "RPC failed",
		"method", o.Method,
		"code", o.Code().String(),
		"attempts", o.Attempts,
		"elapsed", o.Elapsed,
		"error", o.Err,
	)
}

// RecorderFunc adapts an outcome callback to a Recorder that ignores retries.
type RecorderFunc func(ctx context.Context, o Outcome)

func (f RecorderFunc) OnRetry(context.Context, string, int, error, time.Duration) {}

func (f RecorderFunc) OnOutcome(ctx context.Context, o Outcome) { f(ctx, o) }
