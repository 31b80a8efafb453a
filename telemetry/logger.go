package telemetry

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/emptyset-io/cloudsweep/types"
)

// OTELHook adds trace and span IDs to every log entry
type OTELHook struct{}

func (h OTELHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	ctx := e.GetCtx()
	if ctx == nil {
		return
	}

	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return
	}

	e.Str("trace_id", span.SpanContext().TraceID().String())
	e.Str("span_id", span.SpanContext().SpanID().String())

	if level == zerolog.ErrorLevel {
		span.SetStatus(codes.Error, msg)
	}
}

// Logger wraps zerolog with OTEL integration
type Logger struct {
	zerolog.Logger
}

// NewLogger creates a new logger scoped to one component
func NewLogger(component string) *Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	logger := zerolog.New(os.Stderr).
		With().
		Timestamp().
		Str("component", component).
		Logger().
		Hook(OTELHook{})

	return &Logger{Logger: logger}
}

// SetGlobalLevel applies the configured log level process-wide.
func SetGlobalLevel(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}

// WithContext returns a logger with context (for trace propagation)
func (l *Logger) WithContext(ctx context.Context) *zerolog.Logger {
	logger := l.Logger.With().Ctx(ctx).Logger()
	return &logger
}

// Convenience methods for scan lifecycle events

func (l *Logger) LogTaskStart(ctx context.Context, task types.ScanTask) {
	l.WithContext(ctx).Debug().
		Str("account_id", task.AccountID).
		Str("region", task.Region).
		Str("scanner", task.Scanner).
		Msg("task started")
}

func (l *Logger) LogTaskRetry(ctx context.Context, task types.ScanTask, attempt int, err error) {
	l.WithContext(ctx).Warn().
		Err(err).
		Str("task", task.ID()).
		Int("attempt", attempt).
		Msg("transient failure, retrying")
}

func (l *Logger) LogTaskDone(ctx context.Context, result types.TaskResult) {
	event := l.WithContext(ctx).Info()
	if result.Outcome == types.OutcomeFailure {
		event = l.WithContext(ctx).Error().Err(result.Err)
	}
	event.
		Str("task", result.Task.ID()).
		Str("outcome", string(result.Outcome)).
		Int("findings", len(result.Findings)).
		Int("attempts", result.Attempts).
		Dur("elapsed", result.Elapsed).
		Msg("task finished")
}

func (l *Logger) LogAccountSkipped(ctx context.Context, accountID string, err error) {
	l.WithContext(ctx).Error().
		Err(err).
		Str("account_id", accountID).
		Msg("account skipped")
}
