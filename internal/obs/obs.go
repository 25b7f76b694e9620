package obs

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunHeader carries the walkthrough run id on every browser request so the
// fixture's access log lines up with the run that produced it.
const RunHeader = "X-Walkthrough-Run"

type correlationContextKey struct{}

// Correlation carries run and request correlation identifiers.
type Correlation struct {
	RunID     string
	Step      string
	RequestID string
}

var (
	loggerMu sync.RWMutex
	logger   *slog.Logger
	level    = new(slog.LevelVar)
)

// Init configures the global structured logger.
func Init() {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if logger != nil {
		return
	}
	logger = newLogger(os.Stderr)
	slog.SetDefault(logger)
}

// SetLevel changes the minimum level of the global logger.
func SetLevel(l slog.Level) {
	level.Set(l)
}

// ParseLevel maps debug|info|warn|error to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetOutputForTests overrides the global logger output for tests.
func SetOutputForTests(w io.Writer) func() {
	loggerMu.Lock()
	prev := logger
	prevLevel := level.Level()
	logger = newLogger(w)
	level.Set(slog.LevelDebug)
	slog.SetDefault(logger)
	loggerMu.Unlock()

	return func() {
		loggerMu.Lock()
		defer loggerMu.Unlock()
		if prev != nil {
			logger = prev
		} else {
			logger = newLogger(os.Stderr)
		}
		level.Set(prevLevel)
		slog.SetDefault(logger)
	}
}

func newLogger(w io.Writer) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.TimeKey {
				t, ok := attr.Value.Any().(time.Time)
				if ok {
					return slog.String(slog.TimeKey, t.UTC().Format(time.RFC3339Nano))
				}
			}
			return attr
		},
	})
	return slog.New(handler)
}

func globalLogger() *slog.Logger {
	loggerMu.RLock()
	l := logger
	loggerMu.RUnlock()
	if l != nil {
		return l
	}
	Init()
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// Pkg returns a logger tagged with package name.
func Pkg(pkg string) *slog.Logger {
	return globalLogger().With("pkg", pkg)
}

// From returns a logger with correlation fields from context.
func From(ctx context.Context) *slog.Logger {
	l := globalLogger()
	attrs := correlationAttrs(CorrelationFromContext(ctx))
	if len(attrs) == 0 {
		return l
	}
	return l.With(attrs...)
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return "run-" + uuid.NewString()
}

// WithRunID stores run_id in context.
func WithRunID(ctx context.Context, runID string) context.Context {
	corr := CorrelationFromContext(ctx)
	corr.RunID = strings.TrimSpace(runID)
	return context.WithValue(ctx, correlationContextKey{}, corr)
}

// WithStep stores the current walkthrough step in context.
func WithStep(ctx context.Context, step string) context.Context {
	corr := CorrelationFromContext(ctx)
	corr.Step = step
	return context.WithValue(ctx, correlationContextKey{}, corr)
}

// WithCorrelation merges non-empty correlation fields into context.
func WithCorrelation(ctx context.Context, corr Correlation) context.Context {
	existing := CorrelationFromContext(ctx)
	if corr.RunID != "" {
		existing.RunID = corr.RunID
	}
	if corr.Step != "" {
		existing.Step = corr.Step
	}
	if corr.RequestID != "" {
		existing.RequestID = corr.RequestID
	}
	return context.WithValue(ctx, correlationContextKey{}, existing)
}

// CorrelationFromContext returns correlation fields from context.
func CorrelationFromContext(ctx context.Context) Correlation {
	if ctx == nil {
		return Correlation{}
	}
	corr, ok := ctx.Value(correlationContextKey{}).(Correlation)
	if !ok {
		return Correlation{}
	}
	return corr
}

func correlationAttrs(corr Correlation) []any {
	attrs := make([]any, 0, 6)
	if corr.RunID != "" {
		attrs = append(attrs, "run_id", corr.RunID)
	}
	if corr.Step != "" {
		attrs = append(attrs, "step", corr.Step)
	}
	if corr.RequestID != "" {
		attrs = append(attrs, "request_id", corr.RequestID)
	}
	return attrs
}

func newRequestID() string {
	return "req-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
