package log

// Logger is a structured, levelled logger. keysAndValues are alternating
// key/value pairs, e.g. "address", addr, "err", err.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	// Fatal logs and terminates the process for the zap implementation.
	Fatal(msg string, keysAndValues ...any)

	// WithKV returns a logger that adds key/value to every line.
	WithKV(key string, value any) Logger
	// GetAllKV returns the pairs added with WithKV.
	GetAllKV() []any
	// WithName appends name to the logger name, dot separated.
	WithName(name string) Logger
	Name() string
	// AddCallerSkip skips extra frames when reporting the caller. Helpers
	// wrapping the logger use AddCallerSkip(1).
	AddCallerSkip(skip int) Logger
}

// Level is the severity of a log line.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelFatal Level = "fatal"
)

// SpanEventRecorder records log lines onto a tracing span.
type SpanEventRecorder interface {
	TraceID() string
	SpanID() string

	RecordEvent(name string, keysAndValues ...any)
	// RecordError records the event and marks the span as failed.
	RecordError(name string, keysAndValues ...any)
}
