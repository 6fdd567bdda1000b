// Package log is the structured logger used across the keyring service.
//
// Loggers are passed explicitly or carried in a context.Context; nothing in
// this package keeps global state.
//
//	logger := log.NewZapLogger(log.Config{Format: "json", Level: log.LevelInfo})
//	logger = logger.WithName("rpc").WithKV("connectionID", id)
//	logger.Info("request handled", "method", method)
//
// Three implementations are provided: ZapLogger for production output,
// NoopLogger for tests, and SpanLogger, which additionally records every
// line as an event on an OpenTelemetry span. SetContextLogger picks the span
// logger automatically when the context carries a valid span.
//
// Config is read from LOG_FORMAT (console, logfmt, json), LOG_LEVEL and
// LOG_OUTPUT (stderr, stdout or a file path).
package log
