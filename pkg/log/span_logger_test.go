package log_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/djeraseit/parity/pkg/log"
)

type mockSpanEventRecorder struct {
	hasErr    bool
	lastName  string
	lastEvent []any
}

func (ser *mockSpanEventRecorder) TraceID() string { return "trace-1" }
func (ser *mockSpanEventRecorder) SpanID() string  { return "span-1" }

func (ser *mockSpanEventRecorder) RecordEvent(name string, keysAndValues ...any) {
	ser.lastName = name
	ser.lastEvent = keysAndValues
}

func (ser *mockSpanEventRecorder) RecordError(name string, keysAndValues ...any) {
	ser.hasErr = true
	ser.RecordEvent(name, keysAndValues...)
}

func TestSpanLogger(t *testing.T) {
	tws := &testWriteSyncer{}
	base := log.NewZapLogger(log.Config{Format: "json", Level: log.LevelDebug}, tws).
		WithName("keyring").
		WithKV("connectionID", "c1")
	ser := &mockSpanEventRecorder{}
	logger := log.NewSpanLogger(base, ser)

	logger.Info("unlock attempt", "address", "0xabc")
	assert.False(t, ser.hasErr)
	assert.Equal(t, "unlock attempt", ser.lastName)
	assert.Equal(t, []any{"level", "info", "component", "keyring", "connectionID", "c1", "address", "0xabc"}, ser.lastEvent)

	entry := tws.LastEntry(t)
	assert.Equal(t, "trace-1", entry["traceId"])
	assert.Equal(t, "span-1", entry["spanId"])
	assert.Equal(t, "0xabc", entry["address"])
	assert.Contains(t, entry["caller"], "log/span_logger_test.go")

	logger.Error("unlock failed")
	assert.True(t, ser.hasErr)
	assert.Equal(t, "unlock failed", ser.lastName)

	named := logger.WithName("rpc")
	assert.Equal(t, "keyring.rpc", named.Name())
	assert.Equal(t, []any{"connectionID", "c1"}, named.GetAllKV())
}
