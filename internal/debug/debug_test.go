package debug

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestDebugOutputIsGated(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	DebugOutput(false, "hidden %d", 1)
	assert.Equal(t, 0, logs.Len())

	DebugHeader(true)
	DebugOutput(true, "loaded %d rows", 42)
	DebugFooter(true)

	messages := make([]string, 0, logs.Len())
	for _, e := range logs.All() {
		messages = append(messages, e.Message)
	}
	assert.Equal(t, []string{"=== DEBUG START ===", "loaded 42 rows", "=== DEBUG END ==="}, messages)
}

func TestDebugTiming(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	DebugTiming(false, "skip")()
	assert.Equal(t, 0, logs.Len())

	DebugTiming(true, "stage address")()
	entries := logs.FilterMessage("Completed: stage address").All()
	if assert.Len(t, entries, 1) {
		assert.Contains(t, entries[0].ContextMap(), "took")
	}
}
