package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitWritesJSONToFile(t *testing.T) {
	prev, prevSink := Log, sink
	t.Cleanup(func() { Log, sink = prev, prevSink })

	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, Init("debug", "json", path))

	Info("request received", zap.String("llm_type", "openai"))
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"request received"`)
	assert.Contains(t, string(data), `"llm_type":"openai"`)
	assert.Contains(t, string(data), `"service":"insight-router"`)
}

func TestNamedTagsComponent(t *testing.T) {
	prev, prevSink := Log, sink
	t.Cleanup(func() { Log, sink = prev, prevSink })

	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, Init("info", "json", path))

	Named("ratelimit").Warn("Rate limit exceeded")
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"ratelimit"`)
}

func TestReinitClosesPreviousFile(t *testing.T) {
	prev, prevSink := Log, sink
	t.Cleanup(func() { Log, sink = prev, prevSink })

	dir := t.TempDir()
	require.NoError(t, Init("info", "json", filepath.Join(dir, "first.log")))
	first := sink.(*os.File)

	require.NoError(t, Init("info", "console", "stderr"))
	assert.Nil(t, sink)

	_, err := first.Write([]byte("x"))
	assert.Error(t, err)
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	prev := Log
	t.Cleanup(func() { Log = prev })

	err := Init("loud", "json", "stdout")
	require.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abc...", Truncate("abcdef", 3))
	assert.Equal(t, "żół...", Truncate("żółw i kot", 3))
}
