package zlog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"marketrag/internal/config"
)

func TestHelpersWriteToGlobalLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Set(zap.New(core))
	t.Cleanup(func() { Set(zap.NewNop()) })

	Warn("source skipped", zap.String("source", "docs/missing.md"))
	Info("index loaded", zap.Int("chunks", 3))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "docs/missing.md", entries[0].ContextMap()["source"])
	assert.Equal(t, int64(3), entries[1].ContextMap()["chunks"])
}

func TestInitWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marketrag.log")
	require.NoError(t, Init(config.LogConfig{Level: "debug", Path: path, MaxSizeMB: 1}))
	t.Cleanup(func() { Set(zap.NewNop()) })

	Info("hello", zap.String("k", "v"))
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	assert.Error(t, Init(config.LogConfig{Level: "loud"}))
}
