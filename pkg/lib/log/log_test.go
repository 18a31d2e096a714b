package log

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		ok   bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{"warning", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"verbose", slog.LevelInfo, false},
	}

	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestLazyLogger_FollowsDefault(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	logger := Logger("core/test")

	var buf bytes.Buffer
	Setup(&buf, slog.LevelDebug, "text")

	logger.Debug("探测", "k", 1)
	require.Contains(t, buf.String(), "component=core/test")
	assert.Contains(t, buf.String(), "k=1")

	buf.Reset()
	Setup(&buf, slog.LevelWarn, "json")
	logger.Info("不应输出")
	assert.Empty(t, buf.String())
	assert.False(t, logger.Enabled(slog.LevelInfo))

	t.Log("✅ LazyLogger 跟随默认 logger 切换")
}
