package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/dep2p/go-ddsi/pkg/lib/log"
)

// LogConfig 日志配置
type LogConfig struct {
	// Level 日志级别：debug、info、warn、error
	Level string `json:"level"`

	// Format 输出格式：text 或 json
	Format string `json:"format"`
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  "info",
		Format: "text",
	}
}

// Validate 验证日志配置
func (c LogConfig) Validate() error {
	if _, ok := log.ParseLevel(c.Level); !ok {
		return fmt.Errorf("unknown log level %q", c.Level)
	}
	switch strings.ToLower(c.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Format)
	}
	return nil
}

// SlogLevel 返回 slog 级别，无法解析时为 info
func (c LogConfig) SlogLevel() slog.Level {
	if l, ok := log.ParseLevel(c.Level); ok {
		return l
	}
	return slog.LevelInfo
}
