package config

import (
	"errors"
	"time"
)

// WatcherConfig 网络接口监控配置
//
// 检测到接口变化后进入快速轮询，持续 FastPollDuration 后恢复正常间隔。
type WatcherConfig struct {
	// Enable 是否启用监控（接口变化时重绑定参与者套接字）
	Enable bool `json:"enable"`

	// PollInterval 正常轮询间隔
	PollInterval Duration `json:"poll_interval"`

	// FastPollInterval 快速轮询间隔
	FastPollInterval Duration `json:"fast_poll_interval"`

	// FastPollDuration 快速轮询持续时间
	FastPollDuration Duration `json:"fast_poll_duration"`
}

// DefaultWatcherConfig 返回默认监控配置
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		Enable:           true,
		PollInterval:     Duration(2 * time.Second),
		FastPollInterval: Duration(500 * time.Millisecond),
		FastPollDuration: Duration(10 * time.Second),
	}
}

// Validate 验证监控配置
func (c WatcherConfig) Validate() error {
	if !c.Enable {
		return nil
	}
	if c.PollInterval <= 0 || c.FastPollInterval <= 0 {
		return errors.New("poll intervals must be positive")
	}
	if c.FastPollDuration < 0 {
		return errors.New("fast poll duration must not be negative")
	}
	return nil
}
