// Package config 提供统一的配置管理
//
// 本包采用混合配置模式：
//   - 主 Config 结构体嵌入所有子配置
//   - 每个子配置在独立文件中定义，带默认值、Validate 与 With* 构造方法
//   - 支持从 JSON 文件加载
//
// 使用示例：
//
//	cfg := config.NewConfig()
//	cfg.Transport = cfg.Transport.WithSelector(config.TransportUDP6)
//	cfg.Discovery = cfg.Discovery.WithDomainID(3)
//
//	// 从 JSON 文件加载
//	cfg, err := config.LoadFromFile("ddsi.json")
package config

import (
	"errors"
	"fmt"
)

// Config 是 go-ddsi 的完整配置结构
//
// 配置按照功能模块组织：
//   - Transport: 传输选择、组播与套接字参数
//   - Discovery: 域编号、参与者索引与端口映射
//   - Capture: 报文抓包
//   - Watcher: 网络接口变化监控
//   - Metrics: Prometheus 指标
//   - Log: 日志
type Config struct {
	// Transport 传输层配置
	Transport TransportConfig `json:"transport"`

	// Discovery 发现端口与参与者索引配置
	Discovery DiscoveryConfig `json:"discovery"`

	// Capture 抓包配置
	Capture CaptureConfig `json:"capture"`

	// Watcher 网络接口监控配置
	Watcher WatcherConfig `json:"watcher"`

	// Metrics 指标配置
	Metrics MetricsConfig `json:"metrics"`

	// Log 日志配置
	Log LogConfig `json:"log"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Transport: DefaultTransportConfig(),
		Discovery: DefaultDiscoveryConfig(),
		Capture:   DefaultCaptureConfig(),
		Watcher:   DefaultWatcherConfig(),
		Metrics:   DefaultMetricsConfig(),
		Log:       DefaultLogConfig(),
	}
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if err := c.Transport.Validate(); err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	if err := c.Discovery.Validate(); err != nil {
		return fmt.Errorf("discovery: %w", err)
	}
	if err := c.Watcher.Validate(); err != nil {
		return fmt.Errorf("watcher: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}
