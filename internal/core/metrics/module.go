package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-ddsi/config"
	"github.com/dep2p/go-ddsi/pkg/lib/log"
)

var logger = log.Logger("core/metrics")

// Config 指标配置
type Config struct {
	// Enabled 是否启用指标收集
	Enabled bool

	// Namespace 指标命名空间
	Namespace string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		Namespace: "ddsi",
	}
}

// ConfigFromUnified 从统一配置创建指标配置
func ConfigFromUnified(cfg *config.Config) Config {
	if cfg == nil {
		return DefaultConfig()
	}
	return Config{
		Enabled:   cfg.Metrics.Enable,
		Namespace: cfg.Metrics.Namespace,
	}
}

// Params Metrics 依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config         `optional:"true"`
	Registerer prometheus.Registerer `optional:"true"`
}

// Module 是 metrics 的 Fx 模块
var Module = fx.Module("metrics",
	fx.Provide(NewTransportFromParams),
)

// NewTransportFromParams 从参数创建传输指标
//
// 指标关闭时返回 nil，调用方的记录方法对 nil 安全。
func NewTransportFromParams(p Params) (*Transport, error) {
	cfg := ConfigFromUnified(p.UnifiedCfg)
	if !cfg.Enabled {
		return nil, nil
	}

	t := NewTransport(cfg.Namespace, nil)
	if err := t.Register(p.Registerer); err != nil {
		return nil, err
	}
	logger.Debug("传输指标已创建", "namespace", cfg.Namespace, "registered", p.Registerer != nil)
	return t, nil
}
