package netif

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-ddsi/config"
)

// Params Watcher 依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
}

// ConfigFromUnified 从统一配置创建轮询参数
func ConfigFromUnified(cfg *config.Config) WatcherConfig {
	if cfg == nil {
		return DefaultWatcherConfig()
	}
	return WatcherConfig{
		PollInterval:     cfg.Watcher.PollInterval.Duration(),
		FastPollInterval: cfg.Watcher.FastPollInterval.Duration(),
		FastPollDuration: cfg.Watcher.FastPollDuration.Duration(),
	}
}

// NewWatcherFromParams 从参数创建 Watcher
func NewWatcherFromParams(p Params) *Watcher {
	return NewWatcher(ConfigFromUnified(p.UnifiedCfg), nil, nil)
}

// registerLifecycle 注册生命周期
//
// 监控关闭时 Watcher 仍提供初始接口表，但不启动轮询。
func registerLifecycle(lc fx.Lifecycle, w *Watcher, p Params) {
	if p.UnifiedCfg != nil && !p.UnifiedCfg.Watcher.Enable {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// 轮询生命周期跟随应用而不是启动上下文
			w.Start(context.Background())
			return nil
		},
		OnStop: func(_ context.Context) error {
			w.Stop()
			return nil
		},
	})
}

// Module 网络接口模块
var Module = fx.Module("netif",
	fx.Provide(NewWatcherFromParams),
	fx.Invoke(registerLifecycle),
)
