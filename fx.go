package ddsi

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-ddsi/internal/core/metrics"
	"github.com/dep2p/go-ddsi/internal/core/netif"
	"github.com/dep2p/go-ddsi/internal/core/pcap"
	"github.com/dep2p/go-ddsi/internal/core/transport"
)

// buildFxApp 构建 Fx 应用
//
// 加载顺序（按依赖）：
//  1. 配置注入
//  2. 指标、抓包、接口监控
//  3. 传输层（依赖以上三者）
//  4. 用户扩展
//
// 组件在 fx.New 时构造并注入 Service，Start/Stop 只驱动生命周期钩子。
func buildFxApp(o *options, s *Service) (*fx.App, error) {
	modules := []fx.Option{
		fx.Supply(o.config),
	}

	if o.registerer != nil {
		reg := o.registerer
		modules = append(modules, fx.Provide(func() prometheus.Registerer { return reg }))
	}

	modules = append(modules,
		metrics.Module,
		pcap.Module,
		netif.Module,
		transport.Module(),
	)

	if len(o.userFxOptions) > 0 {
		modules = append(modules, o.userFxOptions...)
	}

	modules = append(modules,
		fx.Populate(&s.manager, &s.registry, &s.watcher, &s.metrics),

		// 禁用 Fx 日志输出（避免干扰用户日志）
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
	)

	app := fx.New(modules...)
	if err := app.Err(); err != nil {
		return nil, fmt.Errorf("build fx app: %w", err)
	}
	return app, nil
}
