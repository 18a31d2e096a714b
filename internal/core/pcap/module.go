package pcap

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-ddsi/config"
)

// Params pcap 依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
}

// Module 是 pcap 的 Fx 模块
var Module = fx.Module("pcap",
	fx.Provide(NewSinkFromParams),
)

// NewSinkFromParams 根据配置创建抓包 Sink
//
// 未配置抓包文件时返回 Nop。
func NewSinkFromParams(lc fx.Lifecycle, p Params) (Sink, error) {
	if p.UnifiedCfg == nil || !p.UnifiedCfg.Capture.Enabled() {
		return Nop{}, nil
	}

	w, err := Create(p.UnifiedCfg.Capture.PcapFile)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return w.Close()
		},
	})
	return w, nil
}
