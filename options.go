package ddsi

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-ddsi/config"
)

// Option 服务配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	// config 统一配置
	config *config.Config

	// registerer 指标注册器，nil 时不注册
	registerer prometheus.Registerer

	// userFxOptions 用户扩展的 Fx 选项
	userFxOptions []fx.Option
}

// newOptions 创建默认选项
func newOptions() *options {
	return &options{
		config: config.NewConfig(),
	}
}

// ============================================================================
//                              配置选项
// ============================================================================

// WithConfig 使用完整配置
//
// 之后的选项（如 WithCaptureFile）在该配置上继续修改。
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return fmt.Errorf("配置不能为空")
		}
		o.config = config.CloneConfig(cfg)
		return nil
	}
}

// WithConfigFile 从 JSON 文件加载配置
//
// 示例:
//
//	svc, err := ddsi.New(ddsi.WithConfigFile("/etc/ddsi.json"))
func WithConfigFile(path string) Option {
	return func(o *options) error {
		cfg, err := config.LoadFromFile(path)
		if err != nil {
			return err
		}
		o.config = cfg
		return nil
	}
}

// WithTransport 选择传输：default、udp、udp6、tcp、tcp6
func WithTransport(selector string) Option {
	return func(o *options) error {
		o.config.Transport = o.config.Transport.WithSelector(selector)
		return nil
	}
}

// WithDomainID 设置域编号
func WithDomainID(id uint32) Option {
	return func(o *options) error {
		o.config.Discovery = o.config.Discovery.WithDomainID(id)
		return nil
	}
}

// WithParticipantIndex 设置参与者索引：none、auto 或非负整数
func WithParticipantIndex(index string) Option {
	return func(o *options) error {
		o.config.Discovery = o.config.Discovery.WithParticipantIndex(index)
		return nil
	}
}

// ============================================================================
//                              观测选项
// ============================================================================

// WithRegisterer 把传输指标注册到 reg
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) error {
		o.registerer = reg
		return nil
	}
}

// WithCaptureFile 把收发的报文写入 pcap 文件
//
// 空路径关闭抓包。
func WithCaptureFile(path string) Option {
	return func(o *options) error {
		o.config.Capture.PcapFile = path
		return nil
	}
}

// ============================================================================
//                              扩展选项
// ============================================================================

// WithFxOptions 追加用户自定义的 Fx 选项
//
// 可用于注入额外组件或通过 fx.Populate 取出内部组件。
func WithFxOptions(opts ...fx.Option) Option {
	return func(o *options) error {
		o.userFxOptions = append(o.userFxOptions, opts...)
		return nil
	}
}
