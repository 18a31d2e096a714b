package transport

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/multierr"

	"github.com/dep2p/go-ddsi/config"
	"github.com/dep2p/go-ddsi/internal/core/metrics"
	"github.com/dep2p/go-ddsi/internal/core/netif"
	"github.com/dep2p/go-ddsi/internal/core/pcap"
	"github.com/dep2p/go-ddsi/internal/core/transport/tcp"
	"github.com/dep2p/go-ddsi/internal/core/transport/udp"
	transportif "github.com/dep2p/go-ddsi/pkg/interfaces/transport"
	"github.com/dep2p/go-ddsi/pkg/lib/log"
	"github.com/dep2p/go-ddsi/pkg/types"
)

var logger = log.Logger("core/transport")

// ============================================================================
//                              配置
// ============================================================================

// Config 传输层配置
type Config struct {
	// 传输选择
	Selector  string
	EnableTCP bool

	// 地址
	ExternalAddress    string
	DefaultSPDPAddress string

	// 组播
	AllowMulticast      bool
	MulticastInterfaces string
	MulticastLoopback   bool
	MulticastTTL        int

	// 套接字
	DiffServ       int
	MaxMessageSize int

	// ParticipantIndexAuto 自动参与者索引模式（影响绑定失败的日志级别）
	ParticipantIndexAuto bool

	// TCP 配置
	TCPTimeout      time.Duration
	TCPNoDelay      bool
	TCPMaxFrameSize int
}

// ConfigFromUnified 从统一配置创建传输配置
func ConfigFromUnified(cfg *config.Config) Config {
	if cfg == nil {
		return NewConfig()
	}
	t := cfg.Transport
	mode, _, _ := cfg.Discovery.IndexMode()
	return Config{
		Selector:             t.Network(),
		EnableTCP:            t.EnableTCP,
		ExternalAddress:      t.ExternalAddress,
		DefaultSPDPAddress:   t.DefaultSPDPAddress,
		AllowMulticast:       t.AllowMulticast,
		MulticastInterfaces:  t.MulticastInterfaces,
		MulticastLoopback:    t.MulticastLoopback,
		MulticastTTL:         t.MulticastTTL,
		DiffServ:             t.DiffServ,
		MaxMessageSize:       t.MaxMessageSize,
		ParticipantIndexAuto: mode == config.IndexModeAuto,
		TCPTimeout:           t.TCP.Timeout.Duration(),
		TCPNoDelay:           t.TCP.NoDelay,
		TCPMaxFrameSize:      t.TCP.MaxFrameSize,
	}
}

// NewConfig 创建默认配置
func NewConfig() Config {
	cfg := config.NewConfig()
	return ConfigFromUnified(cfg)
}

// ============================================================================
//                              Manager
// ============================================================================

// Deps Manager 的外部协作者，均可为零值
type Deps struct {
	// Interfaces 接口表来源
	Interfaces func() []transportif.Interface

	// Sink 抓包接收端
	Sink pcap.Sink

	// Metrics 传输指标
	Metrics *metrics.Transport
}

// Manager 按配置创建传输工厂并注册到 Registry
//
// 选择 udp / tcp 时注册 IPv4 传输，选择 udp6 / tcp6 时注册 IPv6 传输。
// UDP 总是注册；TCP 在选择 tcp/tcp6 或 EnableTCP 时注册。
// 选择的传输成为默认工厂。
type Manager struct {
	cfg      Config
	registry *Registry
	udp      *udp.Factory
	tcp      *tcp.Factory
}

// NewManager 创建传输管理器
func NewManager(cfg Config, deps Deps) (*Manager, error) {
	selector := cfg.Selector
	if selector == "" || selector == config.TransportDefault {
		selector = config.TransportUDP
	}

	var ipv6, stream bool
	switch selector {
	case config.TransportUDP:
	case config.TransportUDP6:
		ipv6 = true
	case config.TransportTCP:
		stream = true
	case config.TransportTCP6:
		ipv6, stream = true, true
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSelector, cfg.Selector)
	}

	logger.Debug("创建传输管理器", "selector", selector, "enableTCP", cfg.EnableTCP)

	m := &Manager{cfg: cfg, registry: NewRegistry()}

	udpName, tcpName := udp.NameUDP, tcp.NameTCP
	if ipv6 {
		udpName, tcpName = udp.NameUDP6, tcp.NameTCP6
	}

	m.udp = udp.New(udp.Config{
		Selector:             udpName,
		ExternalAddress:      cfg.ExternalAddress,
		DefaultSPDPAddress:   cfg.DefaultSPDPAddress,
		MulticastLoopback:    cfg.MulticastLoopback,
		MulticastTTL:         cfg.MulticastTTL,
		ParticipantIndexAuto: cfg.ParticipantIndexAuto,
		Interfaces:           deps.Interfaces,
		MulticastInterfaces:  cfg.MulticastInterfaces,
		Sink:                 deps.Sink,
		Metrics:              deps.Metrics,
	})
	if err := m.registry.Register(m.udp); err != nil {
		return nil, multierr.Append(err, m.registry.Close())
	}

	if stream || cfg.EnableTCP {
		m.tcp = tcp.New(tcp.Config{
			Selector:             tcpName,
			ExternalAddress:      cfg.ExternalAddress,
			Timeout:              cfg.TCPTimeout,
			NoDelay:              cfg.TCPNoDelay,
			MaxFrameSize:         cfg.TCPMaxFrameSize,
			ParticipantIndexAuto: cfg.ParticipantIndexAuto,
			Interfaces:           deps.Interfaces,
			Sink:                 deps.Sink,
			Metrics:              deps.Metrics,
		})
		if err := m.registry.Register(m.tcp); err != nil {
			return nil, multierr.Append(err, m.registry.Close())
		}
	}

	def := udpName
	if stream {
		def = tcpName
	}
	if err := m.registry.SetDefault(def); err != nil {
		return nil, multierr.Append(err, m.registry.Close())
	}

	logger.Info("传输管理器创建成功", "default", def, "transportCount", len(m.registry.Factories()))
	return m, nil
}

// Registry 返回工厂注册表
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Config 返回传输配置
func (m *Manager) Config() Config {
	return m.cfg
}

// UDP 返回 UDP 工厂
func (m *Manager) UDP() *udp.Factory {
	return m.udp
}

// TCP 返回 TCP 工厂，未启用时为 nil
func (m *Manager) TCP() *tcp.Factory {
	return m.tcp
}

// QoS 返回按配置填充的套接字参数
func (m *Manager) QoS(multicast bool) transportif.QoS {
	return transportif.QoS{Multicast: multicast, DiffServ: m.cfg.DiffServ}
}

// FactoryFor 返回支持定位器类型的工厂
func (m *Manager) FactoryFor(loc types.Locator) (transportif.Factory, error) {
	f, ok := m.registry.LookupSupporting(loc.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: kind %s", ErrNoTransport, loc.Kind)
	}
	return f, nil
}

// Close 关闭所有传输
func (m *Manager) Close() error {
	return m.registry.Close()
}

// ============================================================================
//                              Fx 模块
// ============================================================================

// Params 传输模块依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config     `optional:"true"`
	Watcher    *netif.Watcher     `optional:"true"`
	Sink       pcap.Sink          `optional:"true"`
	Metrics    *metrics.Transport `optional:"true"`
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("transport",
		fx.Provide(
			ProvideConfig,
			ProvideManager,
			ProvideRegistry,
		),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideConfig 从统一配置提供传输配置
func ProvideConfig(p Params) Config {
	return ConfigFromUnified(p.UnifiedCfg)
}

// ProvideManager 提供 Manager
//
// 有 Watcher 时接口表取自 Watcher 的最近观察结果。
func ProvideManager(cfg Config, p Params) (*Manager, error) {
	deps := Deps{Sink: p.Sink, Metrics: p.Metrics}
	if p.Watcher != nil {
		deps.Interfaces = p.Watcher.Current
	}
	return NewManager(cfg, deps)
}

// ProvideRegistry 提供工厂注册表
func ProvideRegistry(m *Manager) *Registry {
	return m.Registry()
}

// registerLifecycle 注册生命周期钩子
func registerLifecycle(lc fx.Lifecycle, m *Manager) {
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return m.Close()
		},
	})
}
