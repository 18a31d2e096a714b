package tcp

import (
	"net"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/dep2p/go-ddsi/internal/core/metrics"
	"github.com/dep2p/go-ddsi/internal/core/netif"
	"github.com/dep2p/go-ddsi/internal/core/pcap"
	"github.com/dep2p/go-ddsi/internal/core/transport/ipaddr"
	"github.com/dep2p/go-ddsi/pkg/lib/log"
	transportif "github.com/dep2p/go-ddsi/pkg/interfaces/transport"
	"github.com/dep2p/go-ddsi/pkg/types"
)

var logger = log.Logger("core/transport/tcp")

// 传输名
const (
	NameTCP  = "tcp"
	NameTCP6 = "tcp6"
)

// 默认值
const (
	DefaultTimeout      = 10 * time.Second
	DefaultMaxFrameSize = 1 << 20
)

// ============================================================================
//                              配置
// ============================================================================

// Config TCP 工厂配置
type Config struct {
	// Selector "tcp" 或 "tcp6"
	Selector string

	// ExternalAddress 对外通告地址
	ExternalAddress string

	// Timeout 拨号超时
	Timeout time.Duration

	// NoDelay 禁用 Nagle 算法
	NoDelay bool

	// MaxFrameSize 单帧最大长度
	MaxFrameSize int

	// ParticipantIndexAuto 自动参与者索引模式
	ParticipantIndexAuto bool

	// Interfaces 接口表来源，nil 时直接枚举系统接口
	Interfaces func() []transportif.Interface

	// Sink 抓包接收端
	Sink pcap.Sink

	// Metrics 传输指标（可为 nil）
	Metrics *metrics.Transport
}

// ============================================================================
//                              Factory 实现
// ============================================================================

// Factory TCP 传输工厂
type Factory struct {
	cfg      Config
	name     string
	kind     types.LocatorKind
	external netip.Addr

	closed atomic.Bool
}

// 确保实现 transport.Factory 接口
var _ transportif.Factory = (*Factory)(nil)

// New 创建 TCP 工厂
func New(cfg Config) *Factory {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = DefaultMaxFrameSize
	}
	if cfg.Sink == nil {
		cfg.Sink = pcap.Nop{}
	}

	f := &Factory{
		cfg:  cfg,
		name: NameTCP,
		kind: types.LocatorKindTCPv4,
	}
	if cfg.Selector == NameTCP6 {
		f.name = NameTCP6
		f.kind = types.LocatorKindTCPv6
	}

	ext, err := ipaddr.ParseExternal(cfg.ExternalAddress, f.kind)
	if err != nil {
		logger.Warn("忽略无效的对外地址", "transport", f.name, "err", err)
	}
	f.external = ext

	logger.Info("TCP 传输已初始化", "transport", f.name)
	return f
}

// Name 实现 Factory
func (f *Factory) Name() string { return f.name }

// Kind 实现 Factory
func (f *Factory) Kind() types.LocatorKind { return f.kind }

// Connectionless TCP 面向连接
func (f *Factory) Connectionless() bool { return false }

// Stream TCP 是流式传输
func (f *Factory) Stream() bool { return true }

// DefaultSPDPAddress TCP 没有组播发现地址
func (f *Factory) DefaultSPDPAddress() string { return "" }

// Supports 只支持配置的地址族
func (f *Factory) Supports(kind types.LocatorKind) bool {
	return kind == f.kind
}

// IsMulticast TCP 定位器不会是组播地址
func (f *Factory) IsMulticast(types.Locator) bool { return false }

// IsNearby 实现 Factory
func (f *Factory) IsNearby(loc types.Locator, ifaces []transportif.Interface) types.NearbyResult {
	return ipaddr.IsNearby(loc, ifaces)
}

// LocatorFromString 实现 Factory
func (f *Factory) LocatorFromString(s string) (types.Locator, error) {
	return ipaddr.FromString(s, f.kind)
}

// LocatorToString 实现 Factory
func (f *Factory) LocatorToString(loc types.Locator, withPort bool) string {
	return ipaddr.ToString(loc, withPort)
}

// EnumerateInterfaces 返回与传输地址族相同的接口
func (f *Factory) EnumerateInterfaces() ([]transportif.Interface, error) {
	var (
		ifaces []transportif.Interface
		err    error
	)
	if f.cfg.Interfaces != nil {
		ifaces = f.cfg.Interfaces()
	} else if ifaces, err = netif.Enumerate(); err != nil {
		return nil, err
	}
	return netif.Filter(ifaces, f.kind == types.LocatorKindTCPv6), nil
}

// Membership TCP 不支持组播
func (f *Factory) Membership() transportif.GroupMembership { return nil }

// Close 关闭工厂
func (f *Factory) Close() error {
	if f.closed.CompareAndSwap(false, true) {
		logger.Info("TCP 传输已关闭", "transport", f.name)
	}
	return nil
}

// IsClosed 检查是否已关闭
func (f *Factory) IsClosed() bool {
	return f.closed.Load()
}

// ============================================================================
//                              创建端点
// ============================================================================

// CreateConn 创建客户端端点，在第一次写入时拨号
//
// port 非 0 时以该端口作为本地端口拨号。
func (f *Factory) CreateConn(port uint32, _ transportif.QoS) (transportif.Endpoint, error) {
	if f.closed.Load() {
		return nil, transportif.ErrConnClosed
	}
	ep := newEndpoint(f, port)
	f.cfg.Metrics.ConnOpened(f.name)
	return ep, nil
}

// CreateListener 创建监听端点，Listen 时才绑定端口
func (f *Factory) CreateListener(port uint32, _ transportif.QoS) (transportif.Acceptor, error) {
	if f.closed.Load() {
		return nil, transportif.ErrConnClosed
	}
	return newAcceptor(f, port), nil
}

// ============================================================================
//                              辅助方法
// ============================================================================

// network 返回 net 包使用的网络名
func (f *Factory) network() string {
	if f.kind == types.LocatorKindTCPv6 {
		return "tcp6"
	}
	return "tcp4"
}

// ownAddr 对外通告地址
func (f *Factory) ownAddr() netip.Addr {
	ifaces, err := f.EnumerateInterfaces()
	if err != nil {
		logger.Debug("枚举接口失败", "transport", f.name, "err", err)
	}
	return ipaddr.Advertised(f.external, ifaces, f.kind == types.LocatorKindTCPv6)
}

// setConnOptions 设置连接选项
func (f *Factory) setConnOptions(c *net.TCPConn) {
	if err := c.SetNoDelay(f.cfg.NoDelay); err != nil {
		logger.Debug("设置 TCP_NODELAY 失败", "err", err)
	}
	if err := c.SetKeepAlive(true); err != nil {
		logger.Debug("设置 keepalive 失败", "err", err)
	}
}
