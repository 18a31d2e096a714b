package udp

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-ddsi/internal/core/metrics"
	"github.com/dep2p/go-ddsi/internal/core/netif"
	"github.com/dep2p/go-ddsi/internal/core/pcap"
	"github.com/dep2p/go-ddsi/internal/core/transport/ipaddr"
	"github.com/dep2p/go-ddsi/internal/core/transport/mcgroup"
	"github.com/dep2p/go-ddsi/pkg/lib/log"
	transportif "github.com/dep2p/go-ddsi/pkg/interfaces/transport"
	"github.com/dep2p/go-ddsi/pkg/types"
)

var logger = log.Logger("core/transport/udp")

// 传输名与默认发现地址
const (
	NameUDP  = "udp"
	NameUDP6 = "udp6"

	DefaultSPDPAddressUDP  = "udp/239.255.0.1"
	DefaultSPDPAddressUDP6 = "udp6/ff02::ffff:239.255.0.1"
)

// ============================================================================
//                              配置
// ============================================================================

// Config UDP 工厂配置
type Config struct {
	// Selector "udp" 或 "udp6"
	Selector string

	// ExternalAddress 对外通告地址，空表示使用首选接口地址
	ExternalAddress string

	// DefaultSPDPAddress 覆盖默认发现组播地址
	DefaultSPDPAddress string

	// MulticastLoopback 回环本机发出的组播
	MulticastLoopback bool

	// MulticastTTL 组播 TTL / hop limit，0 表示系统默认
	MulticastTTL int

	// ParticipantIndexAuto 自动参与者索引模式，绑定失败只记录调试日志
	ParticipantIndexAuto bool

	// Interfaces 接口表来源，nil 时直接枚举系统接口
	Interfaces func() []transportif.Interface

	// MulticastInterfaces "default" 或 "all"
	MulticastInterfaces string

	// Sink 抓包接收端
	Sink pcap.Sink

	// Metrics 传输指标（可为 nil）
	Metrics *metrics.Transport
}

// ============================================================================
//                              Factory
// ============================================================================

// Factory UDP 传输工厂
type Factory struct {
	cfg      Config
	name     string
	kind     types.LocatorKind
	spdp     string
	external netip.Addr

	membership *mcgroup.Membership
	truncLog   rate.Sometimes

	mu    sync.Mutex
	users int
}

// 确保实现接口
var _ transportif.Factory = (*Factory)(nil)

// New 创建 UDP 工厂，初始使用者数为 1
func New(cfg Config) *Factory {
	f := &Factory{
		cfg:      cfg,
		name:     NameUDP,
		kind:     types.LocatorKindUDPv4,
		spdp:     DefaultSPDPAddressUDP,
		truncLog: rate.Sometimes{First: 1, Interval: 10 * time.Second},
		users:    1,
	}
	if cfg.Selector == NameUDP6 {
		f.name = NameUDP6
		f.kind = types.LocatorKindUDPv6
		f.spdp = DefaultSPDPAddressUDP6
	}
	if cfg.DefaultSPDPAddress != "" {
		f.spdp = cfg.DefaultSPDPAddress
	}
	if f.cfg.Sink == nil {
		f.cfg.Sink = pcap.Nop{}
	}

	ext, err := ipaddr.ParseExternal(cfg.ExternalAddress, f.kind)
	if err != nil {
		logger.Warn("忽略无效的对外地址", "transport", f.name, "err", err)
	}
	f.external = ext

	all := cfg.MulticastInterfaces == "all"
	f.membership = mcgroup.New(f.multicastInterfaces, all)

	logger.Info("UDP 传输已初始化", "transport", f.name, "spdp", f.spdp)
	return f
}

// Name 实现 Factory
func (f *Factory) Name() string { return f.name }

// Kind 实现 Factory
func (f *Factory) Kind() types.LocatorKind { return f.kind }

// Connectionless 实现 Factory
func (f *Factory) Connectionless() bool { return true }

// Stream 实现 Factory
func (f *Factory) Stream() bool { return false }

// DefaultSPDPAddress 实现 Factory
func (f *Factory) DefaultSPDPAddress() string { return f.spdp }

// Supports 只支持配置的地址族
func (f *Factory) Supports(kind types.LocatorKind) bool {
	return kind == f.kind
}

// IsMulticast 实现 Factory
func (f *Factory) IsMulticast(loc types.Locator) bool {
	return loc.IsMulticast()
}

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
	return netif.Filter(ifaces, f.kind == types.LocatorKindUDPv6), nil
}

func (f *Factory) multicastInterfaces() []transportif.Interface {
	ifaces, err := f.EnumerateInterfaces()
	if err != nil {
		logger.Warn("枚举接口失败", "transport", f.name, "err", err)
	}
	return ifaces
}

// Membership 返回共享的组播成员关系
func (f *Factory) Membership() transportif.GroupMembership {
	return f.membership
}

// Groups 返回连接当前加入的组播组
func (f *Factory) Groups(connID uint64) []mcgroup.Group {
	return f.membership.Groups(connID)
}

// ============================================================================
//                              使用者计数
// ============================================================================

// Acquire 增加一个使用者
func (f *Factory) Acquire() {
	f.mu.Lock()
	f.users++
	f.mu.Unlock()
}

// Close 减少一个使用者，最后一个使用者清空组播成员关系
//
// 多余的 Close 不做任何事。
func (f *Factory) Close() error {
	f.mu.Lock()
	if f.users == 0 {
		f.mu.Unlock()
		return nil
	}
	f.users--
	last := f.users == 0
	f.mu.Unlock()

	if last {
		f.membership.Reset()
		logger.Info("UDP 传输已反初始化", "transport", f.name)
	}
	return nil
}

// Users 返回当前使用者数
func (f *Factory) Users() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users
}

// ============================================================================
//                              创建端点
// ============================================================================

// CreateListener UDP 不支持监听器
func (f *Factory) CreateListener(uint32, transportif.QoS) (transportif.Acceptor, error) {
	return nil, transportif.ErrListenerUnsupported
}

// CreateConn 创建 UDP 端点，port 为 0 时使用临时端口
func (f *Factory) CreateConn(port uint32, qos transportif.QoS) (transportif.Endpoint, error) {
	network, bind := "udp4", "0.0.0.0"
	if f.kind == types.LocatorKindUDPv6 {
		network, bind = "udp6", "::"
	}

	lc := net.ListenConfig{}
	if qos.Multicast {
		lc.Control = reuseControl
	}

	addr := net.JoinHostPort(bind, strconv.FormatUint(uint64(port), 10))
	pc, err := lc.ListenPacket(context.Background(), network, addr)
	if err != nil {
		return nil, f.bindError(port, qos.Multicast, err)
	}
	uc, ok := pc.(*net.UDPConn)
	if !ok {
		_ = pc.Close()
		return nil, fmt.Errorf("%w: not a UDP socket", transportif.ErrBindFailed)
	}

	ep := &endpoint{
		factory:   f,
		uc:        uc,
		multicast: qos.Multicast,
	}
	bound := uc.LocalAddr().(*net.UDPAddr).AddrPort()
	ep.local = ipaddr.ToLocator(bound, f.kind)
	ep.loc = types.NewLocator(f.kind, f.ownAddr(), uint32(bound.Port()))

	if f.kind == types.LocatorKindUDPv6 {
		ep.p6 = ipv6.NewPacketConn(uc)
	} else {
		ep.p4 = ipv4.NewPacketConn(uc)
	}
	ep.setOptions(qos.DiffServ)

	f.cfg.Metrics.ConnOpened(f.name)
	kind := "unicast"
	if qos.Multicast {
		kind = "multicast"
	}
	logger.Info("创建 UDP 连接", "transport", f.name, "type", kind, "port", bound.Port())
	return ep, nil
}

// bindError 绑定失败：自动索引模式下调用方会换端口重试
func (f *Factory) bindError(port uint32, multicast bool, err error) error {
	bindErr := fmt.Errorf("%w: port %d: %v", transportif.ErrBindFailed, port, err)
	if f.cfg.ParticipantIndexAuto {
		logger.Debug("绑定端口失败", "transport", f.name, "port", port, "multicast", multicast, "err", err)
		return bindErr
	}
	logger.Error("绑定端口失败", "transport", f.name, "port", port, "multicast", multicast, "err", err)
	return fmt.Errorf("%w: %w", transportif.ErrFatalConfig, bindErr)
}

// ownAddr 对外通告地址：配置的外部地址，否则首选接口地址
func (f *Factory) ownAddr() netip.Addr {
	ifaces, err := f.EnumerateInterfaces()
	if err != nil {
		logger.Debug("枚举接口失败", "transport", f.name, "err", err)
	}
	return ipaddr.Advertised(f.external, ifaces, f.kind == types.LocatorKindUDPv6)
}
