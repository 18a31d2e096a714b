// Package types 定义 go-ddsi 的基础值类型
package types

import (
	"net/netip"
)

// ============================================================================
//                              LocatorKind
// ============================================================================

// LocatorKind 定位器类型（DDSI 编号）
type LocatorKind int32

const (
	// LocatorKindInvalid 无效定位器
	LocatorKindInvalid LocatorKind = -1
	// LocatorKindReserved 保留
	LocatorKindReserved LocatorKind = 0
	// LocatorKindUDPv4 UDP/IPv4
	LocatorKindUDPv4 LocatorKind = 1
	// LocatorKindUDPv6 UDP/IPv6
	LocatorKindUDPv6 LocatorKind = 2
	// LocatorKindTCPv4 TCP/IPv4
	LocatorKindTCPv4 LocatorKind = 4
	// LocatorKindTCPv6 TCP/IPv6
	LocatorKindTCPv6 LocatorKind = 8
)

// String 返回类型名
func (k LocatorKind) String() string {
	switch k {
	case LocatorKindInvalid:
		return "invalid"
	case LocatorKindReserved:
		return "reserved"
	case LocatorKindUDPv4:
		return "udpv4"
	case LocatorKindUDPv6:
		return "udpv6"
	case LocatorKindTCPv4:
		return "tcpv4"
	case LocatorKindTCPv6:
		return "tcpv6"
	default:
		return "unknown"
	}
}

// IsIPv4 是否为 IPv4 地址族
func (k LocatorKind) IsIPv4() bool {
	return k == LocatorKindUDPv4 || k == LocatorKindTCPv4
}

// IsIPv6 是否为 IPv6 地址族
func (k LocatorKind) IsIPv6() bool {
	return k == LocatorKindUDPv6 || k == LocatorKindTCPv6
}

// ============================================================================
//                              Locator
// ============================================================================

// PortInvalid 无效端口
const PortInvalid uint32 = 0

// LocatorStrLen 格式化定位器的最大长度（含终止符）
//
//	 8 传输名 + "/"
//	 1 "["
//	48 IPv6 十六进制数字与分隔符
//	 2 "]:"
//	10 端口（DDSI 定位器端口为有符号 32 位）
//	 1 终止符
const LocatorStrLen = 70

// Locator 网络端点定位器
//
// IPv4 地址存放在 Address[12:16]，前 12 字节为零。
// Kind 为 LocatorKindInvalid 时 Address 与 Port 无意义。
type Locator struct {
	Kind    LocatorKind
	Address [16]byte
	Port    uint32
}

// InvalidLocator 返回无效定位器
func InvalidLocator() Locator {
	return Locator{Kind: LocatorKindInvalid}
}

// NewLocator 由 netip 地址构造定位器
//
// IPv4（含 IPv4-mapped IPv6）地址写入最后 4 字节。
func NewLocator(kind LocatorKind, addr netip.Addr, port uint32) Locator {
	loc := Locator{Kind: kind, Port: port}
	if kind.IsIPv4() {
		a4 := addr.Unmap().As4()
		copy(loc.Address[12:], a4[:])
	} else {
		loc.Address = addr.As16()
	}
	return loc
}

// IsValid 是否为有效定位器
func (l Locator) IsValid() bool {
	return l.Kind != LocatorKindInvalid
}

// Addr 返回 netip 地址
func (l Locator) Addr() netip.Addr {
	if l.Kind.IsIPv4() {
		var a4 [4]byte
		copy(a4[:], l.Address[12:])
		return netip.AddrFrom4(a4)
	}
	return netip.AddrFrom16(l.Address)
}

// AddrPort 返回 netip 地址与端口
func (l Locator) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(l.Addr(), uint16(l.Port))
}

// WithPort 返回替换端口后的副本
func (l Locator) WithPort(port uint32) Locator {
	l.Port = port
	return l
}

// Equal 按类型比较定位器
func (l Locator) Equal(o Locator) bool {
	if l.Kind != o.Kind {
		return false
	}
	if l.Kind == LocatorKindInvalid {
		return true
	}
	return l.Port == o.Port && l.Address == o.Address
}

// IsMulticast 检查地址是否为组播地址（IPv4 D 类或 IPv6 ff00::/8）
func (l Locator) IsMulticast() bool {
	switch {
	case l.Kind.IsIPv4():
		return l.Address[12]&0xf0 == 0xe0
	case l.Kind.IsIPv6():
		return l.Address[0] == 0xff
	default:
		return false
	}
}

// ============================================================================
//                              NearbyResult
// ============================================================================

// NearbyResult 地址就近分类
type NearbyResult int

const (
	// NearbyDistant 不在任何本地子网
	NearbyDistant NearbyResult = iota
	// NearbyLocal 与某个本地接口同子网
	NearbyLocal
	// NearbySame 即本机某个接口地址
	NearbySame
)

// String 返回分类名
func (r NearbyResult) String() string {
	switch r {
	case NearbyLocal:
		return "local"
	case NearbySame:
		return "same"
	default:
		return "distant"
	}
}
