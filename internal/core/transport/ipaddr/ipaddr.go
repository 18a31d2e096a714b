// Package ipaddr 提供 IP 地址与定位器之间的转换
//
// 供 UDP 与 TCP 传输共享：地址部分的解析与格式化、
// 套接字地址与定位器互转、就近地址分类。
package ipaddr

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/dep2p/go-ddsi/internal/core/netif"
	transportif "github.com/dep2p/go-ddsi/pkg/interfaces/transport"
	"github.com/dep2p/go-ddsi/pkg/types"
)

// lookupTimeout 主机名解析超时
const lookupTimeout = 5 * time.Second

// LookupFunc 主机名解析函数
type LookupFunc func(ctx context.Context, network, host string) ([]netip.Addr, error)

// Lookup 主机名解析（测试可替换）
var Lookup LookupFunc = net.DefaultResolver.LookupNetIP

// ============================================================================
//                              解析
// ============================================================================

// FromString 解析地址部分 "host"、"host:port"、"v6"、"[v6]"、"[v6]:port"
//
// kind 决定期望的地址族；地址族不符返回 ErrLocatorMismatch，
// 主机名解析失败返回 ErrUnknownHost，其余格式问题返回 ErrLocatorSyntax。
func FromString(s string, kind types.LocatorKind) (types.Locator, error) {
	if !kind.IsIPv4() && !kind.IsIPv6() {
		return types.InvalidLocator(), fmt.Errorf("%w: kind %s", transportif.ErrLocatorMismatch, kind)
	}

	host, portStr, err := splitHostPort(s)
	if err != nil {
		return types.InvalidLocator(), err
	}

	port := types.PortInvalid
	if portStr != "" {
		p, err := strconv.ParseUint(portStr, 10, 32)
		if err != nil || p > math.MaxInt32 {
			return types.InvalidLocator(), fmt.Errorf("%w: bad port %q", transportif.ErrLocatorSyntax, portStr)
		}
		port = uint32(p)
	}

	addr, err := resolve(host, kind)
	if err != nil {
		return types.InvalidLocator(), err
	}

	if kind.IsIPv4() && !(addr.Is4() || addr.Is4In6()) {
		return types.InvalidLocator(), fmt.Errorf("%w: %s is not IPv4", transportif.ErrLocatorMismatch, host)
	}
	if kind.IsIPv6() && addr.Is4() {
		return types.InvalidLocator(), fmt.Errorf("%w: %s is not IPv6", transportif.ErrLocatorMismatch, host)
	}

	return types.NewLocator(kind, addr.WithZone(""), port), nil
}

// splitHostPort 拆分主机与端口，端口可省略
func splitHostPort(s string) (host, port string, err error) {
	if s == "" {
		return "", "", fmt.Errorf("%w: empty address", transportif.ErrLocatorSyntax)
	}

	if s[0] == '[' {
		end := strings.IndexByte(s, ']')
		if end < 0 {
			return "", "", fmt.Errorf("%w: missing ']' in %q", transportif.ErrLocatorSyntax, s)
		}
		host = s[1:end]
		rest := s[end+1:]
		switch {
		case rest == "":
		case rest[0] == ':' && len(rest) > 1:
			port = rest[1:]
		default:
			return "", "", fmt.Errorf("%w: trailing %q", transportif.ErrLocatorSyntax, rest)
		}
		if host == "" {
			return "", "", fmt.Errorf("%w: empty host", transportif.ErrLocatorSyntax)
		}
		return host, port, nil
	}

	switch strings.Count(s, ":") {
	case 0:
		return s, "", nil
	case 1:
		i := strings.IndexByte(s, ':')
		host, port = s[:i], s[i+1:]
		if host == "" || port == "" {
			return "", "", fmt.Errorf("%w: %q", transportif.ErrLocatorSyntax, s)
		}
		return host, port, nil
	default:
		// 不带方括号的 IPv6 地址不能带端口
		return s, "", nil
	}
}

// resolve 解析 IP 字面量或主机名
func resolve(host string, kind types.LocatorKind) (netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr, nil
	}
	if !validHostname(host) {
		return netip.Addr{}, fmt.Errorf("%w: bad host %q", transportif.ErrLocatorSyntax, host)
	}

	network := "ip4"
	if kind.IsIPv6() {
		network = "ip6"
	}
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	addrs, err := Lookup(ctx, network, host)
	if err != nil || len(addrs) == 0 {
		return netip.Addr{}, fmt.Errorf("%w: %s", transportif.ErrUnknownHost, host)
	}
	return addrs[0], nil
}

// validHostname 主机名只允许字母、数字、'-'、'.'
func validHostname(h string) bool {
	if h == "" || len(h) > 253 {
		return false
	}
	for i := 0; i < len(h); i++ {
		c := h[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '.':
		default:
			return false
		}
	}
	return true
}

// ============================================================================
//                              格式化
// ============================================================================

// ToString 格式化地址部分，IPv6 带端口时加方括号
func ToString(loc types.Locator, withPort bool) string {
	addr := loc.Addr().String()
	if !withPort {
		return addr
	}
	port := strconv.FormatUint(uint64(loc.Port), 10)
	if loc.Kind.IsIPv6() {
		return "[" + addr + "]:" + port
	}
	return addr + ":" + port
}

// ============================================================================
//                              套接字地址转换
// ============================================================================

// ToLocator 将套接字地址转换为指定类型的定位器
func ToLocator(ap netip.AddrPort, kind types.LocatorKind) types.Locator {
	return types.NewLocator(kind, ap.Addr().WithZone(""), uint32(ap.Port()))
}

// KindOf 根据地址族选择 UDP 或 TCP 定位器类型
func KindOf(addr netip.Addr, stream bool) types.LocatorKind {
	v4 := addr.Is4() || addr.Is4In6()
	switch {
	case stream && v4:
		return types.LocatorKindTCPv4
	case stream:
		return types.LocatorKindTCPv6
	case v4:
		return types.LocatorKindUDPv4
	default:
		return types.LocatorKindUDPv6
	}
}

// ParseExternal 解析配置的对外地址，空字符串返回零值
func ParseExternal(s string, kind types.LocatorKind) (netip.Addr, error) {
	if s == "" {
		return netip.Addr{}, nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: external address %q", transportif.ErrLocatorSyntax, s)
	}
	if addr.Unmap().Is4() != kind.IsIPv4() {
		return netip.Addr{}, fmt.Errorf("%w: external address %s for %s", transportif.ErrLocatorMismatch, s, kind)
	}
	return addr.WithZone(""), nil
}

// Advertised 选择对外通告的地址
//
// external 有效时直接使用；否则取首选接口地址；都没有时返回未指定地址。
func Advertised(external netip.Addr, ifaces []transportif.Interface, ipv6 bool) netip.Addr {
	if external.IsValid() {
		return external
	}
	if ifc, ok := netif.Preferred(ifaces); ok {
		return ifc.Addr
	}
	if ipv6 {
		return netip.IPv6Unspecified()
	}
	return netip.IPv4Unspecified()
}

// TCPAddr 将定位器转换为 *net.TCPAddr
func TCPAddr(loc types.Locator) *net.TCPAddr {
	return net.TCPAddrFromAddrPort(loc.AddrPort())
}

// ============================================================================
//                              就近地址分类
// ============================================================================

// IsNearby 判断定位器与本地接口的关系
//
// 地址等于某接口地址返回 NearbySame；落在某接口子网内返回 NearbyLocal。
func IsNearby(loc types.Locator, ifaces []transportif.Interface) types.NearbyResult {
	addr := loc.Addr().Unmap()
	for _, ifc := range ifaces {
		if ifc.Addr.Unmap() == addr {
			return types.NearbySame
		}
	}
	for _, ifc := range ifaces {
		if ifc.Netmask.IsValid() && ifc.Netmask.Contains(addr) {
			return types.NearbyLocal
		}
	}
	return types.NearbyDistant
}
