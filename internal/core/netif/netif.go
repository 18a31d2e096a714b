// Package netif 提供本地网络接口表
//
// Enumerate 从系统读取接口表（地址、子网、索引、组播/点对点/回环标志）；
// Watcher 轮询接口表并在变化时发布事件，供参与者重绑定套接字。
package netif

import (
	"fmt"
	"net"
	"net/netip"

	transportif "github.com/dep2p/go-ddsi/pkg/interfaces/transport"
	"github.com/dep2p/go-ddsi/pkg/lib/log"
)

var logger = log.Logger("core/netif")

// EnumerateFunc 接口表来源
type EnumerateFunc func() ([]transportif.Interface, error)

// Enumerate 枚举所有已启用接口的每个地址
func Enumerate() ([]transportif.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}

	var out []transportif.Interface
	for _, ifc := range ifaces {
		if ifc.Flags&net.FlagUp == 0 {
			continue
		}

		addrs, err := ifc.Addrs()
		if err != nil {
			logger.Debug("获取接口地址失败", "iface", ifc.Name, "err", err)
			continue
		}

		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			addr, ok := netip.AddrFromSlice(ipnet.IP)
			if !ok {
				continue
			}
			addr = addr.Unmap()
			ones, _ := ipnet.Mask.Size()

			out = append(out, transportif.Interface{
				Name:             ifc.Name,
				Index:            ifc.Index,
				Addr:             addr,
				Netmask:          netip.PrefixFrom(addr, ones).Masked(),
				MulticastCapable: ifc.Flags&net.FlagMulticast != 0,
				PointToPoint:     ifc.Flags&net.FlagPointToPoint != 0,
				Loopback:         ifc.Flags&net.FlagLoopback != 0,
			})
		}
	}
	return out, nil
}

// Filter 按地址族筛选接口
func Filter(ifaces []transportif.Interface, ipv6 bool) []transportif.Interface {
	out := make([]transportif.Interface, 0, len(ifaces))
	for _, ifc := range ifaces {
		if ifc.Addr.Is4() != ipv6 {
			out = append(out, ifc)
		}
	}
	return out
}

// Preferred 选择对外通告地址：优先非回环、非链路本地地址
func Preferred(ifaces []transportif.Interface) (transportif.Interface, bool) {
	var fallback *transportif.Interface
	for i := range ifaces {
		ifc := &ifaces[i]
		if !ifc.Loopback && !ifc.Addr.IsLinkLocalUnicast() {
			return *ifc, true
		}
		if fallback == nil {
			fallback = ifc
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return transportif.Interface{}, false
}
