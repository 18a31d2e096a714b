package udp

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/dep2p/go-ddsi/internal/core/metrics"
	"github.com/dep2p/go-ddsi/internal/core/transport/ipaddr"
	transportif "github.com/dep2p/go-ddsi/pkg/interfaces/transport"
	"github.com/dep2p/go-ddsi/pkg/types"
)

// 写入重试上限
const (
	maxPermRetries      = 2
	maxTransientRetries = 64
)

// gatherPool 聚合多个缓冲区的临时缓冲池
var gatherPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, 64*1024)
		return &b
	},
}

// ============================================================================
//                              endpoint
// ============================================================================

// endpoint UDP 连接端点
type endpoint struct {
	factory   *Factory
	uc        *net.UDPConn
	p4        *ipv4.PacketConn
	p6        *ipv6.PacketConn
	multicast bool

	// local 实际绑定的套接字地址（抓包用）
	local types.Locator
	// loc 对外通告的定位器
	loc types.Locator
}

// 确保实现接口
var _ transportif.Endpoint = (*endpoint)(nil)

// setOptions 设置 TOS、组播回环与 TTL，失败只记录日志
func (e *endpoint) setOptions(diffserv int) {
	cfg := e.factory.cfg
	if e.p4 != nil {
		if diffserv != 0 {
			if err := e.p4.SetTOS(diffserv); err != nil {
				logger.Warn("设置 TOS 失败", "diffserv", diffserv, "err", err)
			}
		}
		if err := e.p4.SetMulticastLoopback(cfg.MulticastLoopback); err != nil {
			logger.Debug("设置组播回环失败", "err", err)
		}
		if cfg.MulticastTTL > 0 {
			if err := e.p4.SetMulticastTTL(cfg.MulticastTTL); err != nil {
				logger.Debug("设置组播 TTL 失败", "ttl", cfg.MulticastTTL, "err", err)
			}
		}
		return
	}

	if diffserv != 0 {
		if err := e.p6.SetTrafficClass(diffserv); err != nil {
			logger.Warn("设置 Traffic Class 失败", "diffserv", diffserv, "err", err)
		}
	}
	if err := e.p6.SetMulticastLoopback(cfg.MulticastLoopback); err != nil {
		logger.Debug("设置组播回环失败", "err", err)
	}
	if cfg.MulticastTTL > 0 {
		if err := e.p6.SetMulticastHopLimit(cfg.MulticastTTL); err != nil {
			logger.Debug("设置组播 hop limit 失败", "hops", cfg.MulticastTTL, "err", err)
		}
	}
}

// ============================================================================
//                              读
// ============================================================================

// Read 读取一个数据报
func (e *endpoint) Read(buf []byte) (transportif.ReadResult, error) {
	f := e.factory
	n, _, flags, ap, err := e.uc.ReadMsgUDPAddrPort(buf, nil)
	truncated := msgTruncated(flags)
	if err != nil {
		if !truncError(err) {
			return transportif.ReadResult{}, e.readError(err)
		}
		truncated = true
		n = len(buf)
	}

	kind := types.LocatorKindUDPv6
	if ap.Addr().Is4() {
		kind = types.LocatorKindUDPv4
	}
	src := ipaddr.ToLocator(ap, kind)

	if truncated {
		f.cfg.Metrics.Truncated(f.name)
		f.truncLog.Do(func() {
			logger.Warn("数据报被截断", "src", ap.String(), "size", len(buf))
		})
	}

	f.cfg.Metrics.Received(f.name, n)
	f.cfg.Sink.Received(src, e.local, buf[:n])
	return transportif.ReadResult{N: n, Src: src, Truncated: truncated}, nil
}

func (e *endpoint) readError(err error) error {
	if isClosed(err) {
		return fmt.Errorf("%w: %v", transportif.ErrConnClosed, err)
	}
	switch classify(err) {
	case classNotSocket:
		return fmt.Errorf("%w: %v", transportif.ErrConnClosed, err)
	case classUnreachable:
		logger.Debug("读取时对端不可达", "port", e.local.Port, "err", err)
		return fmt.Errorf("%w: %v", transportif.ErrPeerUnreachable, err)
	}
	logger.Error("UDP 读取失败", "port", e.local.Port, "err", err)
	return err
}

// ============================================================================
//                              写
// ============================================================================

// Write 把 bufs 聚合为一个数据报发往 dst
func (e *endpoint) Write(dst types.Locator, bufs [][]byte) (int, error) {
	f := e.factory

	var payload []byte
	if len(bufs) == 1 {
		payload = bufs[0]
	} else {
		bp := gatherPool.Get().(*[]byte)
		defer func() {
			*bp = (*bp)[:0]
			gatherPool.Put(bp)
		}()
		for _, b := range bufs {
			*bp = append(*bp, b...)
		}
		payload = *bp
	}

	to := dst.AddrPort()
	var (
		n         int
		err       error
		perm      int
		transient int
	)
	for {
		n, _, err = e.uc.WriteMsgUDPAddrPort(payload, nil, to)
		if err == nil {
			break
		}
		class := classify(err)
		if class == classRetry && transient < maxTransientRetries {
			transient++
			continue
		}
		if class == classPermission && perm < maxPermRetries {
			perm++
			continue
		}
		return 0, e.writeError(dst, class, err)
	}

	f.cfg.Metrics.Sent(f.name, n)
	f.cfg.Sink.Sent(e.local, dst, payload[:n])
	return n, nil
}

func (e *endpoint) writeError(dst types.Locator, class errnoClass, err error) error {
	f := e.factory
	switch {
	case isClosed(err):
		return fmt.Errorf("%w: %v", transportif.ErrConnClosed, err)
	case class == classUnreachable:
		f.cfg.Metrics.WriteError(f.name, metrics.ErrorClassUnreachable)
		logger.Debug("对端不可达", "dst", dst.AddrPort().String(), "err", err)
		return fmt.Errorf("%w: %v", transportif.ErrPeerUnreachable, err)
	case class == classRetry, class == classPermission:
		f.cfg.Metrics.WriteError(f.name, metrics.ErrorClassRetry)
		logger.Debug("写入重试次数耗尽", "dst", dst.AddrPort().String(), "err", err)
		return err
	}
	f.cfg.Metrics.WriteError(f.name, metrics.ErrorClassOther)
	logger.Error("UDP 写入失败", "dst", dst.AddrPort().String(), "err", err)
	return err
}

// ============================================================================
//                              定位器
// ============================================================================

// Locator 返回对外通告的定位器
func (e *endpoint) Locator() (types.Locator, error) {
	return e.loc, nil
}

// PeerLocator UDP 端点没有对端
func (e *endpoint) PeerLocator() (types.Locator, bool) {
	return types.InvalidLocator(), false
}

// ============================================================================
//                              组播
// ============================================================================

// JoinMC 实现 Endpoint
func (e *endpoint) JoinMC(src *types.Locator, group types.Locator, iface *transportif.Interface) error {
	return e.joinLeave(true, src, group, iface)
}

// LeaveMC 实现 Endpoint
func (e *endpoint) LeaveMC(src *types.Locator, group types.Locator, iface *transportif.Interface) error {
	return e.joinLeave(false, src, group, iface)
}

func (e *endpoint) joinLeave(join bool, src *types.Locator, group types.Locator, iface *transportif.Interface) error {
	if group.Kind != e.factory.kind {
		return fmt.Errorf("%w: group %s", transportif.ErrLocatorMismatch, group.Kind)
	}

	var ifi *net.Interface
	if iface != nil {
		var err error
		if ifi, err = net.InterfaceByIndex(iface.Index); err != nil {
			return fmt.Errorf("%w: %v", transportif.ErrMCNoDevice, err)
		}
	}

	g := &net.UDPAddr{IP: group.Addr().AsSlice()}
	var s *net.UDPAddr
	if src != nil {
		s = &net.UDPAddr{IP: src.Addr().AsSlice()}
	}

	var err error
	if e.p4 != nil {
		switch {
		case s != nil && join:
			err = e.p4.JoinSourceSpecificGroup(ifi, g, s)
		case s != nil:
			err = e.p4.LeaveSourceSpecificGroup(ifi, g, s)
		case join:
			err = e.p4.JoinGroup(ifi, g)
		default:
			err = e.p4.LeaveGroup(ifi, g)
		}
	} else {
		switch {
		case s != nil && join:
			err = e.p6.JoinSourceSpecificGroup(ifi, g, s)
		case s != nil:
			err = e.p6.LeaveSourceSpecificGroup(ifi, g, s)
		case join:
			err = e.p6.JoinGroup(ifi, g)
		default:
			err = e.p6.LeaveGroup(ifi, g)
		}
	}
	if err != nil {
		return mcError(err, join)
	}
	return nil
}

// ============================================================================
//                              关闭
// ============================================================================

// Close 关闭套接字，阻塞中的 Read 随之返回
func (e *endpoint) Close() error {
	return e.uc.Close()
}

// Release 释放端点并关闭套接字
//
// 未经 Close 直接释放时也要归还端口。
func (e *endpoint) Release() {
	f := e.factory
	if err := e.uc.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		logger.Debug("关闭 UDP 套接字失败", "transport", f.name, "port", e.local.Port, "error", err)
	}
	f.cfg.Metrics.ConnClosed(f.name)
	kind := "unicast"
	if e.multicast {
		kind = "multicast"
	}
	logger.Info("释放 UDP 连接", "transport", f.name, "type", kind, "port", e.local.Port)
}
