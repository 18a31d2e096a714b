package transport

import (
	"errors"
	"fmt"
	"sync/atomic"

	transportif "github.com/dep2p/go-ddsi/pkg/interfaces/transport"
	"github.com/dep2p/go-ddsi/pkg/types"
)

// connIDs 进程内连接 ID 计数器
var connIDs atomic.Uint64

// ============================================================================
//                              Conn
// ============================================================================

// Conn 引用计数的传输连接
//
// 生命周期 Open → Closing → Released：
//   - Close 只有第一个调用者执行端点的关闭钩子，阻塞中的 Read 随之返回
//   - 引用计数归零的调用者执行释放钩子，且只执行一次
//
// Close 之后 Read/Write 立即返回 ErrConnClosed。
type Conn struct {
	id        uint64
	factory   transportif.Factory
	ep        transportif.Endpoint
	multicast bool
	listener  *Listener

	refs   atomic.Int32
	closed atomic.Bool
}

// 确保实现组成员接口
var _ transportif.GroupMember = (*Conn)(nil)

// NewConn 包装端点，初始引用计数为 1
func NewConn(f transportif.Factory, ep transportif.Endpoint, multicast bool) *Conn {
	c := &Conn{
		id:        connIDs.Add(1),
		factory:   f,
		ep:        ep,
		multicast: multicast,
	}
	c.refs.Store(1)
	return c
}

// ID 返回连接 ID
func (c *Conn) ID() uint64 { return c.id }

// Factory 返回所属工厂
func (c *Conn) Factory() transportif.Factory { return c.factory }

// Endpoint 返回底层端点
func (c *Conn) Endpoint() transportif.Endpoint { return c.ep }

// Multicast 是否为组播接收连接
func (c *Conn) Multicast() bool { return c.multicast }

// Listener 返回接受该连接的监听器（客户端连接为 nil）
func (c *Conn) Listener() *Listener { return c.listener }

// Closed 是否已关闭
func (c *Conn) Closed() bool { return c.closed.Load() }

// Refs 返回当前引用计数
func (c *Conn) Refs() int32 { return c.refs.Load() }

// ============================================================================
//                              引用计数与关闭
// ============================================================================

// AddRef 增加引用
func (c *Conn) AddRef() {
	c.refs.Add(1)
}

// Release 减少引用，归零时释放端点
func (c *Conn) Release() {
	n := c.refs.Add(-1)
	switch {
	case n > 0:
		return
	case n < 0:
		logger.Error("连接引用计数为负", "conn", c.id, "refs", n)
		return
	}

	if c.listener != nil {
		c.listener.detach(c)
	}
	if m := c.factory.Membership(); m != nil {
		m.Forget(c.id)
	}
	c.ep.Release()
	logger.Debug("连接已释放", "conn", c.id, "transport", c.factory.Name())
}

// Close 关闭连接
//
// 只有第一次调用执行关闭钩子，之后的调用直接返回 nil。
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	logger.Debug("关闭连接", "conn", c.id, "transport", c.factory.Name())
	return c.ep.Close()
}

// Free 关闭并释放调用者持有的引用
func (c *Conn) Free() {
	if err := c.Close(); err != nil {
		logger.Debug("关闭连接出错", "conn", c.id, "error", err)
	}
	c.Release()
}

// ============================================================================
//                              数据收发
// ============================================================================

// Read 读取一个数据报
func (c *Conn) Read(buf []byte) (transportif.ReadResult, error) {
	if c.closed.Load() {
		return transportif.ReadResult{}, transportif.ErrConnClosed
	}
	res, err := c.ep.Read(buf)
	if err != nil && c.closed.Load() && !errors.Is(err, transportif.ErrConnClosed) {
		return res, fmt.Errorf("%w: %v", transportif.ErrConnClosed, err)
	}
	return res, err
}

// Write 把 bufs 作为一个数据报发往 dst
//
// 写入是原子的：成功时返回所有缓冲区长度之和，失败时返回 0 与错误。
// 端点报告部分写入时转换为 ErrPartialWrite。
func (c *Conn) Write(dst types.Locator, bufs ...[]byte) (int, error) {
	if c.closed.Load() {
		return 0, transportif.ErrConnClosed
	}

	total := 0
	for _, b := range bufs {
		total += len(b)
	}

	n, err := c.ep.Write(dst, bufs)
	if err != nil {
		return 0, err
	}
	if n != total {
		logger.Error("端点部分写入", "conn", c.id, "written", n, "expected", total)
		return 0, fmt.Errorf("%w: wrote %d of %d bytes", transportif.ErrPartialWrite, n, total)
	}
	return n, nil
}

// Locator 返回本端定位器
func (c *Conn) Locator() (types.Locator, error) {
	return c.ep.Locator()
}

// PeerLocator 返回对端定位器（仅已连接的流式连接）
func (c *Conn) PeerLocator() (types.Locator, bool) {
	return c.ep.PeerLocator()
}

// ============================================================================
//                              组播
// ============================================================================

// JoinMC 套接字级加入组播组
func (c *Conn) JoinMC(src *types.Locator, group types.Locator, iface *transportif.Interface) error {
	if c.closed.Load() {
		return transportif.ErrConnClosed
	}
	return c.ep.JoinMC(src, group, iface)
}

// LeaveMC 套接字级离开组播组
func (c *Conn) LeaveMC(src *types.Locator, group types.Locator, iface *transportif.Interface) error {
	if c.closed.Load() {
		return transportif.ErrConnClosed
	}
	return c.ep.LeaveMC(src, group, iface)
}

// JoinGroup 通过工厂的组成员关系加入组播组
func (c *Conn) JoinGroup(src *types.Locator, group types.Locator) error {
	m := c.factory.Membership()
	if m == nil {
		return transportif.ErrMulticastUnsupported
	}
	return m.Join(c, src, group)
}

// LeaveGroup 通过工厂的组成员关系离开组播组
func (c *Conn) LeaveGroup(src *types.Locator, group types.Locator) error {
	m := c.factory.Membership()
	if m == nil {
		return transportif.ErrMulticastUnsupported
	}
	return m.Leave(c, src, group)
}
