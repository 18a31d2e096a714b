// Package transport 定义传输层接口
//
// 传输层负责底层数据报收发，包括：
// - 传输工厂抽象（UDP/IPv4、UDP/IPv6、TCP 等）
// - 连接与监听器的底层端点
// - 组播组成员关系
package transport

import (
	"net/netip"

	"github.com/dep2p/go-ddsi/pkg/types"
)

// ============================================================================
//                              Factory 接口
// ============================================================================

// Factory 传输工厂接口
//
// 每种传输（udp、udp6、tcp、tcp6）注册一个工厂实例，
// 由注册表持有直到进程关闭。
type Factory interface {
	// Name 返回传输类型名，如 "udp"、"udp6"、"tcp"
	Name() string

	// Kind 返回该传输产生的定位器类型
	Kind() types.LocatorKind

	// Connectionless 是否为无连接传输
	Connectionless() bool

	// Stream 是否为流式传输
	Stream() bool

	// DefaultSPDPAddress 返回默认发现组播地址（带传输前缀）
	DefaultSPDPAddress() string

	// Supports 检查是否支持指定定位器类型
	Supports(kind types.LocatorKind) bool

	// CreateConn 创建连接端点
	//
	// port 为 0 时由操作系统分配端口。
	CreateConn(port uint32, qos QoS) (Endpoint, error)

	// CreateListener 创建监听端点
	//
	// 无连接传输返回 ErrListenerUnsupported。
	CreateListener(port uint32, qos QoS) (Acceptor, error)

	// IsMulticast 检查定位器是否为组播地址
	IsMulticast(loc types.Locator) bool

	// IsNearby 判断定位器相对本地接口的远近
	IsNearby(loc types.Locator, ifaces []Interface) types.NearbyResult

	// LocatorFromString 解析不带传输前缀的地址部分
	LocatorFromString(s string) (types.Locator, error)

	// LocatorToString 格式化地址部分（不带传输前缀）
	LocatorToString(loc types.Locator, withPort bool) string

	// EnumerateInterfaces 枚举可用于该传输的本地接口
	EnumerateInterfaces() ([]Interface, error)

	// Membership 返回该工厂共享的组播成员关系记录
	//
	// 不支持组播的传输返回 nil。
	Membership() GroupMembership

	// Close 释放工厂
	Close() error
}

// ============================================================================
//                              Endpoint 接口
// ============================================================================

// ReadResult 读取结果
type ReadResult struct {
	// N 写入缓冲区的字节数
	N int

	// Src 发送方定位器
	Src types.Locator

	// Truncated 数据报大于缓冲区，超出部分已丢弃
	Truncated bool
}

// Endpoint 传输相关的连接端点
//
// 由工厂创建，由 transport.Conn 包装并管理引用计数。
type Endpoint interface {
	// Read 读取一个数据报（或一帧）
	Read(buf []byte) (ReadResult, error)

	// Write 把 bufs 作为一个数据报发往 dst
	//
	// 返回值必须等于所有缓冲区长度之和，或返回错误。
	Write(dst types.Locator, bufs [][]byte) (int, error)

	// Locator 返回本端对外通告的定位器
	Locator() (types.Locator, error)

	// PeerLocator 返回对端定位器（仅已连接的流式端点）
	PeerLocator() (types.Locator, bool)

	// JoinMC 在套接字上加入组播组
	//
	// src 非 nil 时为源特定组播；iface 为 nil 时由系统选择接口。
	JoinMC(src *types.Locator, group types.Locator, iface *Interface) error

	// LeaveMC 在套接字上离开组播组
	LeaveMC(src *types.Locator, group types.Locator, iface *Interface) error

	// Close 关闭钩子：停止 I/O 并唤醒阻塞的读取
	Close() error

	// Release 释放钩子：引用计数归零时调用一次
	Release()
}

// Acceptor 流式传输的监听端点
type Acceptor interface {
	// Listen 开始监听
	Listen() error

	// Accept 接受连接，阻塞直到有新连接或被 Unblock
	Accept() (Endpoint, error)

	// Locator 返回监听定位器
	Locator() (types.Locator, error)

	// Unblock 唤醒阻塞在 Accept 中的调用者
	Unblock()

	// Release 释放钩子
	Release()
}

// ============================================================================
//                              组播成员关系
// ============================================================================

// GroupMember 组成员关系中的连接
type GroupMember interface {
	// ID 返回进程内唯一的连接 ID
	ID() uint64

	// JoinMC 套接字级加入
	JoinMC(src *types.Locator, group types.Locator, iface *Interface) error

	// LeaveMC 套接字级离开
	LeaveMC(src *types.Locator, group types.Locator, iface *Interface) error
}

// GroupMembership 一个工厂的组播成员关系记录
type GroupMembership interface {
	// Join 记录并（首次时）执行加入
	Join(conn GroupMember, src *types.Locator, group types.Locator) error

	// Leave 记录并（最后一次时）执行离开
	Leave(conn GroupMember, src *types.Locator, group types.Locator) error

	// Transfer 把 oldConn 的成员关系迁移到 newConn
	Transfer(oldConn, newConn GroupMember)

	// Rejoin 在 conn 上重放所有已记录的加入
	Rejoin(conn GroupMember) error

	// Migrate 原子地完成 Transfer 与 Rejoin
	Migrate(oldConn, newConn GroupMember) error

	// Forget 丢弃 conn 的所有记录，返回丢弃条数
	Forget(conn uint64) int

	// Reset 清空记录
	Reset()
}

// ============================================================================
//                              QoS / Interface
// ============================================================================

// QoS 连接创建参数
type QoS struct {
	// Multicast 套接字用于接收组播
	Multicast bool

	// DiffServ IP TOS / Traffic Class 值
	DiffServ int
}

// Interface 本地网络接口
type Interface struct {
	// Name 接口名
	Name string

	// Index 系统接口索引
	Index int

	// Addr 接口地址
	Addr netip.Addr

	// Netmask 子网前缀
	Netmask netip.Prefix

	// MulticastCapable 支持组播
	MulticastCapable bool

	// PointToPoint 点对点链路
	PointToPoint bool

	// Loopback 回环接口
	Loopback bool
}
