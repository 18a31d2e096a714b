package transport

import (
	"errors"

	"github.com/dep2p/go-ddsi/pkg/types"
)

// ============================================================================
//                              FactoryRegistry 接口
// ============================================================================

// FactoryRegistry 传输工厂注册表
//
// 上层通过注册表按名称、名称前缀或定位器类型查找工厂，
// 不直接依赖具体传输实现。
type FactoryRegistry interface {
	// Register 注册工厂，同名工厂已存在时返回 ErrFactoryExists
	Register(f Factory) error

	// Lookup 按名称查找
	Lookup(name string) (Factory, bool)

	// LookupPrefix 按 text[:length] 查找
	LookupPrefix(text string, length int) (Factory, bool)

	// LookupSupporting 查找第一个支持 kind 的工厂（按注册顺序）
	LookupSupporting(kind types.LocatorKind) (Factory, bool)

	// Default 返回默认工厂
	Default() (Factory, bool)

	// Factories 返回所有已注册工厂
	Factories() []Factory

	// Close 关闭所有工厂
	Close() error
}

// ============================================================================
//                              错误定义
// ============================================================================

// transportError 传输错误类型
type transportError string

func (e transportError) Error() string {
	return string(e)
}

// 注册表错误
var (
	// ErrFactoryExists 同名工厂已注册
	ErrFactoryExists = transportError("transport factory already registered")

	// ErrFactoryNotFound 工厂不存在
	ErrFactoryNotFound = transportError("transport factory not found")
)

// 定位器错误
var (
	// ErrLocatorSyntax 定位器文本格式错误
	ErrLocatorSyntax = transportError("locator syntax error")

	// ErrUnknownTransport 定位器前缀不是已注册的传输
	ErrUnknownTransport = transportError("unknown transport")

	// ErrUnknownHost 主机名解析失败
	ErrUnknownHost = transportError("unknown host")

	// ErrLocatorMismatch 地址族与传输不匹配
	ErrLocatorMismatch = transportError("locator address family mismatch")
)

// 连接错误
var (
	// ErrConnClosed 连接已关闭
	ErrConnClosed = transportError("connection closed")

	// ErrPartialWrite 端点报告了部分写入（违反原子写约定）
	ErrPartialWrite = transportError("partial datagram write")

	// ErrPeerUnreachable 对端不可达（良性错误，对端可能已离开）
	ErrPeerUnreachable = transportError("peer unreachable")

	// ErrPeerMismatch 流式连接已连接到其他对端
	ErrPeerMismatch = transportError("stream connection bound to another peer")

	// ErrNotConnected 流式连接尚未连接
	ErrNotConnected = transportError("stream connection not connected")

	// ErrListenerUnsupported 传输不支持监听器
	ErrListenerUnsupported = transportError("transport does not support listeners")

	// ErrBindFailed 套接字绑定失败
	ErrBindFailed = transportError("socket bind failed")

	// ErrFatalConfig 致命配置错误（服务应中止初始化）
	ErrFatalConfig = transportError("fatal configuration error")
)

// 组播错误分类
var (
	// ErrMulticastUnsupported 传输不支持组播
	ErrMulticastUnsupported = transportError("multicast not supported")

	// ErrMCAddrNotAvailable 组地址或接口地址不可用
	ErrMCAddrNotAvailable = transportError("multicast address not available")

	// ErrMCNoDevice 没有可用接口
	ErrMCNoDevice = transportError("no multicast capable device")

	// ErrMCAlreadyJoined 已加入
	ErrMCAlreadyJoined = transportError("multicast group already joined")

	// ErrMCNotJoined 未加入
	ErrMCNotJoined = transportError("multicast group not joined")

	// ErrMCPermission 权限不足
	ErrMCPermission = transportError("multicast permission denied")

	// ErrMCOther 其他平台错误
	ErrMCOther = transportError("multicast operation failed")
)

// IsBenign 检查错误是否为良性错误（对端变动导致，可忽略）
func IsBenign(err error) bool {
	return errors.Is(err, ErrPeerUnreachable) || errors.Is(err, ErrConnClosed)
}
