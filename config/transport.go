package config

import (
	"errors"
	"fmt"
	"net/netip"
	"time"
)

// 传输选择
const (
	// TransportDefault 默认传输（UDP/IPv4）
	TransportDefault = "default"
	// TransportUDP UDP/IPv4
	TransportUDP = "udp"
	// TransportUDP6 UDP/IPv6
	TransportUDP6 = "udp6"
	// TransportTCP TCP/IPv4
	TransportTCP = "tcp"
	// TransportTCP6 TCP/IPv6
	TransportTCP6 = "tcp6"
)

// 组播接口选择
const (
	// MulticastInterfacesDefault 由系统选择接口
	MulticastInterfacesDefault = "default"
	// MulticastInterfacesAll 在所有支持组播的接口上加入
	MulticastInterfacesAll = "all"
)

// TransportConfig 传输层配置
type TransportConfig struct {
	// Selector 传输选择：default、udp、udp6、tcp、tcp6
	Selector string `json:"selector"`

	// EnableTCP 额外注册 TCP 传输（Selector 为 tcp/tcp6 时总是注册）
	EnableTCP bool `json:"enable_tcp"`

	// ExternalAddress 对外通告的地址，空表示使用第一个可用接口地址
	ExternalAddress string `json:"external_address,omitempty"`

	// DefaultSPDPAddress 覆盖默认发现组播地址（带传输前缀）
	DefaultSPDPAddress string `json:"default_spdp_address,omitempty"`

	// AllowMulticast 是否使用组播
	AllowMulticast bool `json:"allow_multicast"`

	// MulticastInterfaces 组播接口选择：default 或 all
	MulticastInterfaces string `json:"multicast_interfaces"`

	// MulticastLoopback 是否回环本机发出的组播
	MulticastLoopback bool `json:"multicast_loopback"`

	// MulticastTTL 组播 TTL / hop limit
	MulticastTTL int `json:"multicast_ttl"`

	// DiffServ IP TOS / Traffic Class
	DiffServ int `json:"diffserv"`

	// MaxMessageSize 接收缓冲区大小（字节）
	MaxMessageSize int `json:"max_message_size"`

	// TCP 配置
	TCP TCPConfig `json:"tcp,omitempty"`
}

// TCPConfig TCP 传输配置
type TCPConfig struct {
	// Timeout 拨号超时
	Timeout Duration `json:"timeout"`

	// NoDelay 是否禁用 Nagle 算法
	NoDelay bool `json:"no_delay"`

	// MaxFrameSize 单帧最大长度
	MaxFrameSize int `json:"max_frame_size"`
}

// DefaultTransportConfig 返回默认传输配置
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		Selector:            TransportDefault,
		EnableTCP:           false,
		AllowMulticast:      true,
		MulticastInterfaces: MulticastInterfacesDefault,
		MulticastLoopback:   true,
		MulticastTTL:        32,
		DiffServ:            0,
		MaxMessageSize:      65536,
		TCP: TCPConfig{
			Timeout:      Duration(10 * time.Second),
			NoDelay:      true,
			MaxFrameSize: 1 << 20,
		},
	}
}

// Validate 验证传输配置
func (c TransportConfig) Validate() error {
	switch c.Selector {
	case TransportDefault, TransportUDP, TransportUDP6, TransportTCP, TransportTCP6:
	default:
		return fmt.Errorf("unknown transport selector %q", c.Selector)
	}

	switch c.MulticastInterfaces {
	case MulticastInterfacesDefault, MulticastInterfacesAll:
	default:
		return fmt.Errorf("unknown multicast interface selection %q", c.MulticastInterfaces)
	}

	if c.ExternalAddress != "" {
		if _, err := netip.ParseAddr(c.ExternalAddress); err != nil {
			return fmt.Errorf("invalid external address %q: %w", c.ExternalAddress, err)
		}
	}
	if c.MulticastTTL < 1 || c.MulticastTTL > 255 {
		return errors.New("multicast TTL must be in [1, 255]")
	}
	if c.DiffServ < 0 || c.DiffServ > 255 {
		return errors.New("diffserv must be in [0, 255]")
	}
	if c.MaxMessageSize <= 0 {
		return errors.New("max message size must be positive")
	}
	if c.TCP.Timeout <= 0 {
		return errors.New("TCP timeout must be positive")
	}
	if c.TCP.MaxFrameSize <= 0 {
		return errors.New("TCP max frame size must be positive")
	}
	return nil
}

// Network 返回实际选择的传输名
func (c TransportConfig) Network() string {
	if c.Selector == TransportDefault || c.Selector == "" {
		return TransportUDP
	}
	return c.Selector
}

// WithSelector 设置传输选择
func (c TransportConfig) WithSelector(selector string) TransportConfig {
	c.Selector = selector
	return c
}

// WithExternalAddress 设置对外通告地址
func (c TransportConfig) WithExternalAddress(addr string) TransportConfig {
	c.ExternalAddress = addr
	return c
}

// WithMulticast 设置是否使用组播
func (c TransportConfig) WithMulticast(enabled bool) TransportConfig {
	c.AllowMulticast = enabled
	return c
}

// WithDiffServ 设置 DiffServ
func (c TransportConfig) WithDiffServ(v int) TransportConfig {
	c.DiffServ = v
	return c
}
