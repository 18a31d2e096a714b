// Package participant 管理 DDSI 参与者的套接字集合
//
// 一个参与者持有四个端点：发现组播、发现单播、数据组播、数据单播。
// 单播端口由域编号和参与者索引按 DDSI 端口映射计算：
//
//	发现组播: PB + DG*domain + d0
//	发现单播: PB + DG*domain + d1 + PG*index
//	数据组播: PB + DG*domain + d2
//	数据单播: PB + DG*domain + d3 + PG*index
//
// 参与者索引有三种模式：none 使用临时端口，auto 从 IndexPool 分配
// 第一个能绑定的索引，manual 使用配置的固定索引。
package participant

import "github.com/dep2p/go-ddsi/config"

// Ports DDSI 端口映射参数
type Ports struct {
	Base            uint32
	DomainGain      uint32
	ParticipantGain uint32
	D0, D1, D2, D3  uint32
}

// DefaultPorts 返回 DDSI 标准端口映射
func DefaultPorts() Ports {
	return PortsFromConfig(config.DefaultPortsConfig())
}

// PortsFromConfig 从配置创建端口映射
func PortsFromConfig(c config.PortsConfig) Ports {
	return Ports{
		Base:            c.Base,
		DomainGain:      c.DomainGain,
		ParticipantGain: c.ParticipantGain,
		D0:              c.D0,
		D1:              c.D1,
		D2:              c.D2,
		D3:              c.D3,
	}
}

func (p Ports) domainBase(domain uint32) uint32 {
	return p.Base + p.DomainGain*domain
}

// DiscoveryMulticast 发现组播端口
func (p Ports) DiscoveryMulticast(domain uint32) uint32 {
	return p.domainBase(domain) + p.D0
}

// DiscoveryUnicast 发现单播端口
func (p Ports) DiscoveryUnicast(domain, index uint32) uint32 {
	return p.domainBase(domain) + p.D1 + p.ParticipantGain*index
}

// DataMulticast 数据组播端口
func (p Ports) DataMulticast(domain uint32) uint32 {
	return p.domainBase(domain) + p.D2
}

// DataUnicast 数据单播端口
func (p Ports) DataUnicast(domain, index uint32) uint32 {
	return p.domainBase(domain) + p.D3 + p.ParticipantGain*index
}
