package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// 参与者索引取值
const (
	// ParticipantIndexNone 不使用索引，单播端口由系统分配
	ParticipantIndexNone = "none"
	// ParticipantIndexAuto 自动选择第一个可绑定的索引
	ParticipantIndexAuto = "auto"
)

// IndexMode 参与者索引模式
type IndexMode int

const (
	// IndexModeNone 不使用索引
	IndexModeNone IndexMode = iota
	// IndexModeAuto 自动索引
	IndexModeAuto
	// IndexModeManual 固定索引
	IndexModeManual
)

// String 返回模式名
func (m IndexMode) String() string {
	switch m {
	case IndexModeAuto:
		return "auto"
	case IndexModeManual:
		return "manual"
	default:
		return "none"
	}
}

// DiscoveryConfig 发现端口与参与者索引配置
type DiscoveryConfig struct {
	// DomainID 域编号
	DomainID uint32 `json:"domain_id"`

	// ParticipantIndex 参与者索引：none、auto 或非负整数
	ParticipantIndex string `json:"participant_index"`

	// MaxAutoParticipantIndex auto 模式下的最大索引
	MaxAutoParticipantIndex uint32 `json:"max_auto_participant_index"`

	// Ports 端口映射参数
	Ports PortsConfig `json:"ports"`
}

// PortsConfig DDSI 端口映射参数
//
//	发现组播: Base + DomainGain*domain + D0
//	发现单播: Base + DomainGain*domain + D1 + ParticipantGain*index
//	数据组播: Base + DomainGain*domain + D2
//	数据单播: Base + DomainGain*domain + D3 + ParticipantGain*index
type PortsConfig struct {
	Base            uint32 `json:"base"`
	DomainGain      uint32 `json:"domain_gain"`
	ParticipantGain uint32 `json:"participant_gain"`
	D0              uint32 `json:"d0"`
	D1              uint32 `json:"d1"`
	D2              uint32 `json:"d2"`
	D3              uint32 `json:"d3"`
}

// DefaultDiscoveryConfig 返回默认发现配置
func DefaultDiscoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{
		DomainID:                0,
		ParticipantIndex:        ParticipantIndexAuto,
		MaxAutoParticipantIndex: 9,
		Ports:                   DefaultPortsConfig(),
	}
}

// DefaultPortsConfig 返回 DDSI 标准端口映射
func DefaultPortsConfig() PortsConfig {
	return PortsConfig{
		Base:            7400,
		DomainGain:      250,
		ParticipantGain: 2,
		D0:              0,
		D1:              10,
		D2:              1,
		D3:              11,
	}
}

// IndexMode 解析参与者索引模式，固定索引时同时返回索引值
func (c DiscoveryConfig) IndexMode() (IndexMode, uint32, error) {
	switch s := strings.ToLower(strings.TrimSpace(c.ParticipantIndex)); s {
	case "", ParticipantIndexNone:
		return IndexModeNone, 0, nil
	case ParticipantIndexAuto:
		return IndexModeAuto, 0, nil
	default:
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return IndexModeNone, 0, fmt.Errorf("invalid participant index %q", c.ParticipantIndex)
		}
		return IndexModeManual, uint32(n), nil
	}
}

// Validate 验证发现配置
//
// 最大索引对应的数据单播端口必须落在 16 位端口范围内。
func (c DiscoveryConfig) Validate() error {
	mode, idx, err := c.IndexMode()
	if err != nil {
		return err
	}
	if c.Ports.Base == 0 {
		return errors.New("port base must be positive")
	}

	maxIdx := uint64(0)
	switch mode {
	case IndexModeAuto:
		maxIdx = uint64(c.MaxAutoParticipantIndex)
	case IndexModeManual:
		maxIdx = uint64(idx)
	}

	p := c.Ports
	top := uint64(p.Base) + uint64(p.DomainGain)*uint64(c.DomainID) +
		max(uint64(p.D0), uint64(p.D1)+uint64(p.ParticipantGain)*maxIdx,
			uint64(p.D2), uint64(p.D3)+uint64(p.ParticipantGain)*maxIdx)
	if top > 65535 {
		return fmt.Errorf("domain %d with participant index %d maps to port %d beyond 65535", c.DomainID, maxIdx, top)
	}
	return nil
}

// WithDomainID 设置域编号
func (c DiscoveryConfig) WithDomainID(id uint32) DiscoveryConfig {
	c.DomainID = id
	return c
}

// WithParticipantIndex 设置参与者索引
func (c DiscoveryConfig) WithParticipantIndex(index string) DiscoveryConfig {
	c.ParticipantIndex = index
	return c
}
