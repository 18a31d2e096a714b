package participant

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/dep2p/go-ddsi/config"
	"github.com/dep2p/go-ddsi/internal/core/transport"
	transportif "github.com/dep2p/go-ddsi/pkg/interfaces/transport"
	"github.com/dep2p/go-ddsi/pkg/lib/log"
	"github.com/dep2p/go-ddsi/pkg/types"
)

var logger = log.Logger("core/participant")

// ============================================================================
//                              配置
// ============================================================================

// Config 参与者配置
type Config struct {
	// DomainID 域编号
	DomainID uint32

	// Mode 参与者索引模式
	Mode config.IndexMode

	// Index 固定索引（仅 manual 模式）
	Index uint32

	// Ports 端口映射
	Ports Ports

	// AllowMulticast 是否创建组播端点并加入发现组
	AllowMulticast bool

	// DiffServ IP TOS / Traffic Class
	DiffServ int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	cfg, _ := ConfigFromUnified(nil)
	return cfg
}

// ConfigFromUnified 从统一配置创建参与者配置
func ConfigFromUnified(cfg *config.Config) (Config, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	mode, idx, err := cfg.Discovery.IndexMode()
	if err != nil {
		return Config{}, err
	}
	return Config{
		DomainID:       cfg.Discovery.DomainID,
		Mode:           mode,
		Index:          idx,
		Ports:          PortsFromConfig(cfg.Discovery.Ports),
		AllowMulticast: cfg.Transport.AllowMulticast,
		DiffServ:       cfg.Transport.DiffServ,
	}, nil
}

// ============================================================================
//                              Participant
// ============================================================================

// Slot 参与者端点位置
type Slot int

const (
	// SlotDiscoveryMulticast 发现组播
	SlotDiscoveryMulticast Slot = iota
	// SlotDiscoveryUnicast 发现单播
	SlotDiscoveryUnicast
	// SlotDataMulticast 数据组播
	SlotDataMulticast
	// SlotDataUnicast 数据单播
	SlotDataUnicast

	numSlots
)

// String 返回位置名
func (s Slot) String() string {
	switch s {
	case SlotDiscoveryMulticast:
		return "discovery-multicast"
	case SlotDiscoveryUnicast:
		return "discovery-unicast"
	case SlotDataMulticast:
		return "data-multicast"
	case SlotDataUnicast:
		return "data-unicast"
	default:
		return fmt.Sprintf("slot(%d)", int(s))
	}
}

// Participant 一个 DDSI 参与者的套接字集合
//
// 无连接传输的单播位置持有 Conn；流式传输的单播位置持有 Listener。
// 组播位置只在允许组播且传输提供发现组播地址时存在。
//
// Rebind 会替换 Conn，持有旧 Conn 的读取者收到 ErrConnClosed 后
// 应通过 Conn 重新获取。
type Participant struct {
	cfg     Config
	factory transportif.Factory
	pool    *IndexPool

	index    uint32
	hasIndex bool
	fromPool bool
	spdp     types.Locator

	mu        sync.Mutex
	conns     [numSlots]*transport.Conn
	listeners [numSlots]*transport.Listener
	groups    [numSlots]types.Locator
	closed    bool
}

// New 在注册表的默认传输上创建参与者
//
// pool 只在 auto 模式下使用，其他模式可为 nil。
func New(ctx context.Context, cfg Config, reg *transport.Registry, pool *IndexPool) (*Participant, error) {
	f, ok := reg.Default()
	if !ok {
		return nil, fmt.Errorf("%w: no default transport", transportif.ErrFactoryNotFound)
	}
	if cfg.Mode == config.IndexModeAuto && pool == nil {
		return nil, errors.New("auto participant index requires an index pool")
	}

	p := &Participant{
		cfg:     cfg,
		factory: f,
		pool:    pool,
		spdp:    types.InvalidLocator(),
	}
	for i := range p.groups {
		p.groups[i] = types.InvalidLocator()
	}

	if cfg.AllowMulticast && f.Connectionless() && f.DefaultSPDPAddress() != "" {
		loc, err := reg.ParseLocator(f.DefaultSPDPAddress())
		if err != nil {
			return nil, fmt.Errorf("parse SPDP address %q: %w", f.DefaultSPDPAddress(), err)
		}
		if f.IsMulticast(loc) {
			p.spdp = loc
		} else {
			logger.Warn("发现地址不是组播地址，只使用单播", "spdp", f.DefaultSPDPAddress())
		}
	}

	if err := p.openUnicast(ctx); err != nil {
		p.abort()
		return nil, err
	}
	if p.spdp.IsValid() {
		if err := p.openMulticast(); err != nil {
			p.abort()
			return nil, err
		}
	}

	logger.Info("参与者已创建",
		"transport", f.Name(),
		"domain", cfg.DomainID,
		"mode", cfg.Mode.String(),
		"index", p.indexAttr())
	return p, nil
}

// ============================================================================
//                              创建端点
// ============================================================================

// openUnicast 按索引模式绑定单播端点
func (p *Participant) openUnicast(ctx context.Context) error {
	ports, domain := p.cfg.Ports, p.cfg.DomainID

	switch p.cfg.Mode {
	case config.IndexModeManual:
		idx := p.cfg.Index
		if err := p.bindUnicast(ports.DiscoveryUnicast(domain, idx), ports.DataUnicast(domain, idx)); err != nil {
			return err
		}
		p.index, p.hasIndex = idx, true
		return nil

	case config.IndexModeAuto:
		var failed []uint32
		defer func() {
			for _, id := range failed {
				p.pool.Free(id)
			}
		}()

		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			idx, ok := p.pool.Alloc()
			if !ok {
				return fmt.Errorf("%w: all indices in [0, %d] unavailable", ErrNoParticipantIndex, p.pool.Max())
			}

			err := p.bindUnicast(ports.DiscoveryUnicast(domain, idx), ports.DataUnicast(domain, idx))
			if err == nil {
				p.index, p.hasIndex, p.fromPool = idx, true, true
				return nil
			}
			if !errors.Is(err, transportif.ErrBindFailed) || errors.Is(err, transportif.ErrFatalConfig) {
				p.pool.Free(idx)
				return err
			}
			logger.Debug("参与者索引不可用", "index", idx, "err", err)
			failed = append(failed, idx)
		}

	default:
		return p.bindUnicast(0, 0)
	}
}

// bindUnicast 绑定发现单播与数据单播端点，失败时释放已创建的端点
func (p *Participant) bindUnicast(discPort, dataPort uint32) error {
	if p.factory.Stream() {
		disc, err := p.listen(discPort)
		if err != nil {
			return err
		}
		data, err := p.listen(dataPort)
		if err != nil {
			disc.Free()
			return err
		}
		p.listeners[SlotDiscoveryUnicast] = disc
		p.listeners[SlotDataUnicast] = data
		return nil
	}

	disc, err := p.open(discPort, false)
	if err != nil {
		return err
	}
	data, err := p.open(dataPort, false)
	if err != nil {
		disc.Free()
		return err
	}
	p.conns[SlotDiscoveryUnicast] = disc
	p.conns[SlotDataUnicast] = data
	return nil
}

// openMulticast 创建组播端点并加入发现组
func (p *Participant) openMulticast() error {
	ports, domain := p.cfg.Ports, p.cfg.DomainID
	for _, s := range []struct {
		slot Slot
		port uint32
	}{
		{SlotDiscoveryMulticast, ports.DiscoveryMulticast(domain)},
		{SlotDataMulticast, ports.DataMulticast(domain)},
	} {
		c, err := p.open(s.port, true)
		if err != nil {
			return err
		}
		p.conns[s.slot] = c

		group := p.spdp.WithPort(s.port)
		if err := c.JoinGroup(nil, group); err != nil {
			return fmt.Errorf("join %s on %s: %w", group.AddrPort(), s.slot, err)
		}
		p.groups[s.slot] = group
	}
	return nil
}

func (p *Participant) open(port uint32, multicast bool) (*transport.Conn, error) {
	ep, err := p.factory.CreateConn(port, p.qos(multicast))
	if err != nil {
		return nil, err
	}
	return transport.NewConn(p.factory, ep, multicast), nil
}

func (p *Participant) listen(port uint32) (*transport.Listener, error) {
	acc, err := p.factory.CreateListener(port, p.qos(false))
	if err != nil {
		return nil, err
	}
	l := transport.NewListener(p.factory, acc)
	if err := l.Listen(); err != nil {
		l.Free()
		return nil, err
	}
	return l, nil
}

func (p *Participant) qos(multicast bool) transportif.QoS {
	return transportif.QoS{Multicast: multicast, DiffServ: p.cfg.DiffServ}
}

// ============================================================================
//                              重绑定
// ============================================================================

// Rebind 在网络接口变化后重建套接字
//
// 组播端点先创建替代连接，迁移组成员关系并在新连接上重新加入，
// 然后释放旧连接；单播端点关闭后在同一端口重新创建。
// 流式传输的监听器绑定在通配地址上，不需要重建。
func (p *Participant) Rebind(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	var errs error
	rebound := 0
	for slot, c := range p.conns {
		if c == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}

		nc, err := p.rebindConn(Slot(slot), c)
		p.conns[slot] = nc
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", Slot(slot), err))
		}
		if nc != nil {
			rebound++
		}
	}

	if errs != nil {
		logger.Warn("参与者重绑定部分失败", "rebound", rebound, "err", errs)
		return errs
	}
	logger.Info("参与者已重绑定", "rebound", rebound)
	return nil
}

// rebindConn 替换一个连接，返回新连接（失败时可能为 nil）
func (p *Participant) rebindConn(slot Slot, old *transport.Conn) (*transport.Conn, error) {
	loc, err := old.Locator()
	if err != nil {
		return old, err
	}
	port := loc.Port

	if !old.Multicast() {
		old.Free()
		return p.open(port, false)
	}

	nc, err := p.open(port, true)
	if err != nil {
		return old, err
	}
	var rejoinErr error
	if m := p.factory.Membership(); m != nil {
		rejoinErr = m.Migrate(old, nc)
	}
	old.Free()
	logger.Debug("组播连接已替换", "slot", slot.String(), "old", old.ID(), "new", nc.ID())
	return nc, rejoinErr
}

// ============================================================================
//                              关闭
// ============================================================================

// Close 离开组播组，释放所有端点并归还索引
func (p *Participant) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	errs := p.release()

	logger.Info("参与者已关闭", "transport", p.factory.Name(), "index", p.indexAttr())
	return errs
}

// abort 撤销创建到一半的参与者
func (p *Participant) abort() {
	if err := p.release(); err != nil {
		logger.Debug("撤销参与者时离开组播组失败", "index", p.indexAttr(), "error", err)
	}
}

// release 离开已加入的组播组，释放端点并归还索引
func (p *Participant) release() error {
	var errs error
	for slot, c := range p.conns {
		if c == nil || !p.groups[slot].IsValid() {
			continue
		}
		if err := c.LeaveGroup(nil, p.groups[slot]); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("leave %s: %w", Slot(slot), err))
		}
		p.groups[slot] = types.InvalidLocator()
	}

	for i, c := range p.conns {
		if c != nil {
			c.Free()
			p.conns[i] = nil
		}
	}
	for i, l := range p.listeners {
		if l != nil {
			l.Free()
			p.listeners[i] = nil
		}
	}
	if p.fromPool {
		p.pool.Free(p.index)
		p.fromPool = false
	}
	return errs
}

// ============================================================================
//                              查询
// ============================================================================

// Factory 返回参与者使用的传输工厂
func (p *Participant) Factory() transportif.Factory {
	return p.factory
}

// Index 返回参与者索引，none 模式返回 false
func (p *Participant) Index() (uint32, bool) {
	return p.index, p.hasIndex
}

// SPDPGroup 返回发现组播组，未使用组播时返回 false
func (p *Participant) SPDPGroup() (types.Locator, bool) {
	return p.spdp, p.spdp.IsValid()
}

// Conn 返回位置上的连接，可能为 nil
func (p *Participant) Conn(slot Slot) *transport.Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	if slot < 0 || slot >= numSlots {
		return nil
	}
	return p.conns[slot]
}

// Listener 返回位置上的监听器（仅流式传输的单播位置）
func (p *Participant) Listener(slot Slot) *transport.Listener {
	p.mu.Lock()
	defer p.mu.Unlock()
	if slot < 0 || slot >= numSlots {
		return nil
	}
	return p.listeners[slot]
}

// Locator 返回位置上端点的定位器
func (p *Participant) Locator(slot Slot) (types.Locator, bool) {
	if c := p.Conn(slot); c != nil {
		loc, err := c.Locator()
		return loc, err == nil
	}
	if l := p.Listener(slot); l != nil {
		loc, err := l.Locator()
		return loc, err == nil
	}
	return types.InvalidLocator(), false
}

// Closed 是否已关闭
func (p *Participant) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Participant) indexAttr() any {
	if !p.hasIndex {
		return "none"
	}
	return p.index
}
