// Package mcgroup 记录组播组成员关系
//
// 每个工厂持有一个 Membership，按 (连接, 源, 组) 计数：
// 第一次加入时才执行套接字级加入，最后一次离开时才执行套接字级离开。
// 网络变化后重建套接字时，Migrate 把记录迁移到新连接并在新套接字上重放加入。
package mcgroup

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/multierr"

	transportif "github.com/dep2p/go-ddsi/pkg/interfaces/transport"
	"github.com/dep2p/go-ddsi/pkg/lib/log"
	"github.com/dep2p/go-ddsi/pkg/types"
)

var logger = log.Logger("core/transport/mcgroup")

// key 成员关系键
type key struct {
	conn   uint64
	hasSrc bool
	src    types.Locator
	group  types.Locator
}

// entry 成员关系记录
type entry struct {
	conn  transportif.GroupMember
	src   *types.Locator
	group types.Locator
	count int
}

// Group 一条成员关系的只读快照
type Group struct {
	Conn  uint64
	Src   *types.Locator
	Group types.Locator
	Count int
}

// Membership 组播成员关系
type Membership struct {
	ifaces        func() []transportif.Interface
	allInterfaces bool

	mu      sync.Mutex
	entries map[key]*entry
}

// 确保实现接口
var _ transportif.GroupMembership = (*Membership)(nil)

// New 创建成员关系记录
//
// allInterfaces 为 true 时在每个支持组播的接口上分别加入，
// 否则只做一次不指定接口的加入（由系统选择）。
func New(ifaces func() []transportif.Interface, allInterfaces bool) *Membership {
	return &Membership{
		ifaces:        ifaces,
		allInterfaces: allInterfaces,
		entries:       make(map[key]*entry),
	}
}

func makeKey(conn uint64, src *types.Locator, group types.Locator) key {
	k := key{conn: conn, group: group}
	if src != nil {
		k.hasSrc, k.src = true, *src
	}
	return k
}

// ============================================================================
//                              加入与离开
// ============================================================================

// Join 加入组播组
//
// 同一 (连接, 源, 组) 重复加入只增加计数。
func (m *Membership) Join(conn transportif.GroupMember, src *types.Locator, group types.Locator) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := makeKey(conn.ID(), src, group)
	if e, ok := m.entries[k]; ok {
		e.count++
		return nil
	}

	if err := m.apply(conn, src, group, true); err != nil {
		return err
	}
	m.entries[k] = &entry{conn: conn, src: copyLocator(src), group: group, count: 1}

	logger.Debug("加入组播组", "conn", conn.ID(), "group", group.AddrPort().String(), "ssm", src != nil)
	return nil
}

// Leave 离开组播组
//
// 计数归零时才执行套接字级离开；未加入时返回 ErrMCNotJoined。
func (m *Membership) Leave(conn transportif.GroupMember, src *types.Locator, group types.Locator) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := makeKey(conn.ID(), src, group)
	e, ok := m.entries[k]
	if !ok {
		return transportif.ErrMCNotJoined
	}
	if e.count--; e.count > 0 {
		return nil
	}
	delete(m.entries, k)

	logger.Debug("离开组播组", "conn", conn.ID(), "group", group.AddrPort().String())
	return m.apply(conn, src, group, false)
}

// apply 执行套接字级加入或离开
//
// 多接口模式下至少一个接口成功即视为成功。
func (m *Membership) apply(conn transportif.GroupMember, src *types.Locator, group types.Locator, join bool) error {
	op := conn.LeaveMC
	if join {
		op = conn.JoinMC
	}

	if !m.allInterfaces || m.ifaces == nil {
		if err := op(src, group, nil); err != nil && !(join && errors.Is(err, transportif.ErrMCAlreadyJoined)) {
			return err
		}
		return nil
	}

	var (
		errs error
		ok   int
	)
	for _, ifc := range m.ifaces() {
		if !ifc.MulticastCapable || !sameFamily(ifc, group) {
			continue
		}
		ifc := ifc
		if err := op(src, group, &ifc); err != nil && !(join && errors.Is(err, transportif.ErrMCAlreadyJoined)) {
			logger.Warn("接口组播操作失败", "iface", ifc.Name, "group", group.AddrPort().String(), "join", join, "error", err)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", ifc.Name, err))
			continue
		}
		ok++
	}
	if ok == 0 {
		if errs == nil {
			return transportif.ErrMCNoDevice
		}
		return errs
	}
	return nil
}

func sameFamily(ifc transportif.Interface, group types.Locator) bool {
	if group.Kind.IsIPv4() {
		return ifc.Addr.Is4() || ifc.Addr.Is4In6()
	}
	return ifc.Addr.Is6() && !ifc.Addr.Is4In6()
}

func copyLocator(l *types.Locator) *types.Locator {
	if l == nil {
		return nil
	}
	c := *l
	return &c
}

// ============================================================================
//                              迁移与重放
// ============================================================================

// Transfer 把 oldConn 的所有成员关系迁移到 newConn
//
// 只修改记录，不执行套接字操作；之后应在 newConn 上调用 Rejoin。
func (m *Membership) Transfer(oldConn, newConn transportif.GroupMember) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transferLocked(oldConn, newConn)
}

// Rejoin 在 conn 上重放所有已记录的加入
func (m *Membership) Rejoin(conn transportif.GroupMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rejoinLocked(conn)
}

// Migrate 在一次加锁内完成 Transfer 与 Rejoin
//
// 迁移期间并发的 Join/Leave 看不到只迁移未重放的中间状态。
func (m *Membership) Migrate(oldConn, newConn transportif.GroupMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transferLocked(oldConn, newConn)
	return m.rejoinLocked(newConn)
}

func (m *Membership) transferLocked(oldConn, newConn transportif.GroupMember) {
	moved := 0
	for k, e := range m.entries {
		if k.conn != oldConn.ID() {
			continue
		}
		delete(m.entries, k)
		nk := k
		nk.conn = newConn.ID()
		if existing, ok := m.entries[nk]; ok {
			existing.count += e.count
		} else {
			e.conn = newConn
			m.entries[nk] = e
		}
		moved++
	}

	logger.Debug("迁移组播成员关系", "from", oldConn.ID(), "to", newConn.ID(), "groups", moved)
}

func (m *Membership) rejoinLocked(conn transportif.GroupMember) error {
	var errs error
	for k, e := range m.entries {
		if k.conn != conn.ID() {
			continue
		}
		if err := m.apply(conn, e.src, e.group, true); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("rejoin %s: %w", e.group.AddrPort(), err))
		}
	}
	return errs
}

// Forget 丢弃 conn 的所有记录（不执行套接字操作）
//
// 连接释放时调用，套接字关闭后内核已退出组。
func (m *Membership) Forget(conn uint64) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for k := range m.entries {
		if k.conn == conn {
			delete(m.entries, k)
			n++
		}
	}
	if n > 0 {
		logger.Debug("丢弃组播成员关系", "conn", conn, "groups", n)
	}
	return n
}

// Reset 清空所有记录（不执行套接字操作）
func (m *Membership) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[key]*entry)
}

// Groups 返回 conn 的成员关系快照，按组地址排序
func (m *Membership) Groups(conn uint64) []Group {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Group
	for k, e := range m.entries {
		if k.conn == conn {
			out = append(out, Group{Conn: conn, Src: copyLocator(e.src), Group: e.group, Count: e.count})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Group.AddrPort().Compare(out[j].Group.AddrPort()) < 0
	})
	return out
}

// Len 返回记录条数
func (m *Membership) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
