package transport

import (
	"fmt"
	"sync"
	"sync/atomic"

	transportif "github.com/dep2p/go-ddsi/pkg/interfaces/transport"
	"github.com/dep2p/go-ddsi/pkg/types"
)

// Listener 流式传输的监听器
//
// 被接受的连接持有指向监听器的引用，释放时从 Conns 中移除。
type Listener struct {
	factory transportif.Factory
	acc     transportif.Acceptor

	refs      atomic.Int32
	unblocked atomic.Bool

	mu    sync.Mutex
	conns map[uint64]*Conn
}

// NewListener 包装监听端点，初始引用计数为 1
func NewListener(f transportif.Factory, acc transportif.Acceptor) *Listener {
	l := &Listener{
		factory: f,
		acc:     acc,
		conns:   make(map[uint64]*Conn),
	}
	l.refs.Store(1)
	return l
}

// Factory 返回所属工厂
func (l *Listener) Factory() transportif.Factory { return l.factory }

// Listen 开始监听
func (l *Listener) Listen() error {
	return l.acc.Listen()
}

// Accept 接受一个连接
//
// Unblock 之后阻塞的调用返回 ErrConnClosed。
func (l *Listener) Accept() (*Conn, error) {
	if l.unblocked.Load() {
		return nil, transportif.ErrConnClosed
	}
	ep, err := l.acc.Accept()
	if err != nil {
		if l.unblocked.Load() {
			return nil, fmt.Errorf("%w: %v", transportif.ErrConnClosed, err)
		}
		return nil, err
	}

	c := NewConn(l.factory, ep, false)
	c.listener = l

	l.mu.Lock()
	l.conns[c.id] = c
	l.mu.Unlock()

	if peer, ok := ep.PeerLocator(); ok {
		logger.Debug("接受连接", "conn", c.id, "peer", peer.AddrPort().String())
	}
	return c, nil
}

// Locator 返回监听定位器
func (l *Listener) Locator() (types.Locator, error) {
	return l.acc.Locator()
}

// Unblock 唤醒阻塞在 Accept 中的调用者
func (l *Listener) Unblock() {
	if l.unblocked.CompareAndSwap(false, true) {
		l.acc.Unblock()
	}
}

// AddRef 增加引用
func (l *Listener) AddRef() {
	l.refs.Add(1)
}

// Release 减少引用，归零时释放监听端点
func (l *Listener) Release() {
	if n := l.refs.Add(-1); n != 0 {
		if n < 0 {
			logger.Error("监听器引用计数为负", "refs", n)
		}
		return
	}
	l.acc.Release()
	logger.Debug("监听器已释放", "transport", l.factory.Name())
}

// Free 唤醒并释放监听器
func (l *Listener) Free() {
	l.Unblock()
	l.Release()
}

// Conns 返回尚未释放的已接受连接
func (l *Listener) Conns() []*Conn {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*Conn, 0, len(l.conns))
	for _, c := range l.conns {
		out = append(out, c)
	}
	return out
}

// detach 移除已释放的连接
func (l *Listener) detach(c *Conn) {
	l.mu.Lock()
	delete(l.conns, c.id)
	l.mu.Unlock()
}
