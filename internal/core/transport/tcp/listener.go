package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	tec "github.com/jbenet/go-temp-err-catcher"

	transportif "github.com/dep2p/go-ddsi/pkg/interfaces/transport"
	"github.com/dep2p/go-ddsi/pkg/types"
)

// ============================================================================
//                              acceptor 实现
// ============================================================================

// acceptor TCP 监听端点
type acceptor struct {
	factory *Factory
	port    uint32

	mu       sync.Mutex
	listener *net.TCPListener
	loc      types.Locator

	catcher   tec.TempErrCatcher
	unblocked atomic.Bool
}

// 确保实现接口
var _ transportif.Acceptor = (*acceptor)(nil)

// newAcceptor 创建尚未绑定的监听端点
func newAcceptor(f *Factory, port uint32) *acceptor {
	return &acceptor{
		factory: f,
		port:    port,
		loc:     types.NewLocator(f.kind, f.ownAddr(), port),
	}
}

// ============================================================================
//                              transport.Acceptor 接口实现
// ============================================================================

// Listen 绑定端口并开始监听
func (a *acceptor) Listen() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return nil
	}
	if a.unblocked.Load() {
		return transportif.ErrConnClosed
	}

	f := a.factory
	bind := "0.0.0.0"
	if f.kind == types.LocatorKindTCPv6 {
		bind = "::"
	}
	addr := net.JoinHostPort(bind, strconv.FormatUint(uint64(a.port), 10))

	lc := net.ListenConfig{}
	l, err := lc.Listen(context.Background(), f.network(), addr)
	if err != nil {
		return a.bindError(err)
	}
	tl, ok := l.(*net.TCPListener)
	if !ok {
		_ = l.Close()
		return fmt.Errorf("%w: not a TCP listener", transportif.ErrBindFailed)
	}

	a.listener = tl
	a.loc = a.loc.WithPort(uint32(tl.Addr().(*net.TCPAddr).Port))
	logger.Info("TCP 开始监听", "transport", f.name, "port", a.loc.Port)
	return nil
}

func (a *acceptor) bindError(err error) error {
	f := a.factory
	bindErr := fmt.Errorf("%w: port %d: %v", transportif.ErrBindFailed, a.port, err)
	if f.cfg.ParticipantIndexAuto {
		logger.Debug("监听端口失败", "transport", f.name, "port", a.port, "err", err)
		return bindErr
	}
	logger.Error("监听端口失败", "transport", f.name, "port", a.port, "err", err)
	return fmt.Errorf("%w: %w", transportif.ErrFatalConfig, bindErr)
}

// Accept 接受连接，临时错误退避后重试
func (a *acceptor) Accept() (transportif.Endpoint, error) {
	a.mu.Lock()
	l := a.listener
	a.mu.Unlock()
	if l == nil {
		return nil, ErrNotListening
	}

	for {
		c, err := l.AcceptTCP()
		if err != nil {
			if a.unblocked.Load() || errors.Is(err, net.ErrClosed) {
				return nil, transportif.ErrConnClosed
			}
			if a.catcher.IsTemporary(err) {
				logger.Debug("接受连接临时错误", "err", err)
				continue
			}
			return nil, err
		}

		f := a.factory
		f.setConnOptions(c)
		f.cfg.Metrics.ConnOpened(f.name)
		logger.Debug("接受 TCP 连接", "remote", c.RemoteAddr().String())
		return newAccepted(f, c), nil
	}
}

// Locator 返回监听定位器
func (a *acceptor) Locator() (types.Locator, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loc, nil
}

// Unblock 关闭监听套接字，唤醒阻塞的 Accept
func (a *acceptor) Unblock() {
	if !a.unblocked.CompareAndSwap(false, true) {
		return
	}
	a.mu.Lock()
	l := a.listener
	a.mu.Unlock()
	if l != nil {
		_ = l.Close()
	}
}

// Release 释放监听端点
func (a *acceptor) Release() {
	a.Unblock()
	logger.Debug("释放 TCP 监听器", "transport", a.factory.name, "port", a.loc.Port)
}
