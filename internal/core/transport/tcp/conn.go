package tcp

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/dep2p/go-ddsi/internal/core/metrics"
	"github.com/dep2p/go-ddsi/internal/core/transport/ipaddr"
	transportif "github.com/dep2p/go-ddsi/pkg/interfaces/transport"
	"github.com/dep2p/go-ddsi/pkg/types"
)

// frameHeaderLen 帧头长度
const frameHeaderLen = 4

// 确保实现了接口
var _ transportif.Endpoint = (*endpoint)(nil)

// endpoint TCP 连接端点
//
// 客户端端点在第一次 Write 时拨号；被接受的端点创建时即已连接。
type endpoint struct {
	factory *Factory
	port    uint32

	mu        sync.Mutex
	conn      *net.TCPConn
	r         *bufio.Reader
	peer      types.Locator
	local     types.Locator
	connected chan struct{}

	wmu    sync.Mutex
	closed atomic.Bool
	done   chan struct{}
}

// newEndpoint 创建未连接的客户端端点
func newEndpoint(f *Factory, port uint32) *endpoint {
	return &endpoint{
		factory:   f,
		port:      port,
		peer:      types.InvalidLocator(),
		local:     types.NewLocator(f.kind, f.ownAddr(), port),
		connected: make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// newAccepted 包装已接受的连接
func newAccepted(f *Factory, c *net.TCPConn) *endpoint {
	e := newEndpoint(f, 0)
	e.setConn(c)
	return e
}

// setConn 设置底层连接，调用者持有 mu 或独占 e
func (e *endpoint) setConn(c *net.TCPConn) {
	e.conn = c
	e.r = bufio.NewReader(c)
	e.peer = ipaddr.ToLocator(c.RemoteAddr().(*net.TCPAddr).AddrPort(), e.factory.kind)
	e.local = e.local.WithPort(uint32(c.LocalAddr().(*net.TCPAddr).Port))
	close(e.connected)
}

// ============================================================================
//                              连接
// ============================================================================

// dial 连接到 dst；已连接时检查对端是否一致
func (e *endpoint) dial(dst types.Locator) (*net.TCPConn, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.conn != nil {
		if !e.peer.Equal(dst) {
			return nil, fmt.Errorf("%w: connected to %s", transportif.ErrPeerMismatch, e.peer.AddrPort())
		}
		return e.conn, nil
	}

	f := e.factory
	dialer := net.Dialer{Timeout: f.cfg.Timeout}
	if e.port != 0 {
		dialer.LocalAddr = &net.TCPAddr{Port: int(e.port)}
	}
	c, err := dialer.Dial(f.network(), dst.AddrPort().String())
	if err != nil {
		if isUnreachable(err) {
			logger.Debug("对端不可达", "dst", dst.AddrPort().String(), "err", err)
			return nil, fmt.Errorf("%w: %v", transportif.ErrPeerUnreachable, err)
		}
		return nil, fmt.Errorf("dial %s: %w", dst.AddrPort(), err)
	}
	tc := c.(*net.TCPConn)

	if e.closed.Load() {
		_ = tc.Close()
		return nil, transportif.ErrConnClosed
	}
	f.setConnOptions(tc)
	e.setConn(tc)
	logger.Debug("TCP 连接已建立", "peer", e.peer.AddrPort().String(), "local", e.local.Port)
	return tc, nil
}

// waitConn 等待连接建立或端点关闭
func (e *endpoint) waitConn() (*net.TCPConn, *bufio.Reader, error) {
	select {
	case <-e.connected:
	case <-e.done:
		return nil, nil, transportif.ErrConnClosed
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn, e.r, nil
}

// ============================================================================
//                              读写
// ============================================================================

// Read 读取一帧
func (e *endpoint) Read(buf []byte) (transportif.ReadResult, error) {
	_, r, err := e.waitConn()
	if err != nil {
		return transportif.ReadResult{}, err
	}
	f := e.factory

	var hdr [frameHeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return transportif.ReadResult{}, e.readError(err)
	}
	size := int(binary.BigEndian.Uint32(hdr[:]))
	if size > f.cfg.MaxFrameSize {
		logger.Warn("帧长度超过上限", "peer", e.peer.AddrPort().String(), "size", size, "max", f.cfg.MaxFrameSize)
		return transportif.ReadResult{}, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}

	n := min(size, len(buf))
	if _, err := io.ReadFull(r, buf[:n]); err != nil {
		return transportif.ReadResult{}, e.readError(err)
	}
	truncated := n < size
	if truncated {
		if _, err := r.Discard(size - n); err != nil {
			return transportif.ReadResult{}, e.readError(err)
		}
		f.cfg.Metrics.Truncated(f.name)
		logger.Warn("帧被截断", "peer", e.peer.AddrPort().String(), "size", size, "buf", len(buf))
	}

	f.cfg.Metrics.Received(f.name, n)
	f.cfg.Sink.Received(e.peer, e.local, buf[:n])
	return transportif.ReadResult{N: n, Src: e.peer, Truncated: truncated}, nil
}

func (e *endpoint) readError(err error) error {
	switch {
	case e.closed.Load(), errors.Is(err, net.ErrClosed):
		return fmt.Errorf("%w: %v", transportif.ErrConnClosed, err)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), isUnreachable(err):
		logger.Debug("对端断开", "peer", e.peer.AddrPort().String(), "err", err)
		return fmt.Errorf("%w: %v", transportif.ErrPeerUnreachable, err)
	}
	logger.Error("TCP 读取失败", "peer", e.peer.AddrPort().String(), "err", err)
	return err
}

// Write 把 bufs 作为一帧发往 dst
func (e *endpoint) Write(dst types.Locator, bufs [][]byte) (int, error) {
	if e.closed.Load() {
		return 0, transportif.ErrConnClosed
	}
	f := e.factory

	total := 0
	for _, b := range bufs {
		total += len(b)
	}
	if total > f.cfg.MaxFrameSize {
		return 0, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, total)
	}

	c, err := e.dial(dst)
	if err != nil {
		f.cfg.Metrics.WriteError(f.name, metrics.ErrorClassUnreachable)
		return 0, err
	}

	var hdr [frameHeaderLen]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(total))
	frame := make(net.Buffers, 0, len(bufs)+1)
	frame = append(frame, hdr[:])
	frame = append(frame, bufs...)

	e.wmu.Lock()
	_, err = frame.WriteTo(c)
	e.wmu.Unlock()
	if err != nil {
		return 0, e.writeError(dst, err)
	}

	f.cfg.Metrics.Sent(f.name, total)
	if total > 0 {
		payload := make([]byte, 0, total)
		for _, b := range bufs {
			payload = append(payload, b...)
		}
		f.cfg.Sink.Sent(e.local, dst, payload)
	}
	return total, nil
}

func (e *endpoint) writeError(dst types.Locator, err error) error {
	f := e.factory
	switch {
	case e.closed.Load(), errors.Is(err, net.ErrClosed):
		return fmt.Errorf("%w: %v", transportif.ErrConnClosed, err)
	case isUnreachable(err):
		f.cfg.Metrics.WriteError(f.name, metrics.ErrorClassUnreachable)
		logger.Debug("对端不可达", "dst", dst.AddrPort().String(), "err", err)
		return fmt.Errorf("%w: %v", transportif.ErrPeerUnreachable, err)
	}
	f.cfg.Metrics.WriteError(f.name, metrics.ErrorClassOther)
	logger.Error("TCP 写入失败", "dst", dst.AddrPort().String(), "err", err)
	return err
}

// isUnreachable 对端离开导致的错误
func isUnreachable(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH)
}

// ============================================================================
//                              定位器
// ============================================================================

// Locator 返回本端定位器
func (e *endpoint) Locator() (types.Locator, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.local, nil
}

// PeerLocator 返回对端定位器，未连接时返回 false
func (e *endpoint) PeerLocator() (types.Locator, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.peer, e.conn != nil
}

// ============================================================================
//                              组播
// ============================================================================

// JoinMC TCP 不支持组播
func (e *endpoint) JoinMC(*types.Locator, types.Locator, *transportif.Interface) error {
	return transportif.ErrMulticastUnsupported
}

// LeaveMC TCP 不支持组播
func (e *endpoint) LeaveMC(*types.Locator, types.Locator, *transportif.Interface) error {
	return transportif.ErrMulticastUnsupported
}

// ============================================================================
//                              关闭
// ============================================================================

// Close 关闭连接，唤醒阻塞的读取
func (e *endpoint) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(e.done)

	e.mu.Lock()
	c := e.conn
	e.mu.Unlock()
	if c == nil {
		return nil
	}
	return c.Close()
}

// Release 释放端点并关闭底层连接
func (e *endpoint) Release() {
	f := e.factory
	if err := e.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		logger.Debug("关闭 TCP 连接失败", "transport", f.name, "error", err)
	}
	f.cfg.Metrics.ConnClosed(f.name)
	logger.Debug("释放 TCP 连接", "transport", f.name, "peer", e.peer.AddrPort().String())
}
