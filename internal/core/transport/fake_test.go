package transport

import (
	"sync"
	"sync/atomic"

	"github.com/dep2p/go-ddsi/internal/core/transport/ipaddr"
	"github.com/dep2p/go-ddsi/internal/core/transport/mcgroup"
	transportif "github.com/dep2p/go-ddsi/pkg/interfaces/transport"
	"github.com/dep2p/go-ddsi/pkg/types"
)

// fakeFactory 测试用工厂，地址部分使用 IP 编解码
type fakeFactory struct {
	name     string
	kind     types.LocatorKind
	closeErr error
	closed   atomic.Int32
	members  *mcgroup.Membership
}

func newFakeFactory(name string, kind types.LocatorKind) *fakeFactory {
	return &fakeFactory{name: name, kind: kind, members: mcgroup.New(nil, false)}
}

func (f *fakeFactory) Name() string                     { return f.name }
func (f *fakeFactory) Kind() types.LocatorKind          { return f.kind }
func (f *fakeFactory) Connectionless() bool             { return true }
func (f *fakeFactory) Stream() bool                     { return false }
func (f *fakeFactory) DefaultSPDPAddress() string       { return f.name + "/239.255.0.1" }
func (f *fakeFactory) Supports(k types.LocatorKind) bool { return k == f.kind }
func (f *fakeFactory) IsMulticast(l types.Locator) bool { return l.IsMulticast() }
func (f *fakeFactory) Membership() transportif.GroupMembership {
	return f.members
}

func (f *fakeFactory) CreateConn(uint32, transportif.QoS) (transportif.Endpoint, error) {
	return newFakeEndpoint(), nil
}

func (f *fakeFactory) CreateListener(uint32, transportif.QoS) (transportif.Acceptor, error) {
	return newFakeAcceptor(), nil
}

func (f *fakeFactory) IsNearby(l types.Locator, ifaces []transportif.Interface) types.NearbyResult {
	return ipaddr.IsNearby(l, ifaces)
}

func (f *fakeFactory) LocatorFromString(s string) (types.Locator, error) {
	return ipaddr.FromString(s, f.kind)
}

func (f *fakeFactory) LocatorToString(l types.Locator, withPort bool) string {
	return ipaddr.ToString(l, withPort)
}

func (f *fakeFactory) EnumerateInterfaces() ([]transportif.Interface, error) { return nil, nil }

func (f *fakeFactory) Close() error {
	f.closed.Add(1)
	return f.closeErr
}

// fakeEndpoint 测试用端点
//
// Read 阻塞直到 incoming 有数据或端点关闭；shortBy 非零时 Write 少报字节数。
type fakeEndpoint struct {
	incoming chan []byte
	done     chan struct{}
	once     sync.Once

	shortBy  int
	closes   atomic.Int32
	releases atomic.Int32

	mu     sync.Mutex
	writes [][]byte
	joins  []string
	peer   *types.Locator
}

func newFakeEndpoint() *fakeEndpoint {
	return &fakeEndpoint{incoming: make(chan []byte, 8), done: make(chan struct{})}
}

func (e *fakeEndpoint) Read(buf []byte) (transportif.ReadResult, error) {
	select {
	case msg := <-e.incoming:
		n := copy(buf, msg)
		return transportif.ReadResult{N: n, Truncated: n < len(msg)}, nil
	case <-e.done:
		return transportif.ReadResult{}, transportif.ErrConnClosed
	}
}

func (e *fakeEndpoint) Write(_ types.Locator, bufs [][]byte) (int, error) {
	var msg []byte
	for _, b := range bufs {
		msg = append(msg, b...)
	}
	e.mu.Lock()
	e.writes = append(e.writes, msg)
	e.mu.Unlock()
	return len(msg) - e.shortBy, nil
}

func (e *fakeEndpoint) Locator() (types.Locator, error) {
	return types.InvalidLocator(), nil
}

func (e *fakeEndpoint) PeerLocator() (types.Locator, bool) {
	if e.peer == nil {
		return types.Locator{}, false
	}
	return *e.peer, true
}

func (e *fakeEndpoint) JoinMC(_ *types.Locator, group types.Locator, _ *transportif.Interface) error {
	e.mu.Lock()
	e.joins = append(e.joins, group.Addr().String())
	e.mu.Unlock()
	return nil
}

func (e *fakeEndpoint) LeaveMC(*types.Locator, types.Locator, *transportif.Interface) error {
	return nil
}

func (e *fakeEndpoint) Close() error {
	e.closes.Add(1)
	e.once.Do(func() { close(e.done) })
	return nil
}

func (e *fakeEndpoint) Release() {
	e.releases.Add(1)
}

// fakeAcceptor 测试用监听端点
type fakeAcceptor struct {
	pending  chan *fakeEndpoint
	done     chan struct{}
	once     sync.Once
	releases atomic.Int32
}

func newFakeAcceptor() *fakeAcceptor {
	return &fakeAcceptor{pending: make(chan *fakeEndpoint, 4), done: make(chan struct{})}
}

func (a *fakeAcceptor) Listen() error { return nil }

func (a *fakeAcceptor) Accept() (transportif.Endpoint, error) {
	select {
	case ep := <-a.pending:
		return ep, nil
	case <-a.done:
		return nil, transportif.ErrConnClosed
	}
}

func (a *fakeAcceptor) Locator() (types.Locator, error) { return types.InvalidLocator(), nil }

func (a *fakeAcceptor) Unblock() { a.once.Do(func() { close(a.done) }) }

func (a *fakeAcceptor) Release() { a.releases.Add(1) }
