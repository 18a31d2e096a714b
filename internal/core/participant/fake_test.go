package participant_test

import (
	"fmt"
	"net/netip"
	"sync"

	"github.com/dep2p/go-ddsi/internal/core/transport/ipaddr"
	"github.com/dep2p/go-ddsi/internal/core/transport/mcgroup"
	transportif "github.com/dep2p/go-ddsi/pkg/interfaces/transport"
	"github.com/dep2p/go-ddsi/pkg/types"
)

// fakeFactory 记录端点创建与组播操作的内存传输
type fakeFactory struct {
	membership *mcgroup.Membership
	fatal      bool

	mu        sync.Mutex
	busy      map[uint32]bool
	refused   map[uint32]bool
	endpoints []*fakeEndpoint
	nextPort  uint32
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		membership: mcgroup.New(nil, false),
		busy:       make(map[uint32]bool),
		refused:    make(map[uint32]bool),
		nextPort:   40000,
	}
}

// occupy 让端口绑定失败
func (f *fakeFactory) occupy(ports ...uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range ports {
		f.busy[p] = true
	}
}

// refuse 让端口绑定失败，组播端口也不例外
func (f *fakeFactory) refuse(ports ...uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range ports {
		f.refused[p] = true
	}
}

func (f *fakeFactory) created() []*fakeEndpoint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeEndpoint(nil), f.endpoints...)
}

func (f *fakeFactory) Name() string                            { return "fake" }
func (f *fakeFactory) Kind() types.LocatorKind                 { return types.LocatorKindUDPv4 }
func (f *fakeFactory) Connectionless() bool                    { return true }
func (f *fakeFactory) Stream() bool                            { return false }
func (f *fakeFactory) DefaultSPDPAddress() string              { return "fake/239.255.0.1" }
func (f *fakeFactory) Supports(k types.LocatorKind) bool       { return k == types.LocatorKindUDPv4 }
func (f *fakeFactory) IsMulticast(l types.Locator) bool        { return l.IsMulticast() }
func (f *fakeFactory) Membership() transportif.GroupMembership { return f.membership }
func (f *fakeFactory) Close() error                            { return nil }

func (f *fakeFactory) CreateConn(port uint32, qos transportif.QoS) (transportif.Endpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// 组播端口允许复用
	if f.refused[port] || (f.busy[port] && !qos.Multicast) {
		err := fmt.Errorf("%w: port %d in use", transportif.ErrBindFailed, port)
		if f.fatal {
			return nil, fmt.Errorf("%w: %w", transportif.ErrFatalConfig, err)
		}
		return nil, err
	}
	if port == 0 {
		f.nextPort++
		port = f.nextPort
	}
	if !qos.Multicast {
		f.busy[port] = true
	}

	ep := &fakeEndpoint{factory: f, port: port, multicast: qos.Multicast, done: make(chan struct{})}
	f.endpoints = append(f.endpoints, ep)
	return ep, nil
}

func (f *fakeFactory) CreateListener(uint32, transportif.QoS) (transportif.Acceptor, error) {
	return nil, transportif.ErrListenerUnsupported
}

func (f *fakeFactory) IsNearby(l types.Locator, ifaces []transportif.Interface) types.NearbyResult {
	return ipaddr.IsNearby(l, ifaces)
}

func (f *fakeFactory) LocatorFromString(s string) (types.Locator, error) {
	return ipaddr.FromString(s, types.LocatorKindUDPv4)
}

func (f *fakeFactory) LocatorToString(l types.Locator, withPort bool) string {
	return ipaddr.ToString(l, withPort)
}

func (f *fakeFactory) EnumerateInterfaces() ([]transportif.Interface, error) { return nil, nil }

// fakeEndpoint 内存端点
type fakeEndpoint struct {
	factory   *fakeFactory
	port      uint32
	multicast bool
	done      chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	joined []types.Locator
	left   []types.Locator
	closed bool
}

func (e *fakeEndpoint) Read([]byte) (transportif.ReadResult, error) {
	<-e.done
	return transportif.ReadResult{}, transportif.ErrConnClosed
}

func (e *fakeEndpoint) Write(_ types.Locator, bufs [][]byte) (int, error) {
	n := 0
	for _, b := range bufs {
		n += len(b)
	}
	return n, nil
}

func (e *fakeEndpoint) Locator() (types.Locator, error) {
	return types.NewLocator(types.LocatorKindUDPv4, netip.MustParseAddr("127.0.0.1"), e.port), nil
}

func (e *fakeEndpoint) PeerLocator() (types.Locator, bool) { return types.InvalidLocator(), false }

func (e *fakeEndpoint) JoinMC(_ *types.Locator, group types.Locator, _ *transportif.Interface) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.joined = append(e.joined, group)
	return nil
}

func (e *fakeEndpoint) LeaveMC(_ *types.Locator, group types.Locator, _ *transportif.Interface) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.left = append(e.left, group)
	return nil
}

func (e *fakeEndpoint) Close() error {
	e.closeOnce.Do(func() {
		close(e.done)
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()

		if !e.multicast {
			e.factory.mu.Lock()
			delete(e.factory.busy, e.port)
			e.factory.mu.Unlock()
		}
	})
	return nil
}

func (e *fakeEndpoint) Release() {}

func (e *fakeEndpoint) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *fakeEndpoint) joins() []types.Locator {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]types.Locator(nil), e.joined...)
}

func (e *fakeEndpoint) leaves() []types.Locator {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]types.Locator(nil), e.left...)
}
