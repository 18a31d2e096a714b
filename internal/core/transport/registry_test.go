package transport

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	transportif "github.com/dep2p/go-ddsi/pkg/interfaces/transport"
	"github.com/dep2p/go-ddsi/pkg/types"
)

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	udp := newFakeFactory("udp", types.LocatorKindUDPv4)
	udp6 := newFakeFactory("udp6", types.LocatorKindUDPv6)

	require.NoError(t, r.Register(udp))
	require.NoError(t, r.Register(udp6))

	f, ok := r.Lookup("udp6")
	require.True(t, ok)
	assert.Equal(t, "udp6", f.Name())

	_, ok = r.Lookup("tcp")
	assert.False(t, ok)

	f, ok = r.LookupPrefix("udp/239.255.0.1", 3)
	require.True(t, ok)
	assert.Equal(t, "udp", f.Name())

	_, ok = r.LookupPrefix("udp", 10)
	assert.False(t, ok, "长度越界")

	f, ok = r.LookupSupporting(types.LocatorKindUDPv6)
	require.True(t, ok)
	assert.Equal(t, "udp6", f.Name())

	_, ok = r.LookupSupporting(types.LocatorKindTCPv4)
	assert.False(t, ok)

	assert.Len(t, r.Factories(), 2)

	t.Log("✅ 按名称、前缀、类型查找工厂")
}

func TestRegistry_DuplicateRejected(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newFakeFactory("udp", types.LocatorKindUDPv4)))

	err := r.Register(newFakeFactory("udp", types.LocatorKindUDPv6))
	assert.ErrorIs(t, err, transportif.ErrFactoryExists)
	assert.Len(t, r.Factories(), 1)
}

func TestRegistry_SupportingUsesRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	first := newFakeFactory("udp", types.LocatorKindUDPv4)
	second := newFakeFactory("udp_alt", types.LocatorKindUDPv4)
	require.NoError(t, r.Register(first))
	require.NoError(t, r.Register(second))

	f, ok := r.LookupSupporting(types.LocatorKindUDPv4)
	require.True(t, ok)
	assert.Same(t, first, f)
}

func TestRegistry_Default(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Default()
	assert.False(t, ok)

	require.NoError(t, r.Register(newFakeFactory("udp", types.LocatorKindUDPv4)))
	require.NoError(t, r.Register(newFakeFactory("udp6", types.LocatorKindUDPv6)))

	f, ok := r.Default()
	require.True(t, ok)
	assert.Equal(t, "udp", f.Name(), "第一个注册的工厂为默认")

	require.NoError(t, r.SetDefault("udp6"))
	f, _ = r.Default()
	assert.Equal(t, "udp6", f.Name())

	assert.ErrorIs(t, r.SetDefault("tcp"), transportif.ErrFactoryNotFound)
}

func TestRegistry_CloseCombinesErrors(t *testing.T) {
	r := NewRegistry()
	a := newFakeFactory("udp", types.LocatorKindUDPv4)
	b := newFakeFactory("udp6", types.LocatorKindUDPv6)
	c := newFakeFactory("tcp", types.LocatorKindTCPv4)
	a.closeErr = errors.New("a failed")
	c.closeErr = errors.New("c failed")
	for _, f := range []*fakeFactory{a, b, c} {
		require.NoError(t, r.Register(f))
	}

	err := r.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a failed")
	assert.Contains(t, err.Error(), "c failed")

	assert.Equal(t, int32(1), a.closed.Load())
	assert.Equal(t, int32(1), b.closed.Load())
	assert.Equal(t, int32(1), c.closed.Load())
	assert.Empty(t, r.Factories())

	t.Log("✅ Close 关闭所有工厂并合并错误")
}
