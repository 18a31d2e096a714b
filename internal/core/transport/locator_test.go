package transport

import (
	"net/netip"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	transportif "github.com/dep2p/go-ddsi/pkg/interfaces/transport"
	"github.com/dep2p/go-ddsi/pkg/types"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, r.Register(newFakeFactory("udp", types.LocatorKindUDPv4)))
	require.NoError(t, r.Register(newFakeFactory("udp6", types.LocatorKindUDPv6)))
	return r
}

// ============================================================================
//                              解析
// ============================================================================

func TestParseLocator(t *testing.T) {
	r := newTestRegistry(t)

	loc, err := r.ParseLocator("udp/239.255.0.1:7400")
	require.NoError(t, err)
	assert.Equal(t, types.LocatorKindUDPv4, loc.Kind)
	assert.Equal(t, "239.255.0.1:7400", loc.AddrPort().String())

	loc, err = r.ParseLocator("udp6/[ff02::1]:7401")
	require.NoError(t, err)
	assert.Equal(t, types.LocatorKindUDPv6, loc.Kind)
	assert.Equal(t, uint32(7401), loc.Port)

	// 省略传输名使用默认工厂
	loc, err = r.ParseLocator("127.0.0.1:7410")
	require.NoError(t, err)
	assert.Equal(t, types.LocatorKindUDPv4, loc.Kind)

	loc, err = r.ParseLocator("udp/10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, types.PortInvalid, loc.Port)
}

func TestParseLocator_Errors(t *testing.T) {
	r := newTestRegistry(t)

	tests := []struct {
		name string
		in   string
		want error
	}{
		{"前导斜杠", "/127.0.0.1", transportif.ErrLocatorSyntax},
		{"非法传输名", "ud-p/127.0.0.1", transportif.ErrLocatorSyntax},
		{"未注册传输", "tcp/127.0.0.1:7400", transportif.ErrUnknownTransport},
		{"无效定位器文本", "invalid/0:0", transportif.ErrUnknownTransport},
		{"端口越界", "udp/127.0.0.1:4294967295", transportif.ErrLocatorSyntax},
		{"地址族不符", "udp/[::1]:7400", transportif.ErrLocatorMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := r.ParseLocator(tt.in)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.False(t, loc.IsValid())
		})
	}
}

func TestParseLocator_UnknownTransportIsDistinct(t *testing.T) {
	r := newTestRegistry(t)

	_, errUnknown := r.ParseLocator("shm/1.2.3.4")
	_, errSyntax := r.ParseLocator("udp/1.2.3.4:x")

	assert.ErrorIs(t, errUnknown, transportif.ErrUnknownTransport)
	assert.NotErrorIs(t, errUnknown, transportif.ErrLocatorSyntax)
	assert.ErrorIs(t, errSyntax, transportif.ErrLocatorSyntax)
	assert.NotErrorIs(t, errSyntax, transportif.ErrUnknownTransport)

	t.Log("✅ 未知传输与格式错误可区分")
}

func TestParseLocator_NoDefault(t *testing.T) {
	_, err := NewRegistry().ParseLocator("127.0.0.1")
	assert.ErrorIs(t, err, transportif.ErrUnknownTransport)
}

// ============================================================================
//                              格式化与往返
// ============================================================================

func TestFormatLocator(t *testing.T) {
	r := newTestRegistry(t)

	v4 := types.NewLocator(types.LocatorKindUDPv4, netip.MustParseAddr("239.255.0.1"), 7400)
	v6 := types.NewLocator(types.LocatorKindUDPv6, netip.MustParseAddr("ff02::ffff:239.255.0.1"), 7400)

	assert.Equal(t, "udp/239.255.0.1:7400", r.FormatLocator(v4, true))
	assert.Equal(t, "udp/239.255.0.1", r.FormatLocator(v4, false))
	assert.Equal(t, "udp6/[ff02::ffff:efff:1]:7400", r.FormatLocator(v6, true))
	assert.Equal(t, "invalid/0:0", r.FormatLocator(types.InvalidLocator(), true))
	assert.Equal(t, "invalid/0", r.FormatLocator(types.InvalidLocator(), false))
}

func TestFormatLocator_Bounded(t *testing.T) {
	r := newTestRegistry(t)

	longest := types.NewLocator(types.LocatorKindUDPv6,
		netip.MustParseAddr("ffff:ffff:ffff:ffff:ffff:ffff:ffff:ffff"), 2147483647)
	s := r.FormatLocator(longest, true)
	assert.Less(t, len(s), types.LocatorStrLen)
	assert.True(t, strings.HasSuffix(s, ":2147483647"))
}

func TestLocator_RoundTrip(t *testing.T) {
	r := newTestRegistry(t)

	locs := []types.Locator{
		types.NewLocator(types.LocatorKindUDPv4, netip.MustParseAddr("127.0.0.1"), 7410),
		types.NewLocator(types.LocatorKindUDPv4, netip.MustParseAddr("0.0.0.0"), 0),
		types.NewLocator(types.LocatorKindUDPv6, netip.MustParseAddr("fe80::1:2:3:4"), 65535),
		types.NewLocator(types.LocatorKindUDPv6, netip.MustParseAddr("::"), 2147483647),
	}

	for _, loc := range locs {
		s := r.FormatLocator(loc, true)
		got, err := r.ParseLocator(s)
		require.NoError(t, err, s)
		assert.True(t, loc.Equal(got), "%s", s)
	}

	_, err := r.ParseLocator(r.FormatLocator(types.InvalidLocator(), true))
	assert.ErrorIs(t, err, transportif.ErrUnknownTransport, "无效定位器文本不能被解析")

	t.Log("✅ parse(format(L)) == L")
}
