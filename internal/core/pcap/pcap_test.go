package pcap

import (
	"bytes"
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-ddsi/config"
	"github.com/dep2p/go-ddsi/pkg/types"
)

func readPackets(t *testing.T, data []byte) [][]byte {
	t.Helper()
	r, err := pcapgo.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, layers.LinkTypeRaw, r.LinkType())

	var out [][]byte
	for {
		pkt, _, err := r.ReadPacketData()
		if err != nil {
			break
		}
		out = append(out, pkt)
	}
	return out
}

func TestWriter_IPv4(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)

	src := types.NewLocator(types.LocatorKindUDPv4, netip.MustParseAddr("192.168.1.10"), 7410)
	dst := types.NewLocator(types.LocatorKindUDPv4, netip.MustParseAddr("239.255.0.1"), 7400)
	payload := []byte("RTPS hello")

	w.Sent(src, dst, payload)
	w.Received(dst, src, payload)
	require.NoError(t, w.Close())

	pkts := readPackets(t, buf.Bytes())
	require.Len(t, pkts, 2)

	p := gopacket.NewPacket(pkts[0], layers.LayerTypeIPv4, gopacket.Default)
	ip, ok := p.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	require.True(t, ok)
	assert.Equal(t, "192.168.1.10", ip.SrcIP.String())
	assert.Equal(t, "239.255.0.1", ip.DstIP.String())

	udp, ok := p.Layer(layers.LayerTypeUDP).(*layers.UDP)
	require.True(t, ok)
	assert.Equal(t, layers.UDPPort(7410), udp.SrcPort)
	assert.Equal(t, layers.UDPPort(7400), udp.DstPort)
	assert.Equal(t, payload, udp.Payload)

	t.Log("✅ IPv4 数据报被正确封装")
}

func TestWriter_IPv6(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)

	src := types.NewLocator(types.LocatorKindUDPv6, netip.MustParseAddr("fe80::1"), 7410)
	dst := types.NewLocator(types.LocatorKindUDPv6, netip.MustParseAddr("ff02::1"), 7400)
	w.Sent(src, dst, []byte{1, 2, 3})

	pkts := readPackets(t, buf.Bytes())
	require.Len(t, pkts, 1)

	p := gopacket.NewPacket(pkts[0], layers.LayerTypeIPv6, gopacket.Default)
	ip, ok := p.Layer(layers.LayerTypeIPv6).(*layers.IPv6)
	require.True(t, ok)
	assert.Equal(t, "fe80::1", ip.SrcIP.String())
	udp, ok := p.Layer(layers.LayerTypeUDP).(*layers.UDP)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, udp.Payload)
}

func TestWriter_OversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)

	loc := types.NewLocator(types.LocatorKindUDPv4, netip.MustParseAddr("127.0.0.1"), 7400)
	w.Sent(loc, loc, make([]byte, 70000))

	pkts := readPackets(t, buf.Bytes())
	require.Len(t, pkts, 1)
	assert.Equal(t, 65535, len(pkts[0]), "负载被截断到单个 IP 报文")
}

func TestNop(t *testing.T) {
	var s Sink = Nop{}
	s.Sent(types.InvalidLocator(), types.InvalidLocator(), nil)
	s.Received(types.InvalidLocator(), types.InvalidLocator(), nil)
}

func TestModule(t *testing.T) {
	t.Run("未配置时为 Nop", func(t *testing.T) {
		var s Sink
		app := fxtest.New(t, Module, fx.Supply(config.NewConfig()), fx.Populate(&s))
		app.RequireStart()
		app.RequireStop()
		assert.IsType(t, Nop{}, s)
	})

	t.Run("配置文件时写入", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ddsi.pcap")
		cfg := config.NewConfig()
		cfg.Capture.PcapFile = path

		var s Sink
		app := fxtest.New(t, Module, fx.Supply(cfg), fx.Populate(&s))
		app.RequireStart()

		loc := types.NewLocator(types.LocatorKindUDPv4, netip.MustParseAddr("127.0.0.1"), 7400)
		s.Sent(loc, loc, []byte("x"))
		app.RequireStop()

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Len(t, readPackets(t, data), 1)
	})
}
