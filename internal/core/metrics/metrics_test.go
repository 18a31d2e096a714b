package metrics

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-ddsi/config"
)

// ============================================================================
//                              RateMeter
// ============================================================================

func TestRateMeter_Window(t *testing.T) {
	mock := clock.NewMock()
	r := NewRateMeter(mock)

	r.Add(600)
	assert.InDelta(t, 10.0, r.Rate(), 0.001)
	assert.Equal(t, int64(600), r.Total())

	mock.Add(30 * time.Second)
	r.Add(600)
	assert.InDelta(t, 20.0, r.Rate(), 0.001)

	// 第一次写入滑出窗口
	mock.Add(31 * time.Second)
	assert.InDelta(t, 10.0, r.Rate(), 0.001)

	mock.Add(2 * time.Minute)
	assert.Zero(t, r.Rate())
	assert.Equal(t, int64(1200), r.Total(), "累计总量不受窗口影响")

	r.Reset()
	assert.Zero(t, r.Total())

	t.Log("✅ 速率按 60 秒窗口滚动")
}

// ============================================================================
//                              Transport
// ============================================================================

func TestTransport_Counters(t *testing.T) {
	m := NewTransport("ddsi", clock.NewMock())

	m.Sent("udp", 100)
	m.Sent("udp", 28)
	m.Received("udp", 37)
	m.Truncated("udp")
	m.WriteError("udp", ErrorClassUnreachable)
	m.ConnOpened("udp")
	m.ConnOpened("udp")
	m.ConnClosed("udp")
	m.IndexAllocated()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.packetsSent.WithLabelValues("udp")))
	assert.Equal(t, 128.0, testutil.ToFloat64(m.bytesSent.WithLabelValues("udp")))
	assert.Equal(t, 37.0, testutil.ToFloat64(m.bytesReceived.WithLabelValues("udp")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.truncated.WithLabelValues("udp")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.writeErrors.WithLabelValues("udp", ErrorClassUnreachable)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.openConns.WithLabelValues("udp")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.indexesInUse))

	stats := m.Stats("udp")
	assert.Equal(t, int64(128), stats.TotalOut)
	assert.Equal(t, int64(37), stats.TotalIn)
	assert.Equal(t, int64(2), stats.PacketsOut)
	assert.Equal(t, int64(1), stats.PacketsIn)

	assert.Equal(t, Stats{}, m.Stats("udp6"))

	t.Log("✅ 传输指标计数正确")
}

func TestTransport_NilSafe(t *testing.T) {
	var m *Transport
	m.Sent("udp", 1)
	m.Received("udp", 1)
	m.Truncated("udp")
	m.WriteError("udp", ErrorClassOther)
	m.ConnOpened("udp")
	m.ConnClosed("udp")
	m.IndexAllocated()
	m.IndexFreed()
	m.Reset()
	assert.Equal(t, Stats{}, m.Stats("udp"))
	assert.Nil(t, m.Collectors())
	assert.NoError(t, m.Register(prometheus.NewRegistry()))
}

func TestTransport_Register(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewTransport("ddsi", nil)

	require.NoError(t, m.Register(reg))
	require.NoError(t, m.Register(reg), "重复注册被忽略")

	m.Sent("udp", 10)
	n, err := testutil.GatherAndCount(reg, "ddsi_transport_packets_sent_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// ============================================================================
//                              Fx 模块
// ============================================================================

func TestModule_Provides(t *testing.T) {
	reg := prometheus.NewRegistry()
	var m *Transport

	app := fxtest.New(t,
		Module,
		fx.Supply(config.NewConfig()),
		fx.Provide(func() prometheus.Registerer { return reg }),
		fx.Populate(&m),
	)
	app.RequireStart()
	defer app.RequireStop()

	require.NotNil(t, m)
	m.Received("udp", 1)
	n, err := testutil.GatherAndCount(reg, "ddsi_transport_packets_received_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestModule_Disabled(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Metrics.Enable = false
	var m *Transport

	app := fxtest.New(t, Module, fx.Supply(cfg), fx.Populate(&m))
	app.RequireStart()
	defer app.RequireStop()

	assert.Nil(t, m)
}
