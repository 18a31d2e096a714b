package metrics

import (
	"errors"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
)

// 写入错误类别
const (
	ErrorClassUnreachable = "unreachable"
	ErrorClassRetry       = "retry"
	ErrorClassPartial     = "partial"
	ErrorClassOther       = "other"
)

// Transport 传输层指标
type Transport struct {
	clock clock.Clock

	packetsSent     *prometheus.CounterVec
	bytesSent       *prometheus.CounterVec
	packetsReceived *prometheus.CounterVec
	bytesReceived   *prometheus.CounterVec
	truncated       *prometheus.CounterVec
	writeErrors     *prometheus.CounterVec
	openConns       *prometheus.GaugeVec
	indexesInUse    prometheus.Gauge

	mu     sync.Mutex
	meters map[string]*meterSet
}

// meterSet 单个传输的速率计算器
type meterSet struct {
	in, out               *RateMeter
	packetsIn, packetsOut *RateMeter
}

// NewTransport 创建传输层指标，clk 为 nil 时使用系统时钟
func NewTransport(namespace string, clk clock.Clock) *Transport {
	if clk == nil {
		clk = clock.New()
	}
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      name,
			Help:      help,
		}, labels)
	}

	return &Transport{
		clock:           clk,
		packetsSent:     counter("packets_sent_total", "Datagrams written.", "transport"),
		bytesSent:       counter("bytes_sent_total", "Bytes written.", "transport"),
		packetsReceived: counter("packets_received_total", "Datagrams read.", "transport"),
		bytesReceived:   counter("bytes_received_total", "Bytes read.", "transport"),
		truncated:       counter("truncated_total", "Datagrams larger than the receive buffer.", "transport"),
		writeErrors:     counter("write_errors_total", "Failed writes by error class.", "transport", "class"),
		openConns: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "open_conns",
			Help:      "Open connections.",
		}, []string{"transport"}),
		indexesInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "participant",
			Name:      "indexes_in_use",
			Help:      "Participant indexes currently allocated.",
		}),
		meters: make(map[string]*meterSet),
	}
}

// Collectors 返回所有 Prometheus 收集器
func (t *Transport) Collectors() []prometheus.Collector {
	if t == nil {
		return nil
	}
	return []prometheus.Collector{
		t.packetsSent, t.bytesSent,
		t.packetsReceived, t.bytesReceived,
		t.truncated, t.writeErrors,
		t.openConns, t.indexesInUse,
	}
}

// Register 向 reg 注册所有收集器，已注册的收集器被忽略
func (t *Transport) Register(reg prometheus.Registerer) error {
	if t == nil || reg == nil {
		return nil
	}
	var err error
	for _, c := range t.Collectors() {
		if rerr := reg.Register(c); rerr != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(rerr, &are) {
				continue
			}
			err = multierr.Append(err, rerr)
		}
	}
	return err
}

func (t *Transport) meter(transport string) *meterSet {
	t.mu.Lock()
	defer t.mu.Unlock()

	m := t.meters[transport]
	if m == nil {
		m = &meterSet{
			in:         NewRateMeter(t.clock),
			out:        NewRateMeter(t.clock),
			packetsIn:  NewRateMeter(t.clock),
			packetsOut: NewRateMeter(t.clock),
		}
		t.meters[transport] = m
	}
	return m
}

// ============================================================================
//                              记录
// ============================================================================

// Sent 记录一次成功写入
func (t *Transport) Sent(transport string, n int) {
	if t == nil {
		return
	}
	t.packetsSent.WithLabelValues(transport).Inc()
	t.bytesSent.WithLabelValues(transport).Add(float64(n))
	m := t.meter(transport)
	m.out.Add(int64(n))
	m.packetsOut.Add(1)
}

// Received 记录一次成功读取
func (t *Transport) Received(transport string, n int) {
	if t == nil {
		return
	}
	t.packetsReceived.WithLabelValues(transport).Inc()
	t.bytesReceived.WithLabelValues(transport).Add(float64(n))
	m := t.meter(transport)
	m.in.Add(int64(n))
	m.packetsIn.Add(1)
}

// Truncated 记录一个被截断的数据报
func (t *Transport) Truncated(transport string) {
	if t == nil {
		return
	}
	t.truncated.WithLabelValues(transport).Inc()
}

// WriteError 记录一次写入错误
func (t *Transport) WriteError(transport, class string) {
	if t == nil {
		return
	}
	t.writeErrors.WithLabelValues(transport, class).Inc()
}

// ConnOpened 连接数加一
func (t *Transport) ConnOpened(transport string) {
	if t == nil {
		return
	}
	t.openConns.WithLabelValues(transport).Inc()
}

// ConnClosed 连接数减一
func (t *Transport) ConnClosed(transport string) {
	if t == nil {
		return
	}
	t.openConns.WithLabelValues(transport).Dec()
}

// IndexAllocated 参与者索引数加一
func (t *Transport) IndexAllocated() {
	if t == nil {
		return
	}
	t.indexesInUse.Inc()
}

// IndexFreed 参与者索引数减一
func (t *Transport) IndexFreed() {
	if t == nil {
		return
	}
	t.indexesInUse.Dec()
}

// ============================================================================
//                              快照
// ============================================================================

// Stats 返回传输的统计快照
func (t *Transport) Stats(transport string) Stats {
	if t == nil {
		return Stats{}
	}
	m := t.meter(transport)
	return Stats{
		TotalIn:    m.in.Total(),
		TotalOut:   m.out.Total(),
		RateIn:     m.in.Rate(),
		RateOut:    m.out.Rate(),
		PacketsIn:  m.packetsIn.Total(),
		PacketsOut: m.packetsOut.Total(),
	}
}

// Reset 清零速率计算器（Prometheus 计数器保持单调）
func (t *Transport) Reset() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range t.meters {
		m.in.Reset()
		m.out.Reset()
		m.packetsIn.Reset()
		m.packetsOut.Reset()
	}
}
