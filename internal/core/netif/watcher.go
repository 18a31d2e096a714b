package netif

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	transportif "github.com/dep2p/go-ddsi/pkg/interfaces/transport"
)

// 轮询间隔默认值
const (
	// DefaultPollInterval 正常轮询间隔
	DefaultPollInterval = 2 * time.Second

	// DefaultFastPollInterval 检测到变化后的快速轮询间隔
	DefaultFastPollInterval = 500 * time.Millisecond

	// DefaultFastPollDuration 快速轮询持续时间
	DefaultFastPollDuration = 10 * time.Second
)

// EventType 接口变化类型
type EventType int

const (
	// InterfaceAdded 出现新地址
	InterfaceAdded EventType = iota
	// InterfaceRemoved 地址消失
	InterfaceRemoved
	// InterfaceChanged 地址数量不变但内容变化
	InterfaceChanged
)

// String 返回类型名
func (t EventType) String() string {
	switch t {
	case InterfaceAdded:
		return "added"
	case InterfaceRemoved:
		return "removed"
	default:
		return "changed"
	}
}

// Event 接口变化事件
type Event struct {
	Type       EventType
	Interfaces []transportif.Interface
	Timestamp  time.Time
}

// WatcherConfig 轮询参数
type WatcherConfig struct {
	PollInterval     time.Duration
	FastPollInterval time.Duration
	FastPollDuration time.Duration
}

// DefaultWatcherConfig 返回默认轮询参数
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		PollInterval:     DefaultPollInterval,
		FastPollInterval: DefaultFastPollInterval,
		FastPollDuration: DefaultFastPollDuration,
	}
}

// Watcher 接口表轮询监控器
//
// 正常情况下按 PollInterval 检查；检测到变化（或 ForceCheck）后
// 切换到 FastPollInterval，持续 FastPollDuration。
type Watcher struct {
	cfg       WatcherConfig
	clock     clock.Clock
	enumerate EnumerateFunc

	events     chan Event
	forceCheck chan struct{}
	stopCh     chan struct{}
	done       chan struct{}

	mu   sync.RWMutex
	last []transportif.Interface

	started atomic.Bool
	stopped atomic.Bool
}

// NewWatcher 创建监控器
//
// clk 为 nil 时使用系统时钟；enumerate 为 nil 时使用 Enumerate。
func NewWatcher(cfg WatcherConfig, clk clock.Clock, enumerate EnumerateFunc) *Watcher {
	if clk == nil {
		clk = clock.New()
	}
	if enumerate == nil {
		enumerate = Enumerate
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.FastPollInterval <= 0 {
		cfg.FastPollInterval = DefaultFastPollInterval
	}

	w := &Watcher{
		cfg:        cfg,
		clock:      clk,
		enumerate:  enumerate,
		events:     make(chan Event, 10),
		forceCheck: make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}

	if ifaces, err := enumerate(); err == nil {
		w.last = ifaces
	} else {
		logger.Warn("获取初始接口表失败", "err", err)
	}
	return w
}

// Events 返回事件通道
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Current 返回最近一次观察到的接口表
func (w *Watcher) Current() []transportif.Interface {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]transportif.Interface, len(w.last))
	copy(out, w.last)
	return out
}

// Start 启动轮询
func (w *Watcher) Start(ctx context.Context) {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	ticker := w.clock.Ticker(w.cfg.PollInterval)
	go w.loop(ctx, ticker)
	logger.Debug("接口监控已启动", "interval", w.cfg.PollInterval)
}

// Stop 停止轮询并等待循环退出
func (w *Watcher) Stop() {
	if !w.stopped.CompareAndSwap(false, true) {
		return
	}
	close(w.stopCh)
	if w.started.Load() {
		<-w.done
	}
	logger.Debug("接口监控已停止")
}

// ForceCheck 请求立即检查
func (w *Watcher) ForceCheck() {
	select {
	case w.forceCheck <- struct{}{}:
	default:
	}
}

// loop 轮询主循环
func (w *Watcher) loop(ctx context.Context, ticker *clock.Ticker) {
	defer close(w.done)
	defer func() { ticker.Stop() }()

	var fastUntil time.Time
	fast := false

	setFast := func() {
		fastUntil = w.clock.Now().Add(w.cfg.FastPollDuration)
		if !fast {
			fast = true
			ticker.Stop()
			ticker = w.clock.Ticker(w.cfg.FastPollInterval)
			logger.Debug("进入快速轮询模式")
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-w.forceCheck:
			w.check()
			setFast()
		case <-ticker.C:
			if w.check() {
				setFast()
			} else if fast && !w.clock.Now().Before(fastUntil) {
				fast = false
				ticker.Stop()
				ticker = w.clock.Ticker(w.cfg.PollInterval)
				logger.Debug("退出快速轮询模式")
			}
		}
	}
}

// check 比较接口表并发布事件，返回是否有变化
func (w *Watcher) check() bool {
	current, err := w.enumerate()
	if err != nil {
		logger.Warn("获取接口表失败", "err", err)
		return false
	}

	w.mu.Lock()
	last := w.last
	if sameInterfaces(last, current) {
		w.mu.Unlock()
		return false
	}
	w.last = current
	w.mu.Unlock()

	ev := Event{
		Type:       classify(last, current),
		Interfaces: current,
		Timestamp:  w.clock.Now(),
	}
	select {
	case w.events <- ev:
		logger.Info("检测到网络接口变化", "type", ev.Type, "count", len(current))
	default:
		logger.Warn("事件通道已满，丢弃事件")
	}
	return true
}

// classify 判定变化类型
func classify(old, cur []transportif.Interface) EventType {
	switch {
	case len(cur) > len(old):
		return InterfaceAdded
	case len(cur) < len(old):
		return InterfaceRemoved
	default:
		return InterfaceChanged
	}
}

// sameInterfaces 按 (名称, 地址, 子网, 标志) 比较，忽略顺序
func sameInterfaces(a, b []transportif.Interface) bool {
	if len(a) != len(b) {
		return false
	}
	ka, kb := interfaceKeys(a), interfaceKeys(b)
	for i := range ka {
		if ka[i] != kb[i] {
			return false
		}
	}
	return true
}

func interfaceKeys(ifaces []transportif.Interface) []transportif.Interface {
	keys := make([]transportif.Interface, len(ifaces))
	copy(keys, ifaces)
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Name != keys[j].Name {
			return keys[i].Name < keys[j].Name
		}
		return keys[i].Addr.Less(keys[j].Addr)
	})
	return keys
}
