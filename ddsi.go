package ddsi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-ddsi/config"
	"github.com/dep2p/go-ddsi/internal/core/metrics"
	"github.com/dep2p/go-ddsi/internal/core/netif"
	"github.com/dep2p/go-ddsi/internal/core/participant"
	"github.com/dep2p/go-ddsi/internal/core/transport"
	transportif "github.com/dep2p/go-ddsi/pkg/interfaces/transport"
	"github.com/dep2p/go-ddsi/pkg/lib/log"
	"github.com/dep2p/go-ddsi/pkg/types"
)

var logger = log.Logger("ddsi")

// ============================================================================
//                              版本信息
// ============================================================================

// Version 当前版本
const Version = "v0.1.0"

// BuildInfo 构建信息（通过 ldflags 注入）
var (
	// GitCommit Git 提交哈希
	GitCommit string

	// BuildDate 构建日期
	BuildDate string
)

// VersionInfo 返回完整版本信息字符串
func VersionInfo() string {
	info := "go-ddsi " + Version
	if GitCommit != "" {
		info += " (" + GitCommit[:min(8, len(GitCommit))] + ")"
	}
	if BuildDate != "" {
		info += " built " + BuildDate
	}
	return info
}

// ============================================================================
//                              服务状态
// ============================================================================

// State 服务状态
type State int

const (
	// StateIdle 已创建，未启动
	StateIdle State = iota
	// StateRunning 运行中
	StateRunning
	// StateStopped 已停止（不可重新启动）
	StateStopped
)

// String 返回状态名
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// stopTimeout 启动失败后回滚 Fx 应用的超时
const stopTimeout = 10 * time.Second

// ============================================================================
//                              Service
// ============================================================================

// Service DDSI 传输服务
//
// Service 是传输层的上下文对象，持有配置、工厂注册表、接口表、
// 指标、抓包以及参与者索引池。同一进程可以创建多个互相独立的 Service。
//
// 示例：
//
//	svc, err := ddsi.New(ddsi.WithConfigFile("ddsi.json"))
//	if err != nil {
//	    return err
//	}
//	if err := svc.Start(ctx); err != nil {
//	    return err
//	}
//	defer svc.Stop(context.Background())
//
//	p, err := svc.NewParticipant(ctx)
type Service struct {
	id  uuid.UUID
	cfg *config.Config
	app *fx.App

	// 由 Fx 注入
	manager  *transport.Manager
	registry *transport.Registry
	watcher  *netif.Watcher
	metrics  *metrics.Transport

	partCfg participant.Config
	pool    *participant.IndexPool

	mu           sync.Mutex
	state        State
	participants map[*participant.Participant]struct{}
	cancel       context.CancelFunc
	loopDone     chan struct{}
}

// New 创建服务但不启动
//
// 传输工厂在 New 中创建并注册，Start 启动接口监控。
func New(opts ...Option) (*Service, error) {
	o := newOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}
	if err := o.config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	partCfg, err := participant.ConfigFromUnified(o.config)
	if err != nil {
		return nil, err
	}

	s := &Service{
		id:           uuid.New(),
		cfg:          o.config,
		partCfg:      partCfg,
		participants: make(map[*participant.Participant]struct{}),
	}

	app, err := buildFxApp(o, s)
	if err != nil {
		return nil, err
	}
	s.app = app
	s.pool = participant.NewIndexPool(o.config.Discovery.MaxAutoParticipantIndex, s.metrics)

	logger.Info("服务已创建", "id", s.id.String(), "transport", o.config.Transport.Network())
	return s, nil
}

// ID 返回服务实例 ID
func (s *Service) ID() string {
	return s.id.String()
}

// Config 返回服务配置
func (s *Service) Config() *config.Config {
	return s.cfg
}

// State 返回服务状态
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ============================================================================
//                              生命周期
// ============================================================================

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateRunning:
		return ErrAlreadyStarted
	case StateStopped:
		return ErrServiceStopped
	}

	if err := s.app.Start(ctx); err != nil {
		logger.Error("服务启动失败", "id", s.id.String(), "error", err)
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		_ = s.app.Stop(stopCtx)
		s.state = StateStopped
		return fmt.Errorf("start fx app: %w", err)
	}

	if s.cfg.Watcher.Enable && s.watcher != nil {
		loopCtx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.loopDone = make(chan struct{})
		go s.watchInterfaces(loopCtx)
	}

	s.state = StateRunning
	logger.Info("服务已启动", "id", s.id.String())
	return nil
}

// Stop 停止服务
//
// 关闭所有参与者并关闭注册表中的全部传输。Stop 之后不能重新启动。
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateRunning {
		state := s.state
		s.mu.Unlock()
		if state == StateStopped {
			return nil
		}
		return ErrNotStarted
	}
	s.state = StateStopped
	cancel, loopDone := s.cancel, s.loopDone
	parts := make([]*participant.Participant, 0, len(s.participants))
	for p := range s.participants {
		parts = append(parts, p)
	}
	s.participants = make(map[*participant.Participant]struct{})
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-loopDone
	}

	var g errgroup.Group
	for _, p := range parts {
		g.Go(p.Close)
	}
	if err := g.Wait(); err != nil {
		logger.Debug("关闭参与者出错", "error", err)
	}

	if err := s.app.Stop(ctx); err != nil {
		logger.Error("停止服务失败", "id", s.id.String(), "error", err)
		return fmt.Errorf("stop fx app: %w", err)
	}
	logger.Info("服务已停止", "id", s.id.String())
	return nil
}

// ============================================================================
//                              传输访问
// ============================================================================

// Registry 返回传输工厂注册表
func (s *Service) Registry() *transport.Registry {
	return s.registry
}

// Metrics 返回传输指标，指标关闭时为 nil
func (s *Service) Metrics() *metrics.Transport {
	return s.metrics
}

// DefaultFactory 返回默认传输工厂
func (s *Service) DefaultFactory() (transportif.Factory, bool) {
	return s.registry.Default()
}

// ParseLocator 解析定位器文本
func (s *Service) ParseLocator(text string) (types.Locator, error) {
	return s.registry.ParseLocator(text)
}

// FormatLocator 格式化定位器
func (s *Service) FormatLocator(loc types.Locator, withPort bool) string {
	return s.registry.FormatLocator(loc, withPort)
}

// CreateConn 在默认传输上创建连接
//
// multicast 为 true 时端口可被多个套接字共享。调用者负责 Free。
func (s *Service) CreateConn(port uint32, multicast bool) (*transport.Conn, error) {
	f, ok := s.registry.Default()
	if !ok {
		return nil, fmt.Errorf("%w: no default transport", transportif.ErrFactoryNotFound)
	}
	return s.createConn(f, port, multicast)
}

// CreateConnFor 在支持 loc 类型的传输上创建连接
func (s *Service) CreateConnFor(loc types.Locator, port uint32) (*transport.Conn, error) {
	f, err := s.manager.FactoryFor(loc)
	if err != nil {
		return nil, err
	}
	return s.createConn(f, port, false)
}

func (s *Service) createConn(f transportif.Factory, port uint32, multicast bool) (*transport.Conn, error) {
	if s.State() == StateStopped {
		return nil, ErrServiceStopped
	}
	ep, err := f.CreateConn(port, s.manager.QoS(multicast))
	if err != nil {
		return nil, err
	}
	return transport.NewConn(f, ep, multicast), nil
}

// CreateListener 在默认传输上创建监听器（仅流式传输）
func (s *Service) CreateListener(port uint32) (*transport.Listener, error) {
	f, ok := s.registry.Default()
	if !ok {
		return nil, fmt.Errorf("%w: no default transport", transportif.ErrFactoryNotFound)
	}
	acc, err := f.CreateListener(port, s.manager.QoS(false))
	if err != nil {
		return nil, err
	}
	l := transport.NewListener(f, acc)
	if err := l.Listen(); err != nil {
		l.Free()
		return nil, err
	}
	return l, nil
}

// MaxMessageSize 返回配置的接收缓冲区大小
func (s *Service) MaxMessageSize() int {
	return s.cfg.Transport.MaxMessageSize
}
