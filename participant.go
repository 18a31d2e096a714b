package ddsi

import (
	"context"
	"errors"

	"go.uber.org/multierr"

	"github.com/dep2p/go-ddsi/internal/core/netif"
	"github.com/dep2p/go-ddsi/internal/core/participant"
	"github.com/dep2p/go-ddsi/internal/core/transport"
)

// Participant 参与者套接字集合
type Participant = participant.Participant

// Slot 参与者套接字槽位
type Slot = participant.Slot

const (
	SlotDiscoveryMulticast = participant.SlotDiscoveryMulticast
	SlotDiscoveryUnicast   = participant.SlotDiscoveryUnicast
	SlotDataMulticast      = participant.SlotDataMulticast
	SlotDataUnicast        = participant.SlotDataUnicast
)

// Conn 传输连接
type Conn = transport.Conn

// Listener 流式传输监听器
type Listener = transport.Listener

// NewParticipant 在默认传输上创建参与者
//
// auto 索引模式下从服务的索引池分配索引；服务停止时参与者一并关闭。
func (s *Service) NewParticipant(ctx context.Context) (*Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning {
		if s.state == StateStopped {
			return nil, ErrServiceStopped
		}
		return nil, ErrNotStarted
	}

	p, err := participant.New(ctx, s.partCfg, s.registry, s.pool)
	if err != nil {
		if errors.Is(err, participant.ErrNoParticipantIndex) {
			logger.Error("没有可用的参与者索引", "max", s.pool.Max())
		}
		return nil, err
	}
	s.participants[p] = struct{}{}
	return p, nil
}

// CloseParticipant 关闭参与者并归还索引
func (s *Service) CloseParticipant(p *Participant) error {
	s.mu.Lock()
	delete(s.participants, p)
	s.mu.Unlock()
	return p.Close()
}

// Participants 返回存活的参与者数量
func (s *Service) Participants() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.participants)
}

// Rebind 重新绑定所有参与者的套接字
//
// 接口监控检测到变化时自动调用，也可在已知网络切换时手动调用。
func (s *Service) Rebind(ctx context.Context) error {
	s.mu.Lock()
	parts := make([]*participant.Participant, 0, len(s.participants))
	for p := range s.participants {
		parts = append(parts, p)
	}
	s.mu.Unlock()

	var errs error
	for _, p := range parts {
		if err := p.Rebind(ctx); err != nil && !errors.Is(err, participant.ErrClosed) {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// watchInterfaces 接口变化时重绑定参与者
func (s *Service) watchInterfaces(ctx context.Context) {
	defer close(s.loopDone)

	events := s.watcher.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.onInterfaceEvent(ctx, ev)
		}
	}
}

func (s *Service) onInterfaceEvent(ctx context.Context, ev netif.Event) {
	logger.Info("网络接口变化", "type", ev.Type.String(), "interfaces", len(ev.Interfaces))
	if err := s.Rebind(ctx); err != nil {
		logger.Warn("重绑定参与者失败", "error", err)
	}
}
