package ddsi

import (
	"errors"

	"github.com/dep2p/go-ddsi/internal/core/participant"
)

// 公共错误定义
var (
	// ────────────────────────────────────────────────────────────────────────
	// 服务生命周期错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrNotStarted 服务未启动
	ErrNotStarted = errors.New("service not started")

	// ErrAlreadyStarted 服务已启动
	ErrAlreadyStarted = errors.New("service already started")

	// ErrServiceStopped 服务已停止
	ErrServiceStopped = errors.New("service stopped")

	// ────────────────────────────────────────────────────────────────────────
	// 参与者错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrNoParticipantIndex 自动模式下所有参与者索引都不可用
	ErrNoParticipantIndex = participant.ErrNoParticipantIndex
)
