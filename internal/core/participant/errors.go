package participant

import "errors"

var (
	// ErrNoParticipantIndex 没有可用的参与者索引
	ErrNoParticipantIndex = errors.New("no free participant index")

	// ErrClosed 参与者已关闭
	ErrClosed = errors.New("participant closed")
)
