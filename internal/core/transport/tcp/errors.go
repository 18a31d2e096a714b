package tcp

import "errors"

var (
	// ErrFrameTooLarge 帧长度超过上限
	ErrFrameTooLarge = errors.New("tcp frame too large")

	// ErrNotListening 监听器尚未调用 Listen
	ErrNotListening = errors.New("tcp listener not listening")
)
