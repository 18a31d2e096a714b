package transport

import "errors"

var (
	// ErrNoTransport 没有支持该定位器类型的传输
	ErrNoTransport = errors.New("no suitable transport for locator")

	// ErrUnknownSelector 传输选择无法识别
	ErrUnknownSelector = errors.New("unknown transport selector")
)
