package udp

import (
	"errors"
	"fmt"
	"net"
	"syscall"

	transportif "github.com/dep2p/go-ddsi/pkg/interfaces/transport"
)

// errnoClass 平台错误码分类
type errnoClass int

const (
	classOther errnoClass = iota
	classRetry
	classPermission
	classUnreachable
	classAddrInUse
	classAddrNotAvail
	classNoDevice
	classNotSocket
)

// classify 提取错误中的错误码并分类
func classify(err error) errnoClass {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return classOther
	}
	return classifyErrno(errno)
}

// isClosed 套接字已被关闭
func isClosed(err error) bool {
	return errors.Is(err, net.ErrClosed)
}

// mcError 把组播加入/离开的平台错误转换为错误分类
func mcError(err error, join bool) error {
	var sentinel error
	switch classify(err) {
	case classAddrInUse:
		if join {
			sentinel = transportif.ErrMCAlreadyJoined
		} else {
			sentinel = transportif.ErrMCNotJoined
		}
	case classAddrNotAvail:
		if join {
			sentinel = transportif.ErrMCAddrNotAvailable
		} else {
			sentinel = transportif.ErrMCNotJoined
		}
	case classNoDevice:
		sentinel = transportif.ErrMCNoDevice
	case classPermission:
		sentinel = transportif.ErrMCPermission
	default:
		sentinel = transportif.ErrMCOther
	}
	return fmt.Errorf("%w: %v", sentinel, err)
}
