//go:build windows

package udp

import (
	"errors"
	"fmt"
	"syscall"

	"golang.org/x/sys/windows"
)

// reuseControl 设置 SO_REUSEADDR（Windows 没有 SO_REUSEPORT）
func reuseControl(_, _ string, c syscall.RawConn) error {
	var opErr error
	err := c.Control(func(fd uintptr) {
		if err := windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1); err != nil {
			opErr = fmt.Errorf("set SO_REUSEADDR: %w", err)
		}
	})
	if err != nil {
		return err
	}
	return opErr
}

// msgTruncated Windows 通过 WSAEMSGSIZE 报告截断
func msgTruncated(int) bool {
	return false
}

// truncError 是否为 WSAEMSGSIZE
func truncError(err error) bool {
	var errno syscall.Errno
	return errors.As(err, &errno) && errno == windows.WSAEMSGSIZE
}

// classifyErrno 错误码分类
func classifyErrno(errno syscall.Errno) errnoClass {
	switch errno {
	case windows.WSAEINTR, windows.WSAEWOULDBLOCK:
		return classRetry
	case windows.WSAEACCES:
		return classPermission
	case windows.WSAECONNRESET, windows.WSAECONNREFUSED, windows.WSAENETUNREACH, windows.WSAEHOSTUNREACH:
		return classUnreachable
	case windows.WSAEADDRINUSE, windows.WSAEINVAL:
		return classAddrInUse
	case windows.WSAEADDRNOTAVAIL:
		return classAddrNotAvail
	case windows.WSAENETDOWN:
		return classNoDevice
	case windows.WSAENOTSOCK:
		return classNotSocket
	default:
		return classOther
	}
}
