//go:build unix

package udp

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// reuseControl 设置 SO_REUSEADDR 和 SO_REUSEPORT
//
// 组播套接字需要多个进程绑定同一端口。
func reuseControl(_, _ string, c syscall.RawConn) error {
	var opErr error
	err := c.Control(func(fd uintptr) {
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			opErr = fmt.Errorf("set SO_REUSEADDR: %w", err)
			return
		}
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
			logger.Debug("设置 SO_REUSEPORT 失败", "err", err)
		}
	})
	if err != nil {
		return err
	}
	return opErr
}

// msgTruncated 检查 recvmsg 标志位
func msgTruncated(flags int) bool {
	return flags&unix.MSG_TRUNC != 0
}

// truncError 是否为截断错误（unix 通过标志位报告截断）
func truncError(error) bool {
	return false
}

// classifyErrno 错误码分类
func classifyErrno(errno syscall.Errno) errnoClass {
	switch errno {
	case unix.EINTR, unix.EAGAIN:
		return classRetry
	case unix.EPERM, unix.EACCES:
		return classPermission
	case unix.ECONNRESET, unix.ECONNREFUSED, unix.ENETUNREACH, unix.EHOSTUNREACH:
		return classUnreachable
	case unix.EADDRINUSE:
		return classAddrInUse
	case unix.EADDRNOTAVAIL:
		return classAddrNotAvail
	case unix.ENODEV, unix.ENXIO:
		return classNoDevice
	case unix.ENOTSOCK:
		return classNotSocket
	default:
		return classOther
	}
}
