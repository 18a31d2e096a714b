//go:build unix

package udp

import (
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"

	transportif "github.com/dep2p/go-ddsi/pkg/interfaces/transport"
)

// opErr 模拟 net 包返回的错误链
func opErr(errno syscall.Errno) error {
	return &net.OpError{Op: "setsockopt", Net: "udp4", Err: os.NewSyscallError("setsockopt", errno)}
}

func TestMCError(t *testing.T) {
	tests := []struct {
		name  string
		errno syscall.Errno
		join  bool
		want  error
	}{
		{"重复加入", unix.EADDRINUSE, true, transportif.ErrMCAlreadyJoined},
		{"加入地址不可用", unix.EADDRNOTAVAIL, true, transportif.ErrMCAddrNotAvailable},
		{"离开未加入的组", unix.EADDRNOTAVAIL, false, transportif.ErrMCNotJoined},
		{"无设备", unix.ENODEV, true, transportif.ErrMCNoDevice},
		{"权限不足", unix.EPERM, true, transportif.ErrMCPermission},
		{"其他错误", unix.EINVAL, true, transportif.ErrMCOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mcError(opErr(tt.errno), tt.join)
			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), tt.errno.Error(), "保留原始错误信息")
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, classRetry, classify(opErr(unix.EINTR)))
	assert.Equal(t, classRetry, classify(opErr(unix.EAGAIN)))
	assert.Equal(t, classPermission, classify(opErr(unix.EPERM)))
	assert.Equal(t, classUnreachable, classify(opErr(unix.ECONNREFUSED)))
	assert.Equal(t, classUnreachable, classify(opErr(unix.EHOSTUNREACH)))
	assert.Equal(t, classNotSocket, classify(opErr(unix.ENOTSOCK)))
	assert.Equal(t, classOther, classify(errors.New("plain")))
	assert.Equal(t, classOther, classify(fmt.Errorf("wrapped: %w", errors.New("plain"))))

	assert.True(t, isClosed(fmt.Errorf("read: %w", net.ErrClosed)))
	assert.True(t, msgTruncated(unix.MSG_TRUNC))
	assert.False(t, msgTruncated(0))
}
