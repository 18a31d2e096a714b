package transport

import (
	"fmt"
	"strings"

	transportif "github.com/dep2p/go-ddsi/pkg/interfaces/transport"
	"github.com/dep2p/go-ddsi/pkg/types"
)

// ============================================================================
//                              定位器文本格式
// ============================================================================
//
// 文本格式: [<传输名>/]<地址与端口>
//
//	udp/239.255.0.1:7400
//	udp6/[ff02::1]:7400
//	127.0.0.1:7410          使用默认传输
//	invalid/0:0             无效定位器（只能格式化，不能解析）

// invalidName 无效定位器的传输名
const invalidName = "invalid"

// ParseLocator 解析定位器文本
//
// 省略传输名时使用默认工厂；传输名未注册返回 ErrUnknownTransport，
// 与格式错误 ErrLocatorSyntax 可通过 errors.Is 区分。
func (r *Registry) ParseLocator(text string) (types.Locator, error) {
	var (
		f    transportif.Factory
		rest = text
	)

	if i := strings.IndexByte(text, '/'); i == 0 {
		return types.InvalidLocator(), fmt.Errorf("%w: missing transport name in %q", transportif.ErrLocatorSyntax, text)
	} else if i > 0 {
		if !validTransportName(text[:i]) {
			return types.InvalidLocator(), fmt.Errorf("%w: bad transport name %q", transportif.ErrLocatorSyntax, text[:i])
		}
		var ok bool
		if f, ok = r.LookupPrefix(text, i); !ok {
			return types.InvalidLocator(), fmt.Errorf("%w: %s", transportif.ErrUnknownTransport, text[:i])
		}
		rest = text[i+1:]
	} else {
		var ok bool
		if f, ok = r.Default(); !ok {
			return types.InvalidLocator(), fmt.Errorf("%w: no default transport", transportif.ErrUnknownTransport)
		}
	}

	loc, err := f.LocatorFromString(rest)
	if err != nil {
		return types.InvalidLocator(), fmt.Errorf("parse locator %q: %w", text, err)
	}
	return loc, nil
}

// FormatLocator 格式化定位器
//
// 结果长度不超过 types.LocatorStrLen-1。
func (r *Registry) FormatLocator(loc types.Locator, withPort bool) string {
	var s string
	switch {
	case !loc.IsValid():
		s = invalidName + "/0"
		if withPort {
			s += ":0"
		}
	default:
		if f, ok := r.LookupSupporting(loc.Kind); ok {
			s = f.Name() + "/" + f.LocatorToString(loc, withPort)
		} else {
			s = fmt.Sprintf("%s/%x", loc.Kind, loc.Address)
			if withPort {
				s += fmt.Sprintf(":%d", loc.Port)
			}
		}
	}

	if len(s) >= types.LocatorStrLen {
		s = s[:types.LocatorStrLen-1]
	}
	return s
}

// validTransportName 传输名只允许字母、数字、下划线
func validTransportName(name string) bool {
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
		default:
			return false
		}
	}
	return name != ""
}
