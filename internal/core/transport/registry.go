package transport

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"

	transportif "github.com/dep2p/go-ddsi/pkg/interfaces/transport"
	"github.com/dep2p/go-ddsi/pkg/types"
)

// ============================================================================
//                              Registry
// ============================================================================

// Registry 传输工厂注册表
//
// 注册发生在单线程启动阶段，之后以读为主；
// 查找为线性扫描（工厂数量很少）。
type Registry struct {
	mu        sync.RWMutex
	factories []transportif.Factory
	def       transportif.Factory
}

// 确保实现接口
var _ transportif.FactoryRegistry = (*Registry)(nil)

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{}
}

// Register 注册工厂
//
// 同名工厂已存在时返回 ErrFactoryExists；第一个注册的工厂成为默认工厂。
func (r *Registry) Register(f transportif.Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.factories {
		if existing.Name() == f.Name() {
			return fmt.Errorf("%w: %s", transportif.ErrFactoryExists, f.Name())
		}
	}
	r.factories = append(r.factories, f)
	if r.def == nil {
		r.def = f
	}

	logger.Debug("注册传输工厂", "name", f.Name(), "kind", f.Kind())
	return nil
}

// Lookup 按名称查找
func (r *Registry) Lookup(name string) (transportif.Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, f := range r.factories {
		if f.Name() == name {
			return f, true
		}
	}
	return nil, false
}

// LookupPrefix 按 text[:length] 查找
func (r *Registry) LookupPrefix(text string, length int) (transportif.Factory, bool) {
	if length < 0 || length > len(text) {
		return nil, false
	}
	return r.Lookup(text[:length])
}

// LookupSupporting 查找第一个支持 kind 的工厂
func (r *Registry) LookupSupporting(kind types.LocatorKind) (transportif.Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, f := range r.factories {
		if f.Supports(kind) {
			return f, true
		}
	}
	return nil, false
}

// Default 返回默认工厂
func (r *Registry) Default() (transportif.Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.def, r.def != nil
}

// SetDefault 按名称设置默认工厂
func (r *Registry) SetDefault(name string) error {
	f, ok := r.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", transportif.ErrFactoryNotFound, name)
	}

	r.mu.Lock()
	r.def = f
	r.mu.Unlock()

	logger.Debug("设置默认传输", "name", name)
	return nil
}

// Factories 返回所有已注册工厂（注册顺序）
func (r *Registry) Factories() []transportif.Factory {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]transportif.Factory, len(r.factories))
	copy(out, r.factories)
	return out
}

// Close 关闭并移除所有工厂
func (r *Registry) Close() error {
	r.mu.Lock()
	factories := r.factories
	r.factories = nil
	r.def = nil
	r.mu.Unlock()

	var err error
	for _, f := range factories {
		if cerr := f.Close(); cerr != nil {
			logger.Warn("关闭传输工厂失败", "name", f.Name(), "error", cerr)
			err = multierr.Append(err, fmt.Errorf("close %s: %w", f.Name(), cerr))
		}
	}
	return err
}
