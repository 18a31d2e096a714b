package participant

import (
	"sync"

	"github.com/dep2p/go-ddsi/internal/core/idalloc"
	"github.com/dep2p/go-ddsi/internal/core/metrics"
)

// IndexPool 自动参与者索引池
//
// 在 idalloc.Allocator 外加互斥锁，供同一进程内的多个参与者共享。
type IndexPool struct {
	mu      sync.Mutex
	ids     *idalloc.Allocator
	metrics *metrics.Transport
}

// NewIndexPool 创建覆盖 [0, maxIndex] 的索引池，m 可为 nil
func NewIndexPool(maxIndex uint32, m *metrics.Transport) *IndexPool {
	return &IndexPool{
		ids:     idalloc.New(0, maxIndex),
		metrics: m,
	}
}

// Alloc 分配一个索引，耗尽时返回 false
func (p *IndexPool) Alloc() (uint32, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.ids.Alloc()
	if ok {
		p.metrics.IndexAllocated()
	}
	return id, ok
}

// Free 归还索引，已空闲或超出范围时忽略
func (p *IndexPool) Free(id uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id > p.ids.Max() || p.ids.IsFree(id) {
		return
	}
	p.ids.Free(id)
	p.metrics.IndexFreed()
}

// Available 剩余可分配的索引数
func (p *IndexPool) Available() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ids.FreeCount()
}

// Max 返回最大索引
func (p *IndexPool) Max() uint32 {
	return p.ids.Max()
}
