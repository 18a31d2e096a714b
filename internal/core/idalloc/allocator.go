// Package idalloc 实现基于区间的标识符分配器
//
// Allocator 以不相交、不相邻的闭区间集合记录 [min, max] 中尚未分配的
// 标识符（分配集合的补集），区间按下界排序存放在 B 树中。
// 分配与释放的代价为 O(log n)，n 为空闲区间数量而非范围大小；
// 游标在每次分配后前移，保证标识符轮转复用。
//
// # 并发安全
//
// Allocator 不做内部同步，并发调用者必须在外部串行化访问
// （例如由拥有者子系统已有的锁保护）。
package idalloc

import (
	"fmt"

	"github.com/google/btree"
)

// btreeDegree B 树阶数
const btreeDegree = 8

// Interval 闭区间 [Lo, Hi]
type Interval struct {
	Lo uint32
	Hi uint32
}

func lessInterval(a, b Interval) bool {
	return a.Lo < b.Lo
}

// Allocator 区间分配器
type Allocator struct {
	free   *btree.BTreeG[Interval]
	cursor uint32
	min    uint32
	max    uint32
}

// New 创建覆盖 [min, max] 的分配器，初始全部空闲
func New(min, max uint32) *Allocator {
	if min > max {
		min, max = max, min
	}
	a := &Allocator{
		free:   btree.NewG(btreeDegree, lessInterval),
		cursor: min,
		min:    min,
		max:    max,
	}
	a.free.ReplaceOrInsert(Interval{Lo: min, Hi: max})
	return a
}

// Min 返回范围下界
func (a *Allocator) Min() uint32 { return a.min }

// Max 返回范围上界
func (a *Allocator) Max() uint32 { return a.max }

// Cursor 返回下一次分配的起点
func (a *Allocator) Cursor() uint32 { return a.cursor }

// ============================================================================
//                              查找辅助
// ============================================================================

// predEq 返回下界 <= key 的最大区间
func (a *Allocator) predEq(key uint32) (Interval, bool) {
	var (
		found Interval
		ok    bool
	)
	a.free.DescendLessOrEqual(Interval{Lo: key}, func(it Interval) bool {
		found, ok = it, true
		return false
	})
	return found, ok
}

// succ 返回下界 > key 的最小区间
func (a *Allocator) succ(key uint32) (Interval, bool) {
	if key == ^uint32(0) {
		return Interval{}, false
	}
	var (
		found Interval
		ok    bool
	)
	a.free.AscendGreaterOrEqual(Interval{Lo: key + 1}, func(it Interval) bool {
		found, ok = it, true
		return false
	})
	return found, ok
}

// replace 以删除再插入的方式修改区间
func (a *Allocator) replace(old, updated Interval) {
	a.free.Delete(old)
	a.free.ReplaceOrInsert(updated)
}

// useMin 分配区间 n 的下界
func (a *Allocator) useMin(n Interval) uint32 {
	id := n.Lo
	if n.Lo == n.Hi {
		a.free.Delete(n)
	} else {
		a.replace(n, Interval{Lo: n.Lo + 1, Hi: n.Hi})
	}
	return id
}

// ============================================================================
//                              分配与释放
// ============================================================================

// Alloc 分配一个标识符
//
// 依次尝试：游标本身空闲；游标之后的第一个空闲区间；回绕到最小空闲区间。
// 没有可用标识符时返回 false。
func (a *Allocator) Alloc() (uint32, bool) {
	var id uint32
	if n, ok := a.predEq(a.cursor); ok && a.cursor <= n.Hi {
		id = a.cursor
		switch {
		case n.Lo == a.cursor:
			a.useMin(n)
		case n.Hi == a.cursor:
			a.free.ReplaceOrInsert(Interval{Lo: n.Lo, Hi: n.Hi - 1})
		default:
			a.free.ReplaceOrInsert(Interval{Lo: n.Lo, Hi: a.cursor - 1})
			a.free.ReplaceOrInsert(Interval{Lo: a.cursor + 1, Hi: n.Hi})
		}
	} else if n, ok := a.succ(a.cursor); ok {
		id = a.useMin(n)
	} else if n, ok := a.free.Min(); ok {
		id = a.useMin(n)
	} else {
		return 0, false
	}

	if id < a.max {
		a.cursor = id + 1
	} else {
		a.cursor = a.min
	}
	return id, true
}

// Free 释放标识符
//
// 已空闲或超出范围的标识符直接忽略。
func (a *Allocator) Free(id uint32) {
	if id < a.min || id > a.max {
		return
	}

	if n, ok := a.predEq(id); ok && (id <= n.Hi || id == n.Hi+1) {
		if id <= n.Hi {
			return
		}
		// 扩展前驱区间，若与后继相邻则合并
		if next, ok := a.free.Get(Interval{Lo: id + 1}); ok && id < a.max {
			a.free.Delete(next)
			a.free.ReplaceOrInsert(Interval{Lo: n.Lo, Hi: next.Hi})
		} else {
			a.free.ReplaceOrInsert(Interval{Lo: n.Lo, Hi: id})
		}
		return
	}

	if id < a.max {
		if next, ok := a.free.Get(Interval{Lo: id + 1}); ok {
			a.replace(next, Interval{Lo: id, Hi: next.Hi})
			return
		}
	}
	a.free.ReplaceOrInsert(Interval{Lo: id, Hi: id})
}

// ============================================================================
//                              查询
// ============================================================================

// IsFree 检查标识符是否空闲
func (a *Allocator) IsFree(id uint32) bool {
	if id < a.min || id > a.max {
		return false
	}
	n, ok := a.predEq(id)
	return ok && id <= n.Hi
}

// Intervals 按顺序返回所有空闲区间
func (a *Allocator) Intervals() []Interval {
	out := make([]Interval, 0, a.free.Len())
	a.free.Ascend(func(it Interval) bool {
		out = append(out, it)
		return true
	})
	return out
}

// FreeCount 返回空闲标识符数量
func (a *Allocator) FreeCount() uint64 {
	var total uint64
	a.free.Ascend(func(it Interval) bool {
		total += uint64(it.Hi-it.Lo) + 1
		return true
	})
	return total
}

// Check 校验内部不变量
//
// 区间非空、位于 [min, max] 内、互不重叠且互不相邻，游标在范围内。
func (a *Allocator) Check() error {
	if a.cursor < a.min || a.cursor > a.max {
		return fmt.Errorf("cursor %d outside [%d, %d]", a.cursor, a.min, a.max)
	}
	var (
		prev    Interval
		hasPrev bool
		err     error
	)
	a.free.Ascend(func(it Interval) bool {
		switch {
		case it.Lo > it.Hi:
			err = fmt.Errorf("empty interval [%d, %d]", it.Lo, it.Hi)
		case it.Lo < a.min || it.Hi > a.max:
			err = fmt.Errorf("interval [%d, %d] outside [%d, %d]", it.Lo, it.Hi, a.min, a.max)
		case hasPrev && uint64(it.Lo) <= uint64(prev.Hi)+1:
			err = fmt.Errorf("interval [%d, %d] overlaps or touches [%d, %d]", it.Lo, it.Hi, prev.Lo, prev.Hi)
		}
		prev, hasPrev = it, true
		return err == nil
	})
	return err
}
