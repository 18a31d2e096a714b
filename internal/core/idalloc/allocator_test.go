package idalloc

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
//                              基本分配
// ============================================================================

func TestNew_WholeRangeFree(t *testing.T) {
	a := New(3, 9)

	assert.Equal(t, []Interval{{Lo: 3, Hi: 9}}, a.Intervals())
	assert.Equal(t, uint32(3), a.Cursor())
	assert.Equal(t, uint64(7), a.FreeCount())
	require.NoError(t, a.Check())
}

func TestAlloc_ExhaustionAndRecovery(t *testing.T) {
	a := New(0, 2)

	for want := uint32(0); want <= 2; want++ {
		id, ok := a.Alloc()
		require.True(t, ok)
		assert.Equal(t, want, id)
	}
	assert.Equal(t, uint32(0), a.Cursor(), "分配 max 后游标回绕到 min")

	_, ok := a.Alloc()
	assert.False(t, ok, "范围耗尽时应报告失败")
	assert.Empty(t, a.Intervals())

	a.Free(1)
	id, ok := a.Alloc()
	require.True(t, ok)
	assert.Equal(t, uint32(1), id)
	require.NoError(t, a.Check())

	t.Log("✅ 耗尽后释放可再次分配")
}

func TestAlloc_SplitAtCursor(t *testing.T) {
	a := New(0, 9)
	for i := 0; i < 5; i++ {
		_, ok := a.Alloc()
		require.True(t, ok)
	}
	// 已分配 0..4，释放后空闲集合为 [0,4] 与 [5,9] 合并后的整体
	for id := uint32(0); id < 5; id++ {
		a.Free(id)
	}
	assert.Equal(t, []Interval{{Lo: 0, Hi: 9}}, a.Intervals())

	// 游标为 5，位于区间内部：拆分
	id, ok := a.Alloc()
	require.True(t, ok)
	assert.Equal(t, uint32(5), id)
	assert.Equal(t, []Interval{{Lo: 0, Hi: 4}, {Lo: 6, Hi: 9}}, a.Intervals())
	require.NoError(t, a.Check())
}

func TestAlloc_CursorAtUpperBound(t *testing.T) {
	a := New(0, 9)
	for i := 0; i < 9; i++ {
		_, ok := a.Alloc()
		require.True(t, ok)
	}
	a.Free(3)
	a.Free(4)
	a.Free(5)
	// 空闲: [3,5] [9,9]，游标 9
	id, ok := a.Alloc()
	require.True(t, ok)
	assert.Equal(t, uint32(9), id)
	assert.Equal(t, uint32(0), a.Cursor())

	// 游标 0 之前没有区间：取后继区间下界
	id, ok = a.Alloc()
	require.True(t, ok)
	assert.Equal(t, uint32(3), id)
	assert.Equal(t, []Interval{{Lo: 4, Hi: 5}}, a.Intervals())
}

func TestAlloc_DecrementUpperBound(t *testing.T) {
	a := New(0, 9)
	for i := 0; i < 10; i++ {
		_, ok := a.Alloc()
		require.True(t, ok)
	}
	a.Free(6)
	a.Free(7)
	// 游标为 0；分配 6 后游标为 7，位于 [7,7]
	id, _ := a.Alloc()
	assert.Equal(t, uint32(6), id)
	a.Free(8)
	// 空闲 [7,8]，游标 7 → use min
	id, _ = a.Alloc()
	assert.Equal(t, uint32(7), id)

	a.Free(5)
	a.Free(6)
	a.Free(7)
	// 空闲 [5,8]，游标 8 等于上界：上界减一
	id, _ = a.Alloc()
	assert.Equal(t, uint32(8), id)
	assert.Equal(t, []Interval{{Lo: 5, Hi: 7}}, a.Intervals())
	require.NoError(t, a.Check())
}

func TestAlloc_WrapAround(t *testing.T) {
	a := New(10, 14)
	for i := 0; i < 4; i++ {
		_, ok := a.Alloc()
		require.True(t, ok)
	}
	a.Free(11)
	// 游标 14 空闲，先用 14，再回绕到 11
	id, _ := a.Alloc()
	assert.Equal(t, uint32(14), id)
	id, _ = a.Alloc()
	assert.Equal(t, uint32(11), id)
	_, ok := a.Alloc()
	assert.False(t, ok)
}

// ============================================================================
//                              释放与合并
// ============================================================================

func TestFree_DoubleFreeIsNoop(t *testing.T) {
	a := New(0, 9)
	for i := 0; i < 6; i++ {
		_, _ = a.Alloc()
	}
	a.Free(2)
	before := a.Intervals()

	a.Free(2)
	assert.Equal(t, before, a.Intervals())

	a.Free(7) // 从未分配
	a.Free(7)
	assert.Equal(t, []Interval{{Lo: 2, Hi: 2}, {Lo: 6, Hi: 9}}, a.Intervals())
	require.NoError(t, a.Check())

	t.Log("✅ 重复释放不改变空闲集合")
}

func TestFree_OutOfRangeIgnored(t *testing.T) {
	a := New(5, 6)
	_, _ = a.Alloc()
	a.Free(4)
	a.Free(7)
	assert.Equal(t, []Interval{{Lo: 6, Hi: 6}}, a.Intervals())
}

func TestFree_CoalescesBothNeighbours(t *testing.T) {
	a := New(0, 4)
	for want := uint32(0); want <= 4; want++ {
		id, ok := a.Alloc()
		require.True(t, ok)
		require.Equal(t, want, id)
	}

	a.Free(1)
	a.Free(3)
	assert.Equal(t, []Interval{{Lo: 1, Hi: 1}, {Lo: 3, Hi: 3}}, a.Intervals())

	a.Free(2)
	assert.Equal(t, []Interval{{Lo: 1, Hi: 3}}, a.Intervals(), "前驱与后继应合并为一个区间")

	a.Free(0)
	a.Free(4)
	assert.Equal(t, []Interval{{Lo: 0, Hi: 4}}, a.Intervals())
	require.NoError(t, a.Check())

	// 与新分配器产生相同序列
	fresh := New(0, 4)
	for i := 0; i < 6; i++ {
		id1, ok1 := a.Alloc()
		id2, ok2 := fresh.Alloc()
		assert.Equal(t, ok2, ok1)
		assert.Equal(t, id2, id1)
	}

	t.Log("✅ 释放合并后恢复完整区间")
}

func TestFree_ExtendSuccessor(t *testing.T) {
	a := New(0, 9)
	for i := 0; i < 10; i++ {
		_, _ = a.Alloc()
	}
	a.Free(5)
	a.Free(4)
	assert.Equal(t, []Interval{{Lo: 4, Hi: 5}}, a.Intervals())
	a.Free(6)
	assert.Equal(t, []Interval{{Lo: 4, Hi: 6}}, a.Intervals())
}

func TestAllocator_FullUint32Range(t *testing.T) {
	a := New(0, ^uint32(0))
	a.cursor = ^uint32(0)

	id, ok := a.Alloc()
	require.True(t, ok)
	assert.Equal(t, ^uint32(0), id)
	assert.Equal(t, uint32(0), a.Cursor())

	a.Free(^uint32(0))
	assert.Equal(t, []Interval{{Lo: 0, Hi: ^uint32(0)}}, a.Intervals())
	require.NoError(t, a.Check())
}

// ============================================================================
//                              随机序列不变量
// ============================================================================

func TestAllocator_RandomOperationsKeepInvariant(t *testing.T) {
	const lo, hi = 100, 163
	a := New(lo, hi)
	allocated := make(map[uint32]bool)
	rng := rand.New(rand.NewSource(42))

	for step := 0; step < 5000; step++ {
		if rng.Intn(3) > 0 {
			id, ok := a.Alloc()
			if len(allocated) == hi-lo+1 {
				require.False(t, ok, "step %d", step)
				continue
			}
			require.True(t, ok, "step %d", step)
			require.False(t, allocated[id], "step %d: id %d 重复分配", step, id)
			require.True(t, id >= lo && id <= hi)
			allocated[id] = true
		} else {
			id := uint32(lo + rng.Intn(hi-lo+1))
			a.Free(id)
			delete(allocated, id)
		}

		require.NoError(t, a.Check(), "step %d", step)
		for id := uint32(lo); id <= hi; id++ {
			require.Equal(t, !allocated[id], a.IsFree(id), "step %d id %d", step, id)
		}
		require.Equal(t, uint64(hi-lo+1-len(allocated)), a.FreeCount())
	}

	t.Log("✅ 随机分配/释放后每个标识符恰属于已分配或空闲之一")
}
