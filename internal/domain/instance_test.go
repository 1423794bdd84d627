package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(millis int64) time.Time {
	return time.UnixMilli(millis).UTC()
}

func instance(start, end int64, busy bool) EventInstance {
	return EventInstance{StartTime: ts(start), EndTime: ts(end), Busy: busy}
}

func TestMerge(t *testing.T) {
	t.Run("no overlap", func(t *testing.T) {
		_, ok := Merge(instance(0, 4, false), instance(5, 10, false))
		assert.False(t, ok)
	})

	t.Run("overlap without extending", func(t *testing.T) {
		merged, ok := Merge(instance(1, 10, false), instance(5, 7, false))
		require.True(t, ok)
		assert.Equal(t, instance(1, 10, false), merged)
	})

	t.Run("overlap with extending", func(t *testing.T) {
		merged, ok := Merge(instance(1, 10, false), instance(5, 15, false))
		require.True(t, ok)
		assert.Equal(t, instance(1, 15, false), merged)
	})

	t.Run("different busy flags", func(t *testing.T) {
		_, ok := Merge(instance(1, 10, false), instance(5, 15, true))
		assert.False(t, ok)
	})
}

func TestSubtract(t *testing.T) {
	t.Run("no overlap", func(t *testing.T) {
		res := Subtract(instance(0, 4, false), instance(5, 10, true))
		assert.Equal(t, SubtractNoOverlap, res.Kind)
	})

	t.Run("touching endpoints are not overlap", func(t *testing.T) {
		res := Subtract(instance(10, 20, false), instance(2, 10, true))
		assert.Equal(t, SubtractNoOverlap, res.Kind)
	})

	t.Run("complete overlap", func(t *testing.T) {
		res := Subtract(instance(0, 4, false), instance(0, 10, true))
		assert.Equal(t, SubtractEmpty, res.Kind)
	})

	t.Run("overlap end", func(t *testing.T) {
		res := Subtract(instance(0, 4, false), instance(3, 10, true))
		require.Equal(t, SubtractOverlapEnd, res.Kind)
		assert.Equal(t, []EventInstance{instance(0, 3, false)}, res.Remainder.Inner())
	})

	t.Run("overlap beginning", func(t *testing.T) {
		res := Subtract(instance(3, 10, false), instance(0, 4, true))
		require.Equal(t, SubtractOverlapBeginning, res.Kind)
		assert.Equal(t, []EventInstance{instance(4, 10, false)}, res.Remainder.Inner())
	})

	t.Run("split", func(t *testing.T) {
		res := Subtract(instance(2, 14, false), instance(3, 10, true))
		require.Equal(t, SubtractSplit, res.Kind)
		assert.Equal(t, []EventInstance{
			instance(2, 3, false),
			instance(10, 14, false),
		}, res.Remainder.Inner())
	})
}

func TestNewCompatibleInstances(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, 0, NewCompatibleInstances(nil).Len())
	})

	t.Run("duplicates merge", func(t *testing.T) {
		set := NewCompatibleInstances([]EventInstance{
			instance(0, 2, false),
			instance(0, 2, false),
		})
		assert.Equal(t, []EventInstance{instance(0, 2, false)}, set.Inner())
	})

	t.Run("disjoint stay apart", func(t *testing.T) {
		set := NewCompatibleInstances([]EventInstance{
			instance(0, 2, false),
			instance(5, 10, false),
		})
		assert.Equal(t, 2, set.Len())
	})

	t.Run("chains of overlaps collapse", func(t *testing.T) {
		set := NewCompatibleInstances([]EventInstance{
			instance(5, 10, false),
			instance(1, 7, false),
			instance(6, 14, false),
			instance(20, 30, false),
			instance(24, 40, false),
			instance(44, 50, false),
		})
		assert.Equal(t, []EventInstance{
			instance(1, 14, false),
			instance(20, 40, false),
			instance(44, 50, false),
		}, set.Inner())
	})
}

func TestRemoveInstances(t *testing.T) {
	t.Run("single free interval", func(t *testing.T) {
		free := NewCompatibleInstances([]EventInstance{instance(5, 100, false)})
		busy := NewCompatibleInstances([]EventInstance{
			instance(2, 40, false),
			instance(50, 70, false),
			instance(72, 75, false),
		})
		free.RemoveInstances(busy, 0)
		assert.Equal(t, []EventInstance{
			instance(40, 50, false),
			instance(70, 72, false),
			instance(75, 100, false),
		}, free.Inner())
	})

	t.Run("multiple free intervals", func(t *testing.T) {
		free := NewCompatibleInstances([]EventInstance{
			instance(0, 71, false),
			instance(72, 74, false),
			instance(100, 140, false),
		})
		busy := NewCompatibleInstances([]EventInstance{
			instance(2, 40, false),
			instance(50, 70, false),
			instance(72, 75, false),
		})
		free.RemoveInstances(busy, 0)
		assert.Equal(t, []EventInstance{
			instance(0, 2, false),
			instance(40, 50, false),
			instance(70, 71, false),
			instance(100, 140, false),
		}, free.Inner())
	})

	t.Run("many alternating intervals", func(t *testing.T) {
		var freeList, busyList []EventInstance
		for i := int64(0); i < 100; i++ {
			freeList = append(freeList, instance(i*10+5, i*10+8, false))
		}
		for i := int64(0); i < 200; i++ {
			busyList = append(busyList, instance(i*10+6, i*10+7, false))
		}
		free := NewCompatibleInstances(freeList)
		free.RemoveInstances(NewCompatibleInstances(busyList), 0)
		assert.Equal(t, 200, free.Len())
	})

	t.Run("idempotent", func(t *testing.T) {
		free := NewCompatibleInstances([]EventInstance{
			instance(0, 71, false),
			instance(100, 140, false),
		})
		busy := NewCompatibleInstances([]EventInstance{
			instance(2, 40, false),
			instance(110, 120, false),
		})
		free.RemoveInstances(busy, 0)
		once := append([]EventInstance(nil), free.Inner()...)
		free.RemoveInstances(busy, 0)
		assert.Equal(t, once, free.Inner())
	})
}

func TestRemoveAllBefore(t *testing.T) {
	set := NewCompatibleInstances([]EventInstance{instance(3, 10, false)})
	set.RemoveAllBefore(ts(2))
	assert.Equal(t, []EventInstance{instance(3, 10, false)}, set.Inner())

	set.RemoveAllBefore(ts(5))
	assert.Equal(t, []EventInstance{instance(5, 10, false)}, set.Inner())

	set.RemoveAllBefore(ts(10))
	assert.True(t, set.IsEmpty())

	set = NewCompatibleInstances([]EventInstance{
		instance(3, 10, false),
		instance(12, 20, false),
	})
	set.RemoveAllBefore(ts(14))
	assert.Equal(t, []EventInstance{instance(14, 20, false)}, set.Inner())
}

func TestRemoveAllAfter(t *testing.T) {
	set := NewCompatibleInstances([]EventInstance{instance(3, 10, false)})
	set.RemoveAllAfter(ts(10))
	assert.Equal(t, []EventInstance{instance(3, 10, false)}, set.Inner())

	set.RemoveAllAfter(ts(5))
	assert.Equal(t, []EventInstance{instance(3, 5, false)}, set.Inner())

	set.RemoveAllAfter(ts(3))
	assert.True(t, set.IsEmpty())

	set = NewCompatibleInstances([]EventInstance{
		instance(3, 10, false),
		instance(12, 20, false),
	})
	set.RemoveAllAfter(ts(8))
	assert.Equal(t, []EventInstance{instance(3, 8, false)}, set.Inner())
}

func TestGetFreeBusy(t *testing.T) {
	t.Run("single free event", func(t *testing.T) {
		fb := GetFreeBusy([]EventInstance{instance(0, 10, false)})
		assert.Equal(t, []EventInstance{instance(0, 10, false)}, fb.Free.Inner())
		assert.True(t, fb.Busy.IsEmpty())
	})

	t.Run("no free event", func(t *testing.T) {
		fb := GetFreeBusy([]EventInstance{instance(0, 10, true)})
		assert.True(t, fb.Free.IsEmpty())
	})

	t.Run("busy carves free", func(t *testing.T) {
		fb := GetFreeBusy([]EventInstance{
			instance(0, 10, false),
			instance(3, 5, true),
		})
		assert.Equal(t, []EventInstance{
			instance(0, 3, false),
			instance(5, 10, false),
		}, fb.Free.Inner())
	})

	t.Run("idempotent over its own output", func(t *testing.T) {
		input := []EventInstance{
			instance(0, 30, false),
			instance(5, 10, true),
			instance(8, 14, true),
			instance(40, 50, false),
		}
		first := GetFreeBusy(input)

		var roundTrip []EventInstance
		roundTrip = append(roundTrip, first.Free.Inner()...)
		roundTrip = append(roundTrip, first.Busy.Inner()...)
		second := GetFreeBusy(roundTrip)

		assert.Equal(t, first.Free.Inner(), second.Free.Inner())
		assert.Equal(t, first.Busy.Inner(), second.Busy.Inner())
	})
}
