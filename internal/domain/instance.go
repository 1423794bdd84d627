package domain

import (
	"sort"
	"time"
)

// EventInstance is one concrete occurrence of a calendar event.
type EventInstance struct {
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Busy      bool      `json:"busy"`
}

// HasOverlap reports whether two instances overlap or abut.
func HasOverlap(a, b EventInstance) bool {
	return !a.StartTime.After(b.EndTime) && !a.EndTime.Before(b.StartTime)
}

// Merge combines two overlapping or abutting instances with the same busy
// flag into their union. Returns false when they cannot be merged.
func Merge(a, b EventInstance) (EventInstance, bool) {
	if a.Busy != b.Busy || !HasOverlap(a, b) {
		return EventInstance{}, false
	}
	merged := EventInstance{
		StartTime: a.StartTime,
		EndTime:   a.EndTime,
		Busy:      a.Busy,
	}
	if b.StartTime.Before(merged.StartTime) {
		merged.StartTime = b.StartTime
	}
	if b.EndTime.After(merged.EndTime) {
		merged.EndTime = b.EndTime
	}
	return merged, true
}

// SubtractKind classifies the result of subtracting one instance from a
// free instance.
type SubtractKind int

const (
	// SubtractNoOverlap means the instances do not overlap. Touching
	// endpoints do not count as overlap.
	SubtractNoOverlap SubtractKind = iota
	// SubtractOverlapBeginning means the subtracted instance covers the
	// beginning of the free instance.
	SubtractOverlapBeginning
	// SubtractOverlapEnd means the subtracted instance covers the end of
	// the free instance.
	SubtractOverlapEnd
	// SubtractSplit means the subtracted instance lies strictly inside
	// the free instance, splitting it in two.
	SubtractSplit
	// SubtractEmpty means the subtracted instance covers the free
	// instance entirely.
	SubtractEmpty
)

// SubtractResult carries the remainder of a subtraction.
type SubtractResult struct {
	Kind      SubtractKind
	Remainder *CompatibleInstances
}

// Subtract removes instance from free and classifies the remainder.
func Subtract(free, instance EventInstance) SubtractResult {
	if !HasOverlap(free, instance) || free.StartTime.Equal(instance.EndTime) || free.EndTime.Equal(instance.StartTime) {
		return SubtractResult{Kind: SubtractNoOverlap}
	}

	if !instance.StartTime.After(free.StartTime) && !instance.EndTime.Before(free.EndTime) {
		return SubtractResult{Kind: SubtractEmpty}
	}

	if instance.StartTime.After(free.StartTime) && instance.EndTime.Before(free.EndTime) {
		remainder := NewCompatibleInstances([]EventInstance{
			{StartTime: free.StartTime, EndTime: instance.StartTime},
			{StartTime: instance.EndTime, EndTime: free.EndTime},
		})
		return SubtractResult{Kind: SubtractSplit, Remainder: remainder}
	}

	if !free.StartTime.Before(instance.StartTime) {
		remainder := NewCompatibleInstances([]EventInstance{
			{StartTime: instance.EndTime, EndTime: free.EndTime},
		})
		return SubtractResult{Kind: SubtractOverlapBeginning, Remainder: remainder}
	}

	remainder := NewCompatibleInstances([]EventInstance{
		{StartTime: free.StartTime, EndTime: instance.StartTime},
	})
	return SubtractResult{Kind: SubtractOverlapEnd, Remainder: remainder}
}

// CompatibleInstances is a sorted set of instances where no two members
// with the same busy flag overlap. Overlapping same-busy inputs are
// merged into their union on construction.
type CompatibleInstances struct {
	events []EventInstance
}

// NewCompatibleInstances sorts the input by start time and merges
// overlapping neighbours.
func NewCompatibleInstances(events []EventInstance) *CompatibleInstances {
	sorted := make([]EventInstance, len(events))
	copy(sorted, events)
	sortInstances(sorted)

	c := &CompatibleInstances{}
	for i, instance := range sorted {
		if i == 0 {
			c.events = append(c.events, instance)
			continue
		}
		last := c.events[len(c.events)-1]
		if merged, ok := Merge(instance, last); ok {
			c.events[len(c.events)-1] = merged
		} else {
			c.events = append(c.events, instance)
		}
	}
	return c
}

func sortInstances(events []EventInstance) {
	sort.SliceStable(events, func(a, b int) bool {
		return events[a].StartTime.Before(events[b].StartTime)
	})
}

// Inner returns the underlying instances, sorted by start.
func (c *CompatibleInstances) Inner() []EventInstance {
	return c.events
}

// Len returns the number of instances in the set.
func (c *CompatibleInstances) Len() int {
	return len(c.events)
}

// IsEmpty reports whether the set has no instances.
func (c *CompatibleInstances) IsEmpty() bool {
	return len(c.events) == 0
}

// Get returns the instance at the given position.
func (c *CompatibleInstances) Get(index int) (EventInstance, bool) {
	if index < 0 || index >= len(c.events) {
		return EventInstance{}, false
	}
	return c.events[index], true
}

// PushFront prepends an instance when it does not overlap the current
// first member.
func (c *CompatibleInstances) PushFront(instance EventInstance) bool {
	if len(c.events) > 0 && c.events[0].StartTime.Before(instance.EndTime) {
		return false
	}
	c.events = append([]EventInstance{instance}, c.events...)
	return true
}

// PushBack appends an instance when it does not overlap the current last
// member.
func (c *CompatibleInstances) PushBack(instance EventInstance) bool {
	if len(c.events) > 0 && c.events[len(c.events)-1].EndTime.After(instance.StartTime) {
		return false
	}
	c.events = append(c.events, instance)
	return true
}

// Extend appends all members of other that fit after the current tail.
func (c *CompatibleInstances) Extend(other *CompatibleInstances) {
	for _, instance := range other.events {
		c.PushBack(instance)
	}
}

// RemoveAllBefore truncates the set to instances at or after the given
// instant, clipping a straddling instance.
func (c *CompatibleInstances) RemoveAllBefore(at time.Time) {
	for len(c.events) > 0 {
		first := &c.events[0]
		if !first.StartTime.Before(at) {
			return
		}
		if !first.EndTime.After(at) {
			c.events = c.events[1:]
		} else {
			first.StartTime = at
			return
		}
	}
}

// RemoveAllAfter truncates the set to instances at or before the given
// instant, clipping a straddling instance.
func (c *CompatibleInstances) RemoveAllAfter(at time.Time) {
	for len(c.events) > 0 {
		last := &c.events[len(c.events)-1]
		if !last.EndTime.After(at) {
			return
		}
		if !last.StartTime.Before(at) {
			c.events = c.events[:len(c.events)-1]
		} else {
			last.EndTime = at
			return
		}
	}
}

// RemoveInstances subtracts every overlapping member of busy from every
// member of the set. The skip hint avoids rescanning busy members that
// are already past.
func (c *CompatibleInstances) RemoveInstances(busy *CompatibleInstances, skip int) {
	var remaining []EventInstance
	for _, free := range c.events {
		remaining = append(remaining, removeInstancesFrom(free, busy, skip).events...)
	}
	c.events = remaining
}

func removeInstancesFrom(free EventInstance, busy *CompatibleInstances, skip int) *CompatibleInstances {
	result := NewCompatibleInstances(nil)

	conflict := false
	for pos := skip; pos < len(busy.events); pos++ {
		instance := busy.events[pos]
		if !instance.StartTime.Before(free.EndTime) {
			break
		}
		var pieces *CompatibleInstances
		switch res := Subtract(free, instance); res.Kind {
		case SubtractOverlapEnd:
			conflict = true
			pieces = res.Remainder
		case SubtractOverlapBeginning:
			conflict = true
			res.Remainder.RemoveInstances(busy, pos+1)
			pieces = res.Remainder
		case SubtractSplit:
			conflict = true
			head, _ := res.Remainder.Get(0)
			tail, _ := res.Remainder.Get(1)
			pieces = NewCompatibleInstances([]EventInstance{tail})
			pieces.RemoveInstances(busy, pos+1)
			pieces.PushFront(head)
		case SubtractEmpty:
			conflict = true
		case SubtractNoOverlap:
			conflict = false
		}
		if pieces != nil {
			result.Extend(pieces)
		}
	}
	if !conflict {
		result.PushBack(free)
	}

	return result
}

// FreeBusy holds a user's merged free and busy interval sets.
type FreeBusy struct {
	Free *CompatibleInstances
	Busy *CompatibleInstances
}

// SeparateFreeBusy partitions a flat instance list by its busy flag.
func SeparateFreeBusy(instances []EventInstance) (free, busy []EventInstance) {
	for _, instance := range instances {
		if instance.Busy {
			busy = append(busy, instance)
		} else {
			free = append(free, instance)
		}
	}
	return free, busy
}

// GetFreeBusy merges each side of a flat instance list and removes the
// busy intervals from the free intervals.
func GetFreeBusy(instances []EventInstance) FreeBusy {
	freeList, busyList := SeparateFreeBusy(instances)

	free := NewCompatibleInstances(freeList)
	busy := NewCompatibleInstances(busyList)
	free.RemoveInstances(busy, 0)

	return FreeBusy{Free: free, Busy: busy}
}
