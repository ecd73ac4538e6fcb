package descriptors

import (
	"fmt"

	"github.com/spaghettifunk/talos/engine/core"
)

/** @brief Sentinel for "no offset allocated here". Never a valid offset. */
const InvalidOffset = ^uint32(0)

type allocatorMode uint8

const (
	// Bump allocation: O(1), no bookkeeping, space reclaimed only by
	// resetting the whole allocator.
	allocatorModeLinear allocatorMode = iota
	// Free-list allocation: individual ranges can be returned and reused.
	allocatorModeGeneral
)

// A contiguous range of descriptor slots, [Offset, Offset+Count).
type span struct {
	offset uint32
	count  uint32
}

/**
 * @brief Hands out exclusive offset ranges from a fixed capacity for one
 * descriptor channel. The mode is chosen at construction and never changes.
 */
type addressAllocator struct {
	mode     allocatorMode
	capacity uint32
	// Total slots currently handed out.
	allocated uint32
	// Linear mode: next offset to hand out.
	cursor uint32
	// General mode: free spans sorted by offset, always coalesced.
	free []span
}

func newAddressAllocator(capacity uint32, allowFree bool) *addressAllocator {
	a := &addressAllocator{
		mode:     allocatorModeLinear,
		capacity: capacity,
	}
	if allowFree {
		a.mode = allocatorModeGeneral
		if capacity > 0 {
			a.free = []span{{offset: 0, count: capacity}}
		}
	}
	return a
}

/**
 * @brief Allocate returns the base offset of a contiguous range of count
 * slots, or InvalidOffset with core.ErrCapacityExhausted. A failed call
 * leaves the allocator untouched. count of zero succeeds without state
 * changes.
 */
func (a *addressAllocator) Allocate(count uint32) (uint32, error) {
	if count == 0 {
		return 0, nil
	}

	switch a.mode {
	case allocatorModeLinear:
		if count > a.capacity-a.cursor {
			return InvalidOffset, fmt.Errorf("linear allocator cannot fit %d slots (%d of %d used): %w", count, a.cursor, a.capacity, core.ErrCapacityExhausted)
		}
		offset := a.cursor
		a.cursor += count
		a.allocated += count
		return offset, nil
	case allocatorModeGeneral:
		// First-fit over the sorted free list.
		for i := range a.free {
			if a.free[i].count < count {
				continue
			}
			offset := a.free[i].offset
			a.free[i].offset += count
			a.free[i].count -= count
			if a.free[i].count == 0 {
				a.free = append(a.free[:i], a.free[i+1:]...)
			}
			a.allocated += count
			return offset, nil
		}
		return InvalidOffset, fmt.Errorf("no contiguous run of %d free slots (%d of %d allocated): %w", count, a.allocated, a.capacity, core.ErrCapacityExhausted)
	}
	return InvalidOffset, core.ErrUnknown
}

/**
 * @brief Free returns a previously allocated range to the free list,
 * coalescing with adjacent free spans. Only legal in general mode; a linear
 * allocator has no bookkeeping to return ranges to.
 */
func (a *addressAllocator) Free(offset, count uint32) error {
	if count == 0 {
		return nil
	}
	if a.mode != allocatorModeGeneral {
		err := fmt.Errorf("free on a linear descriptor allocator: %w", core.ErrInvalidOperation)
		core.LogError(err.Error())
		return err
	}
	if offset >= a.capacity || count > a.capacity-offset {
		err := fmt.Errorf("free of range [%d,%d) outside capacity %d: %w", offset, offset+count, a.capacity, core.ErrInvalidOperation)
		core.LogError(err.Error())
		return err
	}

	// Insertion point: first free span at or past the freed range.
	i := 0
	for i < len(a.free) && a.free[i].offset < offset {
		i++
	}
	// Overlap with a neighbour means the range (or part of it) was never
	// allocated, or was freed twice.
	if i > 0 && a.free[i-1].offset+a.free[i-1].count > offset {
		err := fmt.Errorf("double free of descriptor range [%d,%d): %w", offset, offset+count, core.ErrInvalidOperation)
		core.LogError(err.Error())
		return err
	}
	if i < len(a.free) && offset+count > a.free[i].offset {
		err := fmt.Errorf("double free of descriptor range [%d,%d): %w", offset, offset+count, core.ErrInvalidOperation)
		core.LogError(err.Error())
		return err
	}

	freed := span{offset: offset, count: count}
	// Coalesce with the previous span.
	if i > 0 && a.free[i-1].offset+a.free[i-1].count == offset {
		freed.offset = a.free[i-1].offset
		freed.count += a.free[i-1].count
		i--
		a.free = append(a.free[:i], a.free[i+1:]...)
	}
	// Coalesce with the next span.
	if i < len(a.free) && freed.offset+freed.count == a.free[i].offset {
		freed.count += a.free[i].count
		a.free = append(a.free[:i], a.free[i+1:]...)
	}

	a.free = append(a.free, span{})
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = freed
	a.allocated -= count
	return nil
}

// rollback undoes an allocation made earlier in the same pool operation.
// In general mode it is a plain free. In linear mode it rewinds the cursor,
// which is only correct when ranges are rolled back newest-first, the order
// the pool uses.
func (a *addressAllocator) rollback(offset, count uint32) {
	if count == 0 {
		return
	}
	switch a.mode {
	case allocatorModeLinear:
		if offset+count != a.cursor {
			core.LogFatal("linear allocator rollback of [%d,%d) does not match cursor %d", offset, offset+count, a.cursor)
		}
		a.cursor = offset
		a.allocated -= count
	case allocatorModeGeneral:
		if err := a.Free(offset, count); err != nil {
			core.LogFatal("rollback failed: %s", err.Error())
		}
	}
}

func (a *addressAllocator) Allocated() uint32 {
	return a.allocated
}

func (a *addressAllocator) Capacity() uint32 {
	return a.capacity
}
