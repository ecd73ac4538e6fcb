package descriptors

import (
	"fmt"

	"github.com/spaghettifunk/talos/engine/core"
)

/**
 * @brief Fixed-capacity handle storage whose slots hold a live handle only
 * while they are inside a currently allocated range. Slots are constructed at
 * set creation and destructed at set free or pool teardown; everything in
 * between is reached through a valid offset table, never by raw index.
 */
type storage[T any] struct {
	slots []T
	live  []bool
}

func newStorage[T any](capacity uint32) *storage[T] {
	return &storage[T]{
		slots: make([]T, capacity),
		live:  make([]bool, capacity),
	}
}

// construct marks a freshly allocated range live, with every slot empty and
// ready for a write. Constructing over a live slot is a bookkeeping bug in
// the pool, not a caller error.
func (s *storage[T]) construct(offset, count uint32) {
	if uint64(offset)+uint64(count) > uint64(len(s.slots)) {
		core.LogFatal("descriptor storage construct of [%d,%d) outside capacity %d", offset, offset+count, len(s.slots))
	}
	var zero T
	for i := offset; i < offset+count; i++ {
		if s.live[i] {
			core.LogFatal("descriptor storage slot %d constructed twice", i)
		}
		s.slots[i] = zero
		s.live[i] = true
	}
}

// destroy drops the stored handles of a range and marks it dead again.
func (s *storage[T]) destroy(offset, count uint32) {
	if uint64(offset)+uint64(count) > uint64(len(s.slots)) {
		core.LogFatal("descriptor storage destroy of [%d,%d) outside capacity %d", offset, offset+count, len(s.slots))
	}
	var zero T
	for i := offset; i < offset+count; i++ {
		if !s.live[i] {
			core.LogFatal("descriptor storage slot %d destroyed twice", i)
		}
		s.slots[i] = zero
		s.live[i] = false
	}
}

func (s *storage[T]) set(offset uint32, value T) error {
	if offset >= uint32(len(s.slots)) || !s.live[offset] {
		return fmt.Errorf("write to descriptor storage slot %d with no live handle: %w", offset, core.ErrInvalidOperation)
	}
	s.slots[offset] = value
	return nil
}

func (s *storage[T]) get(offset uint32) (T, error) {
	var zero T
	if offset >= uint32(len(s.slots)) || !s.live[offset] {
		return zero, fmt.Errorf("read of descriptor storage slot %d with no live handle: %w", offset, core.ErrInvalidOperation)
	}
	return s.slots[offset], nil
}

func (s *storage[T]) isLive(offset uint32) bool {
	return offset < uint32(len(s.slots)) && s.live[offset]
}
