package core

import (
	"errors"
)

var (
	// ErrCapacityExhausted is returned when a descriptor allocator cannot
	// satisfy a request, either because the capacity is spent or because
	// the free list is too fragmented for a contiguous fit.
	ErrCapacityExhausted = errors.New("descriptor capacity exhausted")
	// ErrInvalidOperation marks programmer errors: freeing from a linear
	// pool, double-freeing a set, releasing a cache slot that was never
	// acquired. Continuing after one of these would corrupt pool state.
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrLayoutMismatch is returned when a layout references a descriptor
	// type the pool reserved zero capacity for.
	ErrLayoutMismatch = errors.New("layout references descriptor type with no reserved capacity")
	ErrUnknown        = errors.New("unknown")
)
