// Package ring provides a fixed-capacity circular buffer.
//
// A [Ring] keeps its elements in an arena of fixed slots addressed by a
// start offset and a length. Enqueueing into a full ring evicts the oldest
// element in the same call. Index 0 is always the oldest element.
//
// Ring is not safe for concurrent use; callers guard it with their own locks.
package ring

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCapacity indicates a negative capacity.
	ErrInvalidCapacity = errors.New("ring: capacity must not be negative")

	// ErrOutOfRange indicates an index outside [0, Len()).
	ErrOutOfRange = errors.New("ring: index out of range")

	// ErrEmpty indicates a removal from an empty ring.
	ErrEmpty = errors.New("ring: empty")
)

type Ring[T any] struct {
	slots []T
	start int
	count int
}

func New[T any](capacity int) (*Ring[T], error) {
	if capacity < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	return &Ring[T]{slots: make([]T, capacity)}, nil
}

func (r *Ring[T]) Len() int   { return r.count }
func (r *Ring[T]) Cap() int   { return len(r.slots) }
func (r *Ring[T]) Full() bool { return r.count == len(r.slots) }

func (r *Ring[T]) slot(i int) int {
	return (r.start + i) % len(r.slots)
}

// Enqueue appends v as the newest element. When the ring is already full the
// oldest element is evicted and returned with evicted set to true. A ring of
// capacity 0 holds nothing, so v itself is reported as evicted.
func (r *Ring[T]) Enqueue(v T) (old T, evicted bool) {
	if len(r.slots) == 0 {
		return v, true
	}
	if r.count == len(r.slots) {
		old = r.slots[r.start]
		r.slots[r.start] = v
		r.start = r.slot(1)
		return old, true
	}
	r.slots[r.slot(r.count)] = v
	r.count++
	return old, false
}

// Dequeue removes and returns the oldest element.
func (r *Ring[T]) Dequeue() (T, error) {
	var zero T
	if r.count == 0 {
		return zero, ErrEmpty
	}
	v := r.slots[r.start]
	r.slots[r.start] = zero
	r.start = r.slot(1)
	r.count--
	return v, nil
}

// At returns the element at index i, where 0 is the oldest.
func (r *Ring[T]) At(i int) (T, error) {
	if i < 0 || i >= r.count {
		var zero T
		return zero, fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, i, r.count)
	}
	return r.slots[r.slot(i)], nil
}

// Oldest returns the oldest element, or false when the ring is empty.
func (r *Ring[T]) Oldest() (T, bool) {
	if r.count == 0 {
		var zero T
		return zero, false
	}
	return r.slots[r.start], true
}

// Newest returns the most recently enqueued element, or false when empty.
func (r *Ring[T]) Newest() (T, bool) {
	if r.count == 0 {
		var zero T
		return zero, false
	}
	return r.slots[r.slot(r.count-1)], true
}

// Slice copies the elements in [lo, hi] (inclusive) in oldest-to-newest order.
func (r *Ring[T]) Slice(lo, hi int) ([]T, error) {
	if lo < 0 || hi >= r.count || lo > hi {
		return nil, fmt.Errorf("%w: [%d, %d] not within [0, %d)", ErrOutOfRange, lo, hi, r.count)
	}
	out := make([]T, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		out = append(out, r.slots[r.slot(i)])
	}
	return out, nil
}

// Resize changes the capacity, keeping the most recent min(capacity, Len())
// elements in their original order.
func (r *Ring[T]) Resize(capacity int) error {
	if capacity < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	keep := r.count
	if keep > capacity {
		keep = capacity
	}
	slots := make([]T, capacity)
	skip := r.count - keep
	for i := 0; i < keep; i++ {
		slots[i] = r.slots[r.slot(skip+i)]
	}
	r.slots = slots
	r.start = 0
	r.count = keep
	return nil
}

// Clear drops every element without changing the capacity.
func (r *Ring[T]) Clear() {
	var zero T
	for i := range r.slots {
		r.slots[i] = zero
	}
	r.start = 0
	r.count = 0
}
