package api

import "sync"

// registry maps opaque integer handles to Go objects. A handle packs a slot
// index in the low 32 bits and that slot's generation in the high 32 bits;
// the generation bumps on every release, so a stale or fabricated handle
// fails the check instead of reaching a recycled object.
type registry[T any] struct {
	mu    sync.Mutex
	slots []slot[T]
	free  []uint32
}

type slot[T any] struct {
	gen   uint32
	value T
	live  bool
}

// generations start at 1 so no valid handle is ever zero.
const firstGeneration = 1

func packHandle(index, gen uint32) uint64 {
	return uint64(gen)<<32 | uint64(index)
}

func unpackHandle(h uint64) (index, gen uint32) {
	return uint32(h), uint32(h >> 32)
}

func (r *registry[T]) put(value T) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var index uint32
	if n := len(r.free); n > 0 {
		index = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		r.slots = append(r.slots, slot[T]{gen: firstGeneration})
		index = uint32(len(r.slots) - 1)
	}
	r.slots[index].value = value
	r.slots[index].live = true
	return packHandle(index, r.slots[index].gen)
}

// get resolves a handle, reporting false for stale, released or fabricated
// ones.
func (r *registry[T]) get(h uint64) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	index, gen := unpackHandle(h)
	if int(index) >= len(r.slots) {
		var zero T
		return zero, false
	}
	s := &r.slots[index]
	if !s.live || s.gen != gen {
		var zero T
		return zero, false
	}
	return s.value, true
}

// release invalidates a handle and returns its object for teardown.
func (r *registry[T]) release(h uint64) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	index, gen := unpackHandle(h)
	if int(index) >= len(r.slots) {
		var zero T
		return zero, false
	}
	s := &r.slots[index]
	if !s.live || s.gen != gen {
		var zero T
		return zero, false
	}

	value := s.value
	var zero T
	s.value = zero
	s.live = false
	s.gen++
	r.free = append(r.free, index)
	return value, true
}
