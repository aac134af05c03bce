package sequence

// Ring is a fixed-capacity buffer that retains the most recently pushed
// values. Once full, each push evicts the oldest value. Not safe for
// concurrent use; callers synchronize.
type Ring[T any] struct {
	items []T
	head  int
	size  int
}

func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{
		items: make([]T, capacity),
	}
}

// Push adds a value, evicting the oldest when the ring is full.
func (r *Ring[T]) Push(value T) {
	r.items[r.head] = value
	r.head = (r.head + 1) % len(r.items)
	if r.size < len(r.items) {
		r.size++
	}
}

// Snapshot returns the retained values newest-first as a fresh slice.
func (r *Ring[T]) Snapshot() []T {
	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		idx := (r.head - 1 - i + len(r.items)) % len(r.items)
		out[i] = r.items[idx]
	}
	return out
}

func (r *Ring[T]) Len() int {
	return r.size
}

func (r *Ring[T]) Cap() int {
	return len(r.items)
}

// Reset drops all retained values.
func (r *Ring[T]) Reset() {
	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.head = 0
	r.size = 0
}
