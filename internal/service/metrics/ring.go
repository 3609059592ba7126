package metrics

// ring is a fixed-capacity FIFO that overwrites its oldest element once full.
// It is not safe for concurrent use; the Aggregator guards it.
type ring[T any] struct {
	items []T
	start int
	size  int
}

func newRing[T any](capacity int) *ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &ring[T]{items: make([]T, capacity)}
}

func (r *ring[T]) push(item T) {
	capacity := len(r.items)
	if r.size < capacity {
		r.items[(r.start+r.size)%capacity] = item
		r.size++
		return
	}
	r.items[r.start] = item
	r.start = (r.start + 1) % capacity
}

func (r *ring[T]) len() int {
	return r.size
}

// filter returns, oldest first, the elements keep accepts
func (r *ring[T]) filter(keep func(T) bool) []T {
	out := make([]T, 0, r.size)
	for i := 0; i < r.size; i++ {
		item := r.items[(r.start+i)%len(r.items)]
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}
