package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func all(int) bool { return true }

func TestRing_DropsOldestOnOverflow(t *testing.T) {
	r := newRing[int](3)

	for i := 1; i <= 5; i++ {
		r.push(i)
	}

	assert.Equal(t, 3, r.len())
	assert.Equal(t, []int{3, 4, 5}, r.filter(all))
}

func TestRing_PartiallyFilled(t *testing.T) {
	r := newRing[int](4)
	r.push(1)
	r.push(2)

	assert.Equal(t, []int{1, 2}, r.filter(all))
	assert.Equal(t, []int{2}, r.filter(func(v int) bool { return v%2 == 0 }))
}

func TestRing_NonPositiveCapacity(t *testing.T) {
	r := newRing[int](0)
	r.push(1)
	r.push(2)

	assert.Equal(t, []int{2}, r.filter(all))
}
