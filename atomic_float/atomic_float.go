package atomic_float

import (
	"math"
	"sync/atomic"
)

// AtomicFloat64 is a float64 accumulator shared by concurrent rollout workers without locking.
type AtomicFloat64 struct {
	bits atomic.Uint64
}

// NewAtomicFloat64 returns an accumulator holding @val.
func NewAtomicFloat64(val float64) *AtomicFloat64 {
	af := &AtomicFloat64{}
	af.bits.Store(math.Float64bits(val))
	return af
}

// AtomicRead returns the current value.
func (af *AtomicFloat64) AtomicRead() float64 {
	return math.Float64frombits(af.bits.Load())
}

// AtomicAdd adds @addend, retrying until no concurrent writer intervenes, and returns the new value.
func (af *AtomicFloat64) AtomicAdd(addend float64) float64 {
	for {
		old := af.bits.Load()
		newVal := math.Float64frombits(old) + addend
		if af.bits.CompareAndSwap(old, math.Float64bits(newVal)) {
			return newVal
		}
	}
}
