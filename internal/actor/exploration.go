package actor

import (
	"math"
	"sync/atomic"
)

// Exploration is the epsilon of the epsilon-greedy move choice, shared by
// every actor and updatable while they run.
type Exploration struct {
	bits atomic.Uint64
}

func NewExploration(rate float64) *Exploration {
	e := &Exploration{}
	e.Store(rate)
	return e
}

// Load returns the current rate. A nil *Exploration means no exploration.
func (e *Exploration) Load() float64 {
	if e == nil {
		return 0
	}
	return math.Float64frombits(e.bits.Load())
}

// Store sets the rate, clamped to [0, 1].
func (e *Exploration) Store(rate float64) {
	rate = math.Max(0, math.Min(1, rate))
	e.bits.Store(math.Float64bits(rate))
}
