package experience

import (
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Owner is the party holding a slot.
type Owner int32

const (
	OwnerFree Owner = iota
	OwnerActor
	OwnerFull
	OwnerAssembler
)

func (o Owner) String() string {
	switch o {
	case OwnerFree:
		return "free_queue"
	case OwnerActor:
		return "actor"
	case OwnerFull:
		return "full_queue"
	case OwnerAssembler:
		return "assembler"
	default:
		return fmt.Sprintf("owner(%d)", int32(o))
	}
}

// Ledger tracks the owner of every slot of one pool and counts transitions
// that start from the wrong owner. A nil *Ledger ignores all calls, so the
// bookkeeping costs nothing when disabled.
type Ledger struct {
	owners     []atomic.Int32
	violations atomic.Int64
	logger     zerolog.Logger
}

// NewLedger starts with every slot owned by the free queue.
func NewLedger(numSlots int, logger zerolog.Logger) *Ledger {
	return &Ledger{
		owners: make([]atomic.Int32, numSlots),
		logger: logger.With().Str("component", "slot_ledger").Logger(),
	}
}

// Transition moves slot from one owner to the next. It returns false and
// records a violation when slot was not held by from.
func (l *Ledger) Transition(slot int, from, to Owner) bool {
	if l == nil {
		return true
	}
	if l.owners[slot].CompareAndSwap(int32(from), int32(to)) {
		return true
	}
	l.violations.Add(1)
	l.logger.Error().
		Int("slot", slot).
		Str("expected", from.String()).
		Str("actual", Owner(l.owners[slot].Load()).String()).
		Str("next", to.String()).
		Msg("Slot ownership violation")
	return false
}

// Owner returns the current owner of slot.
func (l *Ledger) Owner(slot int) Owner {
	if l == nil {
		return OwnerFree
	}
	return Owner(l.owners[slot].Load())
}

// Violations returns the number of failed transitions.
func (l *Ledger) Violations() int64 {
	if l == nil {
		return 0
	}
	return l.violations.Load()
}
