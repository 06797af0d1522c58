package experience

import (
	"errors"
	"fmt"

	"github.com/mitchelldurbincs/hanamikoji-zero/internal/game/core"
	"github.com/rs/zerolog"
)

// Buffers is the experience storage of one device: a pool, queue pair,
// assembler and optional ledger per round position.
type Buffers struct {
	Device  string
	Pools   [core.NumPositions]*Pool
	Ledgers [core.NumPositions]*Ledger
	Queues  *Queues

	assemblers [core.NumPositions]*Assembler
}

// NewBuffers allocates the pools of one device and seeds its free queues.
// Each position gets a single assembler of batchSize slots that all learner
// threads of the device share. stopRoom is the number of actors that may
// later be sent a stop sentinel.
func NewBuffers(device string, layout Layout, numSlots, batchSize, stopRoom int, withLedger bool, logger zerolog.Logger) (*Buffers, error) {
	if numSlots <= 0 {
		return nil, fmt.Errorf("%w: %d slots", ErrInvalidLayout, numSlots)
	}
	if batchSize <= 0 || batchSize > numSlots {
		return nil, fmt.Errorf("%w: batch of %d from %d slots", ErrInvalidLayout, batchSize, numSlots)
	}
	b := &Buffers{Device: device, Queues: NewQueues(numSlots, stopRoom)}
	for _, pos := range core.Positions {
		pool, err := NewPool(layout, numSlots)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("allocate %s pool on %s: %w", pos, device, err)
		}
		b.Pools[pos] = pool
		if withLedger {
			b.Ledgers[pos] = NewLedger(numSlots, logger.With().Str("device", device).Str("position", pos.String()).Logger())
		}
		b.assemblers[pos] = NewAssembler(pos, pool, b.Queues, batchSize, b.Ledgers[pos])
	}
	b.Queues.Seed(numSlots)
	return b, nil
}

// Assembler returns the shared batch assembler over pos.
func (b *Buffers) Assembler(pos core.RoundPosition) *Assembler {
	return b.assemblers[pos]
}

// Bytes is the storage held by both pools.
func (b *Buffers) Bytes() int {
	n := 0
	for _, p := range b.Pools {
		if p != nil {
			n += p.Bytes()
		}
	}
	return n
}

// Violations sums the ledger violations of both positions.
func (b *Buffers) Violations() int64 {
	var n int64
	for _, l := range b.Ledgers {
		n += l.Violations()
	}
	return n
}

func (b *Buffers) Close() error {
	var errs []error
	for _, p := range b.Pools {
		if p != nil {
			errs = append(errs, p.Close())
		}
	}
	return errors.Join(errs...)
}
