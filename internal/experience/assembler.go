package experience

import (
	"context"
	"fmt"
	"sync"

	"github.com/mitchelldurbincs/hanamikoji-zero/internal/game/core"
)

// Batch stacks B segments into B x T rows. Feature fields are flattened
// row-major with the row index b*T + t.
type Batch struct {
	Position core.RoundPosition
	B, T     int

	Done          []bool
	EpisodeReturn []float32
	Target        []float32
	State         []float32
	Move          []float32
	History       []float32

	layout Layout
}

// NewBatch allocates an empty batch of b segments.
func NewBatch(pos core.RoundPosition, layout Layout, b int) *Batch {
	rows := b * layout.T
	return &Batch{
		Position:      pos,
		B:             b,
		T:             layout.T,
		Done:          make([]bool, rows),
		EpisodeReturn: make([]float32, rows),
		Target:        make([]float32, rows),
		State:         make([]float32, rows*layout.StateWidth),
		Move:          make([]float32, rows*layout.MoveWidth),
		History:       make([]float32, rows*layout.HistoryWidth),
		layout:        layout,
	}
}

// Rows returns B*T.
func (b *Batch) Rows() int { return b.B * b.T }

// Row returns the feature vectors of row i as views into the batch.
func (b *Batch) Row(i int) (state, move, history []float32) {
	sw, mw, hw := b.layout.StateWidth, b.layout.MoveWidth, b.layout.HistoryWidth
	return b.State[i*sw : (i+1)*sw], b.Move[i*mw : (i+1)*mw], b.History[i*hw : (i+1)*hw]
}

// Frames returns the number of decisions in the batch.
func (b *Batch) Frames() int64 { return int64(b.Rows()) }

// EpisodeReturns returns the episode returns of the rows marked done.
func (b *Batch) EpisodeReturns() []float32 {
	var out []float32
	for i, d := range b.Done {
		if d {
			out = append(out, b.EpisodeReturn[i])
		}
	}
	return out
}

// Assembler turns full slots of one (device, round position) into batches.
// Several learner goroutines may share an assembler.
type Assembler struct {
	mu        sync.Mutex
	pos       core.RoundPosition
	pool      *Pool
	free      *SlotQueue
	full      *SlotQueue
	batchSize int
	ledger    *Ledger
}

// NewAssembler wires an assembler to pos's pool and queues. ledger may be nil.
func NewAssembler(pos core.RoundPosition, pool *Pool, queues *Queues, batchSize int, ledger *Ledger) *Assembler {
	return &Assembler{
		pos:       pos,
		pool:      pool,
		free:      queues.Free[pos],
		full:      queues.Full[pos],
		batchSize: batchSize,
		ledger:    ledger,
	}
}

func (a *Assembler) Position() core.RoundPosition { return a.pos }

// Next blocks until batch_size full slots are available, copies them into a
// new Batch and returns the slots to the free queue.
func (a *Assembler) Next(ctx context.Context) (*Batch, error) {
	indices, err := a.take(ctx)
	if err != nil {
		return nil, err
	}

	layout := a.pool.Layout()
	batch := NewBatch(a.pos, layout, len(indices))
	for b, slot := range indices {
		rows := b * layout.T
		for t, v := range a.pool.View(slot, FieldDone) {
			batch.Done[rows+t] = v != 0
		}
		copy(batch.EpisodeReturn[rows:], a.pool.View(slot, FieldEpisodeReturn))
		copy(batch.Target[rows:], a.pool.View(slot, FieldTarget))
		copy(batch.State[rows*layout.StateWidth:], a.pool.View(slot, FieldState))
		copy(batch.Move[rows*layout.MoveWidth:], a.pool.View(slot, FieldMove))
		copy(batch.History[rows*layout.HistoryWidth:], a.pool.View(slot, FieldHistory))
	}

	for _, slot := range indices {
		a.ledger.Transition(slot, OwnerAssembler, OwnerFree)
		if err := a.free.Push(ctx, slot); err != nil {
			return nil, fmt.Errorf("return slot %d: %w", slot, err)
		}
	}
	return batch, nil
}

func (a *Assembler) take(ctx context.Context) ([]int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	indices := make([]int, 0, a.batchSize)
	for len(indices) < a.batchSize {
		slot, err := a.full.Pop(ctx)
		if err != nil {
			// put back what was taken so the slots are not lost
			for _, s := range indices {
				a.ledger.Transition(s, OwnerAssembler, OwnerFull)
				a.full.TryPush(s)
			}
			return nil, err
		}
		a.ledger.Transition(slot, OwnerFull, OwnerAssembler)
		indices = append(indices, slot)
	}
	return indices, nil
}
