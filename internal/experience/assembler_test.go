package experience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mitchelldurbincs/hanamikoji-zero/internal/game/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pipeline struct {
	layout    Layout
	pool      *Pool
	queues    *Queues
	ledger    *Ledger
	assembler *Assembler
}

func newPipeline(t *testing.T, layout Layout, numSlots, batchSize, stopRoom int) *pipeline {
	t.Helper()
	pool, err := NewPool(layout, numSlots)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	queues := NewQueues(numSlots, stopRoom)
	queues.Seed(numSlots)
	ledger := NewLedger(numSlots, zerolog.Nop())
	return &pipeline{
		layout:    layout,
		pool:      pool,
		queues:    queues,
		ledger:    ledger,
		assembler: NewAssembler(core.PositionFirst, pool, queues, batchSize, ledger),
	}
}

// produce plays the actor side of the protocol for one segment.
func (p *pipeline) produce(ctx context.Context, marker float32) error {
	slot, err := p.queues.Free[core.PositionFirst].Pop(ctx)
	if err != nil {
		return err
	}
	if !p.ledger.Transition(slot, OwnerFree, OwnerActor) {
		return errors.New("slot popped from free queue was not free")
	}
	records := make([]Record, p.layout.T)
	for i := range records {
		records[i] = testRecord(p.layout, core.RoleFirst, marker)
		records[i].Target = marker
	}
	if err := p.pool.WriteSegment(slot, records); err != nil {
		return err
	}
	for _, v := range p.pool.View(slot, FieldState) {
		if v != marker {
			return errors.New("slot written concurrently")
		}
	}
	p.ledger.Transition(slot, OwnerActor, OwnerFull)
	return p.queues.Full[core.PositionFirst].Push(ctx, slot)
}

func TestAssembler_Next(t *testing.T) {
	p := newPipeline(t, smallLayout(3), 4, 2, 0)
	ctx := context.Background()

	require.NoError(t, p.produce(ctx, 1))
	require.NoError(t, p.produce(ctx, 2))

	batch, err := p.assembler.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.PositionFirst, batch.Position)
	assert.Equal(t, 6, batch.Rows())
	assert.Equal(t, []float32{1, 1, 1, 2, 2, 2}, batch.Target)

	state, move, history := batch.Row(4)
	assert.Equal(t, []float32{2, 2, 2}, state)
	assert.Len(t, move, 2)
	assert.Len(t, history, 4)

	assert.Equal(t, 4, p.queues.Free[core.PositionFirst].Len(), "slots are recycled immediately")
	assert.Zero(t, p.ledger.Violations())
}

func TestAssembler_CancelledNextKeepsSlots(t *testing.T) {
	p := newPipeline(t, smallLayout(2), 2, 2, 0)
	require.NoError(t, p.produce(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.assembler.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, p.queues.Full[core.PositionFirst].Len())
	assert.Equal(t, OwnerFull, p.ledger.Owner(0))
}

func TestBatch_EpisodeReturns(t *testing.T) {
	b := NewBatch(core.PositionSecond, smallLayout(2), 2)
	b.Done[1], b.EpisodeReturn[1] = true, 1
	b.Done[3], b.EpisodeReturn[3] = true, -1
	assert.Equal(t, []float32{1, -1}, b.EpisodeReturns())
	assert.Equal(t, int64(4), b.Frames())
}

// Three producers share two slots: two segments are accepted, the third
// blocks until the assembler recycles a slot.
func TestBackpressure_ThreeProducersTwoSlots(t *testing.T) {
	const T = 4
	p := newPipeline(t, smallLayout(T), 2, 2, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var accepted atomic.Int32
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func(marker float32) {
			err := p.produce(ctx, marker)
			if err == nil {
				accepted.Add(1)
			}
			errs <- err
		}(float32(i + 1))
	}

	require.Eventually(t, func() bool { return accepted.Load() == 2 }, time.Second, time.Millisecond)
	assert.Never(t, func() bool { return accepted.Load() > 2 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.Zero(t, p.queues.Free[core.PositionFirst].Len())

	batch, err := p.assembler.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2*T, batch.Rows())

	require.Eventually(t, func() bool { return accepted.Load() == 3 }, time.Second, time.Millisecond)
	for i := 0; i < 3; i++ {
		require.NoError(t, <-errs)
	}
	assert.Equal(t, 1, p.queues.Full[core.PositionFirst].Len())
	assert.Zero(t, p.ledger.Violations())
}

func TestSlotOwnership_Stress(t *testing.T) {
	const (
		writers = 6
		batches = 200
	)
	layout := smallLayout(3)
	p := newPipeline(t, layout, 3, 2, writers)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	writerErrs := make(chan error, writers)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; ; i++ {
				err := p.produce(ctx, float32(id*100000+i))
				if errors.Is(err, ErrStopped) {
					return
				}
				if err != nil {
					writerErrs <- err
					return
				}
			}
		}(w)
	}

	for n := 0; n < batches; n++ {
		batch, err := p.assembler.Next(ctx)
		require.NoError(t, err)
		for b := 0; b < batch.B; b++ {
			seg := batch.State[b*layout.T*layout.StateWidth : (b+1)*layout.T*layout.StateWidth]
			for _, v := range seg {
				require.Equal(t, seg[0], v, "segment %d of batch %d is torn", b, n)
			}
		}
	}

	// full queues have room for every slot, so writers only ever block on
	// the free queue and each one will pop a sentinel
	p.queues.Stop(writers)
	wg.Wait()

	close(writerErrs)
	for err := range writerErrs {
		t.Fatalf("writer failed: %v", err)
	}
	assert.Zero(t, p.ledger.Violations())
}
