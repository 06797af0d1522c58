package experience

import (
	"context"

	"github.com/mitchelldurbincs/hanamikoji-zero/internal/game/core"
)

// StopSentinel is pushed onto a free queue to tell the popping actor to stop.
const StopSentinel = -1

// SlotQueue is a blocking FIFO of slot indices.
type SlotQueue struct {
	ch chan int
}

// NewSlotQueue creates a queue able to hold capacity indices without blocking.
func NewSlotQueue(capacity int) *SlotQueue {
	return &SlotQueue{ch: make(chan int, capacity)}
}

// Push appends idx, blocking while the queue is full. An index that fits is
// queued even when ctx is already done, so no slot is lost on shutdown.
func (q *SlotQueue) Push(ctx context.Context, idx int) error {
	if q.TryPush(idx) {
		return nil
	}
	select {
	case q.ch <- idx:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pop removes the oldest index, blocking while the queue is empty. A popped
// stop sentinel yields ErrStopped.
func (q *SlotQueue) Pop(ctx context.Context) (int, error) {
	select {
	case idx := <-q.ch:
		if idx < 0 {
			return idx, ErrStopped
		}
		return idx, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// TryPush appends idx if there is room.
func (q *SlotQueue) TryPush(idx int) bool {
	select {
	case q.ch <- idx:
		return true
	default:
		return false
	}
}

// Len returns the number of queued indices.
func (q *SlotQueue) Len() int { return len(q.ch) }

// Cap returns the queue capacity.
func (q *SlotQueue) Cap() int { return cap(q.ch) }

// Queues holds the free and full queues of one device, one pair per round
// position.
type Queues struct {
	Free [core.NumPositions]*SlotQueue
	Full [core.NumPositions]*SlotQueue
}

// NewQueues creates queues for numSlots slots per position. The free queues
// get stopRoom extra capacity so every actor can be sent a stop sentinel
// without blocking.
func NewQueues(numSlots, stopRoom int) *Queues {
	q := &Queues{}
	for _, pos := range core.Positions {
		q.Free[pos] = NewSlotQueue(numSlots + stopRoom)
		q.Full[pos] = NewSlotQueue(numSlots)
	}
	return q
}

// Seed pushes every slot index once onto each free queue. Call it once at
// startup before any actor runs.
func (q *Queues) Seed(numSlots int) {
	for _, pos := range core.Positions {
		for i := 0; i < numSlots; i++ {
			q.Free[pos].TryPush(i)
		}
	}
}

// Stop pushes n stop sentinels onto each free queue and returns how many
// could not be queued.
func (q *Queues) Stop(n int) int {
	dropped := 0
	for _, pos := range core.Positions {
		for i := 0; i < n; i++ {
			if !q.Free[pos].TryPush(StopSentinel) {
				dropped++
			}
		}
	}
	return dropped
}
