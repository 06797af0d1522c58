package experience

import (
	"context"
	"testing"
	"time"

	"github.com/mitchelldurbincs/hanamikoji-zero/internal/game/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotQueue_FIFO(t *testing.T) {
	ctx := context.Background()
	q := NewSlotQueue(3)
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Push(ctx, i))
	}
	assert.False(t, q.TryPush(9))
	for i := 0; i < 3; i++ {
		idx, err := q.Pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, idx)
	}
}

func TestSlotQueue_StopSentinel(t *testing.T) {
	q := NewSlotQueue(1)
	require.True(t, q.TryPush(StopSentinel))
	_, err := q.Pop(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}

func TestSlotQueue_PopHonoursContext(t *testing.T) {
	q := NewSlotQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.True(t, q.TryPush(0))
	err = q.Push(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSlotQueue_PushWithRoomIgnoresDoneContext(t *testing.T) {
	q := NewSlotQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, q.Push(ctx, 3))
	assert.Equal(t, 1, q.Len())
}

func TestQueues_SeedAndStop(t *testing.T) {
	q := NewQueues(4, 2)
	q.Seed(4)
	for _, pos := range core.Positions {
		assert.Equal(t, 4, q.Free[pos].Len())
		assert.Equal(t, 6, q.Free[pos].Cap())
		assert.Zero(t, q.Full[pos].Len())
	}

	assert.Zero(t, q.Stop(2))
	assert.Equal(t, core.NumPositions, q.Stop(1), "no room left for a third sentinel")

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		idx, err := q.Free[core.PositionFirst].Pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, idx)
	}
	_, err := q.Free[core.PositionFirst].Pop(ctx)
	assert.ErrorIs(t, err, ErrStopped)
}
