package learner

import (
	"sync"
	"testing"

	"github.com/mitchelldurbincs/hanamikoji-zero/internal/game/core"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestCountersAdd(t *testing.T) {
	c := NewCounters()
	snap := c.Add(core.PositionFirst, 32, model.Diagnostics{Loss: 0.5, GradNorm: 2, Episodes: 1, MeanEpisodeReturn: -1})
	assert.Equal(t, int64(32), snap.Frames)
	assert.Equal(t, [core.NumPositions]int64{32, 0}, snap.PositionFrames)
	assert.Equal(t, 0.5, snap.Stats["loss_first"])
	assert.Equal(t, -1.0, snap.Stats["mean_episode_return_first"])

	snap = c.Add(core.PositionSecond, 16, model.Diagnostics{Loss: 0.25})
	assert.Equal(t, int64(48), snap.Frames)
	assert.Equal(t, [core.NumPositions]int64{32, 16}, snap.PositionFrames)
	assert.Equal(t, 0.25, snap.Stats["loss_second"])
	_, ok := snap.Stats["mean_episode_return_second"]
	assert.False(t, ok, "no episode ended in the batch")

	snap.Stats["loss_first"] = 99
	assert.Equal(t, 0.5, c.Snapshot().Stats["loss_first"], "snapshots are copies")
}

func TestCountersRestore(t *testing.T) {
	c := NewCounters()
	c.Restore(Snapshot{Frames: 100, PositionFrames: [core.NumPositions]int64{60, 40}})
	assert.Equal(t, int64(100), c.Frames())

	snap := c.Add(core.PositionFirst, 4, model.Diagnostics{Loss: 1})
	assert.Equal(t, int64(104), snap.Frames)
	assert.Equal(t, int64(64), snap.PositionFrames[core.PositionFirst])
}

func TestCountersConcurrentAdd(t *testing.T) {
	c := NewCounters()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(pos core.RoundPosition) {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.Add(pos, 2, model.Diagnostics{})
			}
		}(core.Positions[i%core.NumPositions])
	}
	wg.Wait()

	snap := c.Snapshot()
	assert.Equal(t, int64(16000), snap.Frames)
	assert.Equal(t, snap.Frames, snap.PositionFrames[0]+snap.PositionFrames[1])
}
