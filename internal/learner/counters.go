package learner

import (
	"maps"
	"sync"

	"github.com/mitchelldurbincs/hanamikoji-zero/internal/game/core"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/model"
)

// Snapshot is a consistent reading of the training counters.
type Snapshot struct {
	Frames         int64
	PositionFrames [core.NumPositions]int64
	Stats          map[string]float64
}

// Counters holds the global and per-position frame counts and the latest
// diagnostics. All access goes through update-and-read methods.
type Counters struct {
	mu        sync.Mutex
	frames    int64
	posFrames [core.NumPositions]int64
	stats     map[string]float64
}

func NewCounters() *Counters {
	return &Counters{stats: make(map[string]float64)}
}

// Add credits frames learned by pos along with the step's diagnostics and
// returns the counters after the update.
func (c *Counters) Add(pos core.RoundPosition, frames int64, d model.Diagnostics) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames += frames
	c.posFrames[pos] += frames
	c.stats["loss_"+pos.String()] = d.Loss
	c.stats["grad_norm_"+pos.String()] = d.GradNorm
	if d.Episodes > 0 {
		c.stats["mean_episode_return_"+pos.String()] = d.MeanEpisodeReturn
	}
	return c.snapshotLocked()
}

// Frames returns the global frame count.
func (c *Counters) Frames() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

func (c *Counters) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Restore replaces every counter, used when resuming from a checkpoint.
func (c *Counters) Restore(s Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = s.Frames
	c.posFrames = s.PositionFrames
	c.stats = maps.Clone(s.Stats)
	if c.stats == nil {
		c.stats = make(map[string]float64)
	}
}

func (c *Counters) snapshotLocked() Snapshot {
	return Snapshot{Frames: c.frames, PositionFrames: c.posFrames, Stats: maps.Clone(c.stats)}
}
