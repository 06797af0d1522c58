package checkpoint

import (
	"errors"
	"time"

	"github.com/mitchelldurbincs/hanamikoji-zero/internal/game/core"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/model"
)

var (
	// ErrNotFound is returned by Load when no checkpoint has been written yet.
	ErrNotFound = errors.New("checkpoint not found")
	// ErrCorrupt is returned when a checkpoint cannot be decoded.
	ErrCorrupt = errors.New("checkpoint corrupt")
)

// Checkpoint is everything needed to resume training exactly.
type Checkpoint struct {
	Weights        [core.NumPositions]model.Params
	Optimizer      [core.NumPositions]model.OptimizerState
	Frames         int64
	PositionFrames [core.NumPositions]int64
	// Stats are the latest learner diagnostics.
	Stats map[string]float64
	// Flags are the run's configuration values, kept for reference.
	Flags   map[string]string
	SavedAt time.Time
}
