package experience

import "github.com/mitchelldurbincs/hanamikoji-zero/internal/game/core"

// Record is one decision as stored by the accumulator. Feature slices are
// owned by the record once appended.
type Record struct {
	Role    core.Role
	State   []float32
	Move    []float32
	History []float32

	Done          bool
	EpisodeReturn float32
	Target        float32
	// Resolved is set once Target holds a real return.
	Resolved bool
}
