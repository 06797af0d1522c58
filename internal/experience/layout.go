package experience

import (
	"fmt"

	"github.com/mitchelldurbincs/hanamikoji-zero/internal/game"
)

// Field names one per-step column of a segment.
type Field int

const (
	FieldDone Field = iota
	FieldEpisodeReturn
	FieldTarget
	FieldState
	FieldMove
	FieldHistory
	NumFields
)

var fieldNames = [NumFields]string{"done", "episode_return", "target", "state", "move", "history"}

func (f Field) String() string {
	if f < 0 || f >= NumFields {
		return fmt.Sprintf("field(%d)", int(f))
	}
	return fieldNames[f]
}

// Layout fixes the shape of every slot: T steps, each with one value per
// scalar field and the configured widths for the feature fields.
type Layout struct {
	T            int
	StateWidth   int
	MoveWidth    int
	HistoryWidth int
}

// NewLayout returns the layout for unroll length t using the game's feature sizes.
func NewLayout(t int) Layout {
	return Layout{
		T:            t,
		StateWidth:   game.StateFeatureSize,
		MoveWidth:    game.MoveFeatureSize,
		HistoryWidth: game.HistoryFeatureSize,
	}
}

// Width returns the number of float32 values field f holds per step.
func (l Layout) Width(f Field) int {
	switch f {
	case FieldState:
		return l.StateWidth
	case FieldMove:
		return l.MoveWidth
	case FieldHistory:
		return l.HistoryWidth
	default:
		return 1
	}
}

// StepWidth is the total number of float32 values per step.
func (l Layout) StepWidth() int {
	n := 0
	for f := Field(0); f < NumFields; f++ {
		n += l.Width(f)
	}
	return n
}

// Validate reports a layout that cannot back a pool.
func (l Layout) Validate() error {
	if l.T <= 0 {
		return fmt.Errorf("%w: unroll length %d", ErrInvalidLayout, l.T)
	}
	if l.StateWidth <= 0 || l.MoveWidth <= 0 || l.HistoryWidth <= 0 {
		return fmt.Errorf("%w: widths %d/%d/%d", ErrInvalidLayout, l.StateWidth, l.MoveWidth, l.HistoryWidth)
	}
	return nil
}
