package model

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/mitchelldurbincs/hanamikoji-zero/internal/experience"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/game"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/game/core"
	"gonum.org/v1/gonum/mat"
)

// Policy picks a move for a decision point.
type Policy interface {
	Inference(pos core.RoundPosition, obs *game.Observation) (int, error)
}

// ValueModel is the learner-side contract: inference, one update step per
// batch and access to the weights and optimizer state of each position.
type ValueModel interface {
	Policy
	Update(pos core.RoundPosition, batch *experience.Batch) (Diagnostics, error)
	Weights(pos core.RoundPosition) Params
	SetWeights(pos core.RoundPosition, p Params) error
	OptimizerState(pos core.RoundPosition) OptimizerState
	SetOptimizerState(pos core.RoundPosition, s OptimizerState) error
}

// Diagnostics describes one update step.
type Diagnostics struct {
	Loss     float64
	GradNorm float64
	Version  uint64
	// MeanEpisodeReturn averages the returns of rows that ended an episode.
	MeanEpisodeReturn float64
	Episodes          int
}

// Config shapes a DMC model.
type Config struct {
	Hidden    []int
	Optimizer OptimizerConfig
	Seed      int64
}

type positionModel struct {
	mu     sync.RWMutex
	params Params
	opt    *RMSprop
}

// DMC is a Deep Monte-Carlo value model: one MLP and one RMSprop optimizer
// per round position, each regressing move values onto observed returns.
type DMC struct {
	cfg       Config
	positions [core.NumPositions]*positionModel
}

var _ ValueModel = (*DMC)(nil)

func NewDMC(cfg Config) *DMC {
	if len(cfg.Hidden) == 0 {
		cfg.Hidden = DefaultHidden
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	sizes := LayerSizes(cfg.Hidden)

	m := &DMC{cfg: cfg}
	for _, pos := range core.Positions {
		params := NewParams(sizes, rng)
		m.positions[pos] = &positionModel{params: params, opt: NewRMSprop(cfg.Optimizer, params)}
	}
	return m
}

func (m *DMC) position(pos core.RoundPosition) (*positionModel, error) {
	if !pos.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPosition, int(pos))
	}
	return m.positions[pos], nil
}

// Inference returns the arg-max move under the current weights of pos.
func (m *DMC) Inference(pos core.RoundPosition, obs *game.Observation) (int, error) {
	pm, err := m.position(pos)
	if err != nil {
		return 0, err
	}
	if len(obs.Moves) == 0 {
		return 0, core.ErrIllegalMove
	}
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return Argmax(Values(&pm.params, obs)), nil
}

// Update takes one optimizer step on the mean squared error between the
// predicted values and the batch return targets.
func (m *DMC) Update(pos core.RoundPosition, batch *experience.Batch) (Diagnostics, error) {
	pm, err := m.position(pos)
	if err != nil {
		return Diagnostics{}, err
	}
	rows := batch.Rows()
	if rows == 0 {
		return Diagnostics{}, fmt.Errorf("empty batch for position %s", pos)
	}

	x := batchInputs(batch)
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pred, acts := forward(&pm.params, x)
	dOut := mat.NewDense(rows, 1, nil)
	var loss float64
	for r := 0; r < rows; r++ {
		diff := pred.At(r, 0) - float64(batch.Target[r])
		loss += diff * diff
		dOut.Set(r, 0, 2*diff/float64(rows))
	}
	loss /= float64(rows)

	grads := backward(&pm.params, acts, dOut)
	norm := ClipGradNorm(grads, m.cfg.Optimizer.MaxGradNorm)
	pm.opt.Step(&pm.params, grads)

	d := Diagnostics{Loss: loss, GradNorm: norm, Version: pm.params.Version}
	if returns := batch.EpisodeReturns(); len(returns) > 0 {
		var sum float64
		for _, r := range returns {
			sum += float64(r)
		}
		d.Episodes = len(returns)
		d.MeanEpisodeReturn = sum / float64(len(returns))
	}
	return d, nil
}

func batchInputs(b *experience.Batch) *mat.Dense {
	rows := b.Rows()
	data := make([]float64, rows*InputSize)
	for r := 0; r < rows; r++ {
		state, move, history := b.Row(r)
		row := data[r*InputSize : (r+1)*InputSize]
		off := putRow(row, state)
		off += putRow(row[off:], move)
		putRow(row[off:], history)
	}
	return mat.NewDense(rows, InputSize, data)
}

// Weights returns a copy of the weights of pos.
func (m *DMC) Weights(pos core.RoundPosition) Params {
	pm, err := m.position(pos)
	if err != nil {
		return Params{}
	}
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.params.Clone()
}

// SetWeights replaces the weights of pos with a copy of p.
func (m *DMC) SetWeights(pos core.RoundPosition, p Params) error {
	pm, err := m.position(pos)
	if err != nil {
		return err
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if err := pm.params.SameShape(p); err != nil {
		return err
	}
	pm.params = p.Clone()
	return nil
}

func (m *DMC) OptimizerState(pos core.RoundPosition) OptimizerState {
	pm, err := m.position(pos)
	if err != nil {
		return OptimizerState{}
	}
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.opt.State()
}

func (m *DMC) SetOptimizerState(pos core.RoundPosition, s OptimizerState) error {
	pm, err := m.position(pos)
	if err != nil {
		return err
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.opt.SetState(s)
}
