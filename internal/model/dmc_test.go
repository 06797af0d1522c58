package model

import (
	"math/rand"
	"testing"

	"github.com/mitchelldurbincs/hanamikoji-zero/internal/experience"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/game"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/game/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	opt := DefaultOptimizerConfig()
	opt.LearningRate = 1e-3
	return Config{Hidden: []int{16}, Optimizer: opt, Seed: 42}
}

func randomBatch(pos core.RoundPosition, b, t int, seed int64) *experience.Batch {
	rng := rand.New(rand.NewSource(seed))
	batch := experience.NewBatch(pos, experience.NewLayout(t), b)
	for _, v := range [][]float32{batch.State, batch.Move, batch.History} {
		for i := range v {
			if rng.Intn(4) == 0 {
				v[i] = float32(rng.Intn(3))
			}
		}
	}
	for i := range batch.Target {
		batch.Target[i] = float32(rng.Intn(2)*2 - 1)
	}
	batch.Done[len(batch.Done)-1] = true
	batch.EpisodeReturn[len(batch.Done)-1] = 1
	return batch
}

func TestDMC_UpdateReducesLoss(t *testing.T) {
	m := NewDMC(testConfig())
	batch := randomBatch(core.PositionFirst, 2, 8, 1)

	first, err := m.Update(core.PositionFirst, batch)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.Version)
	assert.Equal(t, 1, first.Episodes)
	assert.Equal(t, 1.0, first.MeanEpisodeReturn)

	var last Diagnostics
	for i := 0; i < 200; i++ {
		last, err = m.Update(core.PositionFirst, batch)
		require.NoError(t, err)
	}
	assert.Less(t, last.Loss, first.Loss)
	assert.Equal(t, uint64(201), last.Version)
	assert.Equal(t, uint64(201), m.OptimizerState(core.PositionFirst).Step)

	assert.Equal(t, uint64(0), m.Weights(core.PositionSecond).Version, "positions are independent")
	assert.Equal(t, uint64(0), m.OptimizerState(core.PositionSecond).Step)
}

func TestDMC_InvalidPosition(t *testing.T) {
	m := NewDMC(testConfig())
	_, err := m.Update(core.RoundPosition(5), randomBatch(core.PositionFirst, 1, 2, 1))
	assert.ErrorIs(t, err, ErrInvalidPosition)
	assert.ErrorIs(t, m.SetWeights(core.RoundPosition(-1), Params{}), ErrInvalidPosition)
}

func TestDMC_WeightsAreCopies(t *testing.T) {
	m := NewDMC(testConfig())
	w := m.Weights(core.PositionFirst)
	w.Layers[0].W[0] = 1234

	assert.NotEqual(t, 1234.0, m.Weights(core.PositionFirst).Layers[0].W[0])

	require.NoError(t, m.SetWeights(core.PositionSecond, w))
	w.Layers[0].W[0] = 0
	assert.Equal(t, 1234.0, m.Weights(core.PositionSecond).Layers[0].W[0])

	wrong := NewParams([]int{InputSize, 3, 1}, rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, m.SetWeights(core.PositionFirst, wrong), ErrShapeMismatch)
}

func TestDMC_DeterministicSeed(t *testing.T) {
	a := NewDMC(testConfig())
	b := NewDMC(testConfig())
	assert.Equal(t, a.Weights(core.PositionFirst), b.Weights(core.PositionFirst))
	assert.NotEqual(t, a.Weights(core.PositionFirst), a.Weights(core.PositionSecond))
}

func TestDMC_Inference(t *testing.T) {
	m := NewDMC(testConfig())
	s := game.NewSession(rand.New(rand.NewSource(9)), 0)
	obs, err := s.Reset()
	require.NoError(t, err)

	idx, err := m.Inference(obs.Position, obs)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, idx, 0)
	assert.Less(t, idx, len(obs.Moves))

	_, err = m.Inference(core.PositionFirst, &game.Observation{})
	assert.ErrorIs(t, err, core.ErrIllegalMove)
}
