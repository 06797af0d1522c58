package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scalarParams(w, b float64) Params {
	return Params{Layers: []Layer{{Rows: 1, Cols: 1, W: []float64{w}, B: []float64{b}}}}
}

func TestRMSprop_Step(t *testing.T) {
	cfg := OptimizerConfig{LearningRate: 0.1, Alpha: 0.99, Epsilon: 1e-5}
	p := scalarParams(1, 0)
	opt := NewRMSprop(cfg, p)

	opt.Step(&p, scalarParams(0.5, 0))

	sq := 0.01 * 0.25
	want := 1 - 0.1*0.5/(math.Sqrt(sq)+1e-5)
	assert.InDelta(t, want, p.Layers[0].W[0], 1e-12)
	assert.Equal(t, 0.0, p.Layers[0].B[0], "zero gradient leaves the bias alone")
	assert.Equal(t, uint64(1), p.Version)

	st := opt.State()
	assert.Equal(t, uint64(1), st.Step)
	assert.InDelta(t, sq, st.SquareAvg.Layers[0].W[0], 1e-15)
}

func TestRMSprop_Momentum(t *testing.T) {
	cfg := OptimizerConfig{LearningRate: 0.1, Alpha: 0.5, Epsilon: 0, Momentum: 0.9}
	p := scalarParams(0, 0)
	opt := NewRMSprop(cfg, p)

	opt.Step(&p, scalarParams(1, 0))
	first := p.Layers[0].W[0]
	opt.Step(&p, scalarParams(1, 0))
	second := p.Layers[0].W[0] - first

	assert.Less(t, second, first, "momentum makes the second step larger")
	assert.Greater(t, opt.State().Momentum.Layers[0].W[0], 0.0)
}

func TestRMSprop_SetState(t *testing.T) {
	p := scalarParams(0, 0)
	opt := NewRMSprop(DefaultOptimizerConfig(), p)

	st := OptimizerState{Step: 7, SquareAvg: scalarParams(0.3, 0.1), Momentum: scalarParams(0, 0)}
	require.NoError(t, opt.SetState(st))
	st.SquareAvg.Layers[0].W[0] = 99
	assert.Equal(t, 0.3, opt.State().SquareAvg.Layers[0].W[0], "state is copied")
	assert.Equal(t, uint64(7), opt.State().Step)

	bad := OptimizerState{SquareAvg: Params{}, Momentum: Params{}}
	assert.ErrorIs(t, opt.SetState(bad), ErrShapeMismatch)
}

func TestClipGradNorm(t *testing.T) {
	g := Params{Layers: []Layer{{Rows: 1, Cols: 2, W: []float64{3, 4}, B: []float64{0}}}}
	norm := ClipGradNorm(g, 1)
	assert.InDelta(t, 5, norm, 1e-12)
	assert.InDelta(t, 1, g.Norm(), 1e-5)

	g = scalarParams(0.5, 0)
	ClipGradNorm(g, 1)
	assert.Equal(t, 0.5, g.Layers[0].W[0])
}
