package model

import (
	"math"
	"math/rand"

	"github.com/mitchelldurbincs/hanamikoji-zero/internal/game"
	"gonum.org/v1/gonum/mat"
)

// InputSize is the width of one network input row: state, move and round
// history features concatenated.
const InputSize = game.StateFeatureSize + game.MoveFeatureSize + game.HistoryFeatureSize

// DefaultHidden is the hidden layer layout used when none is configured.
var DefaultHidden = []int{256, 128}

// LayerSizes returns the widths from input to the single value output.
func LayerSizes(hidden []int) []int {
	sizes := make([]int, 0, len(hidden)+2)
	sizes = append(sizes, InputSize)
	sizes = append(sizes, hidden...)
	return append(sizes, 1)
}

// NewParams initializes a multilayer perceptron with Xavier-uniform weights
// and zero biases.
func NewParams(sizes []int, rng *rand.Rand) Params {
	p := Params{Layers: make([]Layer, len(sizes)-1)}
	for i := range p.Layers {
		in, out := sizes[i], sizes[i+1]
		limit := math.Sqrt(6 / float64(in+out))
		l := Layer{Rows: out, Cols: in, W: make([]float64, out*in), B: make([]float64, out)}
		for j := range l.W {
			l.W[j] = (rng.Float64()*2 - 1) * limit
		}
		p.Layers[i] = l
	}
	return p
}

type activations struct {
	inputs []*mat.Dense
	pre    []*mat.Dense
}

// forward evaluates the network on the rows of x. Hidden layers use ReLU,
// the output layer is linear.
func forward(p *Params, x *mat.Dense) (*mat.Dense, *activations) {
	acts := &activations{}
	a := x
	last := len(p.Layers) - 1
	for i, l := range p.Layers {
		w := mat.NewDense(l.Rows, l.Cols, l.W)
		z := new(mat.Dense)
		z.Mul(a, w.T())
		z.Apply(func(_, c int, v float64) float64 { return v + l.B[c] }, z)

		acts.inputs = append(acts.inputs, a)
		acts.pre = append(acts.pre, z)
		if i == last {
			a = z
			break
		}
		h := new(mat.Dense)
		h.Apply(func(_, _ int, v float64) float64 { return math.Max(v, 0) }, z)
		a = h
	}
	return a, acts
}

// backward returns the gradient of the loss with respect to every parameter
// given dOut, the gradient with respect to the network output.
func backward(p *Params, acts *activations, dOut *mat.Dense) Params {
	grads := ZerosLike(*p)
	delta := dOut
	for i := len(p.Layers) - 1; i >= 0; i-- {
		l := p.Layers[i]
		if i < len(p.Layers)-1 {
			pre := acts.pre[i]
			masked := new(mat.Dense)
			masked.Apply(func(r, c int, v float64) float64 {
				if pre.At(r, c) <= 0 {
					return 0
				}
				return v
			}, delta)
			delta = masked
		}

		gw := mat.NewDense(l.Rows, l.Cols, grads.Layers[i].W)
		gw.Mul(delta.T(), acts.inputs[i])
		rows, _ := delta.Dims()
		for r := 0; r < rows; r++ {
			for c := 0; c < l.Rows; c++ {
				grads.Layers[i].B[c] += delta.At(r, c)
			}
		}

		if i > 0 {
			next := new(mat.Dense)
			next.Mul(delta, mat.NewDense(l.Rows, l.Cols, l.W))
			delta = next
		}
	}
	return grads
}

// observationInputs builds one input row per legal move.
func observationInputs(obs *game.Observation) *mat.Dense {
	n := len(obs.Moves)
	data := make([]float64, n*InputSize)
	for i := 0; i < n; i++ {
		row := data[i*InputSize : (i+1)*InputSize]
		off := putRow(row, obs.State)
		off += putRow(row[off:], obs.MoveFeatures[i])
		putRow(row[off:], obs.History)
	}
	return mat.NewDense(n, InputSize, data)
}

func putRow(dst []float64, src []float32) int {
	for i, v := range src {
		dst[i] = float64(v)
	}
	return len(src)
}

// Values returns the network's value estimate for each legal move.
func Values(p *Params, obs *game.Observation) []float64 {
	if len(obs.Moves) == 0 {
		return nil
	}
	out, _ := forward(p, observationInputs(obs))
	return mat.Col(nil, 0, out)
}

// Argmax returns the index of the largest value, the first on ties.
func Argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
