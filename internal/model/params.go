package model

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrShapeMismatch is returned when parameters do not fit the network.
	ErrShapeMismatch = errors.New("parameter shape mismatch")
	// ErrInvalidPosition is returned for a round position outside the model.
	ErrInvalidPosition = errors.New("invalid round position")
)

// Layer is one dense layer. W is Rows x Cols row-major, mapping Cols inputs
// to Rows outputs.
type Layer struct {
	Rows int
	Cols int
	W    []float64
	B    []float64
}

// Params is a complete weight snapshot. Version grows by one with every
// optimizer step applied to it.
type Params struct {
	Version uint64
	Layers  []Layer
}

// Clone returns a deep copy.
func (p Params) Clone() Params {
	out := Params{Version: p.Version, Layers: make([]Layer, len(p.Layers))}
	for i, l := range p.Layers {
		out.Layers[i] = Layer{
			Rows: l.Rows,
			Cols: l.Cols,
			W:    append([]float64(nil), l.W...),
			B:    append([]float64(nil), l.B...),
		}
	}
	return out
}

// ZerosLike returns zeroed parameters of the same shape with Version 0.
func ZerosLike(p Params) Params {
	out := Params{Layers: make([]Layer, len(p.Layers))}
	for i, l := range p.Layers {
		out.Layers[i] = Layer{Rows: l.Rows, Cols: l.Cols, W: make([]float64, len(l.W)), B: make([]float64, len(l.B))}
	}
	return out
}

// NumParams returns the number of scalar parameters.
func (p Params) NumParams() int {
	n := 0
	for _, l := range p.Layers {
		n += len(l.W) + len(l.B)
	}
	return n
}

// SameShape reports an error when o cannot replace p.
func (p Params) SameShape(o Params) error {
	if len(p.Layers) != len(o.Layers) {
		return fmt.Errorf("%w: %d layers, want %d", ErrShapeMismatch, len(o.Layers), len(p.Layers))
	}
	for i, l := range p.Layers {
		ol := o.Layers[i]
		if l.Rows != ol.Rows || l.Cols != ol.Cols || len(ol.W) != l.Rows*l.Cols || len(ol.B) != l.Rows {
			return fmt.Errorf("%w: layer %d is %dx%d, want %dx%d", ErrShapeMismatch, i, ol.Rows, ol.Cols, l.Rows, l.Cols)
		}
	}
	return nil
}

// each calls fn with matching slices of p and the other snapshots.
func each(fn func(p []float64, others ...[]float64), p Params, others ...Params) {
	args := make([][]float64, len(others))
	for i, l := range p.Layers {
		for j, o := range others {
			args[j] = o.Layers[i].W
		}
		fn(l.W, args...)
		for j, o := range others {
			args[j] = o.Layers[i].B
		}
		fn(l.B, args...)
	}
}

// Norm returns the L2 norm over every parameter.
func (p Params) Norm() float64 {
	var sq float64
	each(func(v []float64, _ ...[]float64) {
		for _, x := range v {
			sq += x * x
		}
	}, p)
	return math.Sqrt(sq)
}

// Scale multiplies every parameter by s in place.
func (p Params) Scale(s float64) {
	each(func(v []float64, _ ...[]float64) {
		for i := range v {
			v[i] *= s
		}
	}, p)
}
