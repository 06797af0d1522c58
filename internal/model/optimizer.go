package model

import "math"

// OptimizerConfig holds RMSprop hyperparameters.
type OptimizerConfig struct {
	LearningRate float64
	Momentum     float64
	Epsilon      float64
	Alpha        float64
	MaxGradNorm  float64
}

// DefaultOptimizerConfig returns the hyperparameters the trainer starts from.
func DefaultOptimizerConfig() OptimizerConfig {
	return OptimizerConfig{
		LearningRate: 1e-4,
		Momentum:     0,
		Epsilon:      1e-5,
		Alpha:        0.99,
		MaxGradNorm:  40,
	}
}

// OptimizerState is everything RMSprop carries between steps.
type OptimizerState struct {
	Step      uint64
	SquareAvg Params
	Momentum  Params
}

// Clone returns a deep copy.
func (s OptimizerState) Clone() OptimizerState {
	return OptimizerState{Step: s.Step, SquareAvg: s.SquareAvg.Clone(), Momentum: s.Momentum.Clone()}
}

// RMSprop keeps a running average of squared gradients and divides each
// step by its root.
type RMSprop struct {
	cfg   OptimizerConfig
	state OptimizerState
}

func NewRMSprop(cfg OptimizerConfig, shape Params) *RMSprop {
	return &RMSprop{
		cfg: cfg,
		state: OptimizerState{
			SquareAvg: ZerosLike(shape),
			Momentum:  ZerosLike(shape),
		},
	}
}

// ClipGradNorm scales grads in place so their global norm is at most
// maxNorm and returns the norm before clipping.
func ClipGradNorm(grads Params, maxNorm float64) float64 {
	norm := grads.Norm()
	if maxNorm > 0 && norm > maxNorm {
		grads.Scale(maxNorm / (norm + 1e-6))
	}
	return norm
}

// Step applies grads to params in place and bumps params.Version.
func (o *RMSprop) Step(params *Params, grads Params) {
	cfg := o.cfg
	each(func(p []float64, aux ...[]float64) {
		g, sq, buf := aux[0], aux[1], aux[2]
		for i := range p {
			sq[i] = cfg.Alpha*sq[i] + (1-cfg.Alpha)*g[i]*g[i]
			d := g[i] / (math.Sqrt(sq[i]) + cfg.Epsilon)
			if cfg.Momentum > 0 {
				buf[i] = cfg.Momentum*buf[i] + d
				d = buf[i]
			}
			p[i] -= cfg.LearningRate * d
		}
	}, *params, grads, o.state.SquareAvg, o.state.Momentum)
	o.state.Step++
	params.Version++
}

// State returns a copy of the optimizer state.
func (o *RMSprop) State() OptimizerState {
	return o.state.Clone()
}

// SetState replaces the optimizer state with a copy of s.
func (o *RMSprop) SetState(s OptimizerState) error {
	if err := o.state.SquareAvg.SameShape(s.SquareAvg); err != nil {
		return err
	}
	if err := o.state.Momentum.SameShape(s.Momentum); err != nil {
		return err
	}
	o.state = s.Clone()
	return nil
}
