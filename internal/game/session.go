package game

import (
	"math/rand"

	"github.com/mitchelldurbincs/hanamikoji-zero/internal/game/core"
)

// Observation is everything a decision maker sees at one decision point.
type Observation struct {
	Role     core.Role
	Position core.RoundPosition
	// State has StateFeatureSize entries, History has HistoryFeatureSize.
	State   []float32
	History []float32
	Moves   []core.Move
	// MoveFeatures[i] encodes Moves[i] with MoveFeatureSize entries.
	MoveFeatures [][]float32
}

// StepResult is the outcome of Session.Step.
type StepResult struct {
	// Observation is the next decision point. After a terminal step it is the
	// first decision of the next game.
	Observation *Observation
	// RoundReward is set once per completed round, from the perspective of
	// that round's second mover.
	RoundReward *float64
	Done        bool
	// Outcome is meaningful only when Done is set: +1 if RoleFirst won.
	Outcome float64
}

// Session is a resettable game seen one decision at a time.
type Session interface {
	Reset() (*Observation, error)
	Step(moveIndex int) (*StepResult, error)
}

// HanamikojiSession adapts Engine to Session and restarts itself after each
// finished game.
type HanamikojiSession struct {
	engine *Engine
}

var _ Session = (*HanamikojiSession)(nil)

func NewSession(rng *rand.Rand, maxRounds int) *HanamikojiSession {
	return &HanamikojiSession{engine: NewEngine(rng, maxRounds)}
}

func (s *HanamikojiSession) Reset() (*Observation, error) {
	s.engine.Reset()
	return s.observe(), nil
}

func (s *HanamikojiSession) Step(moveIndex int) (*StepResult, error) {
	info, err := s.engine.Step(moveIndex)
	if err != nil {
		return nil, err
	}
	res := &StepResult{}
	if info.RoundOver {
		r := info.RoundReward
		res.RoundReward = &r
	}
	if info.GameOver {
		res.Done = true
		res.Outcome = info.Outcome
		s.engine.Reset()
	}
	res.Observation = s.observe()
	return res, nil
}

// State returns a copy of the underlying game state.
func (s *HanamikojiSession) State() GameState {
	return s.engine.State()
}

func (s *HanamikojiSession) observe() *Observation {
	gs := &s.engine.gs
	r := gs.Acting
	obs := &Observation{
		Role:     r,
		Position: gs.PositionOf(r),
		State:    make([]float32, StateFeatureSize),
		History:  make([]float32, HistoryFeatureSize),
		Moves:    s.engine.LegalMoves(),
	}
	EncodeState(obs.State, gs, r)
	EncodeHistory(obs.History, gs, r)
	obs.MoveFeatures = make([][]float32, len(obs.Moves))
	for i, m := range obs.Moves {
		obs.MoveFeatures[i] = make([]float32, MoveFeatureSize)
		EncodeMove(obs.MoveFeatures[i], m, false)
	}
	return obs
}
