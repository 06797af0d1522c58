package testutil

import (
	"fmt"
	"sync/atomic"

	"github.com/mitchelldurbincs/hanamikoji-zero/internal/game"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/game/core"
)

// ScriptedSession is a game.Session with fixed rules: every round is
// core.RoundMoves strictly alternating decisions, the round opener alternates,
// every round reports RoundReward and a game ends after Rounds rounds with
// Outcome. State features carry the global decision number so tests can
// trace where a record ended up.
type ScriptedSession struct {
	Rounds      int
	RoundReward float64
	Outcome     float64
	NumMoves    int

	// PanicAt makes the Nth Step call panic when positive.
	PanicAt int64

	round    int
	moveInRd int
	steps    atomic.Int64
	games    atomic.Int64
	started  bool
}

var _ game.Session = (*ScriptedSession)(nil)

// NewScriptedSession plays rounds-round games with the given outcome and a
// +1 round reward.
func NewScriptedSession(rounds int, outcome float64) *ScriptedSession {
	return &ScriptedSession{Rounds: rounds, RoundReward: 1, Outcome: outcome, NumMoves: 3}
}

func (s *ScriptedSession) Reset() (*game.Observation, error) {
	s.round, s.moveInRd, s.started = 0, 0, true
	return s.observe(), nil
}

func (s *ScriptedSession) Step(moveIndex int) (*game.StepResult, error) {
	if !s.started {
		return nil, core.ErrNotStarted
	}
	if moveIndex < 0 || moveIndex >= s.numMoves() {
		return nil, fmt.Errorf("%w: index %d", core.ErrIllegalMove, moveIndex)
	}
	n := s.steps.Add(1)
	if s.PanicAt > 0 && n == s.PanicAt {
		panic("scripted session failure")
	}

	res := &game.StepResult{}
	s.moveInRd++
	if s.moveInRd == core.RoundMoves {
		r := s.RoundReward
		res.RoundReward = &r
		s.moveInRd = 0
		s.round++
		if s.round == s.Rounds {
			res.Done = true
			res.Outcome = s.Outcome
			s.games.Add(1)
			s.round = 0
		}
	}
	res.Observation = s.observe()
	return res, nil
}

// Steps returns the number of successful Step calls.
func (s *ScriptedSession) Steps() int64 { return s.steps.Load() }

// Games returns the number of finished games.
func (s *ScriptedSession) Games() int64 { return s.games.Load() }

func (s *ScriptedSession) numMoves() int {
	if s.NumMoves <= 0 {
		return 1
	}
	return s.NumMoves
}

func (s *ScriptedSession) opener() core.Role {
	return core.Roles[s.round%core.NumRoles]
}

func (s *ScriptedSession) observe() *game.Observation {
	role := s.opener()
	pos := core.PositionFirst
	if s.moveInRd%2 == 1 {
		role = role.Opponent()
		pos = core.PositionSecond
	}
	obs := &game.Observation{
		Role:     role,
		Position: pos,
		State:    Filled(game.StateFeatureSize, float32(s.steps.Load())),
		History:  Filled(game.HistoryFeatureSize, 0),
	}
	for i := 0; i < s.numMoves(); i++ {
		obs.Moves = append(obs.Moves, core.Move{Type: core.MoveStash, A: core.Single(i % core.NumGeishas)})
		obs.MoveFeatures = append(obs.MoveFeatures, Filled(game.MoveFeatureSize, float32(i)))
	}
	return obs
}

// Filled returns n copies of v.
func Filled(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}
