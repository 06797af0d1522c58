package game

import (
	"math/rand"
	"time"

	"github.com/mitchelldurbincs/hanamikoji-zero/internal/game/core"
)

// StepInfo reports what a single move caused.
type StepInfo struct {
	Role core.Role
	Move core.Move

	RoundOver bool
	// RoundReward is the sign of the favoured point difference after the
	// round, from the perspective of the round's second mover.
	RoundReward float64

	GameOver bool
	// Outcome is +1 when RoleFirst won, -1 when RoleSecond won and 0 for a
	// tie at the round cap.
	Outcome float64
}

type Engine struct {
	gs        GameState
	rng       *rand.Rand
	maxRounds int
	legal     []core.Move
	started   bool
}

// NewEngine creates an engine. Call Reset before the first Step.
func NewEngine(rng *rand.Rand, maxRounds int) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	return &Engine{rng: rng, maxRounds: maxRounds}
}

// Reset starts a new game with RoleFirst opening the first round.
func (e *Engine) Reset() {
	e.gs = GameState{}
	e.started = true
	e.startRound(core.RoleFirst)
}

// State returns a copy of the current state.
func (e *Engine) State() GameState {
	return e.gs.Clone()
}

// LegalMoves returns the moves available to the acting seat.
func (e *Engine) LegalMoves() []core.Move {
	return append([]core.Move(nil), e.legal...)
}

func (e *Engine) IsGameOver() bool {
	return e.gs.Over
}

// Step plays the legal move at index idx for the acting seat.
func (e *Engine) Step(idx int) (StepInfo, error) {
	if !e.started {
		return StepInfo{}, core.ErrNotStarted
	}
	if e.gs.Over {
		return StepInfo{}, core.ErrGameOver
	}
	if idx < 0 || idx >= len(e.legal) {
		return StepInfo{}, core.ErrIllegalMove
	}

	gs := &e.gs
	m := e.legal[idx]
	curr := gs.Acting
	opp := curr.Opponent()
	draw := true

	switch m.Type {
	case core.MoveStash:
		gs.Hands[curr] = gs.Hands[curr].Sub(m.A)
		gs.Stashed[curr] = m.A
		gs.Acting = opp
	case core.MoveTrash:
		gs.Hands[curr] = gs.Hands[curr].Sub(m.A)
		gs.Trashed[curr] = m.A
		gs.Acting = opp
	case core.MoveOfferOneOfThree:
		gs.Hands[curr] = gs.Hands[curr].Sub(m.A)
		gs.Pending = Offer{Active: true, Type: m.Type, From: curr, Cards: m.A}
		gs.Acting = opp
		draw = false
	case core.MoveOfferTwoPairs:
		gs.Hands[curr] = gs.Hands[curr].Sub(m.A).Sub(m.B)
		gs.Pending = Offer{Active: true, Type: m.Type, From: curr, Cards: m.A, Pair: m.B}
		gs.Acting = opp
		draw = false
	case core.MoveResolveOneOfThree, core.MoveResolveTwoPairs:
		gs.Gifts[curr] = gs.Gifts[curr].Add(m.A)
		gs.Gifts[gs.Pending.From] = gs.Gifts[gs.Pending.From].Add(m.B)
		gs.Pending = Offer{}
	}
	if !m.Type.IsResolve() {
		gs.Tokens[curr][m.Type] = false
	}
	gs.RoundMoves[curr] = append(gs.RoundMoves[curr], m)

	info := StepInfo{Role: curr, Move: m}
	if gs.MovesPlayed() == core.RoundMoves {
		e.finishRound(&info)
		return info, nil
	}
	if draw {
		e.drawFor(gs.Acting)
	}
	e.refreshLegal()
	return info, nil
}

func (e *Engine) startRound(opener core.Role) {
	gs := &e.gs
	gs.Round++
	gs.Opener = opener
	gs.Acting = opener
	gs.Hands = [core.NumRoles]core.Cards{}
	gs.Stashed = [core.NumRoles]core.Cards{}
	gs.Trashed = [core.NumRoles]core.Cards{}
	gs.Gifts = [core.NumRoles]core.Cards{}
	gs.Pending = Offer{}
	gs.RoundMoves = [core.NumRoles][]core.Move{}
	for r := range gs.Tokens {
		for i := range gs.Tokens[r] {
			gs.Tokens[r][i] = true
		}
	}

	deck := make([]int, 0, core.DeckSize)
	for g, n := range core.GeishaPoints {
		for ; n > 0; n-- {
			deck = append(deck, g)
		}
	}
	e.rng.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })
	// one card stays face-down for the whole round
	gs.Deck = deck[1:]

	for i := 0; i < HandSize; i++ {
		e.drawFor(opener)
		e.drawFor(opener.Opponent())
	}
	e.drawFor(opener)
	e.refreshLegal()
}

func (e *Engine) drawFor(r core.Role) {
	gs := &e.gs
	if len(gs.Deck) == 0 {
		return
	}
	last := len(gs.Deck) - 1
	gs.Hands[r][gs.Deck[last]]++
	gs.Deck = gs.Deck[:last]
}

func (e *Engine) refreshLegal() {
	gs := &e.gs
	e.legal = LegalMoves(gs.Hands[gs.Acting], gs.Tokens[gs.Acting], gs.Pending)
}

func (e *Engine) finishRound(info *StepInfo) {
	gs := &e.gs
	first := gs.Gifts[core.RoleFirst].Add(gs.Stashed[core.RoleFirst])
	second := gs.Gifts[core.RoleSecond].Add(gs.Stashed[core.RoleSecond])
	for g := range gs.Favour {
		switch {
		case first[g] > second[g]:
			gs.Favour[g] = 1
		case first[g] < second[g]:
			gs.Favour[g] = -1
		}
	}

	_, openerPts := gs.Favoured(gs.Opener)
	_, secondPts := gs.Favoured(gs.Opener.Opponent())
	info.RoundOver = true
	info.RoundReward = sign(secondPts - openerPts)

	if winner, ok := e.winner(); ok {
		e.endGame(info, winner.Sign())
		return
	}
	if gs.Round >= e.maxRounds {
		_, p1 := gs.Favoured(core.RoleFirst)
		_, p2 := gs.Favoured(core.RoleSecond)
		e.endGame(info, sign(p1-p2))
		return
	}
	e.startRound(gs.Opener.Opponent())
}

func (e *Engine) winner() (core.Role, bool) {
	n1, p1 := e.gs.Favoured(core.RoleFirst)
	n2, p2 := e.gs.Favoured(core.RoleSecond)
	switch {
	case p1 >= WinPoints:
		return core.RoleFirst, true
	case p2 >= WinPoints:
		return core.RoleSecond, true
	case n1 >= WinGeishas:
		return core.RoleFirst, true
	case n2 >= WinGeishas:
		return core.RoleSecond, true
	}
	return 0, false
}

func (e *Engine) endGame(info *StepInfo, outcome float64) {
	e.gs.Over = true
	e.gs.Outcome = outcome
	e.legal = nil
	info.GameOver = true
	info.Outcome = outcome
}

func sign(v int) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
