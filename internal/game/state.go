package game

import "github.com/mitchelldurbincs/hanamikoji-zero/internal/game/core"

// Offer is a pending offer waiting for the opponent's resolution.
type Offer struct {
	Active bool
	Type   core.MoveType
	From   core.Role
	// Cards holds the three offered cards, or the first pair.
	Cards core.Cards
	// Pair holds the second pair of a two-pair offer.
	Pair core.Cards
}

// GameState is the full, omniscient state of one game. It is a plain value:
// copies made with Clone share nothing with the engine.
type GameState struct {
	Round  int
	Opener core.Role
	Acting core.Role

	Hands   [core.NumRoles]core.Cards
	Stashed [core.NumRoles]core.Cards
	Trashed [core.NumRoles]core.Cards
	Gifts   [core.NumRoles]core.Cards
	// Tokens[r][i] is true while seat r still holds action token i.
	Tokens [core.NumRoles][core.NumActionTokens]bool

	// Favour[g] is +1 when geisha g favours RoleFirst, -1 for RoleSecond, 0 for neither.
	Favour [core.NumGeishas]int

	Pending Offer
	Deck    []int
	// RoundMoves holds each seat's moves of the current round in play order.
	RoundMoves [core.NumRoles][]core.Move

	Over    bool
	Outcome float64
}

// Clone returns a deep copy.
func (gs GameState) Clone() GameState {
	gs.Deck = append([]int(nil), gs.Deck...)
	for r := range gs.RoundMoves {
		gs.RoundMoves[r] = append([]core.Move(nil), gs.RoundMoves[r]...)
	}
	return gs
}

// PositionOf maps a seat to its round position in the current round.
func (gs *GameState) PositionOf(r core.Role) core.RoundPosition {
	if r == gs.Opener {
		return core.PositionFirst
	}
	return core.PositionSecond
}

// MovesPlayed returns the number of moves made in the current round.
func (gs *GameState) MovesPlayed() int {
	return len(gs.RoundMoves[core.RoleFirst]) + len(gs.RoundMoves[core.RoleSecond])
}

// Favoured returns the geisha count and point total favouring r.
func (gs *GameState) Favoured(r core.Role) (count, points int) {
	sign := int(r.Sign())
	for g, f := range gs.Favour {
		if f == sign {
			count++
			points += core.GeishaPoints[g]
		}
	}
	return count, points
}

// Unknown returns the cards r cannot see: the removed card, the deck, the
// opponent's hand and the opponent's hidden stash and trash.
func (gs *GameState) Unknown(r core.Role) core.Cards {
	u := core.FullDeck().
		Sub(gs.Hands[r]).
		Sub(gs.Stashed[r]).
		Sub(gs.Trashed[r]).
		Sub(gs.Gifts[r]).
		Sub(gs.Gifts[r.Opponent()])
	if gs.Pending.Active {
		u = u.Sub(gs.Pending.Cards).Sub(gs.Pending.Pair)
	}
	return u
}
