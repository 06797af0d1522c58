package game

import "github.com/mitchelldurbincs/hanamikoji-zero/internal/game/core"

// Feature sizes.
const (
	StateFeatureSize   = 14*core.NumGeishas + 2*core.NumActionTokens
	MoveFeatureSize    = 9 * core.NumGeishas
	HistoryRows        = core.RoundMoves
	HistoryFeatureSize = HistoryRows * MoveFeatureSize
)

// move feature block offsets, in units of NumGeishas
var moveBlock = [...]int{
	core.MoveStash:             0,
	core.MoveTrash:             1,
	core.MoveOfferOneOfThree:   2,
	core.MoveOfferTwoPairs:     3,
	core.MoveResolveOneOfThree: 5,
	core.MoveResolveTwoPairs:   7,
}

// EncodeMove writes the 63 move features into dst. When hidden is set the
// cards of a stash or trash are replaced by ones, which is how the opponent
// sees them.
func EncodeMove(dst []float32, m core.Move, hidden bool) {
	clear(dst[:MoveFeatureSize])
	off := moveBlock[m.Type] * core.NumGeishas
	if hidden && (m.Type == core.MoveStash || m.Type == core.MoveTrash) {
		for g := 0; g < core.NumGeishas; g++ {
			dst[off+g] = 1
		}
		return
	}
	putCards(dst[off:], m.A)
	if m.Type != core.MoveStash && m.Type != core.MoveTrash && m.Type != core.MoveOfferOneOfThree {
		putCards(dst[off+core.NumGeishas:], m.B)
	}
}

// EncodeState writes the 106 state features seen by seat r into dst.
func EncodeState(dst []float32, gs *GameState, r core.Role) {
	clear(dst[:StateFeatureSize])
	opp := r.Opponent()
	w := dst

	putCards(w, core.FullDeck())
	w = w[core.NumGeishas:]
	for g, f := range gs.Favour {
		w[g] = float32(f) * float32(r.Sign())
	}
	w = w[core.NumGeishas:]
	for _, c := range []core.Cards{gs.Hands[r], gs.Stashed[r], gs.Trashed[r]} {
		putCards(w, c)
		w = w[core.NumGeishas:]
	}

	var oneOfThree, pairA, pairB core.Cards
	if gs.Pending.Active {
		if gs.Pending.Type == core.MoveOfferOneOfThree {
			oneOfThree = gs.Pending.Cards
		} else {
			pairA, pairB = gs.Pending.Cards, gs.Pending.Pair
		}
	}
	for _, c := range []core.Cards{oneOfThree, pairA, pairB} {
		putCards(w, c)
		w = w[core.NumGeishas:]
	}

	for _, seat := range []core.Role{r, opp} {
		for i, held := range gs.Tokens[seat] {
			if held {
				w[i] = 1
			}
		}
		w = w[core.NumActionTokens:]
	}

	for _, c := range []core.Cards{gs.Gifts[r], gs.Gifts[opp], gs.Gifts[r].Add(gs.Stashed[r])} {
		putCards(w, c)
		w = w[core.NumGeishas:]
	}

	for _, seat := range []core.Role{r, opp} {
		if n := gs.Hands[seat].Total(); n > 0 && n <= core.NumGeishas {
			w[n-1] = 1
		}
		w = w[core.NumGeishas:]
	}

	putCards(w, gs.Unknown(r))
}

// EncodeHistory writes the current round's moves as seen by seat r into dst,
// a HistoryRows x MoveFeatureSize matrix. Own moves fill the first half and
// opponent moves the second, each right-aligned so empty rows lead.
func EncodeHistory(dst []float32, gs *GameState, r core.Role) {
	clear(dst[:HistoryFeatureSize])
	half := HistoryRows / 2
	own := gs.RoundMoves[r]
	for i, m := range own {
		row := half - len(own) + i
		EncodeMove(dst[row*MoveFeatureSize:], m, false)
	}
	opp := gs.RoundMoves[r.Opponent()]
	for i, m := range opp {
		row := HistoryRows - len(opp) + i
		EncodeMove(dst[row*MoveFeatureSize:], m, true)
	}
}

func putCards(dst []float32, c core.Cards) {
	for g, n := range c {
		dst[g] = float32(n)
	}
}
