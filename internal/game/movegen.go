package game

import "github.com/mitchelldurbincs/hanamikoji-zero/internal/game/core"

// LegalMoves enumerates the moves available to a seat holding hand and tokens
// while pending is the outstanding offer, if any. A pending offer can only be
// resolved; otherwise each unused token contributes its moves. The order is
// deterministic.
func LegalMoves(hand core.Cards, tokens [core.NumActionTokens]bool, pending Offer) []core.Move {
	if pending.Active {
		return resolutions(pending)
	}

	var moves []core.Move
	if tokens[core.MoveStash] {
		for _, c := range multisets(hand, 1) {
			moves = append(moves, core.Move{Type: core.MoveStash, A: c})
		}
	}
	if tokens[core.MoveTrash] {
		for _, c := range multisets(hand, 2) {
			moves = append(moves, core.Move{Type: core.MoveTrash, A: c})
		}
	}
	if tokens[core.MoveOfferOneOfThree] {
		for _, c := range multisets(hand, 3) {
			moves = append(moves, core.Move{Type: core.MoveOfferOneOfThree, A: c})
		}
	}
	if tokens[core.MoveOfferTwoPairs] {
		for _, first := range multisets(hand, 2) {
			key := pairKey(first)
			for _, second := range multisets(hand.Sub(first), 2) {
				// {x, y} and {y, x} are the same offer
				if pairKey(second) < key {
					continue
				}
				moves = append(moves, core.Move{Type: core.MoveOfferTwoPairs, A: first, B: second})
			}
		}
	}
	return moves
}

func resolutions(o Offer) []core.Move {
	switch o.Type {
	case core.MoveOfferOneOfThree:
		var moves []core.Move
		for g, n := range o.Cards {
			if n == 0 {
				continue
			}
			keep := core.Single(g)
			moves = append(moves, core.Move{Type: core.MoveResolveOneOfThree, A: keep, B: o.Cards.Sub(keep)})
		}
		return moves
	case core.MoveOfferTwoPairs:
		moves := []core.Move{{Type: core.MoveResolveTwoPairs, A: o.Cards, B: o.Pair}}
		if o.Cards != o.Pair {
			moves = append(moves, core.Move{Type: core.MoveResolveTwoPairs, A: o.Pair, B: o.Cards})
		}
		return moves
	default:
		return nil
	}
}

// multisets returns every k-card sub-multiset of hand in lexicographic order
// of sorted geisha indices.
func multisets(hand core.Cards, k int) []core.Cards {
	var (
		out  []core.Cards
		pick core.Cards
	)
	var rec func(from, left int)
	rec = func(from, left int) {
		if left == 0 {
			out = append(out, pick)
			return
		}
		for g := from; g < core.NumGeishas; g++ {
			if hand[g] == pick[g] {
				continue
			}
			pick[g]++
			rec(g, left-1)
			pick[g]--
		}
	}
	rec(0, k)
	return out
}

func pairKey(pair core.Cards) int {
	lo, hi := -1, -1
	for g, n := range pair {
		for ; n > 0; n-- {
			if lo < 0 {
				lo = g
			} else {
				hi = g
			}
		}
	}
	return lo*core.NumGeishas + hi
}
