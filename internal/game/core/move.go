package core

import "fmt"

// MoveType identifies the kind of move.
type MoveType int

const (
	// MoveStash hides one card as a secret gift to yourself.
	MoveStash MoveType = iota
	// MoveTrash discards two cards face-down.
	MoveTrash
	// MoveOfferOneOfThree offers three cards, the opponent keeps one.
	MoveOfferOneOfThree
	// MoveOfferTwoPairs offers two pairs, the opponent keeps one pair.
	MoveOfferTwoPairs
	// MoveResolveOneOfThree answers MoveOfferOneOfThree.
	MoveResolveOneOfThree
	// MoveResolveTwoPairs answers MoveOfferTwoPairs.
	MoveResolveTwoPairs
)

// NumActionTokens is the number of once-per-round action tokens a player holds.
// The first four move types each consume the token with the same index.
const NumActionTokens = 4

const (
	// RoundMoves is the number of moves in one round.
	RoundMoves = 12
	// MovesPerPosition is the number of decisions each round position makes per round.
	MovesPerPosition = RoundMoves / NumPositions
)

func (t MoveType) String() string {
	switch t {
	case MoveStash:
		return "stash"
	case MoveTrash:
		return "trash"
	case MoveOfferOneOfThree:
		return "offer_1_of_3"
	case MoveOfferTwoPairs:
		return "offer_2_pairs"
	case MoveResolveOneOfThree:
		return "resolve_1_of_3"
	case MoveResolveTwoPairs:
		return "resolve_2_pairs"
	default:
		return fmt.Sprintf("move_type(%d)", int(t))
	}
}

// IsResolve reports whether the move answers an opponent's offer.
func (t MoveType) IsResolve() bool {
	return t == MoveResolveOneOfThree || t == MoveResolveTwoPairs
}

// Move is one decision. For stash, trash and the one-of-three offer only A is
// used. For the two-pair offer A and B are the pairs. For resolutions A is what
// the resolving player keeps and B is what goes to the offering player.
type Move struct {
	Type MoveType
	A    Cards
	B    Cards
}

func (m Move) String() string {
	switch m.Type {
	case MoveStash, MoveTrash, MoveOfferOneOfThree:
		return fmt.Sprintf("%s%v", m.Type, m.A)
	default:
		return fmt.Sprintf("%s%v|%v", m.Type, m.A, m.B)
	}
}
