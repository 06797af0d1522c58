package core

import "fmt"

// Role is a player's fixed seat for an entire game.
type Role int

const (
	RoleFirst Role = iota
	RoleSecond
)

// NumRoles is the number of seats in a game.
const NumRoles = 2

// Roles lists both seats in index order.
var Roles = [NumRoles]Role{RoleFirst, RoleSecond}

func (r Role) String() string {
	switch r {
	case RoleFirst:
		return "first"
	case RoleSecond:
		return "second"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// Opponent returns the other seat.
func (r Role) Opponent() Role {
	return 1 - r
}

// Valid reports whether r names a seat.
func (r Role) Valid() bool {
	return r == RoleFirst || r == RoleSecond
}

// Sign returns +1 for RoleFirst and -1 for RoleSecond. Outcomes reported from
// the first seat's perspective are multiplied by it to get a seat's own value.
func (r Role) Sign() float64 {
	if r == RoleFirst {
		return 1
	}
	return -1
}

// RoundPosition says which seat opened the current round. It selects the
// model replica that evaluates a decision and flips between rounds.
type RoundPosition int

const (
	PositionFirst RoundPosition = iota
	PositionSecond
)

// NumPositions is the number of round positions.
const NumPositions = 2

// Positions lists both round positions in index order.
var Positions = [NumPositions]RoundPosition{PositionFirst, PositionSecond}

func (p RoundPosition) String() string {
	switch p {
	case PositionFirst:
		return "first"
	case PositionSecond:
		return "second"
	default:
		return fmt.Sprintf("position(%d)", int(p))
	}
}

// Opposite returns the other round position.
func (p RoundPosition) Opposite() RoundPosition {
	return 1 - p
}

// Valid reports whether p names a round position.
func (p RoundPosition) Valid() bool {
	return p == PositionFirst || p == PositionSecond
}
