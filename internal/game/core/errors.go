package core

import "errors"

var (
	ErrIllegalMove     = errors.New("move is not in the legal set")
	ErrGameOver        = errors.New("game is over")
	ErrNotStarted      = errors.New("game has not been reset")
	ErrInvalidRole     = errors.New("invalid role")
	ErrInvalidPosition = errors.New("invalid round position")
)
