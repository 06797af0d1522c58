package game

// Rule constants.
const (
	// HandSize is the number of cards dealt to each seat at the start of a round.
	HandSize = 6
	// WinPoints is the favoured geisha point total that wins the game.
	WinPoints = 11
	// WinGeishas is the favoured geisha count that wins the game.
	WinGeishas = 4
	// DefaultMaxRounds caps a game when no other limit is configured.
	DefaultMaxRounds = 10
)
