package core

// NumGeishas is the number of geishas (card kinds) in the deck.
const NumGeishas = 7

// GeishaPoints holds each geisha's point value, which is also the number of
// her cards in the deck.
var GeishaPoints = [NumGeishas]int{2, 2, 2, 3, 3, 4, 5}

// DeckSize is the total number of cards.
const DeckSize = 21

// Cards counts cards per geisha.
type Cards [NumGeishas]int

// Add returns the element-wise sum.
func (c Cards) Add(o Cards) Cards {
	for i := range c {
		c[i] += o[i]
	}
	return c
}

// Sub returns the element-wise difference.
func (c Cards) Sub(o Cards) Cards {
	for i := range c {
		c[i] -= o[i]
	}
	return c
}

// Total returns the number of cards.
func (c Cards) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

// IsZero reports whether c holds no cards.
func (c Cards) IsZero() bool {
	return c == Cards{}
}

// Contains reports whether every card of o is present in c.
func (c Cards) Contains(o Cards) bool {
	for i := range c {
		if o[i] > c[i] {
			return false
		}
	}
	return true
}

// Single returns a Cards value holding one card of geisha g.
func Single(g int) Cards {
	var c Cards
	c[g] = 1
	return c
}

// FullDeck returns every card of the game.
func FullDeck() Cards {
	var c Cards
	for i, p := range GeishaPoints {
		c[i] = p
	}
	return c
}
