package experience

import (
	"fmt"

	"github.com/mitchelldurbincs/hanamikoji-zero/internal/game/core"
)

// RewardScheme selects how return targets are resolved.
type RewardScheme string

const (
	// RewardRound resolves the last decisions of each position at every round end.
	RewardRound RewardScheme = "round"
	// RewardEpisode resolves every target with the game outcome.
	RewardEpisode RewardScheme = "episode"
)

// ParseRewardScheme accepts "round" or "episode"; empty means round.
func ParseRewardScheme(s string) (RewardScheme, error) {
	switch RewardScheme(s) {
	case "", RewardRound:
		return RewardRound, nil
	case RewardEpisode:
		return RewardEpisode, nil
	default:
		return "", fmt.Errorf("unknown reward scheme %q", s)
	}
}

// columns holds one round position's records column by column. Every
// column always has the same length.
type columns struct {
	roles         []core.Role
	states        [][]float32
	moves         [][]float32
	histories     [][]float32
	done          []bool
	episodeReturn []float32
	target        []float32
	resolved      []bool
}

func (c *columns) len() int { return len(c.roles) }

func (c *columns) append(r Record) {
	c.roles = append(c.roles, r.Role)
	c.states = append(c.states, r.State)
	c.moves = append(c.moves, r.Move)
	c.histories = append(c.histories, r.History)
	c.done = append(c.done, r.Done)
	c.episodeReturn = append(c.episodeReturn, r.EpisodeReturn)
	c.target = append(c.target, r.Target)
	c.resolved = append(c.resolved, r.Resolved)
}

func (c *columns) record(i int) Record {
	return Record{
		Role:          c.roles[i],
		State:         c.states[i],
		Move:          c.moves[i],
		History:       c.histories[i],
		Done:          c.done[i],
		EpisodeReturn: c.episodeReturn[i],
		Target:        c.target[i],
		Resolved:      c.resolved[i],
	}
}

func (c *columns) dropHead(n int) {
	// clear dropped references so the feature slices can be collected
	for i := 0; i < n; i++ {
		c.states[i], c.moves[i], c.histories[i] = nil, nil, nil
	}
	c.roles = c.roles[n:]
	c.states = c.states[n:]
	c.moves = c.moves[n:]
	c.histories = c.histories[n:]
	c.done = c.done[n:]
	c.episodeReturn = c.episodeReturn[n:]
	c.target = c.target[n:]
	c.resolved = c.resolved[n:]
}

// Accumulator is an actor's private per-position record buffer. It is not
// safe for concurrent use.
type Accumulator struct {
	scheme RewardScheme
	cols   [core.NumPositions]columns
}

func NewAccumulator(scheme RewardScheme) *Accumulator {
	if scheme == "" {
		scheme = RewardRound
	}
	return &Accumulator{scheme: scheme}
}

// Append adds a decision to the buffer of pos with an unresolved target.
func (a *Accumulator) Append(pos core.RoundPosition, r Record) {
	r.Done, r.EpisodeReturn, r.Target, r.Resolved = false, 0, 0, false
	a.cols[pos].append(r)
}

// Len returns the number of buffered records for pos.
func (a *Accumulator) Len(pos core.RoundPosition) int {
	return a.cols[pos].len()
}

// ResolveRound back-fills the decisions of a finished round. r is the round
// outcome from the second mover's perspective: position second receives r
// and position first receives -r. It does nothing under RewardEpisode.
func (a *Accumulator) ResolveRound(r float64) {
	if a.scheme == RewardEpisode {
		return
	}
	for _, pos := range core.Positions {
		v := float32(r)
		if pos == core.PositionFirst {
			v = -v
		}
		c := &a.cols[pos]
		start := c.len() - core.MovesPerPosition
		if start < 0 {
			start = 0
		}
		for i := start; i < c.len(); i++ {
			c.target[i] = v
			c.resolved[i] = true
		}
	}
}

// ResolveEpisode closes a game. outcome is +1 when RoleFirst won. Every
// unresolved target receives the outcome from its acting role's view and the
// last record of each position is marked done.
func (a *Accumulator) ResolveEpisode(outcome float64) {
	for _, pos := range core.Positions {
		c := &a.cols[pos]
		for i := 0; i < c.len(); i++ {
			if c.resolved[i] {
				continue
			}
			c.target[i] = float32(outcome * c.roles[i].Sign())
			c.resolved[i] = true
		}
		if last := c.len() - 1; last >= 0 {
			c.done[last] = true
			c.episodeReturn[last] = float32(outcome * c.roles[last].Sign())
		}
	}
}

// Ready reports whether pos holds at least t records and the oldest t are
// resolved, so a segment can be drained. Draining while Ready leaves fewer
// than t resolved records behind.
func (a *Accumulator) Ready(pos core.RoundPosition, t int) bool {
	c := &a.cols[pos]
	if c.len() < t {
		return false
	}
	for i := 0; i < t; i++ {
		if !c.resolved[i] {
			return false
		}
	}
	return true
}

// Pop removes and returns the t oldest records of pos.
func (a *Accumulator) Pop(pos core.RoundPosition, t int) []Record {
	c := &a.cols[pos]
	if t > c.len() {
		t = c.len()
	}
	out := make([]Record, t)
	for i := range out {
		out[i] = c.record(i)
	}
	c.dropHead(t)
	return out
}

// Reset discards everything buffered.
func (a *Accumulator) Reset() {
	a.cols = [core.NumPositions]columns{}
}
