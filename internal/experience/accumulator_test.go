package experience

import (
	"math/rand"
	"testing"

	"github.com/mitchelldurbincs/hanamikoji-zero/internal/game/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(layout Layout, role core.Role, marker float32) Record {
	fill := func(n int) []float32 {
		v := make([]float32, n)
		for i := range v {
			v[i] = marker
		}
		return v
	}
	return Record{
		Role:    role,
		State:   fill(layout.StateWidth),
		Move:    fill(layout.MoveWidth),
		History: fill(layout.HistoryWidth),
	}
}

func smallLayout(t int) Layout {
	return Layout{T: t, StateWidth: 3, MoveWidth: 2, HistoryWidth: 4}
}

func assertColumnsEqual(t *testing.T, a *Accumulator) {
	t.Helper()
	for _, pos := range core.Positions {
		c := &a.cols[pos]
		n := len(c.roles)
		for name, l := range map[string]int{
			"states":         len(c.states),
			"moves":          len(c.moves),
			"histories":      len(c.histories),
			"done":           len(c.done),
			"episode_return": len(c.episodeReturn),
			"target":         len(c.target),
			"resolved":       len(c.resolved),
		} {
			require.Equal(t, n, l, "position %s column %s", pos, name)
		}
	}
}

func playRound(a *Accumulator, layout Layout, opener core.Role, marker float32) {
	role := opener
	for i := 0; i < core.RoundMoves; i++ {
		pos := core.PositionFirst
		if role != opener {
			pos = core.PositionSecond
		}
		a.Append(pos, testRecord(layout, role, marker))
		role = role.Opponent()
	}
}

func TestAccumulator_RoundBackFill(t *testing.T) {
	layout := smallLayout(4)
	a := NewAccumulator(RewardRound)

	playRound(a, layout, core.RoleFirst, 1)
	a.ResolveRound(1.0)

	for _, pos := range core.Positions {
		c := &a.cols[pos]
		require.Equal(t, core.MovesPerPosition, c.len())
		want := float32(1.0)
		if pos == core.PositionFirst {
			want = -1.0
		}
		for i := 0; i < c.len(); i++ {
			assert.Equal(t, want, c.target[i], "position %s record %d", pos, i)
			assert.True(t, c.resolved[i])
		}
	}
	assertColumnsEqual(t, a)
}

func TestAccumulator_RoundBackFillOnlyTouchesLastRound(t *testing.T) {
	layout := smallLayout(4)
	a := NewAccumulator(RewardRound)

	playRound(a, layout, core.RoleFirst, 1)
	a.ResolveRound(1.0)
	playRound(a, layout, core.RoleSecond, 2)
	a.ResolveRound(-1.0)

	for _, pos := range core.Positions {
		c := &a.cols[pos]
		require.Equal(t, 2*core.MovesPerPosition, c.len())
		sign := float32(1)
		if pos == core.PositionFirst {
			sign = -1
		}
		for i := 0; i < core.MovesPerPosition; i++ {
			assert.Equal(t, sign, c.target[i])
			assert.Equal(t, -sign, c.target[core.MovesPerPosition+i])
		}
	}
}

func TestAccumulator_ShortBufferBackFill(t *testing.T) {
	layout := smallLayout(4)
	a := NewAccumulator(RewardRound)
	a.Append(core.PositionSecond, testRecord(layout, core.RoleSecond, 0))

	a.ResolveRound(-1.0)
	assert.Equal(t, float32(-1.0), a.cols[core.PositionSecond].target[0])
	assert.Zero(t, a.Len(core.PositionFirst))
}

func TestAccumulator_EpisodeFill(t *testing.T) {
	layout := smallLayout(4)
	a := NewAccumulator(RewardEpisode)

	playRound(a, layout, core.RoleFirst, 1)
	a.ResolveRound(1.0)
	for _, pos := range core.Positions {
		for _, r := range a.cols[pos].resolved {
			require.False(t, r, "episode scheme ignores round outcomes")
		}
	}

	a.ResolveEpisode(-1.0)
	for _, pos := range core.Positions {
		c := &a.cols[pos]
		for i := 0; i < c.len(); i++ {
			want := float32(-1.0 * c.roles[i].Sign())
			assert.Equal(t, want, c.target[i])
			assert.Equal(t, i == c.len()-1, c.done[i])
		}
		last := c.len() - 1
		assert.Equal(t, float32(-1.0*c.roles[last].Sign()), c.episodeReturn[last])
	}
}

func TestAccumulator_EpisodeFillKeepsRoundTargets(t *testing.T) {
	layout := smallLayout(4)
	a := NewAccumulator(RewardRound)

	playRound(a, layout, core.RoleFirst, 1)
	a.ResolveRound(1.0)
	a.ResolveEpisode(-1.0)

	assert.Equal(t, float32(-1.0), a.cols[core.PositionFirst].target[0])
	assert.Equal(t, float32(1.0), a.cols[core.PositionSecond].target[0])
	assert.True(t, a.cols[core.PositionFirst].done[core.MovesPerPosition-1])
}

func TestAccumulator_DrainInvariant(t *testing.T) {
	const T = 4
	layout := smallLayout(T)
	a := NewAccumulator(RewardRound)

	for i := 0; i < T+1; i++ {
		a.Append(core.PositionFirst, testRecord(layout, core.RoleFirst, float32(i)))
	}
	assert.False(t, a.Ready(core.PositionFirst, T), "unresolved records are not drained")

	a.ResolveEpisode(1.0)
	require.True(t, a.Ready(core.PositionFirst, T))

	seg := a.Pop(core.PositionFirst, T)
	require.Len(t, seg, T)
	for i, r := range seg {
		assert.Equal(t, float32(i), r.State[0], "records leave in FIFO order")
	}
	assert.Equal(t, 1, a.Len(core.PositionFirst))
	assert.False(t, a.Ready(core.PositionFirst, T))

	for i := 0; i < T-1; i++ {
		a.Append(core.PositionFirst, testRecord(layout, core.RoleFirst, 0))
	}
	a.ResolveEpisode(1.0)
	require.True(t, a.Ready(core.PositionFirst, T), "exactly T resolved records form a segment")
	a.Pop(core.PositionFirst, T)
	assert.Zero(t, a.Len(core.PositionFirst))
}

func allResolved(a *Accumulator, pos core.RoundPosition) bool {
	for _, r := range a.cols[pos].resolved {
		if !r {
			return false
		}
	}
	return true
}

func TestAccumulator_RandomOperationsKeepColumnsAligned(t *testing.T) {
	const T = 5
	layout := smallLayout(T)
	rng := rand.New(rand.NewSource(7))
	a := NewAccumulator(RewardRound)

	for step := 0; step < 2000; step++ {
		switch op := rng.Intn(10); {
		case op < 6:
			pos := core.Positions[rng.Intn(core.NumPositions)]
			a.Append(pos, testRecord(layout, core.Roles[rng.Intn(core.NumRoles)], float32(step)))
		case op < 8:
			a.ResolveRound(float64(rng.Intn(3) - 1))
		default:
			a.ResolveEpisode(float64(rng.Intn(2)*2 - 1))
		}
		for _, pos := range core.Positions {
			drained := false
			for a.Ready(pos, T) {
				a.Pop(pos, T)
				drained = true
			}
			if drained && allResolved(a, pos) {
				require.Less(t, a.Len(pos), T)
			}
		}
		assertColumnsEqual(t, a)
	}
}
