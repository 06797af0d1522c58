package testutil

import (
	"testing"

	"github.com/mitchelldurbincs/hanamikoji-zero/internal/game/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptedSessionRounds(t *testing.T) {
	s := NewScriptedSession(2, -1)
	obs, err := s.Reset()
	require.NoError(t, err)
	assert.Equal(t, core.RoleFirst, obs.Role)
	assert.Equal(t, core.PositionFirst, obs.Position)

	perPos := map[core.RoundPosition]int{}
	rewards := 0
	for i := 0; i < 2*core.RoundMoves; i++ {
		perPos[obs.Position]++
		res, err := s.Step(0)
		require.NoError(t, err)
		if res.RoundReward != nil {
			rewards++
		}
		if i == core.RoundMoves-1 {
			assert.Equal(t, core.RoleSecond, res.Observation.Role, "opener alternates")
			assert.Equal(t, core.PositionFirst, res.Observation.Position)
		}
		if i == 2*core.RoundMoves-1 {
			assert.True(t, res.Done)
			assert.Equal(t, -1.0, res.Outcome)
		} else {
			assert.False(t, res.Done)
		}
		obs = res.Observation
	}
	assert.Equal(t, 2, rewards)
	assert.Equal(t, 2*core.MovesPerPosition, perPos[core.PositionFirst])
	assert.Equal(t, 2*core.MovesPerPosition, perPos[core.PositionSecond])
	assert.Equal(t, int64(1), s.Games())
}

func TestScriptedSessionIllegalMove(t *testing.T) {
	s := NewScriptedSession(1, 1)
	_, err := s.Step(0)
	assert.ErrorIs(t, err, core.ErrNotStarted)

	_, err = s.Reset()
	require.NoError(t, err)
	_, err = s.Step(s.NumMoves)
	assert.ErrorIs(t, err, core.ErrIllegalMove)
}
