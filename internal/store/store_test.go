package store

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/game/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestDB connects to HMZ_TEST_POSTGRES_DSN or skips.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("HMZ_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("HMZ_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	db, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Ping(ctx))
	require.NoError(t, Migrate(ctx, db))
	return db
}

func TestSchemaEmbedded(t *testing.T) {
	b, err := schema.ReadFile("schema.sql")
	require.NoError(t, err)
	assert.Contains(t, string(b), "CREATE TABLE IF NOT EXISTS reports")
}

func TestReportRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	runID := "test-" + uuid.NewString()

	require.NoError(t, db.StartRun(ctx, runID, map[string]string{"training.num_actors": "5"}))
	t.Cleanup(func() { db.Exec(context.Background(), `DELETE FROM runs WHERE id = $1`, runID) })

	_, err := db.LatestReport(ctx, runID)
	assert.ErrorIs(t, err, ErrNoReports)

	for i, frames := range []int64{100, 300} {
		require.NoError(t, db.WriteReport(ctx, runID, Report{
			Frames:         frames,
			PositionFrames: [core.NumPositions]int64{frames / 2, frames / 2},
			FPS:            float64(10 * (i + 1)),
			PositionFPS:    [core.NumPositions]float64{5, 5},
			Stats:          map[string]float64{"loss_first": 0.5},
		}))
	}

	got, err := db.LatestReport(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, int64(300), got.Frames)
	assert.Equal(t, int64(150), got.PositionFrames[core.PositionSecond])
	assert.Equal(t, 20.0, got.FPS)
	assert.Equal(t, 0.5, got.Stats["loss_first"])

	require.NoError(t, db.StopRun(ctx, runID))
}
