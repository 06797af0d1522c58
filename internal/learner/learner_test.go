package learner

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/mitchelldurbincs/hanamikoji-zero/internal/actor"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/events"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/experience"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/game"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/game/core"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/model"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	buffers  *experience.Buffers
	model    *model.DMC
	replicas *model.ReplicaSet
	locks    [core.NumPositions]sync.Mutex
	counters *Counters
	bus      *events.EventBus
}

func newFixture(t *testing.T, unroll, numSlots int) *fixture {
	t.Helper()
	b, err := experience.NewBuffers("cpu", experience.NewLayout(unroll), numSlots, 1, 1, true, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	opt := model.DefaultOptimizerConfig()
	opt.LearningRate = 1e-3
	m := model.NewDMC(model.Config{Hidden: []int{16}, Optimizer: opt, Seed: 3})
	return &fixture{
		buffers:  b,
		model:    m,
		replicas: model.NewReplicaSet([]string{"cpu", "cpu"}, m),
		counters: NewCounters(),
		bus:      events.NewEventBus(zerolog.Nop()),
	}
}

func (f *fixture) learner(t *testing.T, pos core.RoundPosition, total int64) *Learner {
	t.Helper()
	l, err := New(Config{Position: pos, TotalFrames: total, RunID: "test"}, Deps{
		Assembler: f.buffers.Assembler(pos),
		Model:     f.model,
		Replicas:  f.replicas,
		Lock:      &f.locks[pos],
		Counters:  f.counters,
		Bus:       f.bus,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	return l
}

func randomBatch(pos core.RoundPosition, unroll int, seed int64) *experience.Batch {
	rng := rand.New(rand.NewSource(seed))
	batch := experience.NewBatch(pos, experience.NewLayout(unroll), 1)
	for _, v := range [][]float32{batch.State, batch.Move, batch.History} {
		for i := range v {
			if rng.Intn(3) == 0 {
				v[i] = 1
			}
		}
	}
	for i := range batch.Target {
		batch.Target[i] = float32(rng.Intn(2)*2 - 1)
	}
	return batch
}

func TestNewValidates(t *testing.T) {
	f := newFixture(t, 2, 1)
	_, err := New(Config{Position: core.RoundPosition(5)}, Deps{})
	assert.ErrorIs(t, err, core.ErrInvalidPosition)

	_, err = New(Config{Position: core.PositionFirst}, Deps{})
	assert.Error(t, err)

	_, err = New(Config{Position: core.PositionFirst}, Deps{
		Assembler: f.buffers.Assembler(core.PositionSecond),
		Model:     f.model,
		Replicas:  f.replicas,
		Lock:      &f.locks[core.PositionFirst],
		Counters:  f.counters,
	})
	assert.Error(t, err, "assembler position must match")
}

// After Step returns, every replica serves the new weights.
func TestStepPublishesWeights(t *testing.T) {
	f := newFixture(t, 4, 1)
	l := f.learner(t, core.PositionSecond, 1000)

	var published []*events.WeightsPublishedEvent
	f.bus.SubscribeFunc(events.TypeWeightsPublished, func(e events.Event) {
		published = append(published, e.(*events.WeightsPublishedEvent))
	})

	d, err := l.Step(randomBatch(core.PositionSecond, 4, 1))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), d.Version)

	want := f.model.Weights(core.PositionSecond)
	session := game.NewSession(testutil.NewTestRNG(9), 0)
	obs, err := session.Reset()
	require.NoError(t, err)
	for i := 0; i < f.replicas.Len(); i++ {
		r := f.replicas.Get(i)
		assert.Equal(t, want.Version, r.Version(core.PositionSecond))
		assert.Equal(t, uint64(0), r.Version(core.PositionFirst), "other position untouched")

		got, err := r.Inference(core.PositionSecond, obs)
		require.NoError(t, err)
		assert.Equal(t, model.Argmax(model.Values(&want, obs)), got)
	}

	snap := f.counters.Snapshot()
	assert.Equal(t, int64(4), snap.Frames)
	assert.Equal(t, int64(4), snap.PositionFrames[core.PositionSecond])
	assert.Contains(t, snap.Stats, "loss_second")

	require.Len(t, published, 1)
	assert.Equal(t, core.PositionSecond, published[0].Position)
	assert.Equal(t, uint64(1), published[0].Version)
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t, 2, 1)
	l := f.learner(t, core.PositionFirst, 1000)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("learner did not stop")
	}
}

// One actor feeds two learners until total frames is reached.
func TestRunReachesTotalFrames(t *testing.T) {
	const (
		unroll = core.MovesPerPosition
		total  = 10 * unroll
	)
	f := newFixture(t, unroll, 2)

	w, err := actor.NewWorker(actor.Config{UnrollLength: unroll, Seed: 5}, actor.Deps{
		Session:     testutil.NewScriptedSession(2, 1),
		Policy:      f.replicas.Get(0),
		Buffers:     f.buffers,
		Exploration: actor.NewExploration(0.1),
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)
	actorCtx, stopActor := context.WithCancel(context.Background())
	actorDone := make(chan error, 1)
	go func() { actorDone <- w.Run(actorCtx) }()

	var wg sync.WaitGroup
	errs := make([]error, core.NumPositions)
	for _, pos := range core.Positions {
		l := f.learner(t, pos, total)
		wg.Add(1)
		go func(pos core.RoundPosition) {
			defer wg.Done()
			errs[pos] = l.Run(context.Background())
		}(pos)
	}
	wg.Wait()
	stopActor()
	require.NoError(t, <-actorDone)

	for _, err := range errs {
		assert.NoError(t, err)
	}
	snap := f.counters.Snapshot()
	assert.GreaterOrEqual(t, snap.Frames, int64(total))
	for _, pos := range core.Positions {
		assert.Positive(t, snap.PositionFrames[pos])
		assert.Equal(t, f.model.Weights(pos).Version, f.replicas.Get(1).Version(pos))
	}
	assert.Zero(t, f.buffers.Violations())
}
