package trainer

import (
	"context"
	"fmt"
	"maps"
	"math/rand"
	"slices"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/actor"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/checkpoint"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/events"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/game"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/game/core"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/learner"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/store"
	"golang.org/x/sync/errgroup"
)

// Run spawns the actors and learners and monitors them until ctx is done or
// total_frames is reached. Cancellation writes a final checkpoint and
// returns without waiting for the workers; Close does that. Reaching
// total_frames joins the learners, checkpoints and stops the actors.
func (t *Trainer) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := t.spawnActors(ctx); err != nil {
		return err
	}
	learnersDone, learnErr, numLearners, err := t.spawnLearners(ctx)
	if err != nil {
		return err
	}

	t.monitor.RegisterComponent("actors", len(t.actors))
	t.monitor.RegisterComponent("learners", numLearners)
	t.monitor.SetAlertThreshold(2*(len(t.actors)+numLearners) + 100)
	t.workers.Add(1)
	go func() {
		defer t.workers.Done()
		t.monitor.Run(ctx)
	}()

	if t.deps.Reports != nil {
		if err := t.deps.Reports.StartRun(ctx, t.runID, t.deps.Flags); err != nil {
			t.logger.Warn().Err(err).Msg("Failed to record run start")
		}
	}
	t.publish(events.NewTrainingStartedEvent(t.runID, len(t.devices), len(t.actors), numLearners, t.resumed))
	t.logger.Info().
		Int("devices", len(t.devices)).
		Int("actors", len(t.actors)).
		Int("learners", numLearners).
		Str("total_frames", humanize.Comma(t.cfg.Training.TotalFrames)).
		Msg("Training started")

	ticker := time.NewTicker(t.cfg.Training.ReportInterval)
	defer ticker.Stop()
	// back-dated so the first tick writes a checkpoint
	now := time.Now()
	lastSave := now.Add(-t.cfg.Training.SaveInterval)
	start := t.counters.Snapshot()
	t.meter.Observe(now, start.Frames, start.PositionFrames)

	for {
		select {
		case <-ctx.Done():
			return t.cancelled()

		case <-learnersDone:
			if ctx.Err() != nil {
				return t.cancelled()
			}
			if err := *learnErr; err != nil {
				t.logger.Error().Err(err).Msg("Learner failed")
				t.stopped(ReasonFailed)
				return err
			}
			t.report(ctx, time.Now())
			if err := t.checkpoint(); err != nil {
				return err
			}
			t.stopActors(ctx)
			t.stopped(ReasonTotalFrames)
			return nil

		case now := <-ticker.C:
			t.report(ctx, now)
			if now.Sub(lastSave) >= t.cfg.Training.SaveInterval {
				if err := t.checkpoint(); err != nil {
					return err
				}
				lastSave = now
			}
		}
	}
}

func (t *Trainer) cancelled() error {
	t.logger.Info().Msg("Training cancelled, writing final checkpoint")
	if err := t.checkpoint(); err != nil {
		return err
	}
	t.stopped(ReasonCancelled)
	return nil
}

func (t *Trainer) spawnActors(ctx context.Context) error {
	tc := t.cfg.Training
	seed := t.cfg.Game.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	seeds := rand.New(rand.NewSource(seed))

	for d, b := range t.buffers {
		for i := 0; i < tc.NumActors; i++ {
			session := game.NewSession(rand.New(rand.NewSource(seeds.Int63())), t.cfg.Game.MaxRounds)
			w, err := actor.NewWorker(actor.Config{
				ID:           fmt.Sprintf("%s-%d", b.Device, i),
				RunID:        t.runID,
				UnrollLength: tc.UnrollLength,
				RewardScheme: t.scheme,
				Seed:         seeds.Int63(),
			}, actor.Deps{
				Session:     session,
				Policy:      t.replicas.Get(d),
				Buffers:     b,
				Exploration: t.deps.Exploration,
				Bus:         t.deps.Bus,
				Logger:      t.deps.Logger,
			})
			if err != nil {
				return fmt.Errorf("create actor %d on %s: %w", i, b.Device, err)
			}
			t.actors = append(t.actors, w)
		}
	}

	for _, w := range t.actors {
		t.actorsWG.Add(1)
		go func() {
			defer t.actorsWG.Done()
			// failures are already logged and published by the worker
			_ = w.Run(ctx)
		}()
	}
	return nil
}

// spawnLearners starts num_threads learners per device and round position.
// The returned channel closes once every learner has returned; the first
// one to return ends the others.
func (t *Trainer) spawnLearners(ctx context.Context) (<-chan struct{}, *error, int, error) {
	tc := t.cfg.Training
	lctx, lcancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(lctx)

	var learners []*learner.Learner
	for d, b := range t.buffers {
		for thread := 0; thread < tc.NumThreads; thread++ {
			for _, pos := range core.Positions {
				l, err := learner.New(learner.Config{
					Position:    pos,
					Thread:      d*tc.NumThreads + thread,
					TotalFrames: tc.TotalFrames,
					RunID:       t.runID,
				}, learner.Deps{
					Assembler: b.Assembler(pos),
					Model:     t.model,
					Replicas:  t.replicas,
					Lock:      &t.locks[pos],
					Counters:  t.counters,
					Bus:       t.deps.Bus,
					Logger:    t.deps.Logger.With().Str("device", b.Device).Logger(),
				})
				if err != nil {
					lcancel()
					return nil, nil, 0, err
				}
				learners = append(learners, l)
			}
		}
	}

	for _, l := range learners {
		g.Go(func() error {
			defer lcancel()
			return l.Run(gctx)
		})
	}

	done := make(chan struct{})
	var err error
	t.workers.Add(1)
	go func() {
		defer t.workers.Done()
		defer close(done)
		err = g.Wait()
		lcancel()
	}()
	return done, &err, len(learners), nil
}

// stopActors sends every actor a stop sentinel and waits for them while ctx
// allows.
func (t *Trainer) stopActors(ctx context.Context) {
	for _, b := range t.buffers {
		if dropped := b.Queues.Stop(t.cfg.Training.NumActors); dropped > 0 {
			t.logger.Warn().Str("device", b.Device).Int("dropped", dropped).Msg("Stop sentinels did not fit")
		}
	}
	done := make(chan struct{})
	go func() {
		t.actorsWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (t *Trainer) report(ctx context.Context, now time.Time) {
	snap := t.counters.Snapshot()
	rates := t.meter.Observe(now, snap.Frames, snap.PositionFrames)

	var steps int64
	for _, w := range t.actors {
		steps += w.Stats().Steps
	}
	ev := t.logger.Info().
		Str("frames", humanize.Comma(snap.Frames)).
		Int64("frames_first", snap.PositionFrames[core.PositionFirst]).
		Int64("frames_second", snap.PositionFrames[core.PositionSecond]).
		Float64("fps", rates.FPS).
		Float64("fps_instant", rates.InstantFPS).
		Float64("fps_first", rates.PositionFPS[core.PositionFirst]).
		Float64("fps_second", rates.PositionFPS[core.PositionSecond]).
		Int64("actor_steps", steps).
		Float64("exploration_rate", t.deps.Exploration.Load())
	for _, k := range slices.Sorted(maps.Keys(snap.Stats)) {
		ev = ev.Float64(k, snap.Stats[k])
	}
	ev.Msg("Training progress")

	for _, b := range t.buffers {
		if v := b.Violations(); v > 0 {
			t.logger.Error().Str("device", b.Device).Int64("violations", v).Msg("Slot ownership violations detected")
		}
	}

	t.publish(events.NewReportEvent(t.runID, snap.Frames, snap.PositionFrames, rates.FPS, rates.PositionFPS, snap.Stats))
	if t.deps.Reports != nil {
		r := store.Report{
			Frames:         snap.Frames,
			PositionFrames: snap.PositionFrames,
			FPS:            rates.FPS,
			PositionFPS:    rates.PositionFPS,
			Stats:          snap.Stats,
			CreatedAt:      now,
		}
		if err := t.deps.Reports.WriteReport(ctx, t.runID, r); err != nil {
			t.logger.Warn().Err(err).Msg("Failed to persist report")
		}
	}
}

// checkpoint writes the resumable checkpoint and the evaluation snapshots.
// Both position locks are held while reading so the weights, optimizer
// states and counters belong to the same moment.
func (t *Trainer) checkpoint() error {
	if t.cfg.Training.DisableCheckpoint {
		return nil
	}
	start := time.Now()
	c := &checkpoint.Checkpoint{Flags: t.deps.Flags}
	for _, pos := range core.Positions {
		t.locks[pos].Lock()
	}
	for _, pos := range core.Positions {
		c.Weights[pos] = t.model.Weights(pos)
		c.Optimizer[pos] = t.model.OptimizerState(pos)
	}
	snap := t.counters.Snapshot()
	for _, pos := range core.Positions {
		t.locks[pos].Unlock()
	}
	c.Frames = snap.Frames
	c.PositionFrames = snap.PositionFrames
	c.Stats = snap.Stats

	if err := t.ckpt.Save(c); err != nil {
		return fmt.Errorf("checkpoint at %d frames: %w", c.Frames, err)
	}
	t.publish(events.NewCheckpointSavedEvent(t.runID, t.ckpt.Path(), c.Frames, time.Since(start)))
	return nil
}

func (t *Trainer) stopped(reason string) {
	frames := t.counters.Frames()
	if t.deps.Reports != nil {
		// ctx may already be cancelled here
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := t.deps.Reports.StopRun(ctx, t.runID); err != nil {
			t.logger.Warn().Err(err).Msg("Failed to record run stop")
		}
	}
	t.publish(events.NewTrainingStoppedEvent(t.runID, frames, reason))
	t.logger.Info().
		Str("frames", humanize.Comma(frames)).
		Str("reason", reason).
		Msg("Training stopped")
}
