package actor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/events"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/experience"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/game"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/game/core"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/model"
	"github.com/rs/zerolog"
)

// ErrWorkerPanic wraps a panic recovered inside a worker.
var ErrWorkerPanic = errors.New("actor worker panicked")

// Config identifies a worker and shapes the segments it produces.
type Config struct {
	// ID defaults to a random UUID.
	ID           string
	RunID        string
	UnrollLength int
	RewardScheme experience.RewardScheme
	Seed         int64
}

// Deps are the shared pieces a worker plugs into.
type Deps struct {
	Session     game.Session
	Policy      model.Policy
	Buffers     *experience.Buffers
	Exploration *Exploration
	// Bus may be nil.
	Bus    events.Publisher
	Logger zerolog.Logger
}

// Stats is a snapshot of a worker's progress.
type Stats struct {
	Steps    int64
	Segments int64
	Episodes int64
}

// Worker plays games against itself and turns the decisions into segments
// on its device's Full queues.
type Worker struct {
	id     string
	runID  string
	t      int
	deps   Deps
	acc    *experience.Accumulator
	rng    *rand.Rand
	logger zerolog.Logger

	steps    atomic.Int64
	segments atomic.Int64
	episodes atomic.Int64
}

func NewWorker(cfg Config, deps Deps) (*Worker, error) {
	if cfg.UnrollLength <= 0 {
		return nil, fmt.Errorf("unroll length must be positive, got %d", cfg.UnrollLength)
	}
	if deps.Session == nil || deps.Policy == nil || deps.Buffers == nil {
		return nil, errors.New("actor worker needs a session, a policy and buffers")
	}
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	logger := deps.Logger.With().
		Str("component", "actor").
		Str("actor_id", cfg.ID).
		Str("device", deps.Buffers.Device).
		Logger()
	return &Worker{
		id:     cfg.ID,
		runID:  cfg.RunID,
		t:      cfg.UnrollLength,
		deps:   deps,
		acc:    experience.NewAccumulator(cfg.RewardScheme),
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		logger: logger,
	}, nil
}

func (w *Worker) ID() string { return w.id }

func (w *Worker) Stats() Stats {
	return Stats{Steps: w.steps.Load(), Segments: w.segments.Load(), Episodes: w.episodes.Load()}
}

// Run plays until it pops a stop sentinel or ctx is done, both of which
// return nil and leave partial buffers unflushed. Any other failure is
// logged with the worker's identity and returned.
func (w *Worker) Run(ctx context.Context) (err error) {
	w.logger.Debug().Int("unroll_length", w.t).Msg("Actor started")
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrWorkerPanic, r)
			w.fail(err, string(debug.Stack()))
		}
	}()

	err = w.play(ctx)
	switch {
	case errors.Is(err, experience.ErrStopped):
		w.logger.Debug().Int64("steps", w.steps.Load()).Msg("Actor stopped")
		return nil
	case ctx.Err() != nil:
		return nil
	case err != nil:
		w.fail(err, "")
		return err
	}
	return nil
}

func (w *Worker) play(ctx context.Context) error {
	obs, err := w.deps.Session.Reset()
	if err != nil {
		return fmt.Errorf("reset session: %w", err)
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		idx, err := w.choose(obs)
		if err != nil {
			return err
		}
		w.acc.Append(obs.Position, experience.Record{
			Role:    obs.Role,
			State:   obs.State,
			Move:    obs.MoveFeatures[idx],
			History: obs.History,
		})

		res, err := w.deps.Session.Step(idx)
		if err != nil {
			return fmt.Errorf("step move %d: %w", idx, err)
		}
		w.steps.Add(1)

		resolved := false
		if res.RoundReward != nil {
			w.acc.ResolveRound(*res.RoundReward)
			resolved = true
		}
		if res.Done {
			w.acc.ResolveEpisode(res.Outcome)
			w.episodes.Add(1)
			resolved = true
		}
		if resolved {
			if err := w.drain(ctx); err != nil {
				return err
			}
		}
		obs = res.Observation
	}
}

// choose is epsilon-greedy over the policy's arg-max.
func (w *Worker) choose(obs *game.Observation) (int, error) {
	if len(obs.Moves) == 0 {
		return 0, fmt.Errorf("%w: no legal moves offered", core.ErrIllegalMove)
	}
	idx, err := w.deps.Policy.Inference(obs.Position, obs)
	if err != nil {
		return 0, fmt.Errorf("inference: %w", err)
	}
	// exploration overrides the greedy choice after the policy has seen obs
	if eps := w.deps.Exploration.Load(); eps > 0 && w.rng.Float64() < eps {
		return w.rng.Intn(len(obs.Moves)), nil
	}
	return idx, nil
}

// drain moves every complete resolved segment into the pool. Popping a free
// slot blocks while the learners are behind.
func (w *Worker) drain(ctx context.Context) error {
	b := w.deps.Buffers
	for _, pos := range core.Positions {
		for w.acc.Ready(pos, w.t) {
			slot, err := b.Queues.Free[pos].Pop(ctx)
			if err != nil {
				return err
			}
			b.Ledgers[pos].Transition(slot, experience.OwnerFree, experience.OwnerActor)
			if err := b.Pools[pos].WriteSegment(slot, w.acc.Pop(pos, w.t)); err != nil {
				return fmt.Errorf("write %s segment to slot %d: %w", pos, slot, err)
			}
			b.Ledgers[pos].Transition(slot, experience.OwnerActor, experience.OwnerFull)
			if err := b.Queues.Full[pos].Push(ctx, slot); err != nil {
				return err
			}
			w.segments.Add(1)
		}
	}
	return nil
}

func (w *Worker) fail(err error, stack string) {
	ev := w.logger.Error().Err(err).Int64("steps", w.steps.Load())
	if stack != "" {
		ev = ev.Str("stack", stack)
	}
	ev.Msg("Actor failed")
	if w.deps.Bus != nil {
		w.deps.Bus.Publish(events.NewActorFailedEvent(w.runID, w.id, w.deps.Buffers.Device, err, stack))
	}
}
