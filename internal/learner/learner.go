package learner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mitchelldurbincs/hanamikoji-zero/internal/events"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/experience"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/game/core"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/model"
	"github.com/rs/zerolog"
)

// Config identifies one learner goroutine.
type Config struct {
	Position    core.RoundPosition
	Thread      int
	TotalFrames int64
	RunID       string
}

// Deps are shared between all learners. Lock must be the same mutex for
// every learner of a position.
type Deps struct {
	Assembler *experience.Assembler
	Model     model.ValueModel
	Replicas  *model.ReplicaSet
	Lock      *sync.Mutex
	Counters  *Counters
	// Bus may be nil.
	Bus    events.Publisher
	Logger zerolog.Logger
}

// Learner repeatedly assembles a batch for its round position, updates the
// model and publishes the new weights to every replica.
type Learner struct {
	cfg    Config
	deps   Deps
	logger zerolog.Logger
}

func New(cfg Config, deps Deps) (*Learner, error) {
	if !cfg.Position.Valid() {
		return nil, fmt.Errorf("%w: %d", core.ErrInvalidPosition, int(cfg.Position))
	}
	if deps.Assembler == nil || deps.Model == nil || deps.Replicas == nil || deps.Lock == nil || deps.Counters == nil {
		return nil, errors.New("learner needs an assembler, a model, replicas, a lock and counters")
	}
	if deps.Assembler.Position() != cfg.Position {
		return nil, fmt.Errorf("assembler serves %s, learner %s", deps.Assembler.Position(), cfg.Position)
	}
	logger := deps.Logger.With().
		Str("component", "learner").
		Str("position", cfg.Position.String()).
		Int("thread", cfg.Thread).
		Logger()
	return &Learner{cfg: cfg, deps: deps, logger: logger}, nil
}

// Run learns until the global frame counter reaches the configured total or
// ctx is done. Neither is an error.
func (l *Learner) Run(ctx context.Context) error {
	l.logger.Debug().Int64("total_frames", l.cfg.TotalFrames).Msg("Learner started")
	for l.deps.Counters.Frames() < l.cfg.TotalFrames {
		batch, err := l.deps.Assembler.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("assemble %s batch: %w", l.cfg.Position, err)
		}
		if _, err := l.Step(batch); err != nil {
			return err
		}
	}
	l.logger.Debug().Msg("Learner reached total frames")
	return nil
}

// Step runs one update on batch and publishes the result. Updates of the
// same position are serialized.
func (l *Learner) Step(batch *experience.Batch) (model.Diagnostics, error) {
	pos := l.cfg.Position
	l.deps.Lock.Lock()
	d, err := l.deps.Model.Update(pos, batch)
	if err != nil {
		l.deps.Lock.Unlock()
		return d, fmt.Errorf("update %s: %w", pos, err)
	}
	l.deps.Replicas.Publish(pos, l.deps.Model.Weights(pos))
	snap := l.deps.Counters.Add(pos, batch.Frames(), d)
	l.deps.Lock.Unlock()

	l.logger.Trace().
		Float64("loss", d.Loss).
		Float64("grad_norm", d.GradNorm).
		Uint64("version", d.Version).
		Int64("frames", snap.Frames).
		Msg("Learner step")
	if l.deps.Bus != nil {
		l.deps.Bus.Publish(events.NewWeightsPublishedEvent(l.cfg.RunID, pos, d.Version, d.Loss))
	}
	return d, nil
}
