package trainer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/actor"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/checkpoint"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/config"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/events"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/experience"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/game/core"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/learner"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/model"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/monitoring"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/store"
	"github.com/rs/zerolog"
)

// Stop reasons carried by the training.stopped event.
const (
	ReasonCancelled   = "cancelled"
	ReasonTotalFrames = "total_frames"
	ReasonFailed      = "learner_failed"
)

// ReportSink persists run metadata and monitor ticks. *store.DB satisfies it.
type ReportSink interface {
	StartRun(ctx context.Context, runID string, flags map[string]string) error
	StopRun(ctx context.Context, runID string) error
	WriteReport(ctx context.Context, runID string, r store.Report) error
}

var _ ReportSink = (*store.DB)(nil)

// Deps are optional collaborators. A nil Bus or Reports is skipped and a
// nil Exploration is created from the configured rate.
type Deps struct {
	Bus         events.Publisher
	Reports     ReportSink
	Exploration *actor.Exploration
	// Flags are recorded in every checkpoint.
	Flags  map[string]string
	Logger zerolog.Logger
}

// Trainer owns the experience buffers, the model and every worker of a run.
type Trainer struct {
	cfg      config.Config
	runID    string
	devices  []string
	scheme   experience.RewardScheme
	deps     Deps
	logger   zerolog.Logger
	model    *model.DMC
	replicas *model.ReplicaSet
	buffers  []*experience.Buffers
	ckpt     *checkpoint.Store
	counters *learner.Counters
	locks    [core.NumPositions]sync.Mutex
	meter    *monitoring.ThroughputMeter
	monitor  *monitoring.GoroutineMonitor
	actors   []*actor.Worker
	resumed  int64

	actorsWG  sync.WaitGroup
	workers   sync.WaitGroup
	closeOnce sync.Once
}

// New validates cfg, allocates the buffers of every actor device and
// restores the last checkpoint when training.load_model is set. No worker
// runs until Run.
func New(cfg *config.Config, deps Deps) (*Trainer, error) {
	if cfg == nil {
		return nil, errors.New("trainer needs a config")
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	tc := cfg.Training
	devices, err := config.ParseDevices(tc.Devices)
	if err != nil {
		return nil, err
	}
	scheme, err := experience.ParseRewardScheme(tc.RewardScheme)
	if err != nil {
		return nil, err
	}
	if deps.Exploration == nil {
		deps.Exploration = actor.NewExploration(tc.ExplorationRate)
	}

	logger := deps.Logger.With().Str("component", "trainer").Str("run_id", tc.Xpid).Logger()
	t := &Trainer{
		cfg:      *cfg,
		runID:    tc.Xpid,
		devices:  devices[:tc.NumActorDevices],
		scheme:   scheme,
		deps:     deps,
		logger:   logger,
		counters: learner.NewCounters(),
		meter:    monitoring.NewThroughputMeter(monitoring.DefaultWindow),
		monitor:  monitoring.NewGoroutineMonitor(deps.Logger, tc.ReportInterval),
	}

	o := cfg.Optimizer
	opt := model.OptimizerConfig{
		LearningRate: o.LearningRate,
		Momentum:     o.Momentum,
		Epsilon:      o.Epsilon,
		Alpha:        o.Alpha,
		MaxGradNorm:  o.MaxGradNorm,
	}
	t.model = model.NewDMC(model.Config{Hidden: cfg.Model.HiddenSizes, Optimizer: opt, Seed: cfg.Model.Seed})
	t.replicas = model.NewReplicaSet(t.devices, t.model)

	layout := experience.NewLayout(tc.UnrollLength)
	for _, device := range t.devices {
		b, err := experience.NewBuffers(device, layout, tc.NumBuffers, tc.BatchSize, tc.NumActors, tc.DebugSlotLedger, deps.Logger)
		if err != nil {
			t.Close()
			return nil, err
		}
		t.buffers = append(t.buffers, b)
		logger.Info().
			Str("device", device).
			Int("slots", tc.NumBuffers).
			Str("pool_size", humanize.Bytes(uint64(b.Bytes()))).
			Msg("Allocated experience buffers")
	}

	if t.ckpt, err = checkpoint.NewStore(tc.SaveDir, tc.Xpid, deps.Logger); err != nil {
		t.Close()
		return nil, err
	}
	if tc.LoadModel {
		if err := t.restore(); err != nil {
			t.Close()
			return nil, err
		}
	}
	return t, nil
}

func (t *Trainer) restore() error {
	c, err := t.ckpt.Load()
	if errors.Is(err, checkpoint.ErrNotFound) {
		t.logger.Info().Str("path", t.ckpt.Path()).Msg("No checkpoint to resume, starting fresh")
		return nil
	}
	if err != nil {
		return fmt.Errorf("restore checkpoint: %w", err)
	}
	for _, pos := range core.Positions {
		if err := t.model.SetWeights(pos, c.Weights[pos]); err != nil {
			return fmt.Errorf("restore %s weights: %w", pos, err)
		}
		if err := t.model.SetOptimizerState(pos, c.Optimizer[pos]); err != nil {
			return fmt.Errorf("restore %s optimizer: %w", pos, err)
		}
		t.replicas.Publish(pos, c.Weights[pos])
	}
	t.counters.Restore(learner.Snapshot{Frames: c.Frames, PositionFrames: c.PositionFrames, Stats: c.Stats})
	t.resumed = c.Frames
	t.logger.Info().
		Str("frames", humanize.Comma(c.Frames)).
		Time("saved_at", c.SavedAt).
		Msg("Resumed from checkpoint")
	return nil
}

// Snapshot returns the current training counters.
func (t *Trainer) Snapshot() learner.Snapshot { return t.counters.Snapshot() }

// Model exposes the learner-side model.
func (t *Trainer) Model() model.ValueModel { return t.model }

// Exploration is the live exploration rate shared by every actor.
func (t *Trainer) Exploration() *actor.Exploration { return t.deps.Exploration }

// CheckpointDir is where checkpoints and evaluation snapshots are written.
func (t *Trainer) CheckpointDir() string { return t.ckpt.Dir() }

// Actors returns the workers spawned by Run.
func (t *Trainer) Actors() []*actor.Worker { return t.actors }

// Close waits for every worker spawned by Run to return and releases the
// buffers. Call it after Run has returned.
func (t *Trainer) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.actorsWG.Wait()
		t.workers.Wait()
		var errs []error
		for _, b := range t.buffers {
			errs = append(errs, b.Close())
		}
		err = errors.Join(errs...)
	})
	return err
}

// Shutdown is Close bounded by ctx. If ctx ends first it returns ctx.Err()
// and the workers are left to finish on their own; the process is expected
// to exit.
func (t *Trainer) Shutdown(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- t.Close() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Trainer) publish(ev events.Event) {
	if t.deps.Bus != nil {
		t.deps.Bus.Publish(ev)
	}
}
