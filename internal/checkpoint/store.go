package checkpoint

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/game/core"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/model"
	"github.com/rs/zerolog"
)

// ModelFile is the name of the resumable checkpoint inside a run directory.
const ModelFile = "model.ckpt"

// Store reads and writes the checkpoints of one run under <saveDir>/<xpid>.
type Store struct {
	dir    string
	logger zerolog.Logger
}

// NewStore creates the run directory if needed.
func NewStore(saveDir, xpid string, logger zerolog.Logger) (*Store, error) {
	if xpid == "" {
		return nil, errors.New("checkpoint store needs a run id")
	}
	dir := filepath.Join(saveDir, xpid)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir %s: %w", dir, err)
	}
	return &Store{
		dir:    dir,
		logger: logger.With().Str("component", "checkpoint").Str("dir", dir).Logger(),
	}, nil
}

// Dir returns the run directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the location of the resumable checkpoint.
func (s *Store) Path() string { return filepath.Join(s.dir, ModelFile) }

// SnapshotPath returns where the evaluation weights of pos at frames live.
func (s *Store) SnapshotPath(pos core.RoundPosition, frames int64) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_weights_%d.ckpt", pos, frames))
}

// Save replaces the resumable checkpoint and writes one evaluation snapshot
// per round position. The checkpoint file is never left half written.
func (s *Store) Save(c *Checkpoint) error {
	start := time.Now()
	if c.SavedAt.IsZero() {
		c.SavedAt = start
	}
	data, err := Marshal(c)
	if err != nil {
		return err
	}
	if err := writeAtomic(s.Path(), data); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	for _, pos := range core.Positions {
		path := s.SnapshotPath(pos, c.Frames)
		if err := writeAtomic(path, MarshalParams(c.Weights[pos])); err != nil {
			return fmt.Errorf("write %s snapshot: %w", pos, err)
		}
	}
	s.logger.Info().
		Str("frames", humanize.Comma(c.Frames)).
		Str("size", humanize.Bytes(uint64(len(data)))).
		Dur("took", time.Since(start)).
		Msg("Saved checkpoint")
	return nil
}

// Load reads the resumable checkpoint. It returns ErrNotFound when none
// exists.
func (s *Store) Load() (*Checkpoint, error) {
	data, err := os.ReadFile(s.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	c, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.Path(), err)
	}
	s.logger.Info().
		Str("frames", humanize.Comma(c.Frames)).
		Time("saved_at", c.SavedAt).
		Msg("Loaded checkpoint")
	return c, nil
}

// LoadWeights reads an evaluation snapshot.
func LoadWeights(path string) (model.Params, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return model.Params{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return model.Params{}, fmt.Errorf("read weights: %w", err)
	}
	p, err := UnmarshalParams(data)
	if err != nil {
		return model.Params{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return p, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
