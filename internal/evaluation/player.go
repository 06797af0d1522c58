package evaluation

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitchelldurbincs/hanamikoji-zero/internal/checkpoint"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/game"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/game/core"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/model"
)

// PlayerKind is the closed set of players an evaluation can seat.
type PlayerKind int

const (
	PlayerModel PlayerKind = iota
	PlayerRandom
)

func (k PlayerKind) String() string {
	switch k {
	case PlayerModel:
		return "model"
	case PlayerRandom:
		return "random"
	default:
		return fmt.Sprintf("player(%d)", int(k))
	}
}

// Player picks a move at a decision point.
type Player interface {
	SelectMove(obs *game.Observation) (int, error)
}

// PlayerSpec describes a seat. Weights are only used by PlayerModel and are
// indexed by round position.
type PlayerSpec struct {
	Kind    PlayerKind
	Weights [core.NumPositions]model.Params
	Source  string
}

// New builds a player for one worker. Model players share the read-only
// weights; random players get their own generator.
func (s PlayerSpec) New(rng *rand.Rand) (Player, error) {
	switch s.Kind {
	case PlayerModel:
		for _, pos := range core.Positions {
			if len(s.Weights[pos].Layers) == 0 {
				return nil, fmt.Errorf("model player %s has no %s weights", s.Source, pos)
			}
		}
		return &modelPlayer{weights: &s.Weights}, nil
	case PlayerRandom:
		return &randomPlayer{rng: rng}, nil
	}
	return nil, fmt.Errorf("unknown player kind %s", s.Kind)
}

type modelPlayer struct {
	weights *[core.NumPositions]model.Params
}

func (p *modelPlayer) SelectMove(obs *game.Observation) (int, error) {
	if len(obs.Moves) == 0 {
		return 0, core.ErrIllegalMove
	}
	if len(obs.Moves) == 1 {
		return 0, nil
	}
	return model.Argmax(model.Values(&p.weights[obs.Position], obs)), nil
}

type randomPlayer struct {
	rng *rand.Rand
}

func (p *randomPlayer) SelectMove(obs *game.Observation) (int, error) {
	if len(obs.Moves) == 0 {
		return 0, core.ErrIllegalMove
	}
	return p.rng.Intn(len(obs.Moves)), nil
}

// ParsePlayer reads a seat description: "random", a directory or two
// snapshot files "a.ckpt,b.ckpt" for the first and second round position.
// A directory supplies <position>.ckpt, or else its newest
// <position>_weights_<frames>.ckpt.
func ParsePlayer(s string) (PlayerSpec, error) {
	s = strings.TrimSpace(s)
	if s == "random" {
		return PlayerSpec{Kind: PlayerRandom, Source: s}, nil
	}

	var paths [core.NumPositions]string
	if first, second, ok := strings.Cut(s, ","); ok {
		paths = [core.NumPositions]string{strings.TrimSpace(first), strings.TrimSpace(second)}
	} else {
		info, err := os.Stat(s)
		if err != nil {
			return PlayerSpec{}, fmt.Errorf("player %q: %w", s, err)
		}
		if !info.IsDir() {
			return PlayerSpec{}, errors.New("a model player needs a directory or two comma separated snapshot files")
		}
		for _, pos := range core.Positions {
			path, err := snapshotIn(s, pos)
			if err != nil {
				return PlayerSpec{}, err
			}
			paths[pos] = path
		}
	}

	spec := PlayerSpec{Kind: PlayerModel, Source: s}
	for _, pos := range core.Positions {
		w, err := checkpoint.LoadWeights(paths[pos])
		if err != nil {
			return PlayerSpec{}, fmt.Errorf("load %s weights: %w", pos, err)
		}
		spec.Weights[pos] = w
	}
	if err := spec.Weights[core.PositionFirst].SameShape(spec.Weights[core.PositionSecond]); err != nil {
		return PlayerSpec{}, fmt.Errorf("player %q: %w", s, err)
	}
	return spec, nil
}

// snapshotIn finds the weights of pos inside dir.
func snapshotIn(dir string, pos core.RoundPosition) (string, error) {
	plain := filepath.Join(dir, pos.String()+".ckpt")
	if _, err := os.Stat(plain); err == nil {
		return plain, nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, pos.String()+"_weights_*.ckpt"))
	if err != nil {
		return "", err
	}
	best, bestFrames := "", int64(-1)
	for _, m := range matches {
		name := strings.TrimSuffix(filepath.Base(m), ".ckpt")
		frames, err := strconv.ParseInt(strings.TrimPrefix(name, pos.String()+"_weights_"), 10, 64)
		if err != nil {
			continue
		}
		if frames > bestFrames {
			best, bestFrames = m, frames
		}
	}
	if best == "" {
		return "", fmt.Errorf("%w: no %s weights in %s", checkpoint.ErrNotFound, pos, dir)
	}
	return best, nil
}
