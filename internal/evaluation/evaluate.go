package evaluation

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/mitchelldurbincs/hanamikoji-zero/internal/game"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/game/core"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Config shapes an evaluation run.
type Config struct {
	Games     int
	Workers   int
	MaxRounds int
	Seed      int64
	// OnGame is called after every finished game and must be safe for
	// concurrent use.
	OnGame func()
}

// Result counts wins per seat.
type Result struct {
	Games int
	Wins  [core.NumRoles]int
	Ties  int
}

// WinRate is the share of decided games won by r.
func (r Result) WinRate(role core.Role) float64 {
	decided := r.Wins[core.RoleFirst] + r.Wins[core.RoleSecond]
	if decided == 0 {
		return 0
	}
	return float64(r.Wins[role]) / float64(decided)
}

func (r *Result) add(o Result) {
	r.Games += o.Games
	r.Ties += o.Ties
	for i := range r.Wins {
		r.Wins[i] += o.Wins[i]
	}
}

// Evaluate plays cfg.Games games with seats[RoleFirst] against
// seats[RoleSecond], split across cfg.Workers goroutines.
func Evaluate(ctx context.Context, cfg Config, seats [core.NumRoles]PlayerSpec, logger zerolog.Logger) (Result, error) {
	if cfg.Games <= 0 {
		return Result{}, fmt.Errorf("games must be positive, got %d", cfg.Games)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Workers > cfg.Games {
		cfg.Workers = cfg.Games
	}
	logger = logger.With().Str("component", "evaluation").Logger()

	results := make([]Result, cfg.Workers)
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Workers; w++ {
		games := cfg.Games / cfg.Workers
		if w < cfg.Games%cfg.Workers {
			games++
		}
		seed := cfg.Seed + int64(w)
		g.Go(func() error {
			res, err := playGames(ctx, games, cfg, seed, seats)
			results[w] = res
			return err
		})
	}
	err := g.Wait()

	var total Result
	for _, r := range results {
		total.add(r)
	}
	logger.Info().
		Int("games", total.Games).
		Int("wins_first", total.Wins[core.RoleFirst]).
		Int("wins_second", total.Wins[core.RoleSecond]).
		Int("ties", total.Ties).
		Msg("Evaluation finished")
	return total, err
}

func playGames(ctx context.Context, n int, cfg Config, seed int64, seats [core.NumRoles]PlayerSpec) (Result, error) {
	rng := rand.New(rand.NewSource(seed))
	var players [core.NumRoles]Player
	for _, r := range core.Roles {
		p, err := seats[r].New(rand.New(rand.NewSource(rng.Int63())))
		if err != nil {
			return Result{}, err
		}
		players[r] = p
	}

	session := game.NewSession(rng, cfg.MaxRounds)
	obs, err := session.Reset()
	if err != nil {
		return Result{}, err
	}
	var res Result
	for res.Games < n {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		idx, err := players[obs.Role].SelectMove(obs)
		if err != nil {
			return res, fmt.Errorf("%s seat: %w", obs.Role, err)
		}
		step, err := session.Step(idx)
		if err != nil {
			return res, err
		}
		if step.Done {
			res.Games++
			switch {
			case step.Outcome > 0:
				res.Wins[core.RoleFirst]++
			case step.Outcome < 0:
				res.Wins[core.RoleSecond]++
			default:
				res.Ties++
			}
			if cfg.OnGame != nil {
				cfg.OnGame()
			}
		}
		obs = step.Observation
	}
	return res, nil
}
