package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"

	"github.com/mitchelldurbincs/hanamikoji-zero/internal/config"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/evaluation"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/game/core"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	first := flag.String("first", "random", "Player in the first seat: random, a checkpoint directory or first.ckpt,second.ckpt")
	second := flag.String("second", "random", "Player in the second seat")
	games := flag.Int("games", 10000, "Number of games to play")
	workers := flag.Int("workers", runtime.NumCPU(), "Number of games played in parallel")
	seed := flag.Int64("seed", 0, "Random seed (0 uses the current time)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	quiet := flag.Bool("quiet", false, "Hide the progress bar")
	flag.Parse()

	_ = godotenv.Load()
	setupLogging(*logLevel)

	if err := config.Init(*configPath); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize config")
	}
	cfg := config.Get()

	var seats [core.NumRoles]evaluation.PlayerSpec
	for i, arg := range []string{*first, *second} {
		spec, err := evaluation.ParsePlayer(arg)
		if err != nil {
			log.Fatal().Err(err).Str("seat", core.Roles[i].String()).Msg("Failed to load player")
		}
		seats[i] = spec
		log.Info().Str("seat", core.Roles[i].String()).Str("player", spec.Kind.String()).Str("source", spec.Source).Msg("Seated player")
	}

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	evalCfg := evaluation.Config{
		Games:     *games,
		Workers:   *workers,
		MaxRounds: cfg.Game.MaxRounds,
		Seed:      *seed,
	}
	if !*quiet {
		bar := progressbar.Default(int64(*games), "games")
		evalCfg.OnGame = func() { _ = bar.Add(1) }
		defer bar.Finish()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	res, err := evaluation.Evaluate(ctx, evalCfg, seats, log.Logger)
	if err != nil {
		log.Error().Err(err).Int("games_played", res.Games).Msg("Evaluation stopped early")
	}
	log.Info().
		Int("games", res.Games).
		Int("ties", res.Ties).
		Float64("win_rate_first", res.WinRate(core.RoleFirst)).
		Float64("win_rate_second", res.WinRate(core.RoleSecond)).
		Dur("took", time.Since(start)).
		Msgf("WP results: first %.4f : second %.4f", res.WinRate(core.RoleFirst), res.WinRate(core.RoleSecond))
}

func setupLogging(level string) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if os.Getenv("APP_ENV") == "production" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		})
	}
}
