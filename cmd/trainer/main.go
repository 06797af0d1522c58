package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/mitchelldurbincs/hanamikoji-zero/internal/actor"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/config"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/events"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/events/subscribers"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/store"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/trainer"
)

// trainerService is the health service name reported by the trainer.
const trainerService = "hanamikoji.Trainer"

func main() {
	configPath := flag.String("config", "", "Path to config file")
	env := flag.String("env", "", "Environment overlay to merge (config.<env>.yaml)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error) (empty to use config default)")
	port := flag.Int("port", -1, "Health server port (-1 to use config default, 0 to disable)")
	xpid := flag.String("xpid", "", "Experiment id (empty to use config default)")
	loadModel := flag.Bool("load-model", false, "Resume from the last checkpoint of the experiment")
	progress := flag.Bool("progress", false, "Show a progress bar towards total_frames")
	flag.Parse()

	// .env is optional
	_ = godotenv.Load()

	if err := config.Init(*configPath); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize config")
	}
	if *env != "" {
		if err := config.LoadEnvironmentConfig(*env); err != nil {
			log.Fatal().Err(err).Str("env", *env).Msg("Failed to load environment config")
		}
	}
	if *xpid != "" {
		config.Set("training.xpid", *xpid)
	}
	if *loadModel {
		config.Set("training.load_model", true)
	}
	cfg := config.Get()
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}

	if *logLevel == "" {
		*logLevel = cfg.Server.LogLevel
	}
	if *port == -1 {
		*port = cfg.Server.Port
	}
	setupLogging(*logLevel)

	bus := events.NewEventBus(log.Logger)
	eventLogger := subscribers.NewLoggerSubscriber("trainer-events", log.Logger, zerolog.InfoLevel)
	eventLogger.SetEventFilter([]string{
		events.TypeTrainingStarted,
		events.TypeTrainingStopped,
		events.TypeCheckpointSaved,
		events.TypeActorFailed,
	})
	eventLogger.SetDevMode(os.Getenv("APP_ENV") != "production" && *logLevel == "debug")
	bus.Subscribe(eventLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := trainer.Deps{
		Bus:         bus,
		Exploration: actor.NewExploration(cfg.Training.ExplorationRate),
		Flags:       config.Flags(),
		Logger:      log.Logger,
	}
	if dsn := cfg.Storage.PostgresDSN; dsn != "" {
		db, err := openReportStore(ctx, dsn)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open report store")
		}
		defer db.Close()
		deps.Reports = db
	}

	// exploration_rate is the one setting that applies without a restart
	config.WatchConfig(func(next *config.Config) {
		if next.Training.ExplorationRate != deps.Exploration.Load() {
			deps.Exploration.Store(next.Training.ExplorationRate)
			log.Info().Float64("exploration_rate", next.Training.ExplorationRate).Msg("Exploration rate reloaded")
		}
	})

	tr, err := trainer.New(cfg, deps)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create trainer")
	}

	if *progress {
		bar := progressbar.NewOptions64(cfg.Training.TotalFrames,
			progressbar.OptionSetDescription(cfg.Training.Xpid),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionThrottle(time.Second),
		)
		bus.SubscribeFunc(events.TypeReport, func(e events.Event) {
			_ = bar.Set64(e.(*events.ReportEvent).Frames)
		})
		defer bar.Finish()
	}

	var grpcServer *grpc.Server
	var healthServer *health.Server
	if *port > 0 {
		grpcServer, healthServer = serveHealth(cfg.Server.Host, *port, cfg.Server.EnableReflection)
	}

	log.Info().
		Str("xpid", cfg.Training.Xpid).
		Str("save_dir", cfg.Training.SaveDir).
		Str("config_file", config.ConfigFilePath()).
		Msg("Starting trainer")

	runErr := tr.Run(ctx)

	shutdownCtx, cancel := shutdownContext(cfg.Server.ShutdownTimeout)
	defer cancel()
	if grpcServer != nil {
		stopHealth(shutdownCtx, grpcServer, healthServer)
	}
	switch err := tr.Shutdown(shutdownCtx); {
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn().Dur("timeout", cfg.Server.ShutdownTimeout).Msg("Workers still running at shutdown deadline, exiting anyway")
	case err != nil:
		log.Error().Err(err).Msg("Failed to release experience buffers")
	}
	if runErr != nil {
		log.Fatal().Err(runErr).Msg("Training failed")
	}
	log.Info().Msg("Trainer shutdown complete")
}

func openReportStore(ctx context.Context, dsn string) (*store.DB, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	db, err := store.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// shutdownContext bounds the post-run cleanup. A zero timeout waits for
// every worker.
func shutdownContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), timeout)
}

// stopHealth flips every service to NOT_SERVING and drains the server. Open
// Watch streams are cut when ctx ends.
func stopHealth(ctx context.Context, grpcServer *grpc.Server, healthServer *health.Server) {
	healthServer.Shutdown()
	stopped := make(chan struct{})
	go func() {
		log.Info().Msg("Gracefully stopping gRPC server")
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		grpcServer.Stop()
	}
}

// serveHealth starts the gRPC health endpoint.
func serveHealth(host string, port int, enableReflection bool) (*grpc.Server, *health.Server) {
	lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to listen")
	}

	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(unaryInterceptor),
		grpc.StreamInterceptor(streamInterceptor),
	)
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(trainerService, grpc_health_v1.HealthCheckResponse_SERVING)

	if enableReflection {
		reflection.Register(grpcServer)
		log.Info().Msg("gRPC reflection enabled")
	}

	log.Info().Str("address", lis.Addr().String()).Msg("Health server listening")
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			log.Error().Err(err).Msg("Health server stopped")
		}
	}()
	return grpcServer, healthServer
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
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}
}
