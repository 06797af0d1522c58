package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all configuration for the trainer
type Config struct {
	Training  TrainingConfig  `mapstructure:"training"`
	Optimizer OptimizerConfig `mapstructure:"optimizer"`
	Model     ModelConfig     `mapstructure:"model"`
	Game      GameConfig      `mapstructure:"game"`
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
}

// TrainingConfig holds the experience pipeline and run settings
type TrainingConfig struct {
	Xpid              string        `mapstructure:"xpid"`
	SaveDir           string        `mapstructure:"save_dir"`
	LoadModel         bool          `mapstructure:"load_model"`
	DisableCheckpoint bool          `mapstructure:"disable_checkpoint"`
	Devices           string        `mapstructure:"devices"`
	NumActorDevices   int           `mapstructure:"num_actor_devices"`
	NumActors         int           `mapstructure:"num_actors"`
	NumThreads        int           `mapstructure:"num_threads"`
	NumBuffers        int           `mapstructure:"num_buffers"`
	UnrollLength      int           `mapstructure:"unroll_length"`
	BatchSize         int           `mapstructure:"batch_size"`
	TotalFrames       int64         `mapstructure:"total_frames"`
	ExplorationRate   float64       `mapstructure:"exploration_rate"`
	RewardScheme      string        `mapstructure:"reward_scheme"`
	SaveInterval      time.Duration `mapstructure:"save_interval"`
	ReportInterval    time.Duration `mapstructure:"report_interval"`
	DebugSlotLedger   bool          `mapstructure:"debug_slot_ledger"`
}

// OptimizerConfig holds RMSprop hyperparameters
type OptimizerConfig struct {
	LearningRate float64 `mapstructure:"learning_rate"`
	Momentum     float64 `mapstructure:"momentum"`
	Epsilon      float64 `mapstructure:"epsilon"`
	Alpha        float64 `mapstructure:"alpha"`
	MaxGradNorm  float64 `mapstructure:"max_grad_norm"`
}

// ModelConfig holds the value network shape
type ModelConfig struct {
	HiddenSizes []int `mapstructure:"hidden_sizes"`
	Seed        int64 `mapstructure:"seed"`
}

// GameConfig holds game engine settings
type GameConfig struct {
	MaxRounds int   `mapstructure:"max_rounds"`
	Seed      int64 `mapstructure:"seed"`
}

// ServerConfig holds the health endpoint and shutdown configuration
type ServerConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	LogLevel         string        `mapstructure:"log_level"`
	EnableReflection bool          `mapstructure:"enable_reflection"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout"`
}

// StorageConfig holds the optional report sink
type StorageConfig struct {
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

var (
	// Global config instance, swapped whole under mu
	mu  sync.RWMutex
	cfg *Config
	v   *viper.Viper
)

// setViperDefaults sets all default values using Viper's SetDefault
func setViperDefaults(v *viper.Viper) {
	// Training defaults
	v.SetDefault("training.xpid", "hanamikoji")
	v.SetDefault("training.save_dir", "hanamikoji_checkpoints")
	v.SetDefault("training.load_model", false)
	v.SetDefault("training.disable_checkpoint", false)
	v.SetDefault("training.devices", "cpu")
	v.SetDefault("training.num_actor_devices", 1)
	v.SetDefault("training.num_actors", 5)
	v.SetDefault("training.num_threads", 4)
	v.SetDefault("training.num_buffers", 50)
	v.SetDefault("training.unroll_length", 100)
	v.SetDefault("training.batch_size", 32)
	v.SetDefault("training.total_frames", int64(100_000_000_000))
	v.SetDefault("training.exploration_rate", 0.01)
	v.SetDefault("training.reward_scheme", "round")
	v.SetDefault("training.save_interval", 30*time.Minute)
	v.SetDefault("training.report_interval", 5*time.Second)
	v.SetDefault("training.debug_slot_ledger", false)

	// Optimizer defaults
	v.SetDefault("optimizer.learning_rate", 1e-4)
	v.SetDefault("optimizer.momentum", 0.0)
	v.SetDefault("optimizer.epsilon", 1e-5)
	v.SetDefault("optimizer.alpha", 0.99)
	v.SetDefault("optimizer.max_grad_norm", 40.0)

	// Model defaults
	v.SetDefault("model.hidden_sizes", []int{256, 128})
	v.SetDefault("model.seed", 1)

	// Game defaults
	v.SetDefault("game.max_rounds", 10)
	v.SetDefault("game.seed", 0)

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 50051)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.enable_reflection", true)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	// Storage defaults
	v.SetDefault("storage.postgres_dsn", "")
}

// Init initializes the configuration
func Init(configPath string) error {
	mu.Lock()
	defer mu.Unlock()

	v = viper.New()

	// Set defaults before loading any config
	setViperDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/hanamikoji-zero")
	}

	// HMZ_TRAINING_NUM_ACTORS overrides training.num_actors
	v.SetEnvPrefix("HMZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound):
		case configPath != "" && errors.Is(err, fs.ErrNotExist):
			// a missing explicit file falls back to defaults as well
		default:
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	next := &Config{}
	if err := v.Unmarshal(next); err != nil {
		return fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := Validate(next); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	cfg = next
	return nil
}

// Get returns the global config instance. The returned value is never
// modified afterwards; updates replace it.
func Get() *Config {
	mu.RLock()
	c := cfg
	mu.RUnlock()
	if c != nil {
		return c
	}
	if err := Init(""); err != nil {
		panic("failed to initialize config with defaults: " + err.Error())
	}
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// LoadEnvironmentConfig merges config.<env>.yaml over the loaded config
func LoadEnvironmentConfig(env string) error {
	if env == "" {
		return nil
	}
	mu.Lock()
	defer mu.Unlock()

	envFile := fmt.Sprintf("config.%s.yaml", env)
	v.SetConfigFile(envFile)
	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("error merging environment config %s: %w", envFile, err)
		}
	}

	next := &Config{}
	if err := v.Unmarshal(next); err != nil {
		return fmt.Errorf("unable to decode merged config into struct: %w", err)
	}
	if err := Validate(next); err != nil {
		return err
	}
	cfg = next
	return nil
}

// Set allows runtime config updates
func Set(key string, value interface{}) {
	mu.Lock()
	defer mu.Unlock()
	v.Set(key, value)
	next := &Config{}
	if err := v.Unmarshal(next); err == nil {
		cfg = next
	}
}

// ConfigFilePath returns the path of the loaded config file
func ConfigFilePath() string {
	mu.RLock()
	defer mu.RUnlock()
	return v.ConfigFileUsed()
}

// WatchConfig re-reads the config file on change. onChange receives the new
// config only when it is valid; an invalid edit keeps the previous values.
func WatchConfig(onChange func(*Config)) {
	mu.Lock()
	defer mu.Unlock()
	v.OnConfigChange(func(e fsnotify.Event) {
		if next, ok := reload(); ok && onChange != nil {
			onChange(next)
		}
	})
	v.WatchConfig()
}

// reload decodes the freshly read file and swaps it in when valid.
func reload() (*Config, bool) {
	mu.Lock()
	defer mu.Unlock()
	next := &Config{}
	if err := v.Unmarshal(next); err != nil {
		return nil, false
	}
	if err := Validate(next); err != nil {
		return nil, false
	}
	cfg = next
	return next, true
}

// Flags flattens every setting into strings, recorded with checkpoints.
func Flags() map[string]string {
	mu.RLock()
	defer mu.RUnlock()
	out := make(map[string]string)
	for _, key := range v.AllKeys() {
		if key == "storage.postgres_dsn" {
			continue
		}
		out[key] = fmt.Sprint(v.Get(key))
	}
	return out
}

// ParseDevices turns "cpu" or a comma separated list of accelerator ids into
// device names.
func ParseDevices(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "cpu" {
		return []string{"cpu"}, nil
	}
	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		id, err := strconv.Atoi(part)
		if err != nil || id < 0 {
			return nil, fmt.Errorf("invalid device %q", part)
		}
		if seen[part] {
			return nil, fmt.Errorf("duplicate device %q", part)
		}
		seen[part] = true
		out = append(out, part)
	}
	return out, nil
}

// Validate validates the configuration values
func Validate(c *Config) error {
	t := c.Training
	if t.Xpid == "" {
		return fmt.Errorf("training.xpid must not be empty")
	}
	devices, err := ParseDevices(t.Devices)
	if err != nil {
		return fmt.Errorf("training.devices: %w", err)
	}
	if t.NumActorDevices <= 0 {
		return fmt.Errorf("training.num_actor_devices must be positive")
	}
	if t.NumActorDevices > len(devices) {
		return fmt.Errorf("training.num_actor_devices (%d) exceeds the %d available devices", t.NumActorDevices, len(devices))
	}
	if t.NumActors <= 0 {
		return fmt.Errorf("training.num_actors must be positive")
	}
	if t.NumThreads <= 0 {
		return fmt.Errorf("training.num_threads must be positive")
	}
	if t.NumBuffers <= 0 {
		return fmt.Errorf("training.num_buffers must be positive")
	}
	if t.UnrollLength <= 0 {
		return fmt.Errorf("training.unroll_length must be positive")
	}
	if t.BatchSize <= 0 {
		return fmt.Errorf("training.batch_size must be positive")
	}
	if t.BatchSize > t.NumBuffers {
		return fmt.Errorf("training.batch_size (%d) must not exceed training.num_buffers (%d)", t.BatchSize, t.NumBuffers)
	}
	if t.TotalFrames <= 0 {
		return fmt.Errorf("training.total_frames must be positive")
	}
	if t.ExplorationRate < 0 || t.ExplorationRate > 1 {
		return fmt.Errorf("training.exploration_rate must be between 0 and 1")
	}
	if t.RewardScheme != "round" && t.RewardScheme != "episode" {
		return fmt.Errorf("training.reward_scheme must be round or episode, got %q", t.RewardScheme)
	}
	if t.SaveInterval <= 0 || t.ReportInterval <= 0 {
		return fmt.Errorf("training.save_interval and training.report_interval must be positive")
	}

	o := c.Optimizer
	if o.LearningRate <= 0 {
		return fmt.Errorf("optimizer.learning_rate must be positive")
	}
	if o.Alpha <= 0 || o.Alpha >= 1 {
		return fmt.Errorf("optimizer.alpha must be between 0 and 1")
	}
	if o.Epsilon <= 0 || o.Momentum < 0 || o.MaxGradNorm < 0 {
		return fmt.Errorf("optimizer.epsilon must be positive and momentum, max_grad_norm non-negative")
	}

	for _, h := range c.Model.HiddenSizes {
		if h <= 0 {
			return fmt.Errorf("model.hidden_sizes must all be positive")
		}
	}
	if c.Game.MaxRounds <= 0 {
		return fmt.Errorf("game.max_rounds must be positive")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("server.shutdown_timeout must not be negative")
	}

	return nil
}
