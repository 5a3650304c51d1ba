// Package config provides configuration parsing and management for the trainer.
//
// It handles both command-line flags and environment variables, with flags taking
// precedence over environment variables. The Config struct contains all runtime
// configuration for a training job including:
//   - Sample source selection and its SAMPLES_* settings
//   - Training service endpoint and health check
//   - Model hyperparameters (ResNet size, convolution, optimizer)
//   - Run layout (repetitions, epochs, batch size, train fraction)
//   - Checkpoint and learning-rate plateau policies
//   - Run storage backend (memory, redis, sqlite)
//   - Logging configuration (level, format)
//   - TLS configuration (cert, key, CA files)
//
// Supported configuration sources (in order of precedence):
//  1. Command-line flags
//  2. Environment variables
//  3. Default values
//
// Example usage:
//
//	cfg := config.BindFlags(cmd.Flags())
//	// after flag parsing
//	cfg.SamplesConfig = config.ParseSamplesConfig()
//	if err := cfg.Validate(); err != nil { ... }
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/HatiCode/morepork/pkg/checkpoint"
	"github.com/HatiCode/morepork/pkg/schedule"
	"github.com/HatiCode/morepork/pkg/tls"
)

// Config holds all trainer configuration.
type Config struct {
	Listen        string
	LogFormat     string
	LogLevel      string
	Storage       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration
	SQLitePath    string
	TLS           tls.Config

	TrainerURL           string
	TrainerTimeout       time.Duration
	TrainerHealthAddr    string
	TrainerHealthService string

	Samples       string
	SamplesConfig map[string]string

	BasePath        string
	NumBuckets      int
	SlicesPerSample int
	TrainFraction   float64
	Trainings       int
	Epochs          int
	BatchSize       int
	ResnetSize      int
	ConvSize        []int
	ConvStrides     []int
	MaxPooling      bool
	LearningRate    float64
	Epsilon         float64
	Seed            int64

	Checkpoint checkpoint.Config
	Plateau    schedule.PlateauConfig
}

// BindFlags registers the trainer flags on fs. Defaults come from the
// environment when set.
func BindFlags(fs *pflag.FlagSet) *Config {
	cfg := &Config{}
	ck := checkpoint.DefaultConfig()
	pl := schedule.DefaultPlateauConfig()

	fs.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ""), "Status HTTP listen address (empty disables the server)")

	fs.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	fs.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", "memory"), "Run storage backend: memory, redis or sqlite")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis server address")
	fs.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	fs.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")
	fs.DurationVar(&cfg.RedisTTL, "redis-ttl", getEnvDuration("REDIS_TTL", 0), "Redis run list TTL (0 keeps runs)")
	fs.StringVar(&cfg.SQLitePath, "sqlite-path", getEnv("SQLITE_PATH", "morepork-runs.db"), "SQLite database path")

	fs.BoolVar(&cfg.TLS.Enabled, "tls-enabled", getEnvBool("TLS_ENABLED", false), "Enable mTLS for the training service and status server")
	fs.StringVar(&cfg.TLS.CertFile, "tls-cert-file", getEnv("TLS_CERT_FILE", ""), "TLS certificate file")
	fs.StringVar(&cfg.TLS.KeyFile, "tls-key-file", getEnv("TLS_KEY_FILE", ""), "TLS private key file")
	fs.StringVar(&cfg.TLS.CAFile, "tls-ca-file", getEnv("TLS_CA_FILE", ""), "TLS CA certificate file")

	fs.StringVar(&cfg.TrainerURL, "trainer-url", getEnv("TRAINER_URL", ""), "Training service URL (required)")
	fs.DurationVar(&cfg.TrainerTimeout, "trainer-timeout", getEnvDuration("TRAINER_TIMEOUT", 0), "Per-request timeout for the training service (0 disables)")
	fs.StringVar(&cfg.TrainerHealthAddr, "trainer-health-addr", getEnv("TRAINER_HEALTH_ADDR", ""), "gRPC health address of the training service (empty skips the check)")
	fs.StringVar(&cfg.TrainerHealthService, "trainer-health-service", getEnv("TRAINER_HEALTH_SERVICE", ""), "gRPC health service name")

	fs.StringVar(&cfg.Samples, "samples", getEnv("SAMPLES", "file"), "Sample source: file or http (configured via SAMPLES_* env)")

	fs.StringVar(&cfg.BasePath, "base-path", getEnv("BASE_PATH", "."), "Directory that receives the experiment directory")
	fs.IntVar(&cfg.NumBuckets, "num-buckets", getEnvInt("NUM_BUCKETS", 64), "Frequency buckets per slice")
	fs.IntVar(&cfg.SlicesPerSample, "slices-per-sample", getEnvInt("SLICES_PER_SAMPLE", 32), "Time slices per sample")
	fs.Float64Var(&cfg.TrainFraction, "train-fraction", getEnvFloat("TRAIN_FRACTION", 0.8), "Fraction of samples used for training")
	fs.IntVar(&cfg.Trainings, "trainings", getEnvInt("TRAININGS", 20), "Number of independent training runs")
	fs.IntVar(&cfg.Epochs, "epochs", getEnvInt("EPOCHS", 1000), "Epochs per run")
	fs.IntVar(&cfg.BatchSize, "batch-size", getEnvInt("BATCH_SIZE", 128), "Batch size")
	fs.IntVar(&cfg.ResnetSize, "resnet-size", getEnvInt("RESNET_SIZE", 34), "ResNet size used in the experiment name")
	fs.IntSliceVar(&cfg.ConvSize, "conv-size", getEnvInts("CONV_SIZE", []int{7, 7}), "First convolution kernel size (rows,cols)")
	fs.IntSliceVar(&cfg.ConvStrides, "conv-strides", getEnvInts("CONV_STRIDES", []int{2, 2}), "First convolution strides (rows,cols)")
	fs.BoolVar(&cfg.MaxPooling, "max-pooling", getEnvBool("MAX_POOLING", true), "Pool with max after the first convolution (false pools with avg)")
	fs.Float64Var(&cfg.LearningRate, "learning-rate", getEnvFloat("LEARNING_RATE", 0.002), "Initial Adam learning rate")
	fs.Float64Var(&cfg.Epsilon, "epsilon", getEnvFloat("EPSILON", 0.002), "Adam epsilon")
	fs.Int64Var(&cfg.Seed, "seed", getEnvInt64("SEED", 0), "Shuffle seed (0 picks one from the clock)")

	fs.IntVar(&cfg.Checkpoint.StartEpoch, "checkpoint-start", getEnvInt("CHECKPOINT_START", ck.StartEpoch), "First epoch that may save a checkpoint")
	fs.IntVar(&cfg.Checkpoint.DecayTime, "checkpoint-decay-time", getEnvInt("CHECKPOINT_DECAY_TIME", ck.DecayTime), "Epochs without a save between best-value decays (0 disables)")
	fs.Float64Var(&cfg.Checkpoint.DecayRate, "checkpoint-decay-rate", getEnvFloat("CHECKPOINT_DECAY_RATE", ck.DecayRate), "Multiplier applied to the best value on decay")

	fs.Float64Var(&cfg.Plateau.Factor, "plateau-factor", getEnvFloat("PLATEAU_FACTOR", pl.Factor), "Learning rate multiplier on plateau")
	fs.IntVar(&cfg.Plateau.Patience, "plateau-patience", getEnvInt("PLATEAU_PATIENCE", pl.Patience), "Epochs without val_loss improvement before reducing")
	fs.IntVar(&cfg.Plateau.Cooldown, "plateau-cooldown", getEnvInt("PLATEAU_COOLDOWN", pl.Cooldown), "Epochs to wait after a reduction")
	fs.Float64Var(&cfg.Plateau.MinRate, "plateau-min-rate", getEnvFloat("PLATEAU_MIN_RATE", pl.MinRate), "Lower bound of the learning rate")
	fs.Float64Var(&cfg.Plateau.MinDelta, "plateau-min-delta", getEnvFloat("PLATEAU_MIN_DELTA", pl.MinDelta), "Minimum val_loss change counted as improvement")

	return cfg
}

// Validate checks the configuration after flags are parsed.
func (c *Config) Validate() error {
	if c.TrainerURL == "" {
		return errors.New("trainer-url is required")
	}
	if c.Samples != "file" && c.Samples != "http" {
		return fmt.Errorf("invalid samples source %q (must be file or http)", c.Samples)
	}
	switch c.Storage {
	case "memory", "redis", "sqlite":
	default:
		return fmt.Errorf("invalid storage %q (must be memory, redis or sqlite)", c.Storage)
	}
	if c.TrainFraction <= 0 || c.TrainFraction > 1 {
		return fmt.Errorf("train-fraction %v must be in (0, 1]", c.TrainFraction)
	}
	if c.Trainings < 1 {
		return errors.New("trainings must be >= 1")
	}
	if c.Epochs < 1 {
		return errors.New("epochs must be >= 1")
	}
	if c.BatchSize < 1 {
		return errors.New("batch-size must be >= 1")
	}
	if c.NumBuckets < 1 || c.SlicesPerSample < 1 {
		return errors.New("num-buckets and slices-per-sample must be >= 1")
	}
	if len(c.ConvSize) != 2 || len(c.ConvStrides) != 2 {
		return errors.New("conv-size and conv-strides take exactly two values")
	}
	for _, v := range append(append([]int{}, c.ConvSize...), c.ConvStrides...) {
		if v < 1 {
			return errors.New("conv-size and conv-strides values must be >= 1")
		}
	}
	if c.LearningRate <= 0 || c.Epsilon <= 0 {
		return errors.New("learning-rate and epsilon must be > 0")
	}
	if err := c.Checkpoint.Validate(); err != nil {
		return err
	}
	if err := c.Plateau.Validate(); err != nil {
		return err
	}
	if err := c.TLS.Validate(); err != nil {
		return err
	}
	return nil
}

// Experiment returns the experiment name, which is also the name of the save
// directory.
func (c *Config) Experiment() string {
	return fmt.Sprintf("morepork-resnet%d-rnn-3-4-%d-%d-%d-%d-unigrurandom",
		c.ResnetSize, c.ConvSize[0], c.ConvSize[1], c.ConvStrides[0], c.ConvStrides[1])
}

// SaveDirectory returns the directory that holds every run of the experiment.
func (c *Config) SaveDirectory() string {
	return strings.TrimRight(c.BasePath, "/") + "/" + c.Experiment()
}

// Pooling returns the pooling mode passed to the model builder.
func (c *Config) Pooling() string {
	if c.MaxPooling {
		return "max"
	}
	return "avg"
}

// ParseSamplesConfig parses SAMPLES_* environment variables into a generic configuration map.
// Environment variable names are converted to camelCase for the map keys (SAMPLES_POSITIVE_PATH → positivePath).
func ParseSamplesConfig() map[string]string {
	config := make(map[string]string)

	for _, env := range os.Environ() {
		name, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(name, "SAMPLES_") || len(name) == len("SAMPLES_") {
			continue
		}
		config[toLowerCamelCase(name[len("SAMPLES_"):])] = value
	}

	return config
}

func toLowerCamelCase(s string) string {
	parts := strings.Split(strings.ToLower(s), "_")
	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i > 0 && b.Len() > 0 {
			b.WriteString(strings.ToUpper(p[:1]))
			b.WriteString(p[1:])
			continue
		}
		b.WriteString(p)
	}
	return b.String()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInts(key string, defaultValue []int) []int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []int
	for _, field := range strings.Split(value, ",") {
		i, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return defaultValue
		}
		out = append(out, i)
	}
	return out
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
