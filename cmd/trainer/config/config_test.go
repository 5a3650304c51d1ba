package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func parse(t *testing.T, args ...string) *Config {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg := BindFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return cfg
}

func TestBindFlags_Defaults(t *testing.T) {
	cfg := parse(t)

	if cfg.TrainFraction != 0.8 || cfg.Trainings != 20 || cfg.Epochs != 1000 || cfg.BatchSize != 128 {
		t.Errorf("run layout defaults = %v/%d/%d/%d", cfg.TrainFraction, cfg.Trainings, cfg.Epochs, cfg.BatchSize)
	}
	if cfg.ResnetSize != 34 || !cfg.MaxPooling {
		t.Errorf("model defaults = resnet %d, max pooling %v", cfg.ResnetSize, cfg.MaxPooling)
	}
	if len(cfg.ConvSize) != 2 || cfg.ConvSize[0] != 7 || cfg.ConvStrides[1] != 2 {
		t.Errorf("conv defaults = %v / %v", cfg.ConvSize, cfg.ConvStrides)
	}
	if cfg.LearningRate != 0.002 || cfg.Epsilon != 0.002 {
		t.Errorf("optimizer defaults = %v / %v", cfg.LearningRate, cfg.Epsilon)
	}
	if cfg.Checkpoint.StartEpoch != 50 || cfg.Checkpoint.DecayTime != 100 || cfg.Checkpoint.DecayRate != 0.9999 {
		t.Errorf("checkpoint defaults = %+v", cfg.Checkpoint)
	}
	if cfg.Plateau.Factor != 0.65 || cfg.Plateau.Patience != 25 || cfg.Plateau.Cooldown != 25 || cfg.Plateau.MinRate != 0.0002 {
		t.Errorf("plateau defaults = %+v", cfg.Plateau)
	}
	if cfg.Storage != "memory" || cfg.LogFormat != "text" || cfg.LogLevel != "info" {
		t.Errorf("ambient defaults = %s/%s/%s", cfg.Storage, cfg.LogFormat, cfg.LogLevel)
	}
}

func TestBindFlags_EnvAndFlagPrecedence(t *testing.T) {
	t.Setenv("EPOCHS", "300")
	t.Setenv("BATCH_SIZE", "64")
	t.Setenv("CONV_SIZE", "5, 3")
	t.Setenv("REDIS_TTL", "2h")
	t.Setenv("MAX_POOLING", "false")

	cfg := parse(t, "--batch-size=32")

	if cfg.Epochs != 300 {
		t.Errorf("Epochs = %d, want 300 from env", cfg.Epochs)
	}
	if cfg.BatchSize != 32 {
		t.Errorf("BatchSize = %d, want 32 from flag", cfg.BatchSize)
	}
	if cfg.ConvSize[0] != 5 || cfg.ConvSize[1] != 3 {
		t.Errorf("ConvSize = %v, want [5 3]", cfg.ConvSize)
	}
	if cfg.RedisTTL != 2*time.Hour {
		t.Errorf("RedisTTL = %v", cfg.RedisTTL)
	}
	if cfg.MaxPooling {
		t.Error("MaxPooling should be false from env")
	}
}

func TestGetEnvFallbacks(t *testing.T) {
	t.Setenv("BAD_INT", "seven")
	t.Setenv("BAD_INTS", "7,x")
	t.Setenv("BAD_FLOAT", "abc")
	t.Setenv("BAD_DURATION", "soon")

	if got := getEnvInt("BAD_INT", 3); got != 3 {
		t.Errorf("getEnvInt() = %d, want default", got)
	}
	if got := getEnvInts("BAD_INTS", []int{1}); len(got) != 1 || got[0] != 1 {
		t.Errorf("getEnvInts() = %v, want default", got)
	}
	if got := getEnvFloat("BAD_FLOAT", 0.5); got != 0.5 {
		t.Errorf("getEnvFloat() = %v, want default", got)
	}
	if got := getEnvDuration("BAD_DURATION", time.Second); got != time.Second {
		t.Errorf("getEnvDuration() = %v, want default", got)
	}
	if got := getEnv("UNSET_VAR_FOR_TEST", "x"); got != "x" {
		t.Errorf("getEnv() = %q", got)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := parse(t)
		cfg.TrainerURL = "http://trainer:8500"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing trainer url", mutate: func(c *Config) { c.TrainerURL = "" }, wantErr: true},
		{name: "bad samples", mutate: func(c *Config) { c.Samples = "s3" }, wantErr: true},
		{name: "bad storage", mutate: func(c *Config) { c.Storage = "etcd" }, wantErr: true},
		{name: "train fraction zero", mutate: func(c *Config) { c.TrainFraction = 0 }, wantErr: true},
		{name: "train fraction one", mutate: func(c *Config) { c.TrainFraction = 1 }},
		{name: "no trainings", mutate: func(c *Config) { c.Trainings = 0 }, wantErr: true},
		{name: "no epochs", mutate: func(c *Config) { c.Epochs = 0 }, wantErr: true},
		{name: "conv size arity", mutate: func(c *Config) { c.ConvSize = []int{7} }, wantErr: true},
		{name: "zero stride", mutate: func(c *Config) { c.ConvStrides = []int{0, 2} }, wantErr: true},
		{name: "bad decay rate", mutate: func(c *Config) { c.Checkpoint.DecayRate = 1.5 }, wantErr: true},
		{name: "bad plateau factor", mutate: func(c *Config) { c.Plateau.Factor = 1 }, wantErr: true},
		{name: "tls without files", mutate: func(c *Config) { c.TLS.Enabled = true }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSaveDirectory(t *testing.T) {
	cfg := parse(t, "--base-path=/data/models/", "--resnet-size=18", "--conv-size=5,3", "--conv-strides=1,2")

	want := "morepork-resnet18-rnn-3-4-5-3-1-2-unigrurandom"
	if got := cfg.Experiment(); got != want {
		t.Errorf("Experiment() = %q, want %q", got, want)
	}
	if got := cfg.SaveDirectory(); got != "/data/models/"+want {
		t.Errorf("SaveDirectory() = %q", got)
	}
}

func TestConfig_Pooling(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "default", want: "max"},
		{name: "max", args: []string{"--max-pooling=true"}, want: "max"},
		{name: "average", args: []string{"--max-pooling=false"}, want: "avg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := parse(t, tt.args...)
			if got := cfg.Pooling(); got != tt.want {
				t.Errorf("Pooling() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseSamplesConfig(t *testing.T) {
	t.Setenv("SAMPLES_PATH", "/data/samples.json")
	t.Setenv("SAMPLES_POSITIVE_PATH", "calls.morepork")
	t.Setenv("SAMPLES_", "ignored")

	cfg := ParseSamplesConfig()

	if cfg["path"] != "/data/samples.json" {
		t.Errorf("path = %q", cfg["path"])
	}
	if cfg["positivePath"] != "calls.morepork" {
		t.Errorf("positivePath = %q", cfg["positivePath"])
	}
	if _, ok := cfg[""]; ok {
		t.Error("bare SAMPLES_ prefix produced an empty key")
	}
}

func TestToLowerCamelCase(t *testing.T) {
	tests := map[string]string{
		"PATH":          "path",
		"POSITIVE_PATH": "positivePath",
		"TEMPLATE_VARS": "templateVars",
		"A__B":          "aB",
	}
	for in, want := range tests {
		if got := toLowerCamelCase(in); got != want {
			t.Errorf("toLowerCamelCase(%q) = %q, want %q", in, got, want)
		}
	}
}
