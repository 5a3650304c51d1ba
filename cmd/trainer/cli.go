package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/HatiCode/morepork/cmd/trainer/config"
	"github.com/HatiCode/morepork/cmd/trainer/logger"
	"github.com/HatiCode/morepork/cmd/trainer/metrics"
	"github.com/HatiCode/morepork/cmd/trainer/router"
	"github.com/HatiCode/morepork/cmd/trainer/store"
	"github.com/HatiCode/morepork/pkg/httpx"
	"github.com/HatiCode/morepork/pkg/models"
	"github.com/HatiCode/morepork/pkg/samples"
	"github.com/HatiCode/morepork/pkg/scores"
	moreporktls "github.com/HatiCode/morepork/pkg/tls"
)

// Set via -ldflags at build time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:          "trainer",
	Short:        "Train the morepork call classifier",
	Long:         "Trainer repeats independent training runs of the morepork classifier against an external training service and reports the average best validation accuracy.",
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the training experiment",
	Args:  cobra.NoArgs,
	RunE:  runTraining,
}

var (
	scoreTP int
	scoreFP int
	scoreFN int
)

var scoresCmd = &cobra.Command{
	Use:   "scores",
	Short: "Compute precision, recall and F-score from detection counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if scoreTP < 0 || scoreFP < 0 || scoreFN < 0 {
			return fmt.Errorf("counts cannot be negative")
		}
		precision, recall, fscore := scores.Compute(scoreTP, scoreFP, scoreFN)
		fmt.Fprintf(cmd.OutOrStdout(), "precision %.4f recall %.4f fscore %.4f\n", precision, recall, fscore)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "trainer %s (commit: %s, built: %s)\n", Version, Commit, BuildDate)
	},
}

var runCfg *config.Config

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	runCfg = config.BindFlags(runCmd.Flags())

	scoresCmd.Flags().IntVar(&scoreTP, "tp", 0, "True positives")
	scoresCmd.Flags().IntVar(&scoreFP, "fp", 0, "False positives")
	scoresCmd.Flags().IntVar(&scoreFN, "fn", 0, "False negatives")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scoresCmd)
	rootCmd.AddCommand(versionCmd)
}

func runTraining(cmd *cobra.Command, args []string) error {
	cfg := runCfg
	cfg.SamplesConfig = config.ParseSamplesConfig()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log := logger.New(cfg)
	slog.SetDefault(log)

	log.Info("starting morepork trainer",
		"version", Version,
		"experiment", cfg.Experiment(),
		"trainings", cfg.Trainings,
		"epochs", cfg.Epochs,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	source, err := samples.New(cfg.Samples, cfg.SamplesConfig)
	if err != nil {
		return fmt.Errorf("sample source: %w", err)
	}

	client, err := httpx.NewClient(cfg.TLS, cfg.TrainerTimeout)
	if err != nil {
		return fmt.Errorf("trainer client: %w", err)
	}

	if cfg.TrainerHealthAddr != "" {
		if err := checkTrainer(ctx, cfg); err != nil {
			return err
		}
		log.Info("training service is serving", "addr", cfg.TrainerHealthAddr)
	}

	runStore, closeStore, err := store.New(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Error("failed to close store", "error", err)
		}
	}()

	trainer := NewTrainer(
		cfg,
		source,
		models.NewRemoteBuilder(cfg.TrainerURL, client),
		runStore,
		log,
		metrics.New(cfg.Experiment(), prometheus.DefaultRegisterer),
		cmd.OutOrStdout(),
	)

	if cfg.Listen != "" {
		server, err := newStatusServer(cfg, router.SetupRoutes(runStore, prometheus.DefaultGatherer, trainer.Progress, log), log)
		if err != nil {
			return err
		}
		serverCtx, stopServer := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- server.Run(serverCtx, 10*time.Second) }()
		defer func() {
			stopServer()
			if err := <-done; err != nil {
				log.Error("status server failed", "error", err)
			}
		}()
	}

	if _, err := trainer.Run(ctx); err != nil {
		log.Error("training failed", "error", err)
		return err
	}

	log.Info("training complete")
	return nil
}

func checkTrainer(ctx context.Context, cfg *config.Config) error {
	creds, err := cfg.TLS.TransportCredentials()
	if err != nil {
		return fmt.Errorf("health check credentials: %w", err)
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := models.CheckHealth(checkCtx, cfg.TrainerHealthAddr, cfg.TrainerHealthService, creds); err != nil {
		return fmt.Errorf("training service not ready: %w", err)
	}
	return nil
}

func newStatusServer(cfg *config.Config, handler http.Handler, log *slog.Logger) (*httpx.Server, error) {
	var serverTLS *tls.Config
	if cfg.TLS.Enabled {
		var err error
		serverTLS, err = moreporktls.NewServerTLSConfig(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("status server tls: %w", err)
		}
	}

	server, err := httpx.Listen(cfg.Listen, httpx.LogRequests(log)(handler), serverTLS, log)
	if err != nil {
		return nil, fmt.Errorf("status server: %w", err)
	}
	return server, nil
}
