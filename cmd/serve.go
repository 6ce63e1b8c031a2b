package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/orb-labs/orchestrator/pkg/config"
	"github.com/orb-labs/orchestrator/pkg/health"
	"github.com/orb-labs/orchestrator/pkg/logger"
	"github.com/orb-labs/orchestrator/pkg/orchestrator"
	"github.com/orb-labs/orchestrator/pkg/routeclient"
	"github.com/orb-labs/orchestrator/pkg/signer"
	"github.com/orb-labs/orchestrator/pkg/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the orchestration service",
	Long: `serve starts the orchestration core: it loads the pending request
store, restores polling for requests submitted before the last shutdown and
serves health and metrics endpoints until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	applyOverrides()

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	log := logger.NewStdLogger(cfg.LoggerConfig.Coloring, cfg.LoggerConfig.Level)
	log.Info("Starting orchestration service")

	st, err := store.New(cfg.StorePath, log)
	if err != nil {
		return err
	}

	routes := routeclient.New(cfg.RouteEndpoint, log)

	sgnr, err := signer.NewLocal(cfg.PrivateKey)
	if err != nil {
		return err
	}
	log.Info("Signing address: %s", sgnr.Address().Hex())

	svc := orchestrator.NewService(cfg, st, routes, sgnr, log)

	restored := svc.RestoreWatches(func(success bool, txHash string) {
		if success {
			log.Info("Restored request resolved, final tx %s", txHash)
		} else {
			log.Notice("Restored request resolved as failed")
		}
	})
	if restored > 0 {
		log.Info("Restored %d watch(es) from the store", restored)
	}

	healthServer := health.NewServer(cfg.MetricsPort, st, routes, svc.Breaker(), svc, log)
	go healthServer.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	log.Notice("Received signal %v, shutting down", sig)
	svc.Stop()
	return nil
}

// applyOverrides maps flag and ORB_ environment overrides onto the
// environment the config loader reads, so one settings path serves both.
func applyOverrides() {
	if v := viper.GetString("metrics_port"); v != "" {
		os.Setenv("METRICS_PORT", v)
	}
	if v := viper.GetString("store"); v != "" {
		os.Setenv("STORE_PATH", v)
	}
	if v := viper.GetString("log_level"); v != "" {
		os.Setenv("LOG_LEVEL", v)
	}
	if viper.GetBool("no_color") {
		os.Setenv("LOG_COLORING", "false")
	}
}
