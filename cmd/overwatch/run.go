package overwatch

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Orlik-B/NVR-surveillance/internal/logger"
)

// shutdownTimeout bounds the graceful shutdown of every service
const shutdownTimeout = 30 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an overwatch until overwatch_time elapses",
	Example: `  # Run with the default config file
  overwatch run

  # Run with a specific config file and debug logging
  overwatch run --config /etc/overwatch/config.yaml --log-level debug

  # Serve the status API on another port
  overwatch run --port 9090`,
	RunE: runOverwatch,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runOverwatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.New(logger.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	log.Info("Starting overwatch service",
		"version", buildInfo.Version,
		"build_time", buildInfo.BuildTime,
		"git_commit", buildInfo.GitCommit,
		"cameras", len(cfg.Cameras),
		"overwatch_time", cfg.Parameters.OverwatchTime,
	)

	a, err := newApp(cfg, log, appDeps{})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	return a.run(ctx, sigChan)
}

// run starts every service, waits for the overwatch to finish or a signal
// and shuts down
func (a *app) run(ctx context.Context, signals <-chan os.Signal) error {
	a.enforceRetention(ctx)

	if a.cfg.Stream.ProbeOnStart {
		if failed := a.probeCameras(ctx); failed > 0 {
			a.logger.Warn("Some camera streams did not answer the probe", "failed", failed, "total", len(a.cfg.Cameras))
		}
	}

	startErr := a.services.Start(ctx)
	if startErr != nil {
		a.logger.Error("Failed to start services", "error", startErr)
	} else {
		select {
		case sig := <-signals:
			a.logger.Info("Received shutdown signal", "signal", sig)
		case <-a.orch.Done():
			a.logger.Info("Overwatch finished")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := a.services.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("Error during shutdown", "error", err)
		if startErr == nil {
			return err
		}
	}

	if startErr != nil {
		return startErr
	}

	a.logger.Info("Shutdown complete")
	return nil
}
