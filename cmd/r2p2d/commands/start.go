package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/r2p2/r2p2d/internal/config"
	"github.com/r2p2/r2p2d/internal/logger"
	"github.com/r2p2/r2p2d/internal/r2p2"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the r2p2d engine",
	Long: `Start the r2p2d engine with the specified configuration.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/r2p2d/config.yaml.

Examples:
  # Start with defaults or a default-location config file
  r2p2d start

  # Start with a custom config file
  r2p2d start --config /etc/r2p2d/config.yaml

  # Start with environment variable overrides
  R2P2_LOGGING_LEVEL=DEBUG r2p2d start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("starting r2p2d")
	logger.Info("configuration loaded", "source", getConfigSource(GetConfigFile()), "listen", cfg.Listen, "workers", cfg.Workers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var reg prometheus.Registerer
	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		promReg := prometheus.NewRegistry()
		reg = promReg
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
		logger.Info("metrics enabled", "listen", cfg.Metrics.Listen)
	} else {
		logger.Info("metrics collection disabled")
	}

	engine, err := r2p2.NewEngine(r2p2.EngineConfig{
		Listen:         cfg.Listen,
		Workers:        cfg.Workers,
		PayloadSize:    cfg.Protocol.PayloadSize,
		MinPayloadSize: cfg.Protocol.MinPayloadSize,
		ClientPairs:    cfg.Pools.ClientPairs,
		ServerPairs:    cfg.Pools.ServerPairs,
		BufferSlots:    cfg.Pools.BufferSlots,
		RequestTimeout: cfg.RequestTimeout,
		AckTimeout:     cfg.AckTimeout,
	}, reg, echoReceiveFunc)
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}
	logger.Info("engine ready", "workers", engine.NumWorkers(), "listen", cfg.Listen)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- engine.Serve(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("r2p2d is running, press Ctrl+C to stop")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, initiating graceful shutdown")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := engine.Shutdown(shutdownCtx); err != nil {
			logger.Error("engine shutdown error", "error", err)
		}
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}

		if err := <-serverDone; err != nil {
			logger.Error("engine serve error", "error", err)
			return err
		}
		logger.Info("r2p2d stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("engine error", "error", err)
			return err
		}
		logger.Info("r2p2d stopped")
	}

	return nil
}

// echoReceiveFunc is the engine's default receive callback until an
// application wires its own: it immediately echoes the request payload
// back to the sender. This exists so `r2p2d start` is runnable standalone
// for protocol conformance testing against a peer.
func echoReceiveFunc(handle *r2p2.ServerHandle, iov [][]byte) {
	if err := handle.Worker().SendResponse(handle, iov); err != nil {
		logger.Warn("failed to send echo response", "error", err)
	}
}

func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
