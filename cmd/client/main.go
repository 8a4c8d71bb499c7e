// Command client is a thin demo binary driving the statespace engine
// end-to-end against a live node: it loads a factory list and node
// endpoints from a YAML config file, builds a StateSpaceManager, and
// consumes its notification stream, logging a periodic self-report of
// process health alongside the engine's own Prometheus metrics.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	gethclient "github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/process"

	"github.com/defistate/statespace"
	"github.com/defistate/statespace/cmd/client/config"
	ethclientreader "github.com/defistate/statespace/reader/ethclient"
	"github.com/defistate/statespace/streams/jsonrpc/client"
)

const selfReportInterval = 30 * time.Second

func main() {
	rootLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	prometheusRegistry := prometheus.DefaultRegisterer

	cfg, err := loadConfig()
	if err != nil {
		rootLogger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	factories, err := config.LoadFactoriesYAML(cfg.Factories)
	if err != nil {
		rootLogger.Error("failed to build factory list", "error", err)
		os.Exit(1)
	}

	logSource, err := client.NewClient(ctx, client.Config{
		URL:    cfg.LogSourceURL,
		Logger: rootLogger.With("component", "jsonrpc-client"),
	})
	if err != nil {
		rootLogger.Error("failed to connect log source", "error", err)
		os.Exit(1)
	}

	rpcClient, err := gethclient.Dial(cfg.StateReaderURL)
	if err != nil {
		rootLogger.Error("failed to dial state reader", "error", err)
		os.Exit(1)
	}
	stateReader := ethclientreader.New(rpcClient)

	builder := &statespace.Builder{
		Factories:   factories,
		LogSource:   logSource,
		StateReader: stateReader,
		Logger:      rootLogger,
		Registry:    prometheusRegistry,
	}
	if cfg.Block != 0 {
		block := cfg.Block
		builder.Block = &block
	}

	manager, err := builder.Sync(ctx)
	if err != nil {
		rootLogger.Error("failed to start state space engine", "error", err)
		os.Exit(1)
	}

	go selfReport(ctx, rootLogger)

	notifications := manager.Subscribe()
	for {
		select {
		case n, ok := <-notifications:
			if !ok {
				rootLogger.Warn("notification stream closed")
				if err := manager.Shutdown(); err != nil {
					rootLogger.Error("engine stopped", "error", err)
				}
				return
			}
			rootLogger.Info("state change",
				"block_number", n.BlockNumber,
				"block_hash", n.BlockHash,
				"pools_changed", len(n.PoolsChanged),
			)
		case <-ctx.Done():
			rootLogger.Info("shutting down")
			if err := manager.Shutdown(); err != nil {
				rootLogger.Error("engine stopped", "error", err)
			}
			return
		}
	}
}

// selfReport periodically logs process-health telemetry (RSS, open file
// descriptors, goroutine count) alongside the engine's own metrics, the
// demo binary's home for the host-telemetry concern gopsutil covers.
func selfReport(ctx context.Context, logger *slog.Logger) {
	ticker := time.NewTicker(selfReportInterval)
	defer ticker.Stop()

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Warn("self-report: failed to open process handle", "error", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mem, err := proc.MemoryInfo()
			if err != nil {
				logger.Warn("self-report: failed to read memory info", "error", err)
				continue
			}
			fds, err := proc.NumFDs()
			if err != nil {
				logger.Warn("self-report: failed to read fd count", "error", err)
				continue
			}
			logger.Info("self-report",
				"rss_bytes", mem.RSS,
				"vms_bytes", mem.VMS,
				"open_fds", fds,
				"goroutines", runtime.NumGoroutine(),
			)
		}
	}
}

func loadConfig() (*config.ClientConfig, error) {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	flag.Parse()
	return config.LoadConfig(*configPath)
}
