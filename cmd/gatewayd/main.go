// Command gatewayd is the gateway's process entry point, grounded on the
// teacher's main.go subcommand dispatch (os.Args[1] switch, flag.FlagSet
// per subcommand, initLogger/printVersion/printUsage shape), narrowed to
// the subcommands this gateway actually needs.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ashgate/gateway/internal/breaker"
	"github.com/ashgate/gateway/internal/config"
	"github.com/ashgate/gateway/internal/dispatch"
	"github.com/ashgate/gateway/internal/httpapi"
	"github.com/ashgate/gateway/internal/logging"
	"github.com/ashgate/gateway/internal/memory"
	"github.com/ashgate/gateway/internal/metrics"
	"github.com/ashgate/gateway/internal/pool"
	"github.com/ashgate/gateway/internal/router"
	"github.com/ashgate/gateway/internal/tracing"
)

// Exit codes per spec §6: 0 normal, 64 configuration error, 70 fatal
// runtime error (the sysexits.h convention the teacher's CLI follows).
const (
	exitOK          = 0
	exitConfigError = 64
	exitRuntimeFail = 70
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitConfigError)
	}

	switch os.Args[1] {
	case "start":
		os.Exit(runStart(os.Args[2:]))
	case "version":
		printVersion()
	case "health":
		os.Exit(runHealthCheck(os.Args[2:]))
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(exitConfigError)
	}
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file (YAML)")
	fs.Parse(args)

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return exitConfigError
	}

	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, OutputPaths: cfg.Log.OutputPaths})
	defer logger.Sync()

	logger.Info("starting gateway", zap.String("version", Version), zap.String("build_time", BuildTime), zap.String("git_commit", GitCommit))

	telemetry := tracing.Init(tracing.Config{Enabled: cfg.Telemetry.Enabled, SampleRate: cfg.Telemetry.SampleRate})
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(ctx)
	}()

	rtr, err := router.New(cfg.RouterConfig())
	if err != nil {
		logger.Error("invalid router config", zap.Error(err))
		return exitConfigError
	}

	breakers := breaker.NewRegistry(cfg.BreakerConfig())
	connPool := pool.New(cfg.PoolConfig())
	defer connPool.Close()

	collector := metrics.New(cfg.MetricsCollectorConfig())

	var memStore *memory.Store
	if cfg.Memory.Enabled {
		memStore, err = memory.Open(memory.Config{
			DBPath:            cfg.Memory.DBPath,
			SurpriseThreshold: cfg.Memory.SurpriseThreshold,
			MaxAgeDays:        cfg.Memory.MaxAgeDays,
			MaxCount:          cfg.Memory.MaxCount,
			DedupLookback:     cfg.Memory.DedupLookback,
			DecayHalfLifeDays: cfg.Memory.DecayHalfLifeDays,
		}, logger)
		if err != nil {
			logger.Error("failed to open memory store", zap.Error(err))
			return exitRuntimeFail
		}
		defer memStore.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			if err := memStore.RunDecayMaintenance(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("decay maintenance stopped", zap.Error(err))
			}
		}()
	}

	dispatcher := dispatch.New(dispatch.Config{
		Providers:           cfg.ProviderDescriptors(),
		Breakers:            breakers,
		RetryPolicy:         cfg.RetryPolicy(),
		Pool:                connPool,
		Router:              rtr,
		AnalyzerMode:        cfg.AnalyzerMode(),
		AllowLocalInjection: cfg.Analyzer.AllowLocalInjection,
		Recorder:            collector,
		Logger:              logger,
	})

	handler := httpapi.NewRouter(httpapi.Deps{
		Dispatcher:     dispatcher,
		Memory:         memStore,
		Breakers:       breakers,
		StaticProvider: cfg.Router.StaticProvider,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: promhttp.Handler(),
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http listener started", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()
	go func() {
		logger.Info("metrics listener started", zap.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("server failed", zap.Error(err))
		return exitRuntimeFail
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)

	logger.Info("gateway stopped")
	return exitOK
}

func runHealthCheck(args []string) int {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "server address")
	fs.Parse(args)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/health/ready")
	if err != nil {
		fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
		return exitRuntimeFail
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "health check failed: status %d\n", resp.StatusCode)
		return exitRuntimeFail
	}
	fmt.Println("OK")
	return exitOK
}

func printVersion() {
	fmt.Printf("gatewayd %s\n", Version)
	fmt.Printf("  build time: %s\n", BuildTime)
	fmt.Printf("  git commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`gatewayd - self-hosted LLM gateway

Usage:
  gatewayd <command> [options]

Commands:
  start     Start the HTTP gateway
  version   Show version information
  health    Check a running gateway's readiness
  help      Show this help message

Options for 'start':
  --config <path>   Path to configuration file (YAML)

Examples:
  gatewayd start
  gatewayd start --config /etc/gatewayd/config.yaml
  gatewayd health --addr http://localhost:8080
  gatewayd version`)
}
