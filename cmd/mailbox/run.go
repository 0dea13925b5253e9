package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/nkllon/beast-mailbox/internal/registry"
	"github.com/nkllon/beast-mailbox/internal/registry/migrations"
	"github.com/nkllon/beast-mailbox/mailbox"
)

// setupMetrics wires a Prometheus OTel exporter into an SDK MeterProvider and
// serves it over HTTP, mirroring framework/metrics.SetupMetrics from the
// teacher framework (there only the "prometheus" exporter is actually
// implemented; "otlp" and "jaeger" are stubs, so that's what we carry over).
func setupMetrics(addr string, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server exited", "error", err)
		}
	}()
	logger.Info("metrics endpoint listening", "addr", addr)

	return provider, nil
}

func runRun() {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	redisHost := fs.String("redis-host", "localhost", "Redis host")
	redisPort := fs.Int("redis-port", 6379, "Redis port")
	redisPassword := fs.String("redis-password", "", "Redis password")
	redisDB := fs.Int("redis-db", 0, "Redis database number")
	streamPrefix := fs.String("stream-prefix", "beast:mailbox", "Stream key prefix")
	maxLen := fs.Int64("maxlen", 1000, "Approximate max length of the inbox stream")
	pollInterval := fs.Duration("poll-interval", 2*time.Second, "Blocking read timeout per poll")
	echo := fs.Bool("echo", false, "Log every received message")
	verbose := fs.Bool("verbose", false, "Enable debug logging")
	metricsEnabled := fs.Bool("metrics", false, "Expose OpenTelemetry metrics over Prometheus")
	metricsAddr := fs.String("metrics-addr", ":9464", "Address the /metrics endpoint listens on")
	registryDSN := fs.String("registry-dsn", "", "Postgres DSN for the agent registry (enables recovery-metrics recording)")
	registryMigrate := fs.Bool("registry-migrate", false, "Apply registry schema migrations before recording")

	if err := fs.Parse(os.Args[2:]); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: agent id is required")
		fmt.Fprintln(os.Stderr, "Usage: mailbox run <agent-id> [flags]")
		os.Exit(1)
	}
	agentID := fs.Arg(0)
	if err := fs.Parse(fs.Args()[1:]); err != nil {
		os.Exit(1)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg := mailbox.DefaultMailboxConfig()
	cfg.Host = *redisHost
	cfg.Port = *redisPort
	cfg.Password = *redisPassword
	cfg.DB = *redisDB
	cfg.StreamPrefix = *streamPrefix
	cfg.MaxStreamLength = *maxLen
	cfg.PollInterval = *pollInterval

	opts := []mailbox.Option{mailbox.WithLogger(logger)}

	var meterProvider *sdkmetric.MeterProvider
	if *metricsEnabled {
		provider, err := setupMetrics(*metricsAddr, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to set up metrics: %v\n", err)
			os.Exit(1)
		}
		meterProvider = provider
		inst, err := mailbox.NewInstrumentation(provider.Meter("github.com/nkllon/beast-mailbox/mailbox"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to build instrumentation: %v\n", err)
			os.Exit(1)
		}
		opts = append(opts, mailbox.WithInstrumentation(inst))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var reg *registry.AgentRegistry
	if *registryDSN != "" {
		if *registryMigrate {
			if err := migrations.Run(*registryDSN); err != nil {
				fmt.Fprintf(os.Stderr, "Error: registry migration failed: %v\n", err)
				os.Exit(1)
			}
		}
		r, err := registry.NewAgentRegistry(ctx, *registryDSN, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to connect to registry: %v\n", err)
			os.Exit(1)
		}
		reg = r
		defer reg.Close()

		if err := reg.Touch(ctx, agentID); err != nil {
			logger.Warn("failed to record agent start in registry", "error", err)
		}

		opts = append(opts, mailbox.WithRecoveryCallback(func(cbCtx context.Context, m mailbox.RecoveryMetrics) {
			if err := reg.RecordRecovery(cbCtx, agentID, m); err != nil {
				logger.Warn("failed to record recovery metrics", "error", err)
			}
		}))
	}

	svc := mailbox.NewMailboxService(agentID, cfg, opts...)
	if *echo {
		svc.RegisterHandler(mailbox.EchoHandler(logger))
	}

	if err := svc.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to start mailbox service: %v\n", err)
		os.Exit(1)
	}

	logger.Info("mailbox service running", "agent_id", agentID, "inbox_stream", svc.InboxStream())
	<-ctx.Done()

	logger.Info("shutting down")
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	svc.Stop(stopCtx)

	if meterProvider != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics provider shutdown failed", "error", err)
		}
	}
}
