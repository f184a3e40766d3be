// Command broker runs the storage engine and serves the produce/fetch
// RPC surface over JSON-over-HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sarihammad/streamit/pkg/broker"
	"github.com/sarihammad/streamit/pkg/config"
	"github.com/sarihammad/streamit/pkg/health"
	"github.com/sarihammad/streamit/pkg/idempotency"
	"github.com/sarihammad/streamit/pkg/logging"
	"github.com/sarihammad/streamit/pkg/metrics"
	"github.com/sarihammad/streamit/pkg/rpc"
	"github.com/sarihammad/streamit/pkg/storage"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	configPath := flag.String("config", "", "path to broker YAML config")
	flag.Parse()

	cfg := config.BrokerConfig{}
	var err error
	if *configPath != "" {
		cfg, err = config.LoadBroker(*configPath)
	} else {
		cfg, err = config.LoadBroker(envOrDefault("STREAMIT_BROKER_CONFIG", "/etc/streamit/broker.yaml"))
	}
	logger := logging.New(envOrDefault("STREAMIT_LOG_LEVEL", cfg.LogLevel)).With("component", "broker")
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logDir, err := storage.Open(cfg.LogDir, storage.Config{
		MaxSegmentSizeBytes: cfg.MaxSegmentSizeBytes,
		FlushPolicy:         storage.FlushOnRoll,
		Logger:              logger,
	})
	if err != nil {
		logger.Error("failed to open log directory", "error", err, "dir", cfg.LogDir)
		os.Exit(1)
	}

	idemTTL := time.Duration(cfg.IdempotencyTTLMs) * time.Millisecond
	idem := idempotency.New(cfg.IdempotencyMaxEntries, idemTTL)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	core := broker.New(logDir, idem, m, logger)
	svc := broker.NewService(core)

	healthSrv := health.New(reg)
	healthSrv.RegisterCheck("storage", func() error {
		if _, err := os.Stat(cfg.LogDir); err != nil {
			return err
		}
		return nil
	})

	addr := cfg.Host + ":" + strconv.Itoa(cfg.Port)
	apiSrv := &http.Server{Addr: addr, Handler: rpc.NewBrokerHandler(svc, logger)}

	metricsAddr := cfg.Host + ":" + strconv.Itoa(cfg.MetricsPort)
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/", healthSrv.Handler())
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: metricsMux}

	go runServer(ctx, apiSrv, logger, "broker api server error")
	if cfg.EnableMetrics {
		go runServer(ctx, metricsSrv, logger, "metrics server error")
	}

	retentionInterval := time.Duration(cfg.RetentionCleanupMs) * time.Millisecond
	if retentionInterval > 0 && cfg.RetentionBytes > 0 {
		go runRetentionLoop(ctx, logDir, cfg.RetentionBytes, retentionInterval, logger)
	}

	logger.Info("broker started", "addr", addr, "log_dir", cfg.LogDir)
	<-ctx.Done()
	logger.Info("broker shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = apiSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
}

func runServer(ctx context.Context, srv *http.Server, logger *slog.Logger, errMsg string) {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error(errMsg, "error", err, "addr", srv.Addr)
	}
}

func runRetentionLoop(ctx context.Context, logDir *storage.LogDir, retentionBytes int64, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, topic := range logDir.ListTopics() {
				for _, partition := range logDir.ListPartitions(topic) {
					if err := logDir.CleanupOldSegments(topic, partition, retentionBytes); err != nil {
						logger.Warn("retention cleanup failed", "error", err, "topic", topic, "partition", partition)
					}
				}
			}
		}
	}
}

func envOrDefault(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
