// Command coordinator runs the consumer-group manager service.
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
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/sarihammad/streamit/pkg/config"
	"github.com/sarihammad/streamit/pkg/coordinator"
	"github.com/sarihammad/streamit/pkg/group"
	"github.com/sarihammad/streamit/pkg/health"
	"github.com/sarihammad/streamit/pkg/logging"
	"github.com/sarihammad/streamit/pkg/metrics"
	"github.com/sarihammad/streamit/pkg/rpc"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	configPath := flag.String("config", "", "path to coordinator YAML config")
	flag.Parse()

	path := *configPath
	if path == "" {
		path = envOrDefault("STREAMIT_COORDINATOR_CONFIG", "/etc/streamit/coordinator.yaml")
	}
	cfg, err := config.LoadCoordinator(path)
	logger := logging.New(envOrDefault("STREAMIT_LOG_LEVEL", cfg.LogLevel)).With("component", "coordinator")
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	controllerAddr := envOrDefault("STREAMIT_CONTROLLER_ADDR", "http://localhost:9093")
	controllerClient := rpc.NewClient(controllerAddr, 10*time.Second)

	offsets, err := buildOffsetStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build offset store", "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	sessionTimeout := time.Duration(cfg.SessionTimeoutMs) * time.Millisecond
	manager := group.New(sessionTimeout, controllerPartitionCounts(controllerClient), offsets)
	manager.SetRebalanceHook(m.Rebalances.Inc)
	svc := coordinator.New(manager, sessionTimeout/3)

	healthSrv := health.New(reg)
	addr := cfg.Host + ":" + strconv.Itoa(cfg.Port)
	apiMux := http.NewServeMux()
	apiMux.Handle("/", rpc.NewCoordinatorHandler(svc, logger))
	apiSrv := &http.Server{Addr: addr, Handler: apiMux}

	metricsAddr := cfg.Host + ":" + strconv.Itoa(cfg.MetricsPort)
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: healthSrv.Handler()}

	go runServer(ctx, apiSrv, logger, "coordinator api server error")
	if cfg.EnableMetrics {
		go runServer(ctx, metricsSrv, logger, "metrics server error")
	}

	cleanupInterval := time.Duration(cfg.CleanupIntervalMs) * time.Millisecond
	if cleanupInterval <= 0 {
		cleanupInterval = 30 * time.Second
	}
	go runCleanupLoop(ctx, manager, cleanupInterval, logger)

	logger.Info("coordinator started", "addr", addr, "offsets_backend", cfg.OffsetsBackend)
	<-ctx.Done()
	logger.Info("coordinator shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = apiSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
}

// controllerPartitionCounts adapts the controller's describe-topic RPC
// into the group.TopicPartitionCounts callback shape.
func controllerPartitionCounts(client *rpc.Client) group.TopicPartitionCounts {
	return func(ctx context.Context, topics []string) (map[string]int32, error) {
		counts := make(map[string]int32, len(topics))
		for _, topic := range topics {
			resp, err := client.DescribeTopic(ctx, rpc.DescribeTopicRequest{Topic: topic})
			if err != nil || resp.ErrorMessage != "" {
				continue
			}
			counts[topic] = int32(len(resp.Metadata.Partitions))
		}
		return counts, nil
	}
}

func buildOffsetStore(ctx context.Context, cfg config.CoordinatorConfig, logger *slog.Logger) (group.OffsetStore, error) {
	if strings.ToLower(cfg.OffsetsBackend) != "etcd" {
		logger.Warn("using in-memory offset store; committed offsets are lost on coordinator restart")
		return group.NewMemOffsetStore(), nil
	}
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.EtcdEndpoints,
		DialTimeout: 5 * time.Second,
		Context:     ctx,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("using etcd-backed offset store", "endpoints", cfg.EtcdEndpoints)
	return group.NewEtcdOffsetStore(client, "/streamit/offsets"), nil
}

func runCleanupLoop(ctx context.Context, manager *group.Manager, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := manager.CleanupInactiveMembers(ctx); err != nil {
				logger.Warn("cleanup inactive members failed", "error", err)
			}
		}
	}
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

func envOrDefault(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
