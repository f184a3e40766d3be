// Command controller runs the topic-metadata service.
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

	"github.com/sarihammad/streamit/pkg/config"
	"github.com/sarihammad/streamit/pkg/controller"
	"github.com/sarihammad/streamit/pkg/health"
	"github.com/sarihammad/streamit/pkg/logging"
	"github.com/sarihammad/streamit/pkg/rpc"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	configPath := flag.String("config", "", "path to controller YAML config")
	flag.Parse()

	path := *configPath
	if path == "" {
		path = envOrDefault("STREAMIT_CONTROLLER_CONFIG", "/etc/streamit/controller.yaml")
	}
	cfg, err := config.LoadController(path)
	logger := logging.New(envOrDefault("STREAMIT_LOG_LEVEL", cfg.LogLevel)).With("component", "controller")
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	brokerID := int32(1)
	brokerHost := envOrDefault("STREAMIT_BROKER_HOST", "localhost")
	brokerPort, _ := strconv.Atoi(envOrDefault("STREAMIT_BROKER_PORT", "9092"))

	ctl := controller.New(brokerID, brokerHost, int32(brokerPort), nil)

	healthSrv := health.New(prometheus.NewRegistry())
	addr := cfg.Host + ":" + strconv.Itoa(cfg.Port)
	apiMux := http.NewServeMux()
	apiMux.Handle("/", rpc.NewControllerHandler(ctl, logger))
	apiSrv := &http.Server{Addr: addr, Handler: apiMux}

	metricsAddr := cfg.Host + ":" + strconv.Itoa(cfg.MetricsPort)
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: healthSrv.Handler()}

	go runServer(ctx, apiSrv, logger, "controller api server error")
	if cfg.EnableMetrics {
		go runServer(ctx, metricsSrv, logger, "metrics server error")
	}

	logger.Info("controller started", "addr", addr)
	<-ctx.Done()
	logger.Info("controller shutting down")
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

func envOrDefault(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
