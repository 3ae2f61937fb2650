// Command modelgate runs the resilient model-backend gateway with its
// administrative HTTP surface: /healthz for health snapshots and /metrics for
// Prometheus exposition.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nimbusworks/modelgate/pkg/backend"
	"github.com/nimbusworks/modelgate/pkg/config"
	"github.com/nimbusworks/modelgate/pkg/gateway"
	"github.com/nimbusworks/modelgate/pkg/telemetry/health"
	"github.com/nimbusworks/modelgate/pkg/telemetry/logging"
	"github.com/nimbusworks/modelgate/pkg/telemetry/metrics"
	"github.com/nimbusworks/modelgate/pkg/usage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "modelgate: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "modelgate.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger, err := logging.Setup(cfg.Telemetry.Logging)
	if err != nil {
		return err
	}

	var gm *metrics.GatewayMetrics
	if cfg.Telemetry.Metrics.Enabled == nil || *cfg.Telemetry.Metrics.Enabled {
		gm = metrics.New(&cfg.Telemetry.Metrics)
	}

	var ledger usage.Recorder
	if cfg.Usage.Enabled {
		sqlLedger, err := usage.NewSQLiteLedger(cfg.Usage.DBPath)
		if err != nil {
			return err
		}
		defer sqlLedger.Close()
		ledger = sqlLedger
	}

	transport := backend.NewHTTPTransport(backend.HTTPTransportConfig{
		BaseURL:             cfg.Backend.BaseURL,
		APIKey:              cfg.Backend.APIKey,
		Timeout:             cfg.Backend.Timeout,
		MaxIdleConns:        cfg.Backend.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.Backend.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.Backend.IdleConnTimeout,
	})
	defer transport.Close()

	gw, err := gateway.New(cfg, gateway.Deps{
		Transport: transport,
		Metrics:   gm,
		Usage:     ledger,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Hot-reload: newly tuned breakers take effect on config file change.
	watcher, err := config.NewWatcher(*configPath, func(next *config.Config) {
		gw.ApplyBreakerConfig(next.Breaker)
	})
	if err != nil {
		logger.Warn("config watcher unavailable", "error", err)
	} else {
		watcher.Start(ctx)
		defer watcher.Close()
	}

	reporter := health.NewReporter(gw, cfg.Telemetry.HealthReportSchedule)
	if err := reporter.Start(); err != nil {
		return err
	}
	defer reporter.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		snapshot := gw.GetHealth()
		w.Header().Set("Content-Type", "application/json")
		if !snapshot.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(snapshot)
	})
	mux.HandleFunc("/breakers/reset", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		gw.ResetBreakers()
		w.WriteHeader(http.StatusNoContent)
	})
	if gm != nil {
		mux.Handle("/metrics", gm.Handler())
	}

	server := &http.Server{
		Addr:         cfg.Server.ListenAddress,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("admin server listening", "address", cfg.Server.ListenAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("admin server shutdown incomplete", "error", err)
	}
	return nil
}
