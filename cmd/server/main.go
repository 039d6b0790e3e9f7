package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dgallion1/bratgest/internal/api"
	"github.com/dgallion1/bratgest/internal/apperr"
	"github.com/dgallion1/bratgest/internal/config"
	"github.com/dgallion1/bratgest/internal/dataset"
	"github.com/dgallion1/bratgest/internal/metrics"
	"github.com/dgallion1/bratgest/internal/store"
)

func main() {
	if err := config.LoadDotenv(); err != nil {
		slog.Error("load .env", "error", err)
		os.Exit(1)
	}
	cfg := config.Load()
	log := newLogger(cfg)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize snapshot store.
	openCtx, openCancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	st, err := store.Open(openCtx, cfg.StoreConfig())
	openCancel()
	if err != nil {
		log.Error("open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	// Initialize metrics and dataset.
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	ds := dataset.New(dataset.WithLogger(log), dataset.WithMetrics(metrics.New(reg)))

	if err := populate(ctx, ds, st, cfg, log); err != nil {
		log.Error("load initial data", "error", err)
		os.Exit(1)
	}

	// Initialize HTTP server.
	srv := api.NewServer(ds, st, reg, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		if cfg.Autosave {
			if _, err := srv.SaveSnapshot(context.Background(), cfg.SnapshotName); err != nil {
				log.Error("autosave failed", "snapshot", cfg.SnapshotName, "error", err)
			}
		}
	}()

	log.Info("starting bratgest", "port", cfg.Port, "store", st.Driver(), "documents", ds.Len())
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	<-done
}

func newLogger(cfg config.Config) *slog.Logger {
	level, _ := config.ParseLevel(cfg.LogLevel)
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// populate restores the configured snapshot if the store has it, and
// otherwise reads every pair found in DATA_DIR.
func populate(ctx context.Context, ds *dataset.Dataset, st store.Store, cfg config.Config, log *slog.Logger) error {
	loadCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	defer cancel()

	_, err := ds.Load(loadCtx, st, cfg.SnapshotName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	if cfg.DataDir == "" {
		log.Info("no snapshot and no DATA_DIR, starting empty", "snapshot", cfg.SnapshotName)
		return nil
	}
	pairs, err := dataset.Discover(cfg.DataDir)
	if err != nil {
		return err
	}
	return ds.ReadAll(pairs)
}
