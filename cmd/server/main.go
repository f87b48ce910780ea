package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/draftforge/backend/internal/api"
	"github.com/draftforge/backend/internal/config"
	"github.com/draftforge/backend/internal/hub"
	"github.com/draftforge/backend/internal/infra"
	"github.com/draftforge/backend/internal/monitoring"
	"github.com/draftforge/backend/internal/store"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}
	slog.Info("starting draft backend", "env", cfg.Env, "port", cfg.Port)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	pg, err := store.Open(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	cancel()
	if err != nil {
		slog.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer pg.Close()

	// Redis is optional: without it the hub fans out within this process
	// only.
	var bridge hub.Bridge
	var redisPing api.Pinger
	if cfg.RedisAddr != "" {
		adapter, err := infra.NewGoRedisAdapter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			slog.Warn("redis unavailable, single-process fan-out", "error", err)
		} else {
			defer adapter.Close()
			bridge = adapter
			redisPing = adapter
		}
	}

	metrics := monitoring.New(prometheus.DefaultRegisterer)
	h := hub.New(bridge, metrics)
	server := api.NewServer(pg, h, cfg, metrics, api.Options{
		DBPing:    pg,
		RedisPing: redisPing,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		slog.Error("server failed", "error", err)
		os.Exit(1)
	case sig := <-stop:
		slog.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown incomplete", "error", err)
	}
}
