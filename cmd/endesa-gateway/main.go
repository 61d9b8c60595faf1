// Package main Endesa Gateway
//
// HTTP-шлюз для чтения агрегатов потребления электроэнергии
// (по часам, дням, месяцам, годам и статистике) из MongoDB.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/magabrotheeeer/endesa-gateway/internal/app/gateway"
	"github.com/magabrotheeeer/endesa-gateway/internal/config"
	"github.com/magabrotheeeer/endesa-gateway/internal/lib/logger"
	"github.com/magabrotheeeer/endesa-gateway/internal/lib/sl"
)

const appName = "endesa-gateway"

func main() {
	cfg := config.MustLoad()

	lg, closer, err := logger.Setup(cfg.Env, cfg.Log.File)
	if err != nil {
		log.Fatalf("cannot set up logger: %s", err)
	}
	defer func() { _ = closer.Close() }()

	lg.Info("starting "+appName,
		slog.String("version", cfg.Version),
		slog.String("start_at", time.Now().Format(time.DateOnly)),
		slog.String("env", cfg.Env),
		slog.String("level", logger.Level(lg).String()),
	)
	lg.Debug("config loaded", slog.String("config", cfg.String()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := gateway.New(ctx, cfg, lg)
	if err != nil {
		lg.Error("failed to initialize app", sl.Err(err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		lg.Error("app stopped with error", sl.Err(err))
		os.Exit(1)
	}

	lg.Info(appName + " stopped gracefully")
}
