// Package logger собирает slog.Logger под профиль окружения:
// local пишет текстом в stdout, dev пишет JSON в stdout,
// prod пишет JSON в файл с уровнем info.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/magabrotheeeer/endesa-gateway/internal/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup возвращает логгер и Closer для файла логов (для stdout Close ничего не делает).
func Setup(env, file string) (*slog.Logger, io.Closer, error) {
	const op = "logger.Setup"

	switch env {
	case config.EnvLocal:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})), nopCloser{}, nil
	case config.EnvDev:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})), nopCloser{}, nil
	case config.EnvProd:
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}
		return slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelInfo})), f, nil
	default:
		return nil, nil, fmt.Errorf("%s: unknown env %q", op, env)
	}
}

// Level возвращает минимальный включённый уровень логгера.
func Level(log *slog.Logger) slog.Level {
	for _, l := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn} {
		if log.Enabled(context.Background(), l) {
			return l
		}
	}
	return slog.LevelError
}

// Discard возвращает логгер, который ничего не пишет. Используется в тестах.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}
