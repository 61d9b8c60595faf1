// Package gateway собирает HTTP-приложение шлюза: маршруты, middleware,
// подключение к хранилищу и жизненный цикл сервера.
package gateway

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/endesa-gateway/internal/config"
	"github.com/magabrotheeeer/endesa-gateway/internal/http/handlers/endesa/data"
	"github.com/magabrotheeeer/endesa-gateway/internal/http/handlers/health"
	"github.com/magabrotheeeer/endesa-gateway/internal/http/middlewarectx"
	"github.com/magabrotheeeer/endesa-gateway/internal/metrics"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, cfg *config.Config, logger *slog.Logger, service data.Service,
	store health.Pinger, m *metrics.Metrics, gatherer prometheus.Gatherer) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		middlewarectx.SecurityHeaders,
		middlewarectx.CORS(cfg.CORS.AllowedOrigins),
	)

	healthHandler := health.New(logger, store)
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(middlewarectx.RateLimitMiddleware(logger, rate.NewLimiter(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst)))
		r.Method(http.MethodGet, "/data/endesa", data.New(logger, service, m))
	})
}
