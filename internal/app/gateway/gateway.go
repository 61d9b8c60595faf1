package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/magabrotheeeer/endesa-gateway/internal/cache"
	"github.com/magabrotheeeer/endesa-gateway/internal/config"
	"github.com/magabrotheeeer/endesa-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/endesa-gateway/internal/metrics"
	endesaservice "github.com/magabrotheeeer/endesa-gateway/internal/services/endesa"
	"github.com/magabrotheeeer/endesa-gateway/internal/storage/mongodb"
)

const (
	retryBaseDelay = time.Second
	retryMaxDelay  = 30 * time.Second
)

type App struct {
	cfg     *config.Config
	server  *http.Server
	logger  *slog.Logger
	store   *mongodb.Holder
	cache   io.Closer
	metrics *metrics.Metrics

	stopConnect context.CancelFunc
	connectDone chan struct{}
}

// New собирает приложение. Хранилище подключается позже в Run,
// до этого запросы к /data/endesa получают 503.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry)

	store := &mongodb.Holder{}

	var (
		svcCache endesaservice.Cache
		closer   io.Closer
	)
	if cfg.RedisConnection.Enabled {
		redisCache, err := cache.InitServer(ctx, cfg.RedisConnection)
		if err != nil {
			// кеш не обязателен, работаем напрямую с хранилищем
			logger.Warn("cache disabled: failed to connect to redis", sl.Err(err))
		} else {
			svcCache = redisCache
			closer = redisCache
			logger.Info("cache connected", slog.String("address", cfg.RedisConnection.Address))
		}
	}

	service := endesaservice.NewService(store, svcCache, cfg.RedisConnection.TTL, m, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, cfg, logger, service, store, m, registry)

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	return &App{
		cfg:         cfg,
		server:      srv,
		logger:      logger,
		store:       store,
		cache:       closer,
		metrics:     m,
		stopConnect: func() {},
		connectDone: make(chan struct{}),
	}, nil
}

// Handler возвращает корневой обработчик, нужен тестам.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// connectStore подключается к MongoDB в фоне и публикует соединение в Holder.
func (a *App) connectStore(ctx context.Context) {
	s, err := mongodb.ConnectWithRetry(ctx, a.cfg.MongoDB, a.logger, a.metrics.SetStoreConnected,
		retryBaseDelay, retryMaxDelay)
	if errors.Is(err, context.Canceled) {
		return
	}
	if err != nil {
		a.logger.Error("gave up connecting to MongoDB", sl.Err(err))
		return
	}
	if !a.store.Set(s) {
		a.logger.Info("MongoDB connection dropped: app is shutting down")
		return
	}
	a.metrics.SetStoreConnected(true)
	a.logger.Info("MongoDB connected", slog.String("db", a.cfg.MongoDB.DBName))
}

func (a *App) Run(ctx context.Context) error {
	connectCtx, stop := context.WithCancel(ctx)
	a.stopConnect = stop
	go func() {
		defer close(a.connectDone)
		a.connectStore(connectCtx)
	}()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.close()
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.close()
		return err
	}
}

func (a *App) close() {
	a.stopConnect()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.store.Close(ctx); err != nil {
		a.logger.Error("failed to close MongoDB connection", sl.Err(err))
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("failed to close cache", sl.Err(err))
		}
	}
}
