// Package endesa содержит бизнес-логику чтения агрегатов потребления:
// обращение к хранилищу, кеширование агрегатов и учёт метрик.
package endesa

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/magabrotheeeer/endesa-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/endesa-gateway/internal/metrics"
	"github.com/magabrotheeeer/endesa-gateway/internal/models"
	"github.com/magabrotheeeer/endesa-gateway/internal/query"
)

// Repository определяет чтение документов из хранилища.
type Repository interface {
	// Find возвращает документы коллекции по фильтру с необязательной проекцией.
	Find(ctx context.Context, coll models.Collection, filter, projection bson.D) ([]models.Document, error)
}

// Cache описывает методы для кэширования данных.
type Cache interface {
	// Get пытается получить значение из кеша по ключу.
	Get(ctx context.Context, key string, result any) (bool, error)
	// Set сохраняет значение в кеш с временем жизни.
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
}

// Service реализует чтение агрегатов с кешированием.
type Service struct {
	repo    Repository
	cache   Cache
	ttl     time.Duration
	metrics *metrics.Metrics
	log     *slog.Logger
}

// NewService создает новый экземпляр Service. cache может быть nil, тогда кеш не используется.
func NewService(repo Repository, cache Cache, ttl time.Duration, m *metrics.Metrics, log *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		cache:   cache,
		ttl:     ttl,
		metrics: m,
		log:     log,
	}
}

// Find выполняет запрос q. Для агрегатов d, m, y, s сначала проверяется кеш.
// Ошибки кеша только логируются.
func (s *Service) Find(ctx context.Context, q models.Query) ([]models.Document, error) {
	const op = "services.endesa.Find"

	useCache := s.cache != nil && q.Discriminator.Cacheable()
	cacheKey := "endesa:" + query.Key(q)

	if useCache {
		var cached []models.Document
		found, err := s.cache.Get(ctx, cacheKey, &cached)
		switch {
		case err != nil:
			s.metrics.RecordCache(metrics.CacheError)
			s.log.Warn("failed to read from cache", slog.String("key", cacheKey), sl.Err(err))
		case found:
			s.metrics.RecordCache(metrics.CacheHit)
			if cached == nil {
				cached = make([]models.Document, 0)
			}
			return cached, nil
		default:
			s.metrics.RecordCache(metrics.CacheMiss)
		}
	}

	start := time.Now()
	docs, err := s.repo.Find(ctx, q.Collection, q.Filter, q.Projection)
	s.metrics.ObserveStoreRead(string(q.Collection), time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if docs == nil {
		docs = make([]models.Document, 0)
	}

	s.log.Debug("documents read from store",
		slog.String("collection", string(q.Collection)),
		slog.Int("count", len(docs)),
	)

	if useCache {
		if err := s.cache.Set(ctx, cacheKey, docs, s.ttl); err != nil {
			s.log.Warn("failed to cache documents", slog.String("key", cacheKey), sl.Err(err))
		}
	}

	return docs, nil
}
