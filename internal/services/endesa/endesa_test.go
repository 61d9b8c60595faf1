package endesa

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/magabrotheeeer/endesa-gateway/internal/metrics"
	"github.com/magabrotheeeer/endesa-gateway/internal/models"
	"github.com/magabrotheeeer/endesa-gateway/internal/query"
	"github.com/magabrotheeeer/endesa-gateway/internal/storage/mongodb"
)

// MockRepository реализует интерфейс Repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Find(ctx context.Context, coll models.Collection, filter, projection bson.D) ([]models.Document, error) {
	args := m.Called(ctx, coll, filter, projection)
	if res := args.Get(0); res != nil {
		return res.([]models.Document), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockCache реализует интерфейс Cache
type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key string, result any) (bool, error) {
	args := m.Called(ctx, key, result)
	if fill, ok := args.Get(2).(func(any)); ok && fill != nil {
		fill(result)
	}
	return args.Bool(0), args.Error(1)
}

func (m *MockCache) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	args := m.Called(ctx, key, value, expiration)
	return args.Error(0)
}

func newTestService(repo Repository, cache Cache) (*Service, *metrics.Metrics) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, cache, time.Hour, m, log), m
}

func mustBuild(t *testing.T, p models.QueryParams) models.Query {
	t.Helper()
	q, err := query.Build(p)
	require.NoError(t, err)
	return q
}

func TestFind_WithoutCache(t *testing.T) {
	repo := new(MockRepository)
	q := mustBuild(t, models.QueryParams{T: "h", D1: "2019-01-01", D2: "2019-01-31"})
	docs := []models.Document{{"kwh": 0.3}}
	repo.On("Find", mock.Anything, models.CollectionHours, q.Filter, bson.D(nil)).Return(docs, nil).Once()

	svc, _ := newTestService(repo, nil)

	got, err := svc.Find(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, docs, got)
	repo.AssertExpectations(t)
}

func TestFind_EmptyResultIsNotNil(t *testing.T) {
	repo := new(MockRepository)
	repo.On("Find", mock.Anything, models.CollectionStats, bson.D(nil), bson.D(nil)).Return(nil, nil).Once()

	svc, _ := newTestService(repo, nil)

	got, err := svc.Find(context.Background(), mustBuild(t, models.QueryParams{T: "s"}))
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFind_RepositoryError(t *testing.T) {
	tests := []struct {
		name    string
		repoErr error
	}{
		{name: "хранилище не подключено", repoErr: mongodb.ErrNotConnected},
		{name: "ошибка запроса", repoErr: errors.New("connection reset")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepository)
			repo.On("Find", mock.Anything, models.CollectionYear, bson.D(nil), bson.D(nil)).Return(nil, tt.repoErr)

			svc, _ := newTestService(repo, nil)

			got, err := svc.Find(context.Background(), mustBuild(t, models.QueryParams{T: "y"}))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.repoErr)
			assert.Nil(t, got)
		})
	}
}

func TestFind_CacheHit(t *testing.T) {
	repo := new(MockRepository)
	cache := new(MockCache)
	q := mustBuild(t, models.QueryParams{T: "y"})

	cached := []models.Document{{"y": float64(2019)}}
	cache.On("Get", mock.Anything, "endesa:"+query.Key(q), mock.Anything).
		Return(true, nil, func(out any) { *(out.(*[]models.Document)) = cached }).Once()

	svc, m := newTestService(repo, cache)

	got, err := svc.Find(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, cached, got)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CacheRequests.WithLabelValues(metrics.CacheHit)), 0)
	repo.AssertNotCalled(t, "Find", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	cache.AssertExpectations(t)
}

func TestFind_CacheMissStoresResult(t *testing.T) {
	repo := new(MockRepository)
	cache := new(MockCache)
	q := mustBuild(t, models.QueryParams{T: "d", Q: `"y":2019`})
	key := "endesa:" + query.Key(q)
	docs := []models.Document{{"y": int32(2019), "d": int32(1)}}

	cache.On("Get", mock.Anything, key, mock.Anything).Return(false, nil, nil).Once()
	repo.On("Find", mock.Anything, models.CollectionDay, q.Filter, bson.D(nil)).Return(docs, nil).Once()
	cache.On("Set", mock.Anything, key, docs, time.Hour).Return(nil).Once()

	svc, m := newTestService(repo, cache)

	got, err := svc.Find(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, docs, got)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CacheRequests.WithLabelValues(metrics.CacheMiss)), 0)
	repo.AssertExpectations(t)
	cache.AssertExpectations(t)
}

func TestFind_CacheErrorsFallBackToStore(t *testing.T) {
	repo := new(MockRepository)
	cache := new(MockCache)
	q := mustBuild(t, models.QueryParams{T: "m"})
	docs := []models.Document{{"m": int32(1)}}

	cache.On("Get", mock.Anything, mock.Anything, mock.Anything).Return(false, errors.New("redis down"), nil).Once()
	repo.On("Find", mock.Anything, models.CollectionMonth, bson.D(nil), bson.D(nil)).Return(docs, nil).Once()
	cache.On("Set", mock.Anything, mock.Anything, docs, time.Hour).Return(errors.New("redis down")).Once()

	svc, m := newTestService(repo, cache)

	got, err := svc.Find(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, docs, got)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CacheRequests.WithLabelValues(metrics.CacheError)), 0)
}

func TestFind_HourlyNeverCached(t *testing.T) {
	repo := new(MockRepository)
	cache := new(MockCache)
	q := mustBuild(t, models.QueryParams{T: "hp"})

	repo.On("Find", mock.Anything, models.CollectionHours, bson.D(nil), models.HourlyProjection()).
		Return([]models.Document{}, nil).Once()

	svc, _ := newTestService(repo, cache)

	_, err := svc.Find(context.Background(), q)
	require.NoError(t, err)
	cache.AssertNotCalled(t, "Get", mock.Anything, mock.Anything, mock.Anything)
	cache.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

func TestFind_WithoutCacheEveryRequestReadsStore(t *testing.T) {
	repo := new(MockRepository)
	q := mustBuild(t, models.QueryParams{T: "y"})

	first := []models.Document{{"y": int32(2019)}}
	second := []models.Document{{"y": int32(2019)}, {"y": int32(2020)}}
	repo.On("Find", mock.Anything, models.CollectionYear, bson.D(nil), bson.D(nil)).Return(first, nil).Once()
	repo.On("Find", mock.Anything, models.CollectionYear, bson.D(nil), bson.D(nil)).Return(second, nil).Once()

	svc, m := newTestService(repo, nil)

	got, err := svc.Find(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	got, err = svc.Find(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, second, got, "новые документы видны без ожидания TTL")

	repo.AssertNumberOfCalls(t, "Find", 2)
	assert.InDelta(t, 0, testutil.ToFloat64(m.CacheRequests.WithLabelValues(metrics.CacheMiss)), 0)
}
