// Package mongodb реализует чтение агрегатов потребления из MongoDB.
// Соединение устанавливается один раз при старте и используется всеми
// запросами только на чтение.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/magabrotheeeer/endesa-gateway/internal/config"
	"github.com/magabrotheeeer/endesa-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/endesa-gateway/internal/models"
)

// ErrNotConnected возвращается, пока соединение с хранилищем не установлено.
var ErrNotConnected = errors.New("store not connected")

const (
	defaultConnectTimeout = 10 * time.Second
	closeTimeout          = 5 * time.Second
)

// Storage инкапсулирует клиента MongoDB и выбранную базу данных.
type Storage struct {
	client       *mongo.Client
	db           *mongo.Database
	queryTimeout time.Duration
}

// StatusFunc вызывается при потере и восстановлении связи с сервером.
type StatusFunc func(connected bool)

// New подключается к MongoDB, проверяет соединение и выбирает базу cfg.DBName.
// События heartbeat пишутся в лог: ошибки и таймауты как error, восстановление как info.
func New(ctx context.Context, cfg config.MongoDB, log *slog.Logger, onStatus StatusFunc) (*Storage, error) {
	const op = "storage.mongodb.New"

	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}

	opts := options.Client().
		ApplyURI(cfg.URL).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ConnectTimeout).
		SetServerMonitor(serverMonitor(log, onStatus))

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{
		client:       client,
		db:           client.Database(cfg.DBName),
		queryTimeout: cfg.QueryTimeout,
	}, nil
}

func serverMonitor(log *slog.Logger, onStatus StatusFunc) *event.ServerMonitor {
	var failing atomic.Bool
	notify := func(connected bool) {
		if onStatus != nil {
			onStatus(connected)
		}
	}

	return &event.ServerMonitor{
		ServerHeartbeatFailed: func(e *event.ServerHeartbeatFailedEvent) {
			failing.Store(true)
			notify(false)
			if mongo.IsTimeout(e.Failure) {
				log.Error("MongoDB timeout", slog.String("connection_id", e.ConnectionID), sl.Err(e.Failure))
				return
			}
			log.Error("MongoDB heartbeat failed", slog.String("connection_id", e.ConnectionID), sl.Err(e.Failure))
		},
		ServerHeartbeatSucceeded: func(e *event.ServerHeartbeatSucceededEvent) {
			if failing.CompareAndSwap(true, false) {
				notify(true)
				log.Info("MongoDB reconnected", slog.String("connection_id", e.ConnectionID))
			}
		},
		ServerClosed: func(e *event.ServerClosedEvent) {
			log.Warn("MongoDB server closed", slog.String("address", e.Address.String()))
		},
	}
}

// Find возвращает все документы коллекции, подходящие под filter.
// projection может быть nil. Результат никогда не равен nil.
func (s *Storage) Find(ctx context.Context, coll models.Collection, filter, projection bson.D) ([]models.Document, error) {
	const op = "storage.mongodb.Find"

	if s.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
	}

	if filter == nil {
		filter = bson.D{}
	}
	opts := options.Find()
	if len(projection) > 0 {
		opts.SetProjection(projection)
	}

	cursor, err := s.db.Collection(string(coll)).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", op, coll, err)
	}

	docs := make([]models.Document, 0)
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("%s: %s: %w", op, coll, err)
	}
	return docs, nil
}

// Ping проверяет доступность основного сервера.
func (s *Storage) Ping(ctx context.Context) error {
	const op = "storage.mongodb.Ping"
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Close закрывает соединение с MongoDB.
func (s *Storage) Close(ctx context.Context) error {
	const op = "storage.mongodb.Close"
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Database возвращает выбранную базу. Нужна тестам для наполнения коллекций.
func (s *Storage) Database() *mongo.Database {
	return s.db
}

// Holder хранит ссылку на Storage, которая появляется после подключения.
// До вызова Set все операции возвращают ErrNotConnected.
// После Close новые соединения не принимаются.
type Holder struct {
	mu      sync.Mutex
	closed  bool
	storage atomic.Pointer[Storage]
}

// Set публикует установленное соединение и возвращает true.
// Если Holder уже закрыт, соединение закрывается и возвращается false.
func (h *Holder) Set(s *Storage) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		_ = s.Close(ctx)
		return false
	}
	h.storage.Store(s)
	return true
}

// Get возвращает текущее соединение или nil.
func (h *Holder) Get() *Storage {
	return h.storage.Load()
}

// Find делегирует запрос в Storage.
func (h *Holder) Find(ctx context.Context, coll models.Collection, filter, projection bson.D) ([]models.Document, error) {
	s := h.storage.Load()
	if s == nil {
		return nil, ErrNotConnected
	}
	return s.Find(ctx, coll, filter, projection)
}

// Ping делегирует проверку в Storage.
func (h *Holder) Ping(ctx context.Context) error {
	s := h.storage.Load()
	if s == nil {
		return ErrNotConnected
	}
	return s.Ping(ctx)
}

// Close закрывает соединение, если оно было установлено.
func (h *Holder) Close(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	s := h.storage.Swap(nil)
	h.mu.Unlock()

	if s == nil {
		return nil
	}
	return s.Close(ctx)
}

// ConnectWithRetry пытается подключиться, пока не получится или не будет отменён ctx.
// Пауза между попытками растёт экспоненциально от base до maxDelay.
func ConnectWithRetry(ctx context.Context, cfg config.MongoDB, log *slog.Logger, onStatus StatusFunc,
	base, maxDelay time.Duration) (*Storage, error) {
	const op = "storage.mongodb.ConnectWithRetry"

	delay := base
	for attempt := 1; ; attempt++ {
		s, err := New(ctx, cfg, log, onStatus)
		if err == nil {
			return s, nil
		}
		log.Error("failed to connect to MongoDB",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", delay),
			sl.Err(err),
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}
