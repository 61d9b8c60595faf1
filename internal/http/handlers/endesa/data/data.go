// Package data реализует HTTP-обработчик GET /data/endesa.
//
// Handler читает параметры t, q, d1 и d2, собирает из них запрос к одной из
// коллекций агрегатов и возвращает найденные документы JSON-массивом.
//
// Ошибки параметров дают 400, недоступное хранилище 503, сбой запроса 500.
package data

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/endesa-gateway/internal/http/response"
	"github.com/magabrotheeeer/endesa-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/endesa-gateway/internal/metrics"
	"github.com/magabrotheeeer/endesa-gateway/internal/models"
	"github.com/magabrotheeeer/endesa-gateway/internal/query"
	"github.com/magabrotheeeer/endesa-gateway/internal/storage/mongodb"
)

// Handler обрабатывает запросы к агрегатам потребления.
type Handler struct {
	log      *slog.Logger        // Логгер для записи информации и ошибок
	service  Service             // Сервис чтения агрегатов
	validate *validator.Validate // Валидатор параметров запроса
	metrics  *metrics.Metrics
}

// Service описывает интерфейс бизнес-логики чтения агрегатов.
type Service interface {
	Find(ctx context.Context, q models.Query) ([]models.Document, error)
}

// New создает новый Handler с переданным логгером, сервисом и метриками.
func New(log *slog.Logger, service Service, m *metrics.Metrics) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
		metrics:  m,
	}
}

// ServeHTTP обрабатывает GET /data/endesa?t=<h|hp|d|m|y|s>[&d1=&d2=][&q=].
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.endesa.data"

	log := h.log.With(
		sl.Op(op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	values := r.URL.Query()
	params := models.QueryParams{
		T:  values.Get("t"),
		Q:  values.Get("q"),
		D1: values.Get("d1"),
		D2: values.Get("d2"),
	}
	label := discriminatorLabel(params.T)

	if err := h.validate.Struct(params); err != nil {
		log.Error("invalid request parameters", sl.Err(err))
		h.metrics.RecordQuery(label, metrics.OutcomeBadRequest)

		render.Status(r, http.StatusBadRequest)
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			render.JSON(w, r, response.ValidationError(verrs))
			return
		}
		render.JSON(w, r, response.Error("Bad Request"))
		return
	}

	q, err := query.Build(params)
	if err != nil {
		log.Error("failed to build query", sl.Err(err))
		h.metrics.RecordQuery(label, metrics.OutcomeBadRequest)

		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error(strings.TrimPrefix(err.Error(), "query.Build: ")))
		return
	}

	docs, err := h.service.Find(r.Context(), q)
	if errors.Is(err, mongodb.ErrNotConnected) {
		log.Error("store is not connected", sl.Err(err))
		h.metrics.RecordQuery(label, metrics.OutcomeUnavailable)

		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, response.Error("service unavailable"))
		return
	}
	if err != nil {
		log.Error("failed to query collection", slog.String("collection", string(q.Collection)), sl.Err(err))
		h.metrics.RecordQuery(label, metrics.OutcomeError)

		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not query collection"))
		return
	}

	if docs == nil {
		docs = make([]models.Document, 0)
	}

	h.metrics.RecordQuery(label, metrics.OutcomeOK)
	log.Info("documents found",
		slog.String("collection", string(q.Collection)),
		slog.Int("count", len(docs)),
	)
	render.JSON(w, r, docs)
}

// discriminatorLabel ограничивает значения метки метрики известными дискриминаторами.
func discriminatorLabel(t string) string {
	if _, ok := models.Discriminator(t).Collection(); ok {
		return t
	}
	return "invalid"
}
