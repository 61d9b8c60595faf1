package health

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/endesa-gateway/internal/http/response"
	"github.com/magabrotheeeer/endesa-gateway/internal/lib/sl"
)

// Pinger проверяет доступность хранилища.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	log    *slog.Logger
	store  Pinger
	pingTO time.Duration
}

func New(log *slog.Logger, store Pinger) *Handler {
	return &Handler{
		log:    log,
		store:  store,
		pingTO: 2 * time.Second,
	}
}

// Live всегда отвечает 200, пока процесс обслуживает запросы.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, response.OK(response.StatusOK))
}

// Ready отвечает 200, только если хранилище подключено и отвечает на ping.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.health.ready"

	ctx, cancel := context.WithTimeout(r.Context(), h.pingTO)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.log.Warn("store is not ready", sl.Op(op), sl.Err(err))
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, response.Error("store not connected"))
		return
	}
	render.JSON(w, r, response.OK(response.StatusReady))
}
