package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/donbenny0/notify-commercetools-connector-sub000/internal/common"
	"github.com/donbenny0/notify-commercetools-connector-sub000/internal/config"
	"github.com/donbenny0/notify-commercetools-connector-sub000/internal/dispatch"
	"github.com/donbenny0/notify-commercetools-connector-sub000/internal/event"
	"github.com/donbenny0/notify-commercetools-connector-sub000/internal/resolver"
)

var eventCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "inbound_events_total",
	Help: "Inbound subscription deliveries by outcome",
}, []string{"outcome"})

// Dispatcher is what the boundary needs from the dispatch engine.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev event.Event, snap *config.Snapshot) (dispatch.Completion, error)
}

// SnapshotProvider hands out the current channel configuration.
type SnapshotProvider interface {
	Snapshot() *config.Snapshot
}

// Handler is the HTTP inbound boundary. The event bus pushes deliveries
// to /v1/events and redelivers on any non-2xx response.
type Handler struct {
	dispatcher Dispatcher
	snapshots  SnapshotProvider
	tracer     trace.Tracer
	logger     zerolog.Logger
}

func NewHandler(dispatcher Dispatcher, snapshots SnapshotProvider, logger zerolog.Logger) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		snapshots:  snapshots,
		tracer:     otel.Tracer("server"),
		logger:     logger,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/v1/events", h.handleEvent)
	r.Post("/v1/templates/validate", h.validateTemplate)
	r.Post("/v1/templates/suggest", h.suggestPaths)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func (h *Handler) handleEvent(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "handle_event")
	defer span.End()

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		h.respondErr(ctx, w, http.StatusBadRequest, err)
		return
	}

	ev, err := event.DecodeEnvelope(raw)
	if errors.Is(err, event.ErrNotNotification) {
		// acknowledge foreign payloads so the bus stops redelivering them
		eventCounter.WithLabelValues("ignored").Inc()
		writeJSON(w, http.StatusOK, map[string]any{"ignored": true})
		return
	}
	if err != nil {
		h.respondErr(ctx, w, http.StatusBadRequest, err)
		return
	}
	span.SetAttributes(attribute.String("event.id", ev.ID))

	completion, err := h.dispatcher.Dispatch(ctx, ev, h.snapshots.Snapshot())
	if err != nil {
		h.respondErr(ctx, w, http.StatusInternalServerError, err)
		return
	}

	if !completion.AllDone {
		// non-2xx asks the bus to redeliver this event later
		eventCounter.WithLabelValues("retry_requested").Inc()
		writeJSON(w, http.StatusInternalServerError, map[string]any{"retryRequested": true})
		return
	}

	eventCounter.WithLabelValues("complete").Inc()
	writeJSON(w, http.StatusOK, map[string]any{"retryRequested": false})
}

type validateRequest struct {
	Template string `json:"template"`
}

func (h *Handler) validateTemplate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondErr(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	issues := resolver.ValidateTemplate(req.Template)
	if issues == nil {
		issues = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":  len(issues) == 0,
		"issues": issues,
	})
}

type suggestRequest struct {
	Sample map[string]any `json:"sample"`
}

func (h *Handler) suggestPaths(w http.ResponseWriter, r *http.Request) {
	var req suggestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondErr(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	paths := resolver.Enumerate(req.Sample)
	if paths == nil {
		paths = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"paths": paths})
}

func (h *Handler) respondErr(ctx context.Context, w http.ResponseWriter, status int, err error) {
	logger := common.WithContext(ctx, h.logger)
	logger.Error().Err(err).Int("status", status).Msg("event handler failed")
	eventCounter.WithLabelValues("error").Inc()
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
