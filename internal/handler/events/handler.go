package events

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/agentlink/internal/metrics"
	"github.com/zhouzirui/agentlink/internal/model/chat"
	"github.com/zhouzirui/agentlink/internal/service/bus"
	"github.com/zhouzirui/agentlink/pkg/utils"
)

// defaultListLimit caps GET /events when no limit is given.
const defaultListLimit = 50

// Subscriber opens a per-session event feed.
type Subscriber interface {
	Subscribe(ctx context.Context, sessionID string) (<-chan bus.Delivery, error)
}

// Lister returns recorded events, newest first.
type Lister interface {
	RecentEvents(ctx context.Context, sessionID string, limit int) []chat.EventPayload
}

// Handler serves the event stream and the recent-events listing.
type Handler struct {
	subscriber Subscriber
	lister     Lister
	metrics    *metrics.Collector
	logger     zerolog.Logger
}

// New creates the events handler.
func New(subscriber Subscriber, lister Lister, m *metrics.Collector) *Handler {
	return &Handler{
		subscriber: subscriber,
		lister:     lister,
		metrics:    m,
		logger:     log.Logger.With().Str("component", "events_handler").Logger(),
	}
}

// RegisterRoutes mounts GET /events and GET /events/stream/{sessionID}.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/events", h.handleList)
	r.Get("/events/stream/{sessionID}", h.handleStream)
}

type listResponse struct {
	Status string              `json:"status"`
	Events []chat.EventPayload `json:"events"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			utils.RespondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	events := h.lister.RecentEvents(r.Context(), r.URL.Query().Get("session_id"), limit)
	if events == nil {
		events = []chat.EventPayload{}
	}
	utils.RespondJSON(w, http.StatusOK, listResponse{Status: "success", Events: events})
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		utils.RespondError(w, http.StatusBadRequest, "session id is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := r.Context()
	deliveries, err := h.subscriber.Subscribe(ctx, sessionID)
	if err != nil {
		h.logger.Error().Err(err).Str("session_id", sessionID).Msg("subscribe failed")
		utils.RespondError(w, http.StatusServiceUnavailable, "event bus unavailable")
		return
	}

	// Headers go out only after the subscription exists, so an open stream
	// never misses events published afterwards.
	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.metrics.SubscriberDelta(1)
	defer h.metrics.SubscriberDelta(-1)

	logger := h.logger.With().Str("session_id", sessionID).Logger()
	logger.Info().Msg("event stream opened")
	defer logger.Info().Msg("event stream closed")

	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			raw, err := json.Marshal(d.Event)
			if err != nil {
				logger.Warn().Err(err).Msg("failed to marshal event")
				continue
			}
			if err := utils.SendSSEChunk(w, flusher, chat.Envelope{Type: string(chat.KindEvent), Event: raw}); err != nil {
				logger.Debug().Err(err).Msg("event stream write failed")
				return
			}
		}
	}
}
