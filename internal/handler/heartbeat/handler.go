package heartbeat

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/agentlink/internal/model/chat"
)

const writeWait = 10 * time.Second

// Handler keeps websocket clients alive with application-level pings.
type Handler struct {
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	logger       zerolog.Logger
}

// New creates a handler sending {"type":"ping"} every pingInterval.
func New(pingInterval time.Duration) *Handler {
	return &Handler{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		pingInterval: pingInterval,
		logger:       log.Logger.With().Str("component", "heartbeat_handler").Logger(),
	}
}

// RegisterRoutes mounts GET /ws.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	logger := h.logger.With().Str("remote", r.RemoteAddr).Logger()
	logger.Info().Msg("heartbeat client connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	readTimeout := 2*h.pingInterval + writeWait
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

	go h.pingLoop(ctx, conn, logger)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Info().Err(err).Msg("heartbeat read ended")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		var msg chat.Envelope
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn().Err(err).Msg("ignoring unparsable heartbeat message")
			continue
		}
		if msg.Type == string(chat.KindPong) {
			logger.Debug().Str("timestamp", msg.Timestamp).Msg("pong received")
		}
	}
}

// pingLoop is the only writer on conn.
func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn, logger zerolog.Logger) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(chat.Envelope{Type: string(chat.KindPing)}); err != nil {
				logger.Debug().Err(err).Msg("ping failed")
				conn.Close()
				return
			}
		}
	}
}
