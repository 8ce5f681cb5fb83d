package chat

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/agentlink/internal/model/chat"
	chatService "github.com/zhouzirui/agentlink/internal/service/chat"
	"github.com/zhouzirui/agentlink/pkg/utils"
)

// Event types published for every turn.
const (
	EventUserMessage   = "user_message"
	EventAgentResponse = "agent_response"
	EventAgentError    = "agent_error"
)

// Responder streams the agent reply for a message.
type Responder interface {
	StreamResponse(ctx context.Context, history []chat.Message, userMessage string) (*schema.StreamReader[*schema.Message], error)
}

// Publisher fans session events out to subscribers.
type Publisher interface {
	Publish(ctx context.Context, sessionID string, ev chat.EventPayload) error
}

// Handler serves the streaming chat endpoint.
type Handler struct {
	chatSvc   *chatService.Service
	responder Responder
	events    Publisher
	agentName string
	logger    zerolog.Logger
	now       func() time.Time
}

// New creates the chat handler.
func New(chatSvc *chatService.Service, responder Responder, events Publisher, agentName string) *Handler {
	return &Handler{
		chatSvc:   chatSvc,
		responder: responder,
		events:    events,
		agentName: agentName,
		logger:    log.Logger.With().Str("component", "chat_handler").Logger(),
		now:       time.Now,
	}
}

// RegisterRoutes mounts POST /chat.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
}

type chatRequest struct {
	Message   string  `json:"message"`
	SessionID *string `json:"session_id"`
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload chatRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	message := strings.TrimSpace(payload.Message)
	if message == "" {
		utils.RespondError(w, http.StatusBadRequest, chatService.ErrEmptyMessage.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := r.Context()
	var requested string
	if payload.SessionID != nil {
		requested = *payload.SessionID
	}
	session, created := h.chatSvc.ResolveSession(ctx, requested)
	logger := h.logger.With().
		Str("session_id", session.ID).
		Str("request_id", middleware.GetReqID(ctx)).
		Logger()
	if created {
		logger.Info().Str("requested", requested).Msg("session created")
	}

	history, err := h.chatSvc.LoadTranscript(ctx, session.ID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if _, err := h.chatSvc.SaveMessage(ctx, chat.Message{
		SessionID: session.ID,
		Sender:    chat.SenderUser,
		Content:   message,
	}); err != nil {
		logger.Warn().Err(err).Msg("failed to save user message")
	}
	h.publish(ctx, logger, session.ID, chat.EventPayload{
		Type:    EventUserMessage,
		Message: message,
	})

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	reply, err := h.streamReply(ctx, w, flusher, history, message)
	if err != nil {
		if ctx.Err() != nil {
			logger.Info().Msg("client went away mid-turn")
			return
		}
		logger.Error().Err(err).Msg("agent reply failed")
		h.publish(ctx, logger, session.ID, chat.EventPayload{
			Type:      EventAgentError,
			AgentName: h.agentName,
			Message:   err.Error(),
		})
		_ = utils.SendSSEChunk(w, flusher, chat.Envelope{Type: string(chat.KindError), Content: err.Error()})
		return
	}

	if _, err := h.chatSvc.SaveMessage(ctx, chat.Message{
		SessionID: session.ID,
		Sender:    chat.SenderAgent,
		Content:   reply,
	}); err != nil {
		logger.Warn().Err(err).Msg("failed to save agent message")
	}

	detail, _ := json.Marshal(map[string]any{"message": reply, "length": len(reply)})
	h.publish(ctx, logger, session.ID, chat.EventPayload{
		Type:      EventAgentResponse,
		AgentName: h.agentName,
		Payload:   detail,
	})

	if err := utils.SendSSEChunk(w, flusher, chat.Envelope{
		Type:      string(chat.KindComplete),
		SessionID: session.ID,
	}); err != nil {
		logger.Warn().Err(err).Msg("failed to send completion")
		return
	}
	logger.Info().Int("length", len(reply)).Msg("chat turn completed")
}

// streamReply forwards each model delta as a chunk frame and returns the full reply.
func (h *Handler) streamReply(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, history []chat.Message, message string) (string, error) {
	stream, err := h.responder.StreamResponse(ctx, history, message)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	chunks := make([]*schema.Message, 0, 8)
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return "", errors.Wrap(recvErr, "receive model chunk")
		}
		if chunk == nil {
			continue
		}

		chunks = append(chunks, chunk)
		if chunk.Content == "" {
			continue
		}
		if err := utils.SendSSEChunk(w, flusher, chat.Envelope{
			Type:    string(chat.KindChunk),
			Content: chunk.Content,
		}); err != nil {
			return "", err
		}
	}

	if len(chunks) == 0 {
		return "", nil
	}
	response, err := schema.ConcatMessages(chunks)
	if err != nil {
		return "", errors.Wrap(err, "concat model chunks")
	}
	return response.Content, nil
}

func (h *Handler) publish(ctx context.Context, logger zerolog.Logger, sessionID string, ev chat.EventPayload) {
	if h.events == nil {
		return
	}
	ev.Timestamp = h.now().UTC().Format(time.RFC3339Nano)
	if err := h.events.Publish(ctx, sessionID, ev); err != nil {
		logger.Warn().Err(err).Str("event", ev.Type).Msg("failed to publish event")
	}
}
