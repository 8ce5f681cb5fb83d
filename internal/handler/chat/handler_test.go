package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/agentlink/internal/decoder"
	"github.com/zhouzirui/agentlink/internal/model/chat"
	"github.com/zhouzirui/agentlink/internal/service/ai"
	chatservice "github.com/zhouzirui/agentlink/internal/service/chat"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []chat.EventPayload
	ids    []string
}

func (p *recordingPublisher) Publish(_ context.Context, sessionID string, ev chat.EventPayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, sessionID)
	p.events = append(p.events, ev)
	return nil
}

type failingResponder struct{}

func (failingResponder) StreamResponse(context.Context, []chat.Message, string) (*schema.StreamReader[*schema.Message], error) {
	sr, sw := schema.Pipe[*schema.Message](2)
	sw.Send(schema.AssistantMessage("partial ", nil), nil)
	sw.Send(nil, errors.New("model overloaded"))
	sw.Close()
	return sr, nil
}

func setupRouter(t *testing.T, responder Responder) (*chi.Mux, *chatservice.Service, *recordingPublisher) {
	t.Helper()
	chatSvc := chatservice.NewService()
	if responder == nil {
		svc, err := ai.NewService(context.Background(), &ai.EchoModel{}, "test")
		require.NoError(t, err)
		responder = svc
	}
	pub := &recordingPublisher{}
	handler := New(chatSvc, responder, pub, "Ada")

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, chatSvc, pub
}

func postChat(r http.Handler, body any) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func frames(t *testing.T, body []byte) []chat.Frame {
	t.Helper()
	dec := decoder.New()
	out := dec.Feed(body)
	return append(out, dec.Flush()...)
}

func TestChatStreamsChunksThenComplete(t *testing.T) {
	r, chatSvc, pub := setupRouter(t, nil)

	resp := postChat(r, map[string]any{"message": "hello brave new world", "session_id": nil})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "text/event-stream", resp.Header().Get("Content-Type"))

	got := frames(t, resp.Body.Bytes())
	require.GreaterOrEqual(t, len(got), 2)

	var text string
	for _, f := range got[:len(got)-1] {
		require.Equal(t, chat.KindChunk, f.Kind)
		text += f.Content
	}
	assert.Equal(t, "hello brave new world", text)

	last := got[len(got)-1]
	require.Equal(t, chat.KindComplete, last.Kind)
	require.NotEmpty(t, last.SessionID)

	transcript, err := chatSvc.LoadTranscript(context.Background(), last.SessionID)
	require.NoError(t, err)
	require.Len(t, transcript, 2)
	assert.Equal(t, chat.SenderAgent, transcript[1].Sender)

	require.Len(t, pub.events, 2)
	assert.Equal(t, EventUserMessage, pub.events[0].Type)
	assert.Equal(t, EventAgentResponse, pub.events[1].Type)
	assert.Equal(t, "Ada", pub.events[1].AgentName)
	assert.Equal(t, "hello brave new world", pub.events[1].DisplayBody())
	assert.Equal(t, []string{last.SessionID, last.SessionID}, pub.ids)
}

func TestChatReusesKnownSession(t *testing.T) {
	r, chatSvc, _ := setupRouter(t, nil)
	session := chatSvc.CreateSession(context.Background())

	resp := postChat(r, map[string]any{"message": "again", "session_id": session.ID})
	got := frames(t, resp.Body.Bytes())
	require.NotEmpty(t, got)
	assert.Equal(t, session.ID, got[len(got)-1].SessionID)
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	r, _, pub := setupRouter(t, nil)

	resp := postChat(r, map[string]any{"message": "   "})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Empty(t, pub.events)
}

func TestChatRejectsInvalidBody(t *testing.T) {
	r, _, _ := setupRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader([]byte("{not json")))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestChatResponderFailureSendsErrorFrame(t *testing.T) {
	r, _, pub := setupRouter(t, failingResponder{})

	resp := postChat(r, map[string]any{"message": "hi"})
	got := frames(t, resp.Body.Bytes())
	require.Len(t, got, 2)
	assert.Equal(t, chat.ChunkFrame("partial "), got[0])
	assert.Equal(t, chat.KindError, got[1].Kind)
	assert.Contains(t, got[1].Content, "model overloaded")

	require.Len(t, pub.events, 2)
	assert.Equal(t, EventAgentError, pub.events[1].Type)
}
