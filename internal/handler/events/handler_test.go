package events

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/agentlink/internal/decoder"
	"github.com/zhouzirui/agentlink/internal/model/chat"
	"github.com/zhouzirui/agentlink/internal/service/bus"
	chatservice "github.com/zhouzirui/agentlink/internal/service/chat"
)

func setupServer(t *testing.T) (*httptest.Server, *bus.Bus, *chatservice.Service) {
	t.Helper()
	b := bus.NewInMemory(zerolog.Nop(), nil)
	t.Cleanup(func() { _ = b.Close() })
	chatSvc := chatservice.NewService()

	r := chi.NewRouter()
	New(b, chatSvc, nil).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, b, chatSvc
}

func TestStreamDeliversSessionEvents(t *testing.T) {
	srv, b, _ := setupServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events/stream/s1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, b.Publish(ctx, "other", chat.EventPayload{Type: "skip"}))
	require.NoError(t, b.Publish(ctx, "s1", chat.EventPayload{Type: "agent_response", Message: "hi"}))

	frames := make(chan chat.Frame, 4)
	go func() {
		for f, err := range decoder.New().Frames(resp.Body) {
			if err != nil {
				return
			}
			frames <- f
		}
	}()

	select {
	case f := <-frames:
		require.Equal(t, chat.KindEvent, f.Kind)
		assert.Equal(t, "agent_response", f.Event.Type)
		assert.Equal(t, "hi", f.Event.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("no event frame received")
	}
}

func TestListRecentEvents(t *testing.T) {
	srv, _, chatSvc := setupServer(t)
	ctx := context.Background()
	chatSvc.RecordEvent(ctx, "s1", chat.EventPayload{Type: "a"})
	chatSvc.RecordEvent(ctx, "s1", chat.EventPayload{Type: "b"})
	chatSvc.RecordEvent(ctx, "s2", chat.EventPayload{Type: "c"})

	get := func(query string) (int, listResponse) {
		resp, err := http.Get(srv.URL + "/events" + query)
		require.NoError(t, err)
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		var body listResponse
		_ = json.Unmarshal(data, &body)
		return resp.StatusCode, body
	}

	code, body := get("?session_id=s1")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "success", body.Status)
	require.Len(t, body.Events, 2)
	assert.Equal(t, "b", body.Events[0].Type)

	_, body = get("?limit=1")
	require.Len(t, body.Events, 1)
	assert.Equal(t, "c", body.Events[0].Type)

	_, body = get("?session_id=none")
	assert.NotNil(t, body.Events)
	assert.Empty(t, body.Events)

	code, _ = get("?limit=zero")
	assert.Equal(t, http.StatusBadRequest, code)
}
