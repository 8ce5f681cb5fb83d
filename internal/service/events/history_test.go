package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/agentlink/internal/model/chat"
)

func TestHistoryRecent(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("session_id")
		events := make([]chat.EventPayload, 12)
		for i := range events {
			events[i] = chat.EventPayload{Type: "agent_response", Message: fmt.Sprintf("m%d", i)}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "success", "events": events})
	}))
	defer srv.Close()

	h := NewHistory(srv.URL, nil)

	got, err := h.Recent(context.Background(), "s 1", 0)
	require.NoError(t, err)
	assert.Equal(t, "s 1", gotQuery)
	require.Len(t, got, DefaultHistoryLimit)
	assert.Equal(t, "m0", got[0].Message)

	got, err = h.Recent(context.Background(), "", 3)
	require.NoError(t, err)
	assert.Empty(t, gotQuery)
	assert.Len(t, got, 3)
}

func TestHistoryRecentError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "error", "message": "store offline"})
	}))
	defer srv.Close()

	_, err := NewHistory(srv.URL, nil).Recent(context.Background(), "s1", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store offline")
}
