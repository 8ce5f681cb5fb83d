package agents

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/agentlink/internal/model/agent"
)

type request struct {
	method string
	path   string
	body   map[string]any
}

func fakeService(t *testing.T, reqs *[]request, reply map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := request{method: r.Method, path: r.URL.Path}
		_ = json.NewDecoder(r.Body).Decode(&rec.body)
		*reqs = append(*reqs, rec)
		_ = json.NewEncoder(w).Encode(reply)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestInfoAndTools(t *testing.T) {
	var reqs []request
	srv := fakeService(t, &reqs, map[string]any{
		"status": "success",
		"info":   map[string]any{"agent_name": "Ada", "model": "echo", "tools": 2},
		"tools":  []map[string]any{{"name": "word_count", "description": "counts"}},
		"result": `{"words":2}`,
	})
	c := New(srv.URL+"/", nil)
	ctx := context.Background()

	info, err := c.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Ada", info.AgentName)
	assert.Equal(t, 2, info.Tools)

	list, err := c.Tools(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "word_count", list[0].Name)

	result, err := c.CallTool(ctx, "word_count", json.RawMessage(`{"text":"a b"}`))
	require.NoError(t, err)
	assert.Equal(t, `{"words":2}`, result)

	require.Len(t, reqs, 3)
	assert.Equal(t, "/api/agent/info", reqs[0].path)
	assert.Equal(t, "/api/tools", reqs[1].path)
	assert.Equal(t, http.MethodPost, reqs[2].method)
	assert.Equal(t, "/api/tools/word_count", reqs[2].path)
	assert.Equal(t, "a b", reqs[2].body["text"])
}

func TestBackgroundCalls(t *testing.T) {
	var reqs []request
	srv := fakeService(t, &reqs, map[string]any{
		"status":  "success",
		"agent":   map[string]any{"agent_id": "news", "state": "running", "session_id": "s1"},
		"agents":  []map[string]any{{"agent_id": "news"}},
		"manager": map[string]any{"manager_running": true, "total_agents": 1},
	})
	c := New(srv.URL, nil)
	ctx := context.Background()

	created, err := c.Create(ctx, agent.CreateRequest{AgentID: "news", Query: "headlines", Schedule: "5m"})
	require.NoError(t, err)
	assert.Equal(t, "s1", created.SessionID)

	started, err := c.Start(ctx, "news")
	require.NoError(t, err)
	assert.Equal(t, agent.StateRunning, started.State)
	_, err = c.Pause(ctx, "news")
	require.NoError(t, err)
	_, err = c.Resume(ctx, "news")
	require.NoError(t, err)
	_, err = c.Stop(ctx, "news")
	require.NoError(t, err)
	_, err = c.UpdateTask(ctx, "news", "weather")
	require.NoError(t, err)

	list, err := c.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	status, err := c.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.ManagerRunning)
	require.NoError(t, c.Remove(ctx, "news"))

	paths := make([]string, len(reqs))
	for i, r := range reqs {
		paths[i] = r.method + " " + r.path
	}
	assert.Equal(t, []string{
		"POST /api/background/create",
		"POST /api/background/start",
		"POST /api/background/pause",
		"POST /api/background/resume",
		"POST /api/background/stop",
		"POST /api/task/update",
		"GET /api/background/list",
		"GET /api/background/status",
		"DELETE /api/task/remove/news",
	}, paths)
	assert.Equal(t, "5m", reqs[0].body["schedule"])
	assert.Equal(t, "news", reqs[1].body["agent_id"])
	assert.Equal(t, "weather", reqs[5].body["query"])
}

func TestErrorMessageSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "error", "message": `background agent not found: "ghost"`})
	}))
	defer srv.Close()

	_, err := New(srv.URL, nil).Start(context.Background(), "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.Contains(t, err.Error(), "ghost")
}
