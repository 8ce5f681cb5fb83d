package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/agentlink/internal/client"
	"github.com/zhouzirui/agentlink/internal/config"
	"github.com/zhouzirui/agentlink/internal/server"
)

func newAgentClient(t *testing.T) *client.Client {
	t.Helper()
	srv, err := server.New(context.Background(), config.Defaults())
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	cfg := config.Defaults().Client
	cfg.BaseURL = ts.URL
	c := client.New(cfg, nil)
	t.Cleanup(c.Close)
	return c
}

func TestAgentCommands(t *testing.T) {
	c := newAgentClient(t)
	ctx := context.Background()
	var buf bytes.Buffer
	p := newPrinter(&buf)

	run := func(line string) string {
		buf.Reset()
		assert.False(t, handleLine(ctx, c, p, line))
		return buf.String()
	}

	assert.Contains(t, run("/info"), "model: echo")
	assert.Contains(t, run("/tools"), "word_count:")
	assert.Contains(t, run(`/tool word_count {"text":"a b c"}`), `"words":3`)
	assert.Contains(t, run("/tool word_count {oops"), "arguments must be JSON")
	assert.Contains(t, run("/tool missing"), "status 404")

	assert.Equal(t, "digest [created] every 1h0m0s, 0 runs: what is new\n",
		run("/agent create digest 1h what is new"))
	assert.Contains(t, run("/agent create digest 1h again"), "status 409")
	assert.Contains(t, run("/agent update digest anything else"), ": anything else")
	assert.Contains(t, run("/agents"), "background agents: 1 total, 0 running")
	assert.Contains(t, run("/agents"), "digest [created]")

	out := run("/agent watch digest")
	assert.Contains(t, out, "watching events of digest")
	assert.NotEmpty(t, c.SessionID())

	assert.Contains(t, run("/agent pause digest"), "is not running")
	assert.Contains(t, run("/agent stop digest"), "[stopped]")
	assert.Equal(t, "removed digest\n", run("/agent remove digest"))
	assert.Contains(t, run("/agent watch digest"), `no background agent "digest"`)
	assert.Equal(t, agentUsage+"\n", run("/agent start"))
	assert.Equal(t, agentUsage+"\n", run("/agent dance digest"))
}
