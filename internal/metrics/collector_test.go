package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/agentlink/internal/model/chat"
)

func TestCollectorCounts(t *testing.T) {
	c := NewCollector("agentlink_test")

	c.FrameDecoded(chat.ChannelChat, chat.KindChunk)
	c.FrameDecoded(chat.ChannelChat, chat.KindChunk)
	c.FrameDropped(chat.ChannelEvents, "json")
	c.Reconnect(chat.ChannelHeartbeat)
	c.TurnFinished(OutcomeCompleted)
	c.ChannelState(chat.ChannelEvents, chat.StateOpen)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.framesDecoded.WithLabelValues(chat.ChannelChat, "chunk")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.framesDropped.WithLabelValues(chat.ChannelEvents, "json")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.reconnects.WithLabelValues(chat.ChannelHeartbeat)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.turns.WithLabelValues(OutcomeCompleted)))
	assert.Equal(t, float64(chat.StateOpen), testutil.ToFloat64(c.channelState.WithLabelValues(chat.ChannelEvents)))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.FrameDecoded(chat.ChannelChat, chat.KindChunk)
		c.FrameDropped(chat.ChannelChat, "json")
		c.Reconnect(chat.ChannelEvents)
		c.TurnFinished(OutcomeFailed)
		c.ChannelState(chat.ChannelEvents, chat.StateFailed)
		c.EventPublished()
		c.SubscriberDelta(1)
	})
	assert.Nil(t, c.Registry())
}

func TestHandlerServesMetrics(t *testing.T) {
	c := NewCollector("agentlink_test")
	c.EventPublished()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "agentlink_test_events_published_total 1")
}
