package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayBodyPrecedence(t *testing.T) {
	tests := []struct {
		name string
		ev   EventPayload
		want string
	}{
		{
			name: "payload message wins",
			ev:   EventPayload{Type: "tool", Message: "outer", Payload: json.RawMessage(`{"message":"inner","x":1}`)},
			want: "inner",
		},
		{
			name: "non string payload message is serialized",
			ev:   EventPayload{Type: "tool", Payload: json.RawMessage(`{"message":{"a":1}}`)},
			want: `{"a":1}`,
		},
		{
			name: "payload serialized when it has no message",
			ev:   EventPayload{Type: "tool", Message: "outer", Payload: json.RawMessage(`{"x":1}`)},
			want: `{"x":1}`,
		},
		{
			name: "string payload verbatim",
			ev:   EventPayload{Type: "tool", Payload: json.RawMessage(`"plain"`)},
			want: "plain",
		},
		{
			name: "message when no payload",
			ev:   EventPayload{Type: "tool", Message: "outer"},
			want: "outer",
		},
		{
			name: "null payload is rendered",
			ev:   EventPayload{Type: "tool", Message: "outer", Payload: json.RawMessage(`null`)},
			want: "null",
		},
		{
			name: "null payload message is rendered",
			ev:   EventPayload{Type: "tool", Message: "outer", Payload: json.RawMessage(`{"message":null}`)},
			want: "null",
		},
		{
			name: "whole record otherwise",
			ev:   EventPayload{Type: "tool", AgentName: "planner"},
			want: `{"type":"tool","agent_name":"planner"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ev.DisplayBody())
		})
	}
}

func TestDisplayBodyDecodedNullPayload(t *testing.T) {
	var ev EventPayload
	assert.NoError(t, json.Unmarshal([]byte(`{"type":"tool","message":"m","payload":null}`), &ev))
	assert.Equal(t, "null", ev.DisplayBody())

	ev = EventPayload{}
	assert.NoError(t, json.Unmarshal([]byte(`{"type":"tool","message":"m"}`), &ev))
	assert.Equal(t, "m", ev.DisplayBody())
}

func TestChannelStateString(t *testing.T) {
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", ChannelState(42).String())
}

func TestFrameTerminal(t *testing.T) {
	assert.True(t, CompleteFrame("s1").Terminal())
	assert.True(t, ErrorFrame("boom").Terminal())
	assert.False(t, ChunkFrame("x").Terminal())
	assert.False(t, EventFrame(EventPayload{Type: "t"}).Terminal())
}
