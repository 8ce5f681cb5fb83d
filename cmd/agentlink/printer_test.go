package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zhouzirui/agentlink/internal/model/chat"
)

func TestPrinterPrintsOnlyNewText(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf)

	p.OnChunk("Hel")
	p.OnChunk("Hello")
	p.OnChunk("Hello, world")
	p.OnComplete("s-1", "Hello, world")

	assert.Equal(t, "agent> Hello, world\n", buf.String())
}

func TestPrinterCompleteWithoutChunks(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf)

	p.OnComplete("s-1", "")
	p.OnChunk("next")
	p.OnComplete("s-1", "next")

	assert.Equal(t, "agent> \nagent> next\n", buf.String())
}

func TestPrinterEventBreaksStreamingLine(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf)

	p.OnChunk("partial")
	p.OnEvent(chat.EventPayload{Type: "tool", AgentName: "planner", Message: "looking up"})
	p.OnError("boom")

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Equal(t, []string{
		"agent> partial",
		"[tool] planner: looking up",
		"error: boom",
	}, lines)
}

func TestPrinterResumesReplyAfterEvents(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf)

	p.OnChunk("Hel")
	p.OnEvent(chat.EventPayload{Type: "user_message", Message: "hi"})
	p.OnChunk("Hello")
	p.OnEvent(chat.EventPayload{Type: "agent_response", Message: "Hello"})
	p.OnComplete("s1", "Hello")
	p.OnChunk("Next")
	p.OnComplete("s1", "Next turn")

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Equal(t, []string{
		"agent> Hel",
		"[user_message] hi",
		"agent> lo",
		"[agent_response] Hello",
		"agent> Next turn",
	}, lines)
}

func TestPrinterReportsFailedEventChannel(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf)

	p.OnConnectionStateChange(chat.ChannelHeartbeat, chat.StateFailed)
	p.OnConnectionStateChange(chat.ChannelEvents, chat.StateOpen)
	assert.Empty(t, buf.String())

	p.OnConnectionStateChange(chat.ChannelEvents, chat.StateFailed)
	assert.Equal(t, "[events] connection failed, retrying\n", buf.String())
}

func TestHandleLineCommands(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf)

	assert.True(t, handleLine(context.Background(), nil, p, "/quit"))
	assert.False(t, handleLine(context.Background(), nil, p, ""))
	assert.False(t, handleLine(context.Background(), nil, p, "/watch"))
	assert.Equal(t, "usage: /watch <session-id>\n", buf.String())
}
