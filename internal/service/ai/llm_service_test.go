package ai

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/agentlink/internal/model/chat"
)

func newEchoService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(context.Background(), &EchoModel{Prefix: "You said: "}, "be brief")
	require.NoError(t, err)
	return svc
}

func TestGenerateResponseEchoes(t *testing.T) {
	svc := newEchoService(t)

	resp, err := svc.GenerateResponse(context.Background(), nil, "hello there")
	require.NoError(t, err)
	assert.Equal(t, "You said: hello there", resp.Content)
}

func TestStreamResponseChunks(t *testing.T) {
	svc := newEchoService(t)
	history := []chat.Message{
		{Sender: chat.SenderUser, Content: "earlier"},
		{Sender: chat.SenderAgent, Content: "reply"},
	}

	stream, err := svc.StreamResponse(context.Background(), history, "one two three")
	require.NoError(t, err)
	defer stream.Close()

	var chunks []*schema.Message
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		chunks = append(chunks, msg)
	}

	require.Greater(t, len(chunks), 1)
	full, err := schema.ConcatMessages(chunks)
	require.NoError(t, err)
	assert.Equal(t, "You said: one two three", full.Content)
}

func TestBuildHistoryMessagesKeepsTail(t *testing.T) {
	var transcript []chat.Message
	for i := 0; i < 15; i++ {
		transcript = append(transcript, chat.Message{Sender: chat.SenderUser, Content: string(rune('a' + i))})
	}
	transcript = append(transcript, chat.Message{Sender: "system", Content: "ignored"})

	history := buildHistoryMessages(transcript)
	require.Len(t, history, historyLimit-1)
	assert.Equal(t, "g", history[0].Content)
	assert.Equal(t, schema.User, history[0].Role)
}

func TestSplitKeepingSpaces(t *testing.T) {
	assert.Equal(t, []string{"a ", "b ", "c"}, splitKeepingSpaces("a b c"))
	assert.Equal(t, []string{""}, splitKeepingSpaces(""))
	assert.Equal(t, []string{"x "}, splitKeepingSpaces("x "))
}
