package chat_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/zhouzirui/agentlink/internal/model/chat"
	chat "github.com/zhouzirui/agentlink/internal/service/chat"
)

func TestServiceGetSession(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()

	session := svc.CreateSession(ctx)

	got, err := svc.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestServiceGetSessionNotFound(t *testing.T) {
	svc := chat.NewService()

	_, err := svc.GetSession(context.Background(), "missing")
	require.ErrorIs(t, err, chat.ErrSessionNotFound)
}

func TestResolveSession(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()

	fresh, created := svc.ResolveSession(ctx, "")
	require.True(t, created)

	same, created := svc.ResolveSession(ctx, fresh.ID)
	assert.False(t, created)
	assert.Equal(t, fresh.ID, same.ID)

	other, created := svc.ResolveSession(ctx, "unknown-id")
	assert.True(t, created)
	assert.NotEqual(t, "unknown-id", other.ID)
}

func TestSaveMessageAndTranscript(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()
	session := svc.CreateSession(ctx)

	_, err := svc.SaveMessage(ctx, model.Message{SessionID: session.ID, Sender: model.SenderUser, Content: "hi"})
	require.NoError(t, err)
	saved, err := svc.SaveMessage(ctx, model.Message{SessionID: session.ID, Sender: model.SenderAgent, Content: "hello"})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)

	transcript, err := svc.LoadTranscript(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, transcript, 2)
	assert.Equal(t, "hi", transcript[0].Content)
	assert.Equal(t, model.SenderAgent, transcript[1].Sender)

	_, err = svc.SaveMessage(ctx, model.Message{SessionID: "nope", Content: "x"})
	require.ErrorIs(t, err, chat.ErrSessionNotFound)
	_, err = svc.LoadTranscript(ctx, "nope")
	require.ErrorIs(t, err, chat.ErrSessionNotFound)
}

func TestRecentEventsNewestFirst(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		svc.RecordEvent(ctx, "a", model.EventPayload{Type: "tick", Message: fmt.Sprintf("a%d", i)})
	}
	svc.RecordEvent(ctx, "b", model.EventPayload{Type: "tick", Message: "b0"})

	got := svc.RecentEvents(ctx, "a", 3)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a4", "a3", "a2"}, []string{got[0].Message, got[1].Message, got[2].Message})

	all := svc.RecentEvents(ctx, "", 0)
	require.Len(t, all, 6)
	assert.Equal(t, "b0", all[0].Message)

	assert.Empty(t, svc.RecentEvents(ctx, "c", 10))
}

func TestRecentEventsBounded(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()
	for i := 0; i < 150; i++ {
		svc.RecordEvent(ctx, "a", model.EventPayload{Type: "tick", Message: fmt.Sprint(i)})
	}

	got := svc.RecentEvents(ctx, "a", 0)
	require.Len(t, got, 100)
	assert.Equal(t, "149", got[0].Message)
	assert.Equal(t, "50", got[99].Message)
}
