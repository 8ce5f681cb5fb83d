package ai

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// EchoModel is the offline chat model used when no Ark credentials are set.
// It repeats the last user message, streamed one word per chunk.
type EchoModel struct {
	Prefix string
}

var _ model.BaseChatModel = (*EchoModel)(nil)

func (m *EchoModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return schema.AssistantMessage(m.reply(input), nil), nil
}

func (m *EchoModel) Stream(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pieces := splitKeepingSpaces(m.reply(input))

	sr, sw := schema.Pipe[*schema.Message](len(pieces))
	go func() {
		defer sw.Close()
		for _, piece := range pieces {
			if ctx.Err() != nil {
				sw.Send(nil, ctx.Err())
				return
			}
			if closed := sw.Send(schema.AssistantMessage(piece, nil), nil); closed {
				return
			}
		}
	}()
	return sr, nil
}

func (m *EchoModel) reply(input []*schema.Message) string {
	var last string
	for i := len(input) - 1; i >= 0; i-- {
		if input[i].Role == schema.User {
			last = input[i].Content
			break
		}
	}
	if m.Prefix == "" {
		return last
	}
	return m.Prefix + last
}

// splitKeepingSpaces cuts s into words, each carrying its trailing space, so
// the pieces concatenate back to s.
func splitKeepingSpaces(s string) []string {
	if s == "" {
		return []string{""}
	}
	var pieces []string
	for len(s) > 0 {
		i := strings.IndexByte(s, ' ')
		if i < 0 {
			pieces = append(pieces, s)
			break
		}
		pieces = append(pieces, s[:i+1])
		s = s[i+1:]
	}
	return pieces
}
