package ai

import (
	"context"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/pkg/errors"

	"github.com/zhouzirui/agentlink/internal/model/chat"
)

// historyLimit is the number of transcript messages fed back to the model.
const historyLimit = 10

// Service produces agent replies through a prompt template and chat model chain.
type Service struct {
	chatModel    model.BaseChatModel
	systemPrompt string
	chain        compose.Runnable[map[string]any, *schema.Message]
}

// NewService compiles the responder chain around chatModel.
func NewService(ctx context.Context, chatModel model.BaseChatModel, systemPrompt string) (*Service, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "compile chat chain")
	}

	return &Service{
		chatModel:    chatModel,
		systemPrompt: systemPrompt,
		chain:        runnable,
	}, nil
}

// GenerateResponse returns the whole reply at once.
func (s *Service) GenerateResponse(ctx context.Context, history []chat.Message, userMessage string) (*schema.Message, error) {
	response, err := s.chain.Invoke(ctx, s.buildChainInput(history, userMessage))
	if err != nil {
		return nil, errors.Wrap(err, "run chat chain")
	}
	return response, nil
}

// StreamResponse streams reply chunks. The caller must close the reader.
func (s *Service) StreamResponse(ctx context.Context, history []chat.Message, userMessage string) (*schema.StreamReader[*schema.Message], error) {
	stream, err := s.chain.Stream(ctx, s.buildChainInput(history, userMessage))
	if err != nil {
		return nil, errors.Wrap(err, "stream chat chain")
	}
	return stream, nil
}

func (s *Service) buildChainInput(history []chat.Message, userMessage string) map[string]any {
	return map[string]any{
		"system":  s.systemPrompt,
		"history": buildHistoryMessages(history),
		"query":   userMessage,
	}
}

func buildHistoryMessages(messages []chat.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if len(messages) > historyLimit {
		startIdx = len(messages) - historyLimit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		switch msg.Sender {
		case chat.SenderUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.SenderAgent:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return history
}
