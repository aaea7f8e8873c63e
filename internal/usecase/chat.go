package usecase

import (
	"context"
	"errors"
	"log/slog"

	"chat-relay/internal/domain"
)

// Generator produces a completion for a single prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

type ChatService struct {
	gen    Generator
	logger *slog.Logger
}

type ChatInput struct {
	Message string
	History []domain.ChatMessage
}

type ChatOutput struct {
	Response string
	History  []domain.ChatMessage
}

func NewChatService(gen Generator, logger *slog.Logger) (*ChatService, error) {
	if gen == nil {
		return nil, errors.New("usecase: generator must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{gen: gen, logger: logger}, nil
}

// Reply appends the user turn, asks the generator for a completion and
// appends the assistant turn. in.History is never modified.
//
// Only in.Message is sent as the prompt; earlier turns are returned to the
// caller but not forwarded to the generator.
func (s *ChatService) Reply(ctx context.Context, in ChatInput) (ChatOutput, error) {
	messages := make([]domain.ChatMessage, 0, len(in.History)+2)
	messages = append(messages, in.History...)
	messages = append(messages, domain.ChatMessage{Role: domain.RoleUser, Content: in.Message})

	s.logger.InfoContext(ctx, "processing message", "message", in.Message, "history_len", len(in.History))

	text, err := s.gen.Generate(ctx, in.Message)
	if err != nil {
		if status, ok := upstreamStatusCode(err); ok {
			s.logger.WarnContext(ctx, "generation endpoint returned error status", "status", status)
			return ChatOutput{}, NewError(ErrorUpstreamUnavailable, "generate_bad_status", err)
		}
		return ChatOutput{}, NewError(ErrorUpstreamUnavailable, "generate_error", err)
	}
	if text == "" {
		return ChatOutput{}, NewError(ErrorUpstreamEmptyResponse, ReasonNoContent, nil)
	}

	messages = append(messages, domain.ChatMessage{Role: domain.RoleAssistant, Content: text})

	return ChatOutput{
		Response: text,
		History:  messages,
	}, nil
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}
