package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/google/uuid"

	"chat-relay/internal/domain"
	"chat-relay/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

// ChatReplier is the use case behind the handler.
type ChatReplier interface {
	Reply(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
}

type Handler struct {
	chat   ChatReplier
	logger *slog.Logger
}

type chatRequest struct {
	Message             *string              `json:"message"`
	ConversationHistory []domain.ChatMessage `json:"conversationHistory"`
}

type chatResponse struct {
	Success             bool                 `json:"success"`
	Response            string               `json:"response"`
	ConversationHistory []domain.ChatMessage `json:"conversationHistory"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func NewHandler(chat ChatReplier, logger *slog.Logger) (*Handler, error) {
	if chat == nil {
		return nil, errors.New("handler: chat use case must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{chat: chat, logger: logger}, nil
}

// Handle serves one API Gateway proxy event. Every failure, including a
// panic further down, is turned into a 500 response; the returned error is
// always nil so the runtime never sees an invocation error.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (resp events.APIGatewayProxyResponse, err error) {
	correlationID := correlationIDFrom(event.Headers)
	log := h.logger.With("correlation_id", correlationID)
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		log = log.With("aws_request_id", lc.AwsRequestID)
	}

	defer func() {
		if r := recover(); r != nil {
			perr := usecase.NewError(usecase.ErrorInternal, "panic", fmt.Errorf("%v", r))
			log.ErrorContext(ctx, "recovered from panic", "err", perr)
			resp = errorResult(perr, correlationID)
			err = nil
		}
	}()

	logEvent(ctx, log, event)

	if user, ok := authenticatedUser(event.RequestContext.Authorizer); ok {
		log.InfoContext(ctx, "authenticated user", "user", user)
	}

	in, perr := parseRequest(event)
	if perr != nil {
		log.ErrorContext(ctx, "request failed", "code", usecase.CodeOf(perr), "err", perr)
		return errorResult(perr, correlationID), nil
	}

	out, cerr := h.chat.Reply(ctx, in)
	if cerr != nil {
		log.ErrorContext(ctx, "request failed", "code", usecase.CodeOf(cerr), "err", cerr)
		return errorResult(cerr, correlationID), nil
	}

	log.InfoContext(ctx, "request completed", "history_len", len(out.History))
	return jsonResult(http.StatusOK, chatResponse{
		Success:             true,
		Response:            out.Response,
		ConversationHistory: out.History,
	}, correlationID), nil
}

func parseRequest(event events.APIGatewayProxyRequest) (usecase.ChatInput, error) {
	body := event.Body
	if event.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return usecase.ChatInput{}, usecase.NewError(usecase.ErrorMalformedRequest, "invalid_base64_body", err)
		}
		body = string(decoded)
	}

	var req chatRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return usecase.ChatInput{}, usecase.NewError(usecase.ErrorMalformedRequest, "invalid_json", err)
	}
	if req.Message == nil {
		return usecase.ChatInput{}, usecase.NewError(usecase.ErrorMalformedRequest, "missing_message", nil)
	}
	history := req.ConversationHistory
	if history == nil {
		history = []domain.ChatMessage{}
	}
	return usecase.ChatInput{Message: *req.Message, History: history}, nil
}

// authenticatedUser reads the identity supplied by the upstream authorizer.
// Claims are trusted as-is and only ever logged.
func authenticatedUser(authorizer map[string]interface{}) (string, bool) {
	claims, ok := authorizer["claims"].(map[string]interface{})
	if !ok {
		return "", false
	}
	for _, key := range []string{"email", "cognito:username"} {
		if v, ok := claims[key].(string); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

func logEvent(ctx context.Context, log *slog.Logger, event events.APIGatewayProxyRequest) {
	raw, err := json.Marshal(event)
	if err != nil {
		log.WarnContext(ctx, "failed to encode event", "err", err)
		return
	}
	log.InfoContext(ctx, "received event", "event", json.RawMessage(raw))
}

func correlationIDFrom(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, correlationHeader) && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return uuid.NewString()
}

func responseHeaders(correlationID string) map[string]string {
	return map[string]string{
		"Content-Type":                 "application/json",
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Headers": "Content-Type,X-Amz-Date,Authorization,X-Api-Key,X-Amz-Security-Token",
		"Access-Control-Allow-Methods": "OPTIONS,POST",
		correlationHeader:              correlationID,
	}
}

func errorResult(err error, correlationID string) events.APIGatewayProxyResponse {
	return jsonResult(http.StatusInternalServerError, errorResponse{
		Success: false,
		Error:   err.Error(),
	}, correlationID)
}

func jsonResult(status int, payload any, correlationID string) events.APIGatewayProxyResponse {
	body, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"success":false,"error":"failed to encode response"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    responseHeaders(correlationID),
		Body:       string(body),
	}
}
