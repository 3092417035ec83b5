package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"neox-site/internal/domain"
	"neox-site/internal/responder"
	"neox-site/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	chatPath          = "/api/chat"
	quickRepliesPath  = "/api/chat/quick-replies"
)

type ChatUseCase interface {
	Chat(ctx context.Context, in usecase.ChatInput) (domain.ConversationTurn, error)
	QuickReplies() []responder.QuickReply
}

type AssetServer interface {
	Serve(ctx context.Context, req domain.AssetRequest) domain.AssetResponse
}

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId,omitempty"`
}

type chatResponse struct {
	Reply          string `json:"reply"`
	ConversationID string `json:"conversationId"`
	TurnID         string `json:"turnId"`
}

type quickRepliesResponse struct {
	QuickReplies []responder.QuickReply `json:"quickReplies"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// Handler routes API Gateway proxy events to the chat API or the asset server.
type Handler struct {
	chat          ChatUseCase
	assets        AssetServer
	defaultOrigin string
}

type Option func(*Handler)

// WithDefaultOrigin sets the origin used for redirects when the request
// carries no Host header.
func WithDefaultOrigin(origin string) Option {
	return func(h *Handler) {
		h.defaultOrigin = strings.TrimRight(strings.TrimSpace(origin), "/")
	}
}

func NewHandler(chat ChatUseCase, assets AssetServer, opts ...Option) (*Handler, error) {
	if chat == nil {
		return nil, errors.New("handler: chat use case must not be nil")
	}
	if assets == nil {
		return nil, errors.New("handler: asset server must not be nil")
	}
	h := &Handler{chat: chat, assets: assets}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Handle never returns an error: every failure is rendered as a response.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(event.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	log := slog.With("correlation_id", correlationID, "method", event.HTTPMethod, "path", event.Path)

	var resp events.APIGatewayProxyResponse
	switch {
	case event.Path == quickRepliesPath:
		resp = h.handleQuickReplies(event)
	case event.Path == chatPath:
		resp = h.handleChat(ctx, log, event)
	default:
		resp = h.handleAsset(ctx, event)
	}

	if resp.Headers == nil {
		resp.Headers = map[string]string{}
	}
	resp.Headers[correlationHeader] = correlationID
	log.InfoContext(ctx, "request served", "status", resp.StatusCode)
	return resp, nil
}

func (h *Handler) handleChat(ctx context.Context, log *slog.Logger, event events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	if event.HTTPMethod != http.MethodPost {
		return jsonResponse(http.StatusMethodNotAllowed, errorResponse{Error: string(usecase.ErrorMethodNotAllowed)})
	}
	body, err := requestBody(event)
	if err != nil {
		return jsonResponse(http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "invalid_body"})
	}

	var req chatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return jsonResponse(http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "invalid_json"})
	}

	turn, err := h.chat.Chat(ctx, usecase.ChatInput{Message: req.Message, ConversationID: req.ConversationID})
	if err != nil {
		status, payload := mapError(err)
		if status >= http.StatusInternalServerError {
			log.ErrorContext(ctx, "chat failed", "err", err)
		}
		return jsonResponse(status, payload)
	}
	return jsonResponse(http.StatusOK, chatResponse{
		Reply:          turn.Reply,
		ConversationID: turn.ConversationID,
		TurnID:         turn.ID,
	})
}

func (h *Handler) handleQuickReplies(event events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	if event.HTTPMethod != http.MethodGet && event.HTTPMethod != http.MethodHead {
		return jsonResponse(http.StatusMethodNotAllowed, errorResponse{Error: string(usecase.ErrorMethodNotAllowed)})
	}
	resp := jsonResponse(http.StatusOK, quickRepliesResponse{QuickReplies: h.chat.QuickReplies()})
	if event.HTTPMethod == http.MethodHead {
		resp.Body = ""
	}
	return resp
}

func (h *Handler) handleAsset(ctx context.Context, event events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	out := h.assets.Serve(ctx, domain.AssetRequest{
		Method: event.HTTPMethod,
		Path:   event.Path,
		Origin: h.origin(event.Headers),
	})
	resp := events.APIGatewayProxyResponse{
		StatusCode: out.StatusCode,
		Headers:    out.Headers,
	}
	if isTextual(out.Headers["Content-Type"]) {
		resp.Body = string(out.Body)
	} else {
		resp.Body = base64.StdEncoding.EncodeToString(out.Body)
		resp.IsBase64Encoded = true
	}
	return resp
}

func (h *Handler) origin(headers map[string]string) string {
	host := headerValue(headers, "Host")
	if host == "" {
		return h.defaultOrigin
	}
	proto := headerValue(headers, "X-Forwarded-Proto")
	if proto == "" {
		proto = "https"
	}
	return proto + "://" + host
}

func mapError(err error) (int, errorResponse) {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		return http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal)}
	}
	payload := errorResponse{Error: string(ucErr.Code), Reason: ucErr.Reason}
	switch ucErr.Code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest, payload
	case usecase.ErrorMethodNotAllowed:
		return http.StatusMethodNotAllowed, payload
	default:
		return http.StatusInternalServerError, payload
	}
}

func jsonResponse(status int, payload any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(fmt.Sprintf(`{"error":%q}`, usecase.ErrorInternal))
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}

func requestBody(event events.APIGatewayProxyRequest) ([]byte, error) {
	if !event.IsBase64Encoded {
		return []byte(event.Body), nil
	}
	return base64.StdEncoding.DecodeString(event.Body)
}

// headerValue looks a header up case-insensitively.
func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func isTextual(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	if strings.HasPrefix(mediaType, "text/") {
		return true
	}
	switch mediaType {
	case "application/json", "application/javascript", "application/xml", "image/svg+xml", "application/manifest+json":
		return true
	}
	return false
}
