package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"neox-site/internal/domain"
	"neox-site/internal/responder"
	"neox-site/internal/usecase"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubChat struct {
	out domain.ConversationTurn
	err error
	in  usecase.ChatInput
}

func (s *stubChat) Chat(_ context.Context, in usecase.ChatInput) (domain.ConversationTurn, error) {
	s.in = in
	return s.out, s.err
}

func (s *stubChat) QuickReplies() []responder.QuickReply {
	return []responder.QuickReply{{Label: "Pricing", Message: "What is your pricing?"}}
}

type stubAssets struct {
	out domain.AssetResponse
	in  domain.AssetRequest
}

func (s *stubAssets) Serve(_ context.Context, req domain.AssetRequest) domain.AssetResponse {
	s.in = req
	return s.out
}

type memoryStore map[string]domain.Asset

func (m memoryStore) GetAsset(_ context.Context, key string) (domain.Asset, error) {
	if key == "/broken.css" {
		return domain.Asset{}, errors.New("table unavailable")
	}
	a, ok := m[key]
	if !ok {
		return domain.Asset{}, fmt.Errorf("could not find %s: %w", key, domain.ErrAssetNotFound)
	}
	return a, nil
}

func makeEvent(method, path, body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: method,
		Path:       path,
		Headers:    map[string]string{"Content-Type": "application/json", "Host": "neox.vn"},
		Body:       body,
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func mustNewHandler(t *testing.T, chat ChatUseCase, assets AssetServer, opts ...Option) *Handler {
	t.Helper()
	h, err := NewHandler(chat, assets, opts...)
	require.NoError(t, err)
	return h
}

func siteHandler(t *testing.T) *Handler {
	t.Helper()
	store := memoryStore{
		"/index.html":   {Body: []byte("<h1>NeoX</h1>"), ContentType: "text/html; charset=utf-8"},
		"/js/main.js":   {Body: []byte("init()"), ContentType: "text/javascript"},
		"/img/logo.png": {Body: []byte{0x89, 'P', 'N', 'G'}, ContentType: "image/png"},
		"/404.html":     {Body: []byte("not here"), ContentType: "text/html; charset=utf-8"},
		"/a%41.css":     {Body: []byte("literal"), ContentType: "text/css"},
		"/aA.css":       {Body: []byte("decoded twice"), ContentType: "text/css"},
	}
	assets, err := usecase.NewAssetService(store, nil, usecase.DefaultSiteSettings())
	require.NoError(t, err)
	return mustNewHandler(t, usecase.NewChatService(0), assets)
}

func TestNewHandler_ValidatesDependencies(t *testing.T) {
	_, err := NewHandler(nil, &stubAssets{})
	require.Error(t, err)
	_, err = NewHandler(&stubChat{}, nil)
	require.Error(t, err)
}

func TestHandle_ChatHappyPath(t *testing.T) {
	uc := &stubChat{out: domain.ConversationTurn{ID: "turn-1", ConversationID: "conv-1", Reply: "hello"}}
	h := mustNewHandler(t, uc, &stubAssets{})

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/api/chat", `{"message":"hi","conversationId":"conv-1"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, usecase.ChatInput{Message: "hi", ConversationID: "conv-1"}, uc.in)

	out := parseBody[chatResponse](t, resp.Body)
	require.Equal(t, "hello", out.Reply)
	require.Equal(t, "conv-1", out.ConversationID)
	require.Equal(t, "turn-1", out.TurnID)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])
}

func TestHandle_ChatBase64Body(t *testing.T) {
	uc := &stubChat{out: domain.ConversationTurn{Reply: "ok"}}
	h := mustNewHandler(t, uc, &stubAssets{})

	event := makeEvent(http.MethodPost, "/api/chat", base64.StdEncoding.EncodeToString([]byte(`{"message":"pricing?"}`)))
	event.IsBase64Encoded = true
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "pricing?", uc.in.Message)
}

func TestHandle_ChatInvalidBody(t *testing.T) {
	h := mustNewHandler(t, &stubChat{}, &stubAssets{})

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/api/chat", `not-json`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	out := parseBody[errorResponse](t, resp.Body)
	require.Equal(t, string(usecase.ErrorInvalidInput), out.Error)
	require.Equal(t, "invalid_json", out.Reason)
}

func TestHandle_ChatWrongMethod(t *testing.T) {
	h := mustNewHandler(t, &stubChat{}, &stubAssets{})

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/api/chat", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandle_MapsUseCaseErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "invalid input", err: &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "empty_message"}, status: http.StatusBadRequest, code: string(usecase.ErrorInvalidInput)},
		{name: "method", err: &usecase.Error{Code: usecase.ErrorMethodNotAllowed}, status: http.StatusMethodNotAllowed, code: string(usecase.ErrorMethodNotAllowed)},
		{name: "internal", err: &usecase.Error{Code: usecase.ErrorInternal, Reason: "x"}, status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := mustNewHandler(t, &stubChat{err: tc.err}, &stubAssets{})

			resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/api/chat", `{"message":"hi"}`))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			out := parseBody[errorResponse](t, resp.Body)
			require.Equal(t, tc.code, out.Error)
		})
	}
}

func TestHandle_QuickReplies(t *testing.T) {
	h := mustNewHandler(t, &stubChat{}, &stubAssets{})

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/api/chat/quick-replies", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := parseBody[quickRepliesResponse](t, resp.Body)
	require.Equal(t, []responder.QuickReply{{Label: "Pricing", Message: "What is your pricing?"}}, out.QuickReplies)

	resp, err = h.Handle(context.Background(), makeEvent(http.MethodHead, "/api/chat/quick-replies", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, resp.Body)
	require.Equal(t, "application/json", resp.Headers["Content-Type"])

	resp, err = h.Handle(context.Background(), makeEvent(http.MethodDelete, "/api/chat/quick-replies", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	h := mustNewHandler(t, &stubChat{}, &stubAssets{out: domain.AssetResponse{StatusCode: http.StatusOK}})

	event := makeEvent(http.MethodGet, "/", "")
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
}

func TestHandle_AssetRequestOrigin(t *testing.T) {
	assets := &stubAssets{out: domain.AssetResponse{StatusCode: http.StatusOK}}
	h := mustNewHandler(t, &stubChat{}, assets, WithDefaultOrigin("https://fallback.example/"))

	event := makeEvent(http.MethodGet, "/css/site.css", "")
	event.Headers["x-forwarded-proto"] = "http"
	_, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, domain.AssetRequest{Method: http.MethodGet, Path: "/css/site.css", Origin: "http://neox.vn"}, assets.in)

	event = makeEvent(http.MethodGet, "/", "")
	delete(event.Headers, "Host")
	_, err = h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "https://fallback.example", assets.in.Origin)
}

func TestHandle_RedirectsLegacyPaths(t *testing.T) {
	h := siteHandler(t)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/home", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusMovedPermanently, resp.StatusCode)
	require.Equal(t, "https://neox.vn/", resp.Headers["Location"])
}

func TestHandle_ServesScriptWithImmutableCache(t *testing.T) {
	h := siteHandler(t)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/js/main.js", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "init()", resp.Body)
	require.False(t, resp.IsBase64Encoded)
	require.Equal(t, "public, max-age=31536000, immutable", resp.Headers["Cache-Control"])
	require.Equal(t, "DENY", resp.Headers["X-Frame-Options"])
	require.Equal(t, "nosniff", resp.Headers["X-Content-Type-Options"])
	require.Equal(t, "1; mode=block", resp.Headers["X-XSS-Protection"])
	require.Equal(t, "strict-origin-when-cross-origin", resp.Headers["Referrer-Policy"])
}

func TestHandle_BinaryAssetIsBase64(t *testing.T) {
	h := siteHandler(t)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/img/logo.png", ""))
	require.NoError(t, err)
	require.True(t, resp.IsBase64Encoded)
	decoded, err := base64.StdEncoding.DecodeString(resp.Body)
	require.NoError(t, err)
	require.Equal(t, []byte{0x89, 'P', 'N', 'G'}, decoded)
}

func TestHandle_NotFoundAndFailure(t *testing.T) {
	h := siteHandler(t)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/missing.html", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "not here", resp.Body)

	failing, err := usecase.NewAssetService(memoryStore{}, nil, usecase.DefaultSiteSettings())
	require.NoError(t, err)
	h = mustNewHandler(t, usecase.NewChatService(0), failing)
	resp, err = h.Handle(context.Background(), makeEvent(http.MethodGet, "/broken.css", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Contains(t, resp.Body, "table unavailable")
}

func TestServeHTTP_Asset(t *testing.T) {
	h := siteHandler(t)

	req := httptest.NewRequest(http.MethodGet, "http://localhost:8080/img/logo.png", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []byte{0x89, 'P', 'N', 'G'}, rec.Body.Bytes())
	require.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	require.NotEmpty(t, rec.Header().Get("X-Correlation-Id"))
}

func TestServeHTTP_PercentEncodedPathDecodedOnce(t *testing.T) {
	h := siteHandler(t)

	req := httptest.NewRequest(http.MethodGet, "http://localhost:8080/a%2541.css", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "literal", rec.Body.String())
}

func TestServeHTTP_RedirectKeepsLocalOrigin(t *testing.T) {
	h := siteHandler(t)

	req := httptest.NewRequest(http.MethodGet, "http://localhost:8080/index", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusMovedPermanently, rec.Code)
	require.Equal(t, "http://localhost:8080/", rec.Header().Get("Location"))
}

func TestServeHTTP_Chat(t *testing.T) {
	h := siteHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"Is it safe?"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	out := parseBody[chatResponse](t, rec.Body.String())
	require.Equal(t, responder.ReplySecurity, out.Reply)
	require.NotEmpty(t, out.ConversationID)
}

func TestIsTextual(t *testing.T) {
	require.True(t, isTextual(""))
	require.True(t, isTextual("text/html; charset=utf-8"))
	require.True(t, isTextual("image/svg+xml"))
	require.True(t, isTextual("application/json"))
	require.False(t, isTextual("image/webp"))
	require.False(t, isTextual("application/octet-stream"))
	require.False(t, isTextual(";;"))
}
