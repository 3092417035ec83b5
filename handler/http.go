package handler

import (
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
)

const maxRequestBody = 1 << 20

// ServeHTTP adapts a plain net/http request to Handle so the site can run
// outside Lambda.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	event := events.APIGatewayProxyRequest{
		HTTPMethod: r.Method,
		Path:       r.URL.EscapedPath(),
		Headers:    make(map[string]string, len(r.Header)+2),
		Body:       string(body),
	}
	for k := range r.Header {
		event.Headers[k] = r.Header.Get(k)
	}
	event.Headers["Host"] = r.Host
	if r.Header.Get("X-Forwarded-Proto") == "" {
		proto := "http"
		if r.TLS != nil {
			proto = "https"
		}
		event.Headers["X-Forwarded-Proto"] = proto
	}

	resp, _ := h.Handle(r.Context(), event)
	writeResponse(w, resp)
}

func writeResponse(w http.ResponseWriter, resp events.APIGatewayProxyResponse) {
	body := []byte(resp.Body)
	if resp.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(resp.Body)
		if err != nil {
			slog.Error("failed to decode response body", "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		body = decoded
	}
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(body); err != nil {
		slog.Warn("failed to write response", "err", err)
	}
}
