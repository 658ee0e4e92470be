// Package transport posts JSON documents to the identity and flag services.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// DefaultTimeout bounds every request when no other deadline applies.
const DefaultTimeout = 15 * time.Second

const maxErrorBody = 64 << 10

// Poster sends body as JSON and returns the decoded response document.
type Poster interface {
	Post(ctx context.Context, url string, body any) (json.RawMessage, error)
}

// HTTPError is returned for any non-2xx response.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (e *HTTPError) Error() string {
	if msg := e.Message(); msg != "" {
		return fmt.Sprintf("%s: %s", e.Status, msg)
	}
	return e.Status
}

// Message returns the server supplied "message" field of a JSON error body.
func (e *HTTPError) Message() string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(e.Body, &payload); err != nil {
		return ""
	}
	return payload.Message
}

// HTTPClient is the net/http implementation of Poster.
type HTTPClient struct {
	client    *http.Client
	userAgent string
}

var _ Poster = (*HTTPClient)(nil)

type Option func(*HTTPClient)

func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) {
		h.client = c
	}
}

func WithTimeout(d time.Duration) Option {
	return func(h *HTTPClient) {
		h.client.Timeout = d
	}
}

func WithUserAgent(ua string) Option {
	return func(h *HTTPClient) {
		h.userAgent = ua
	}
}

func NewHTTPClient(opts ...Option) *HTTPClient {
	h := &HTTPClient{
		client:    &http.Client{Timeout: DefaultTimeout},
		userAgent: "go-auth-guard",
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *HTTPClient) Post(ctx context.Context, url string, body any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("[transport.Post] encode body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("[transport.Post] new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", h.userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("[transport.Post] %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, Body: data}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("[transport.Post] read body: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("[transport.Post] %s returned a non-JSON body", url)
	}
	return json.RawMessage(data), nil
}
