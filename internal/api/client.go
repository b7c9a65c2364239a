package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// TokenSource supplies the current bearer token. Implementations must return
// the live value on every call: logout or a fresh login can occur between
// requests, so the token is never cached by the client.
type TokenSource interface {
	Token() string
}

// Option customizes a client at construction time.
type Option func(*rest)

// WithHTTPClient overrides the underlying http.Client (tests inject the
// httptest client here).
func WithHTTPClient(hc *http.Client) Option {
	return func(r *rest) { r.httpc = hc }
}

// WithLogger attaches a logger; the default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(r *rest) { r.logger = l }
}

// rest is the shared HTTP/JSON plumbing for the auth and job clients.
type rest struct {
	baseURL string
	httpc   *http.Client
	logger  zerolog.Logger
}

func newRest(baseURL string, opts ...Option) rest {
	r := rest{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 30 * time.Second},
		logger:  zerolog.New(io.Discard),
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// errorBody is the failure shape returned by the service. Some endpoints use
// `message`, a few older ones use `error`.
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// doJSON performs one request/response cycle. Transport failures come back
// as *NetworkError, non-2xx responses as *RequestError. A non-nil out is
// decoded from the response body.
func (r *rest) doJSON(ctx context.Context, op, method, path, token string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		r.logger.Debug().Str("op", op).Err(err).Msg("transport failure")
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}

	r.logger.Debug().
		Str("op", op).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("request completed")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RequestError{Status: resp.StatusCode, Message: extractMessage(data, resp.StatusCode)}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return &RequestError{Status: resp.StatusCode, Message: "malformed response body"}
		}
	}
	return nil
}

// extractMessage pulls the human-readable error text out of a failure body,
// falling back to the HTTP status text when the body carries none.
func extractMessage(data []byte, status int) string {
	var eb errorBody
	if err := json.Unmarshal(data, &eb); err == nil {
		if eb.Message != "" {
			return eb.Message
		}
		if eb.Error != "" {
			return eb.Error
		}
	}
	return http.StatusText(status)
}

// qualifyURL resolves a server-relative media path against the base URL.
func (r *rest) qualifyURL(path string) string {
	if path == "" || strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return r.baseURL + path
}
