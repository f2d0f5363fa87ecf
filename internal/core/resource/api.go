// Package resource talks to the backend REST API: collection CRUD for catalog
// resources and the staff login calls. Every failure comes back as *Error.
package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// maxBody caps how much of a response is read.
const maxBody = 32 << 20

// TokenSource yields the bearer token for a request. An empty token sends no
// Authorization header.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken always returns token.
func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) { return token, nil }
}

// API is the shared transport to one backend. It is safe for concurrent use.
type API struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
}

type Option func(*API)

func WithHTTPClient(c *http.Client) Option {
	return func(a *API) { a.httpClient = c }
}

// WithTimeout sets the overall per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(a *API) {
		if d > 0 {
			a.httpClient = &http.Client{Timeout: d, Transport: a.httpClient.Transport}
		}
	}
}

func WithTokenSource(ts TokenSource) Option {
	return func(a *API) { a.tokens = ts }
}

func NewAPI(baseURL string, opts ...Option) *API {
	a := &API{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// WithToken returns a copy of a that authenticates every request with token.
func (a *API) WithToken(token string) *API {
	cp := *a
	cp.tokens = StaticToken(token)
	return &cp
}

func (a *API) BaseURL() string {
	return a.baseURL
}

func (a *API) url(path string) string {
	return a.baseURL + "/" + strings.TrimLeft(path, "/")
}

// do sends one request and returns the raw body of a 2xx reply.
func (a *API) do(ctx context.Context, method, path string, body io.Reader, contentType, token string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, a.url(path), body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	if token == "" && a.tokens != nil {
		token, err = a.tokens(ctx)
		if err != nil {
			return nil, 0, &Error{Kind: KindAuth, Message: "no backend session", Cause: err}
		}
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, 0, transportError(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, resp.StatusCode, transportError(ctx, err)
	}

	if resp.StatusCode >= 300 {
		return nil, resp.StatusCode, responseError(resp.StatusCode, data)
	}
	return data, resp.StatusCode, nil
}

func (a *API) doJSON(ctx context.Context, method, path string, payload any, token string, target any) error {
	var body io.Reader
	contentType := ""
	if payload != nil {
		r, ct, err := encodeJSON(payload)
		if err != nil {
			return err
		}
		body, contentType = r, ct
	}

	data, _, err := a.do(ctx, method, path, body, contentType, token)
	if err != nil {
		return err
	}
	if target == nil || len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return &Error{Kind: KindServer, Message: "unexpected response from server", Cause: err}
	}
	return nil
}
