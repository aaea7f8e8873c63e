package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

const (
	defaultMaxNewTokens = 512
	defaultTemperature  = 0.7
	defaultTopP         = 0.9

	maxErrorBodyBytes = 4 << 10
	maxResponseBytes  = 1 << 20
)

// ErrResponseTooLarge is returned when a success body exceeds 1 MiB.
var ErrResponseTooLarge = errors.New("response body exceeds 1 MiB")

// generateRequest is the fixed-shape payload of the /generate endpoint. Only
// Prompt varies between calls.
type generateRequest struct {
	Prompt       string  `json:"prompt"`
	MaxNewTokens int     `json:"max_new_tokens"`
	DoSample     bool    `json:"do_sample"`
	Temperature  float64 `json:"temperature"`
	TopP         float64 `json:"top_p"`
}

// generateResponse is the subset of the /generate response we read.
type generateResponse struct {
	GeneratedText string   `json:"generated_text"`
	ResponseTime  *float64 `json:"response_time,omitempty"`
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError captures non-2xx upstream responses. URL and Body are kept
// for logging only and are left out of Error, which ends up in API responses.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client calls a text-generation service exposing POST /generate.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger

	getter    Getter
	paramName string

	mu      sync.Mutex
	baseURL string
}

type Option func(*Client)

// WithBaseURL sets a static base URL. It takes precedence over WithParamStore.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

// WithParamStore resolves the base URL from the named parameter on first use.
func WithParamStore(getter Getter, name string) Option {
	return func(c *Client) {
		c.getter = getter
		c.paramName = strings.TrimSpace(name)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func NewClient(opts ...Option) (*Client, error) {
	c := &Client{}
	for _, opt := range opts {
		opt(c)
	}
	if c.baseURL == "" && (c.getter == nil || c.paramName == "") {
		return nil, errors.New("generate: a base URL or a parameter store source is required")
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// resolveBaseURL returns the static base URL, or fetches it from the parameter
// store once. A failed fetch is not cached so the next call tries again.
func (c *Client) resolveBaseURL(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.baseURL != "" {
		return c.baseURL, nil
	}
	raw, err := c.getter.GetParameter(ctx, c.paramName)
	if err != nil {
		return "", fmt.Errorf("generate: resolve base URL: %w", err)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("generate: parameter %q holds an empty base URL", c.paramName)
	}
	c.baseURL = raw
	return c.baseURL, nil
}

// resolvedHTTPClient returns the configured client or a zero-value one. The
// zero value has no timeout of its own; the request context bounds the call.
func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{}
}

func generateURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/generate"
}

// Generate sends prompt to the /generate endpoint and returns generated_text.
// An empty generated_text is returned as-is; callers decide what it means.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	baseURL, err := c.resolveBaseURL(ctx)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(generateRequest{
		Prompt:       prompt,
		MaxNewTokens: defaultMaxNewTokens,
		DoSample:     true,
		Temperature:  defaultTemperature,
		TopP:         defaultTopP,
	})
	if err != nil {
		return "", fmt.Errorf("generate: marshal request: %w", err)
	}

	endpoint := generateURL(baseURL)
	c.logger.DebugContext(ctx, "sending generation request", "url", endpoint, "payload", string(body))

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if reqErr != nil {
		return "", fmt.Errorf("generate: create request: %w", reqErr)
	}
	req.Header.Set("Content-Type", "application/json")

	raw, err := c.doJSONRequest(ctx, req)
	if err != nil {
		return "", fmt.Errorf("generate: request failed: %w", err)
	}

	var payload generateResponse
	if decErr := json.Unmarshal(raw, &payload); decErr != nil {
		return "", fmt.Errorf("generate: decode response: %w", decErr)
	}

	attrs := []any{"text_len", len(payload.GeneratedText)}
	if payload.ResponseTime != nil {
		attrs = append(attrs, "response_time", *payload.ResponseTime)
	}
	c.logger.InfoContext(ctx, "generation response received", attrs...)

	return payload.GeneratedText, nil
}

// doJSONRequest performs req and returns the success body. Returned errors
// never carry the request URL; it is logged instead.
func (c *Client) doJSONRequest(ctx context.Context, req *http.Request) ([]byte, error) {
	target := req.URL.String()

	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		c.logger.WarnContext(ctx, "generation request failed", "url", target, "err", doErr)
		var urlErr *url.Error
		if errors.As(doErr, &urlErr) {
			return nil, urlErr.Err
		}
		return nil, doErr
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBodyBytes))
		statusErr := &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        target,
			Body:       string(buf),
		}
		c.logger.WarnContext(ctx, "generation endpoint returned non-2xx",
			"status", statusErr.StatusCode, "url", statusErr.URL, "body", statusErr.Body)
		return nil, statusErr
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if len(buf) > maxResponseBytes {
		return nil, ErrResponseTooLarge
	}
	return buf, nil
}
