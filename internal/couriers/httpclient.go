package couriers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
)

const (
	defaultHTTPTimeout        = 15 * time.Second
	responseReadLimit   int64 = 1 << 20
	errorMessageLimit         = 300
)

// Option configures optional adapter behaviour.
type Option func(*httpClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *httpClient) {
		if client != nil {
			c.client = client
		}
	}
}

// WithBaseURL overrides the provider base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *httpClient) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *httpClient) {
		if timeout > 0 {
			c.client = &http.Client{Timeout: timeout}
		}
	}
}

// httpClient is the thin JSON transport shared by provider adapters.
type httpClient struct {
	provider enums.LogisticsProvider
	client   *http.Client
	baseURL  string
	headers  map[string]string
}

func newHTTPClient(provider enums.LogisticsProvider, baseURL string, headers map[string]string, opts ...Option) *httpClient {
	c := &httpClient{
		provider: provider,
		client:   &http.Client{Timeout: defaultHTTPTimeout},
		baseURL:  strings.TrimSpace(baseURL),
		headers:  headers,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *httpClient) buildURL(path string) string {
	return fmt.Sprintf("%s/%s", strings.TrimRight(c.baseURL, "/"), strings.TrimLeft(path, "/"))
}

// do sends body as JSON and decodes a 2xx response into out. Any other
// outcome is a COURIER_ERROR carrying provider, http_status and provider_message.
func (c *httpClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal courier request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path), reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build courier request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return c.courierError(0, err.Error(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, responseReadLimit))
	if err != nil {
		return c.courierError(resp.StatusCode, "unreadable response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.courierError(resp.StatusCode, providerMessage(raw), nil)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return c.courierError(resp.StatusCode, "malformed response", err)
	}
	return nil
}

func (c *httpClient) courierError(status int, message string, cause error) error {
	return pkgerrors.Wrap(pkgerrors.CodeCourier, cause, fmt.Sprintf("%s request failed", c.provider)).
		WithDetails(map[string]any{
			"provider":         c.provider,
			"http_status":      status,
			"provider_message": message,
		})
}

// rejected builds a COURIER_ERROR for a 2xx response whose body reports failure.
func (c *httpClient) rejected(status int, message string) error {
	if message == "" {
		message = "provider rejected the request"
	}
	return c.courierError(status, message, nil)
}

// providerMessage extracts a human message from an error body.
func providerMessage(raw []byte) string {
	var body struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
		Errors  json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Message != "" {
			return truncate(body.Message)
		}
		if len(body.Errors) > 0 {
			return truncate(string(body.Errors))
		}
		if len(body.Error) > 0 {
			return truncate(strings.Trim(string(body.Error), `"`))
		}
	}
	return truncate(strings.TrimSpace(string(raw)))
}

func truncate(message string) string {
	if len(message) > errorMessageLimit {
		return message[:errorMessageLimit]
	}
	return message
}
