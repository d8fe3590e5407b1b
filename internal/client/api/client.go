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

	"github.com/iudanet/famsync/pkg/api"
)

const (
	defaultTimeout = 30 * time.Second
	// Ответ синхронизации ограничен размером батча; больше - ошибка сервера
	maxResponseSize = 16 << 20
)

// Client - HTTP клиент сервера синхронизации
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
}

var _ ClientAPI = (*Client)(nil)

// Option настраивает Client
type Option func(*Client)

// WithTimeout задает таймаут одного запроса
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithUserAgent задает заголовок User-Agent
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// NewClient создает клиент для сервера по адресу baseURL
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		userAgent:  "famsync-client",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sync отправляет батч мутаций на сервер
func (c *Client) Sync(ctx context.Context, token string, req api.SyncRequest) (*api.SyncResponse, error) {
	var resp api.SyncResponse
	if err := c.call(ctx, http.MethodPost, "/api/v1/sync", token, req, &resp); err != nil {
		return nil, fmt.Errorf("sync request failed: %w", err)
	}
	return &resp, nil
}

// Health проверяет доступность сервера
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var resp api.HealthResponse
	if err := c.call(ctx, http.MethodGet, "/api/v1/health", "", nil, &resp); err != nil {
		return nil, fmt.Errorf("health request failed: %w", err)
	}
	return &resp, nil
}

func (c *Client) call(ctx context.Context, method, path, token string, in, out any) error {
	req, err := c.newRequest(ctx, method, path, token, in)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Отмена вызывающим - не сбой транспорта
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: failed to read response body: %w", ErrTransport, err)
	}

	if resp.StatusCode/100 != 2 {
		return statusError(resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path, token string, in any) (*http.Request, error) {
	var body io.Reader
	if in != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(in); err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// statusError собирает StatusError из тела ответа. Сервер отвечает
// api.ErrorResponse; прокси перед ним могут вернуть что угодно.
func statusError(code int, body []byte) *StatusError {
	e := &StatusError{StatusCode: code}
	var resp api.ErrorResponse
	if json.Unmarshal(body, &resp) != nil || resp.Error == "" {
		e.Message = string(bytes.TrimSpace(body))
		return e
	}
	e.Message = resp.Error
	if resp.Message != "" {
		e.Message += ": " + resp.Message
	}
	return e
}
