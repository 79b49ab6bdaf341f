package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"gopartsync_api/pkg/logger"
	"gopartsync_api/pkg/middleware"
	"io"
	"net/http"
	"time"
)

// StatusError - ответ витрины с кодом вне 2xx.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("non-OK status: %d %s", e.StatusCode, e.Body)
}

// headerReceiver получает заголовки ответа вместе с телом.
type headerReceiver interface {
	setHeader(h http.Header)
	target() interface{}
}

type BaseClient struct {
	ApiURL  string
	log     logger.Logger
	client  *http.Client
	auth    AuthEngine
	request middleware.RequestFunc
}

func NewBaseClient(apiURL string, timeout time.Duration, auth AuthEngine, log logger.Logger, mws ...middleware.Middleware) *BaseClient {
	c := &BaseClient{
		ApiURL: apiURL,
		log:    log,
		client: &http.Client{Timeout: timeout},
		auth:   auth,
	}
	c.request = middleware.Wrap(c.doRequest, mws...)
	return c
}

func (c *BaseClient) doRequest(ctx context.Context, method, endpoint string, requestBody interface{}, response interface{}) error {
	var body io.Reader
	if requestBody != nil {
		bodyBytes, err := json.Marshal(requestBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.ApiURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.auth != nil {
		c.auth.SetApiKey(req)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		select {
		case <-ctx.Done():
			return fmt.Errorf("request was cancelled: %w", ctx.Err())
		default:
			return fmt.Errorf("failed to execute request: %w", err)
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(respBody)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return &StatusError{StatusCode: resp.StatusCode, Body: snippet}
	}

	if response == nil {
		return nil
	}
	if hr, ok := response.(headerReceiver); ok {
		hr.setHeader(resp.Header)
		response = hr.target()
	}
	if err := json.Unmarshal(respBody, response); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
