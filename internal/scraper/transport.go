package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"gopartsync_api/internal/ratelimit"
)

// WorkerTransport доставляет запрос скрейпинга воркеру.
type WorkerTransport interface {
	Scrape(ctx context.Context, w Worker, req ScrapeRequest) (*ScrapeResponse, error)
}

// HTTPTransport: допуск через общий лимитер внешнего трафика и равномерный темп на каждого воркера.
type HTTPTransport struct {
	client         *http.Client
	limiter        *ratelimit.Limiter
	requestsPerMin int

	mu     sync.Mutex
	pacers map[string]*rate.Limiter
}

func NewHTTPTransport(limiter *ratelimit.Limiter, timeout time.Duration, requestsPerMin int) *HTTPTransport {
	if requestsPerMin <= 0 {
		requestsPerMin = 30
	}
	return &HTTPTransport{
		client:         &http.Client{Timeout: timeout},
		limiter:        limiter,
		requestsPerMin: requestsPerMin,
		pacers:         make(map[string]*rate.Limiter),
	}
}

func (t *HTTPTransport) pacer(workerID string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pacers[workerID]
	if !ok {
		p = rate.NewLimiter(rate.Every(time.Minute/time.Duration(t.requestsPerMin)), 1)
		t.pacers[workerID] = p
	}
	return p
}

func (t *HTTPTransport) Scrape(ctx context.Context, w Worker, req ScrapeRequest) (*ScrapeResponse, error) {
	key := "scraper:" + string(req.Supplier)
	if d := t.limiter.Admit(key, ratelimit.ClassStorefront); !d.Allowed {
		return nil, &ratelimit.RejectedError{Class: ratelimit.ClassStorefront, Key: key, Reason: d.Reason, RetryAfter: d.RetryAfter}
	}
	if err := t.pacer(w.ID).Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.BaseURL()+"/scrape", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("worker %s: %w", w.Name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("worker %s: read body: %w", w.Name, err)
	}

	var out ScrapeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("worker %s: non-OK status: %d", w.Name, resp.StatusCode)
		}
		return nil, fmt.Errorf("worker %s: failed to unmarshal response: %w", w.Name, err)
	}
	// воркер отвечает ошибочным кодом и телом с флагом капчи
	if resp.StatusCode >= 300 && !out.RequiresManualIntervention {
		out.Success = false
		if out.Error == "" {
			out.Error = fmt.Sprintf("status %d", resp.StatusCode)
		}
	}
	return &out, nil
}
