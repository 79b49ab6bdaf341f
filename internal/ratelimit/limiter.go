package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gopartsync_api/config"
	"gopartsync_api/metrics"
	"gopartsync_api/pkg/logger"
)

// Class - класс трафика со своим окном и лимитом.
type Class string

const (
	ClassGeneral    Class = "general"
	ClassStorefront Class = "storefront"
	// ClassAuth не ограничивается.
	ClassAuth Class = "auth"
)

const (
	ReasonWindow      = "window"
	ReasonMinInterval = "min_interval"
)

type Policy struct {
	Window      time.Duration
	MaxRequests int
	MinInterval time.Duration
	Exempt      bool
}

func DefaultPolicies() map[Class]Policy {
	return map[Class]Policy{
		ClassGeneral:    {Window: 5 * time.Minute, MaxRequests: 500},
		ClassStorefront: {Window: 60 * time.Second, MaxRequests: 50, MinInterval: time.Second},
		ClassAuth:       {Exempt: true},
	}
}

func PoliciesFromConfig(cfg config.RateLimitConfig) map[Class]Policy {
	return map[Class]Policy{
		ClassGeneral: {
			Window:      cfg.General.Window,
			MaxRequests: cfg.General.MaxRequests,
			MinInterval: cfg.General.MinInterval,
		},
		ClassStorefront: {
			Window:      cfg.Storefront.Window,
			MaxRequests: cfg.Storefront.MaxRequests,
			MinInterval: cfg.Storefront.MinInterval,
		},
		ClassAuth: {Exempt: true},
	}
}

// Decision - результат допуска запроса. Лимитер не ставит запросы в очередь:
// при отказе вызывающий сам ждёт RetryAfter.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Reason     string
	Limit      int
	Remaining  int
	ResetAt    time.Time
}

type Status struct {
	Class       Class         `json:"class"`
	Key         string        `json:"key"`
	Limit       int           `json:"limit"`
	Remaining   int           `json:"remaining"`
	ResetAt     time.Time     `json:"resetTime"`
	Window      time.Duration `json:"-"`
	WindowMs    int64         `json:"windowMs"`
	LastRequest *time.Time    `json:"lastRequest,omitempty"`
	Exempt      bool          `json:"exempt,omitempty"`
}

// RejectedError возвращается исходящими клиентами при отказе лимитера.
type RejectedError struct {
	Class      Class
	Key        string
	Reason     string
	RetryAfter time.Duration
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("rate limit (%s, %s) for %s: retry after %v", e.Class, e.Reason, e.Key, e.RetryAfter)
}

type entry struct {
	count       int
	resetAt     time.Time
	lastRequest time.Time
}

type Limiter struct {
	mu       sync.Mutex
	policies map[Class]Policy
	entries  map[Class]map[string]*entry
	now      func() time.Time
	log      logger.Logger

	lastPurge time.Time
}

func NewLimiter(policies map[Class]Policy, log logger.Logger) *Limiter {
	return &Limiter{
		policies: policies,
		entries:  make(map[Class]map[string]*entry),
		now:      time.Now,
		log:      log,
	}
}

// Admit учитывает запрос клиента key в классе class.
// Минимальный интервал проверяется до увеличения счётчика и при отказе не сдвигает lastRequest.
// Окно сбрасывается в момент resetAt включительно.
func (l *Limiter) Admit(key string, class Class) Decision {
	policy, ok := l.policies[class]
	if !ok || policy.Exempt {
		return Decision{Allowed: true, Limit: -1, Remaining: -1}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	// ленивая чистка не чаще раза в окно, до выборки текущей записи
	if now.Sub(l.lastPurge) >= policy.Window {
		l.purgeLocked(now)
	}
	e := l.entryLocked(class, key, policy, now)
	if !now.Before(e.resetAt) {
		e.count = 0
		e.resetAt = now.Add(policy.Window)
	}

	if policy.MinInterval > 0 && !e.lastRequest.IsZero() {
		if since := now.Sub(e.lastRequest); since < policy.MinInterval {
			metrics.RecordRateLimitRejection(string(class), ReasonMinInterval)
			return Decision{
				RetryAfter: policy.MinInterval - since,
				Reason:     ReasonMinInterval,
				Limit:      policy.MaxRequests,
				Remaining:  remaining(policy, e),
				ResetAt:    e.resetAt,
			}
		}
	}

	e.count++
	e.lastRequest = now

	if e.count > policy.MaxRequests {
		metrics.RecordRateLimitRejection(string(class), ReasonWindow)
		return Decision{
			RetryAfter: e.resetAt.Sub(now),
			Reason:     ReasonWindow,
			Limit:      policy.MaxRequests,
			Remaining:  0,
			ResetAt:    e.resetAt,
		}
	}

	return Decision{
		Allowed:   true,
		Limit:     policy.MaxRequests,
		Remaining: remaining(policy, e),
		ResetAt:   e.resetAt,
	}
}

func (l *Limiter) entryLocked(class Class, key string, policy Policy, now time.Time) *entry {
	byKey, ok := l.entries[class]
	if !ok {
		byKey = make(map[string]*entry)
		l.entries[class] = byKey
	}
	e, ok := byKey[key]
	if !ok {
		e = &entry{resetAt: now.Add(policy.Window)}
		byKey[key] = e
	}
	return e
}

func remaining(policy Policy, e *entry) int {
	if r := policy.MaxRequests - e.count; r > 0 {
		return r
	}
	return 0
}

// Status - текущее состояние квоты клиента без учёта запроса.
func (l *Limiter) Status(key string, class Class) Status {
	policy, ok := l.policies[class]
	if !ok || policy.Exempt {
		return Status{Class: class, Key: key, Limit: -1, Remaining: -1, Exempt: true}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	st := Status{
		Class:     class,
		Key:       key,
		Limit:     policy.MaxRequests,
		Remaining: policy.MaxRequests,
		ResetAt:   now.Add(policy.Window),
		Window:    policy.Window,
		WindowMs:  policy.Window.Milliseconds(),
	}
	e, ok := l.entries[class][key]
	if !ok {
		return st
	}
	if now.Before(e.resetAt) {
		st.Remaining = remaining(policy, e)
		st.ResetAt = e.resetAt
	}
	if !e.lastRequest.IsZero() {
		t := e.lastRequest
		st.LastRequest = &t
	}
	return st
}

// Purge удаляет записи, у которых с момента сброса прошло больше длины окна.
func (l *Limiter) Purge() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.purgeLocked(l.now())
}

func (l *Limiter) purgeLocked(now time.Time) int {
	l.lastPurge = now
	removed := 0
	for class, byKey := range l.entries {
		window := l.policies[class].Window
		for key, e := range byKey {
			if now.After(e.resetAt.Add(window)) {
				delete(byKey, key)
				removed++
			}
		}
	}
	return removed
}

// RunPurger периодически чистит устаревшие записи до отмены ctx.
func (l *Limiter) RunPurger(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Purge(); n > 0 {
				l.log.Log("purged %d expired rate limit entries", n)
			}
		}
	}
}
