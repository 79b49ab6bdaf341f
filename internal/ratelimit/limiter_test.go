package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gopartsync_api/pkg/logger"
	"gopartsync_api/pkg/middleware"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(policies map[Class]Policy) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	l := NewLimiter(policies, logger.Discard())
	l.now = clock.now
	return l, clock
}

func TestAdmitBurstUpToLimit(t *testing.T) {
	l, clock := newTestLimiter(map[Class]Policy{
		ClassGeneral: {Window: time.Minute, MaxRequests: 3},
	})

	for i := 1; i <= 3; i++ {
		d := l.Admit("ip:1.2.3.4", ClassGeneral)
		if !d.Allowed {
			t.Fatalf("request %d rejected", i)
		}
		if d.Remaining != 3-i {
			t.Errorf("request %d remaining = %d, want %d", i, d.Remaining, 3-i)
		}
	}

	clock.advance(20 * time.Second)
	d := l.Admit("ip:1.2.3.4", ClassGeneral)
	if d.Allowed {
		t.Fatal("request over the limit must be rejected")
	}
	if d.Reason != ReasonWindow {
		t.Errorf("reason = %s", d.Reason)
	}
	if d.RetryAfter != 40*time.Second {
		t.Errorf("retryAfter = %v, want 40s", d.RetryAfter)
	}
	if d.Remaining != 0 {
		t.Errorf("remaining = %d", d.Remaining)
	}
}

func TestAdmitWindowBoundary(t *testing.T) {
	l, clock := newTestLimiter(map[Class]Policy{
		ClassGeneral: {Window: time.Minute, MaxRequests: 2},
	})
	for i := 0; i < 2; i++ {
		if !l.Admit("k", ClassGeneral).Allowed {
			t.Fatalf("request %d rejected", i+1)
		}
	}

	clock.advance(10 * time.Second)
	d := l.Admit("k", ClassGeneral)
	if d.Allowed || d.RetryAfter != 50*time.Second {
		t.Fatalf("third request = %+v, want rejection with retryAfter 50s", d)
	}

	// клиент, выждавший ровно RetryAfter, попадает в новое окно
	clock.advance(d.RetryAfter)
	d = l.Admit("k", ClassGeneral)
	if !d.Allowed {
		t.Fatalf("request at reset time rejected: %+v", d)
	}
	if d.Remaining != 1 || !d.ResetAt.Equal(clock.t.Add(time.Minute)) {
		t.Errorf("decision = %+v", d)
	}
	if st := l.Status("k", ClassGeneral); st.Remaining != 1 {
		t.Errorf("status remaining = %d, want 1", st.Remaining)
	}
}

func TestAdmitConcurrent(t *testing.T) {
	l := NewLimiter(map[Class]Policy{
		ClassGeneral: {Window: time.Hour, MaxRequests: 20},
	}, logger.Discard())

	var (
		wg      sync.WaitGroup
		allowed atomic.Int64
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Admit("shared", ClassGeneral).Allowed {
				allowed.Add(1)
			}
			l.Status("shared", ClassGeneral)
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != 20 {
		t.Errorf("admitted %d concurrent requests, want 20", got)
	}
}

func TestMinIntervalDoesNotConsumeQuota(t *testing.T) {
	l, clock := newTestLimiter(map[Class]Policy{
		ClassStorefront: {Window: time.Minute, MaxRequests: 50, MinInterval: time.Second},
	})

	if !l.Admit("user:7", ClassStorefront).Allowed {
		t.Fatal("first request rejected")
	}
	clock.advance(500 * time.Millisecond)
	d := l.Admit("user:7", ClassStorefront)
	if d.Allowed || d.Reason != ReasonMinInterval {
		t.Fatalf("expected min interval rejection, got %+v", d)
	}
	if d.RetryAfter != 500*time.Millisecond {
		t.Errorf("retryAfter = %v, want 500ms", d.RetryAfter)
	}
	if d.Remaining != 49 {
		t.Errorf("rejected request consumed quota: remaining = %d", d.Remaining)
	}

	// отказ не сдвигает lastRequest: через 500ms от первого запроса интервал выдержан
	clock.advance(500 * time.Millisecond)
	d = l.Admit("user:7", ClassStorefront)
	if !d.Allowed {
		t.Fatalf("request after min interval rejected: %+v", d)
	}
	if d.Remaining != 48 {
		t.Errorf("remaining = %d, want 48", d.Remaining)
	}
}

func TestKeysAndClassesAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(map[Class]Policy{
		ClassGeneral:    {Window: time.Minute, MaxRequests: 1},
		ClassStorefront: {Window: time.Minute, MaxRequests: 1},
	})
	if !l.Admit("a", ClassGeneral).Allowed || !l.Admit("b", ClassGeneral).Allowed {
		t.Fatal("different keys must not share quota")
	}
	if !l.Admit("a", ClassStorefront).Allowed {
		t.Fatal("different classes must not share quota")
	}
	if l.Admit("a", ClassGeneral).Allowed {
		t.Fatal("second request of key a must be rejected")
	}
}

func TestExemptClass(t *testing.T) {
	l, _ := newTestLimiter(DefaultPolicies())
	for i := 0; i < 1000; i++ {
		if !l.Admit("ip:x", ClassAuth).Allowed {
			t.Fatal("auth class must never be limited")
		}
	}
	if st := l.Status("ip:x", ClassAuth); !st.Exempt {
		t.Error("status must report exempt")
	}
}

func TestStatus(t *testing.T) {
	l, clock := newTestLimiter(map[Class]Policy{
		ClassGeneral: {Window: time.Minute, MaxRequests: 10},
	})
	st := l.Status("k", ClassGeneral)
	if st.Remaining != 10 || st.LastRequest != nil {
		t.Errorf("fresh status = %+v", st)
	}

	l.Admit("k", ClassGeneral)
	l.Admit("k", ClassGeneral)
	st = l.Status("k", ClassGeneral)
	if st.Remaining != 8 || st.LastRequest == nil || st.WindowMs != 60000 {
		t.Errorf("status = %+v", st)
	}

	clock.advance(2 * time.Minute)
	if st = l.Status("k", ClassGeneral); st.Remaining != 10 {
		t.Errorf("expired window remaining = %d", st.Remaining)
	}
}

func TestPurge(t *testing.T) {
	l, clock := newTestLimiter(map[Class]Policy{
		ClassGeneral: {Window: time.Minute, MaxRequests: 10},
	})
	l.Admit("old", ClassGeneral)
	clock.advance(90 * time.Second)
	l.Admit("fresh", ClassGeneral)

	// old: reset в +60s, удаляется после +120s
	if n := l.Purge(); n != 0 {
		t.Fatalf("purged %d, want 0", n)
	}
	clock.advance(31 * time.Second)
	if n := l.Purge(); n != 1 {
		t.Fatalf("purged %d, want 1", n)
	}
	if _, ok := l.entries[ClassGeneral]["fresh"]; !ok {
		t.Error("fresh entry must survive")
	}
}

func TestAdmitPurgesStaleEntries(t *testing.T) {
	l, clock := newTestLimiter(map[Class]Policy{
		ClassGeneral: {Window: time.Minute, MaxRequests: 10},
	})
	for _, key := range []string{"a", "b", "c"} {
		l.Admit(key, ClassGeneral)
	}

	// без RunPurger: следующий Admit после двух окон чистит старые ключи
	clock.advance(2*time.Minute + time.Second)
	if !l.Admit("d", ClassGeneral).Allowed {
		t.Fatal("request rejected")
	}
	if got := len(l.entries[ClassGeneral]); got != 1 {
		t.Errorf("entries after lazy purge = %d, want 1", got)
	}
	if _, ok := l.entries[ClassGeneral]["d"]; !ok {
		t.Error("current key must be kept")
	}
}

func TestAdmitMiddleware(t *testing.T) {
	l, _ := newTestLimiter(map[Class]Policy{
		ClassStorefront: {Window: time.Minute, MaxRequests: 1},
	})
	calls := 0
	f := middleware.Wrap(func(ctx context.Context, method, endpoint string, body, resp interface{}) error {
		calls++
		return nil
	}, l.AdmitMiddleware("scraper:w1", ClassStorefront))

	if err := f(context.Background(), http.MethodPost, "/scrape", nil, nil); err != nil {
		t.Fatal(err)
	}
	err := f(context.Background(), http.MethodPost, "/scrape", nil, nil)
	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected RejectedError, got %v", err)
	}
	if rejected.RetryAfter <= 0 || calls != 1 {
		t.Errorf("rejected = %+v, calls = %d", rejected, calls)
	}
}

func TestWaitHonoursContext(t *testing.T) {
	l := NewLimiter(map[Class]Policy{
		ClassStorefront: {Window: time.Hour, MaxRequests: 1},
	}, logger.Discard())
	if err := l.Wait(context.Background(), "k", ClassStorefront); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "k", ClassStorefront); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestWaitAfterMinInterval(t *testing.T) {
	l := NewLimiter(map[Class]Policy{
		ClassStorefront: {Window: time.Minute, MaxRequests: 10, MinInterval: 30 * time.Millisecond},
	}, logger.Discard())
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Wait(context.Background(), "k", ClassStorefront); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Errorf("three paced requests took %v, want >= 60ms", elapsed)
	}
}
