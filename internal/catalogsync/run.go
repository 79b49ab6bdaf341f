package catalogsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"gopartsync_api/internal/core/models"
	"gopartsync_api/metrics"
)

var (
	ErrRunNotFound       = errors.New("sync run not found")
	ErrInvalidTransition = errors.New("invalid sync run state transition")
	ErrConnectivity      = errors.New("storefront connectivity test failed")
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted || s == StatusFailed
}

// transitions - допустимые переходы; терминальные состояния не имеют выходов.
var transitions = map[Status][]Status{
	StatusRunning: {StatusPaused, StatusCancelled, StatusCompleted, StatusFailed},
	StatusPaused:  {StatusRunning, StatusCancelled},
}

func canTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Options - параметры запуска. MaxRetries == nil берёт значение из конфигурации,
// явный 0 отключает повторы.
type Options struct {
	BatchSize     int  `json:"batchSize"`
	MaxRetries    *int `json:"maxRetries,omitempty"`
	ForceUpdate   bool `json:"forceUpdate"`
	RefreshQuotes bool `json:"refreshQuotes"`
}

func (o Options) retries() int {
	if o.MaxRetries == nil {
		return 0
	}
	return *o.MaxRetries
}

const (
	ErrorKindItem         = "item"
	ErrorKindPage         = "page"
	ErrorKindCaptcha      = "captcha"
	ErrorKindConnectivity = "connectivity"
)

type RunError struct {
	Time       time.Time        `json:"time"`
	Kind       string           `json:"kind"`
	Page       int              `json:"page,omitempty"`
	ExternalID int64            `json:"externalId,omitempty"`
	SKU        string           `json:"sku,omitempty"`
	Supplier   *models.Supplier `json:"supplier,omitempty"`
	Message    string           `json:"message"`
}

// Progress - снимок состояния запуска, безопасный для отдачи наружу.
type Progress struct {
	ID                     string            `json:"runId"`
	Status                 Status            `json:"status"`
	Options                Options           `json:"options"`
	Total                  int               `json:"total"`
	Processed              int               `json:"processed"`
	Succeeded              int               `json:"succeeded"`
	Failed                 int               `json:"failed"`
	Skipped                int               `json:"skipped"`
	CurrentPage            int               `json:"currentPage"`
	TotalPages             int               `json:"totalPages"`
	CurrentItem            string            `json:"currentItem,omitempty"`
	StartTime              time.Time         `json:"startTime"`
	EndTime                *time.Time        `json:"endTime,omitempty"`
	EstimatedRemaining     time.Duration     `json:"-"`
	EstimatedRemainingSecs int64             `json:"estimatedTimeRemaining"`
	Errors                 []RunError        `json:"errors"`
	ErrorCount             int               `json:"errorCount"`
	BlockedSuppliers       []models.Supplier `json:"blockedSuppliers"`
}

// run - запись одного запуска. Состояние меняется только под mu;
// счётчики атомарные и читаются без блокировки.
type run struct {
	id   string
	opts Options

	counters metrics.RunCounters

	mu          sync.Mutex
	status      Status
	total       int
	page        int
	totalPages  int
	currentItem string
	start       time.Time
	end         *time.Time
	itemTime    time.Duration
	errors      []RunError
	errorCount  int
	maxErrors   int
	blocked     map[models.Supplier]bool
	noWorker    map[models.Supplier]bool

	// workCtx живёт до завершения процесса: текущий элемент всегда дорабатывается.
	// sleepCtx отменяется при Cancel и будит паузы и ожидания.
	workCtx     context.Context
	sleepCtx    context.Context
	cancelSleep context.CancelFunc
	done        chan struct{}
}

func newRun(id string, opts Options, maxErrors int, start time.Time, parent context.Context) *run {
	sleepCtx, cancel := context.WithCancel(parent)
	return &run{
		id:          id,
		opts:        opts,
		status:      StatusRunning,
		start:       start,
		maxErrors:   maxErrors,
		blocked:     make(map[models.Supplier]bool),
		noWorker:    make(map[models.Supplier]bool),
		workCtx:     parent,
		sleepCtx:    sleepCtx,
		cancelSleep: cancel,
		done:        make(chan struct{}),
	}
}

func (r *run) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *run) transition(to Status, allowed ...Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ok := false
	for _, from := range allowed {
		if r.status == from {
			ok = true
			break
		}
	}
	if !ok || !canTransition(r.status, to) {
		return ErrInvalidTransition
	}
	r.status = to
	if to == StatusCancelled {
		r.cancelSleep()
	}
	return nil
}

// sleep ждёт d; false, если запуск отменён.
func (r *run) sleep(d time.Duration) bool {
	if d <= 0 {
		return r.sleepCtx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-r.sleepCtx.Done():
		return false
	}
}

func (r *run) setPage(page, totalItems, totalPages int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.page = page
	if totalItems > 0 {
		r.total = totalItems
	}
	if totalPages > 0 {
		r.totalPages = totalPages
	}
}

func (r *run) pagesKnown() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalPages, r.totalPages > 0
}

func (r *run) setCurrent(label string) {
	r.mu.Lock()
	r.currentItem = label
	r.mu.Unlock()
}

func (r *run) observe(elapsed time.Duration) {
	r.mu.Lock()
	r.itemTime += elapsed
	r.mu.Unlock()
}

// addError хранит последние maxErrors ошибок и общий счётчик.
func (r *run) addError(e RunError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errorCount++
	r.errors = append(r.errors, e)
	if over := len(r.errors) - r.maxErrors; r.maxErrors > 0 && over > 0 {
		r.errors = append([]RunError(nil), r.errors[over:]...)
	}
}

// block отмечает поставщика как ждущего капчу. true, если блокировка новая.
func (r *run) block(s models.Supplier) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.blocked[s] {
		return false
	}
	r.blocked[s] = true
	return true
}

// unblock снимает отметку после ответа без капчи. true, если поставщик был заблокирован.
func (r *run) unblock(s models.Supplier) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.blocked[s] {
		return false
	}
	delete(r.blocked, s)
	return true
}

func (r *run) skipSupplier(s models.Supplier) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.noWorker[s]
}

func (r *run) markNoWorker(s models.Supplier) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.noWorker[s] {
		return false
	}
	r.noWorker[s] = true
	return true
}

// fail переводит запуск в Failed, если он ещё не завершён.
func (r *run) fail(e RunError) {
	r.addError(e)
	r.mu.Lock()
	if canTransition(r.status, StatusFailed) {
		r.status = StatusFailed
	}
	r.mu.Unlock()
}

// complete фиксирует конец запуска; незавершённый запуск становится Completed.
func (r *run) complete(at time.Time) Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status == StatusRunning {
		r.status = StatusCompleted
	}
	end := at
	r.end = &end
	r.currentItem = ""
	return r.status
}

func (r *run) snapshot() *Progress {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := &Progress{
		ID:          r.id,
		Status:      r.status,
		Options:     r.opts,
		Total:       r.total,
		Processed:   int(r.counters.Processed.Load()),
		Succeeded:   int(r.counters.Succeeded.Load()),
		Failed:      int(r.counters.Failed.Load()),
		Skipped:     int(r.counters.Skipped.Load()),
		CurrentPage: r.page,
		TotalPages:  r.totalPages,
		CurrentItem: r.currentItem,
		StartTime:   r.start,
		Errors:      append([]RunError{}, r.errors...),
		ErrorCount:  r.errorCount,
	}
	if r.end != nil {
		end := *r.end
		p.EndTime = &end
	}
	for s := range r.blocked {
		p.BlockedSuppliers = append(p.BlockedSuppliers, s)
	}
	models.SortSuppliers(p.BlockedSuppliers)
	if p.BlockedSuppliers == nil {
		p.BlockedSuppliers = []models.Supplier{}
	}

	if !r.status.Terminal() && p.Processed > 0 && p.Total > p.Processed {
		avg := r.itemTime / time.Duration(p.Processed)
		p.EstimatedRemaining = avg * time.Duration(p.Total-p.Processed)
		p.EstimatedRemainingSecs = int64(p.EstimatedRemaining.Round(time.Second) / time.Second)
	}
	return p
}

// Handle - управляемая ссылка на запущенный процесс.
type Handle struct {
	ID   string
	done <-chan struct{}
}

// Done закрывается после финального снимка прогресса.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}
