package catalogsync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"gopartsync_api/config"
	"gopartsync_api/internal/core/models"
	"gopartsync_api/internal/pricing"
	"gopartsync_api/internal/scraper"
	"gopartsync_api/internal/storage"
	"gopartsync_api/internal/storefront"
	"gopartsync_api/metrics"
	"gopartsync_api/pkg/logger"
)

const maxBatchSize = 100

// Catalog - чтение внешнего каталога.
type Catalog interface {
	Ping(ctx context.Context) error
	GetCatalogPage(ctx context.Context, page, pageSize int) (*storefront.CatalogPage, error)
}

// QuoteRefresher запрашивает свежую котировку у воркера скрейпинга.
type QuoteRefresher interface {
	RequestScrape(ctx context.Context, itemID int64, stockCode string, supplier models.Supplier) (*scraper.Outcome, error)
}

// Orchestrator владеет всеми запусками процесса. Каждый запуск обслуживает
// одна горутина; общей блокировки между запусками нет.
type Orchestrator struct {
	cfg       config.SyncConfig
	catalog   Catalog
	items     storage.ItemRepository
	pusher    pricing.Pusher
	refresher QuoteRefresher
	store     ProgressStore
	log       logger.Logger
	now       func() time.Time

	rootCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu   sync.RWMutex
	runs map[string]*run
}

func NewOrchestrator(cfg config.SyncConfig, catalog Catalog, items storage.ItemRepository, pusher pricing.Pusher, log logger.Logger) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Retention <= 0 {
		cfg.Retention = time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:     cfg,
		catalog: catalog,
		items:   items,
		pusher:  pusher,
		store:   nopStore{},
		log:     log,
		now:     time.Now,
		rootCtx: ctx,
		stop:    cancel,
		runs:    make(map[string]*run),
	}
}

func (o *Orchestrator) SetQuoteRefresher(r QuoteRefresher) {
	o.refresher = r
}

func (o *Orchestrator) SetProgressStore(s ProgressStore) {
	if s == nil {
		s = nopStore{}
	}
	o.store = s
}

func (o *Orchestrator) normalize(opts Options) Options {
	if opts.BatchSize <= 0 {
		opts.BatchSize = o.cfg.BatchSize
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = maxBatchSize
	}
	if opts.BatchSize > maxBatchSize {
		opts.BatchSize = maxBatchSize
	}
	retries := o.cfg.Retries()
	if opts.MaxRetries != nil {
		retries = *opts.MaxRetries
	}
	if retries < 0 {
		retries = 0
	}
	opts.MaxRetries = &retries
	return opts
}

// Start создаёт запуск в состоянии Running и проверяет связь с витриной.
// Если проверка не прошла, запуск сразу становится Failed, а ошибка оборачивает ErrConnectivity;
// Handle возвращается и в этом случае, чтобы запуск можно было найти по ID.
func (o *Orchestrator) Start(ctx context.Context, opts Options) (*Handle, error) {
	if o.rootCtx.Err() != nil {
		return nil, errors.New("orchestrator is shut down")
	}
	opts = o.normalize(opts)
	if opts.RefreshQuotes && o.refresher == nil {
		return nil, errors.New("quote refresh requested but no scraper coordinator is configured")
	}

	r := newRun(uuid.NewString(), opts, o.cfg.MaxErrors, o.now(), o.rootCtx)
	o.mu.Lock()
	o.runs[r.id] = r
	o.mu.Unlock()
	handle := &Handle{ID: r.id, done: r.done}

	o.log.Log("run %s started: batch=%d retries=%d force=%v refreshQuotes=%v",
		r.id, opts.BatchSize, opts.retries(), opts.ForceUpdate, opts.RefreshQuotes)

	pingCtx, cancel := context.WithTimeout(ctx, o.cfg.ConnectTimeout)
	err := o.catalog.Ping(pingCtx)
	cancel()
	if err != nil {
		o.log.Error("run %s: connectivity test failed: %v", r.id, err)
		r.fail(RunError{Time: o.now(), Kind: ErrorKindConnectivity, Message: err.Error()})
		o.finish(r)
		return handle, fmt.Errorf("%w: %v", ErrConnectivity, err)
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.process(r)
	}()
	return handle, nil
}

func (o *Orchestrator) lookup(id string) (*run, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	r, ok := o.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, nil
}

func (o *Orchestrator) Pause(id string) (*Progress, error) {
	return o.changeState(id, StatusPaused, StatusRunning)
}

// Resume возвращает запуск к тому же курсору страницы и элемента.
func (o *Orchestrator) Resume(id string) (*Progress, error) {
	return o.changeState(id, StatusRunning, StatusPaused)
}

// Cancel останавливает запуск после текущего элемента, не дожидаясь конца страницы.
func (o *Orchestrator) Cancel(id string) (*Progress, error) {
	return o.changeState(id, StatusCancelled, StatusRunning, StatusPaused)
}

func (o *Orchestrator) changeState(id string, to Status, from ...Status) (*Progress, error) {
	r, err := o.lookup(id)
	if err != nil {
		return nil, err
	}
	if err := r.transition(to, from...); err != nil {
		return nil, fmt.Errorf("run %s is %s, cannot become %s: %w", id, r.Status(), to, err)
	}
	o.log.Log("run %s -> %s", id, to)
	p := r.snapshot()
	o.flush(p)
	return p, nil
}

// GetProgress отдаёт снимок запуска; завершённые и удалённые из памяти запуски ищутся в хранилище прогресса.
func (o *Orchestrator) GetProgress(ctx context.Context, id string) (*Progress, error) {
	r, err := o.lookup(id)
	if err == nil {
		return r.snapshot(), nil
	}
	p, storeErr := o.store.Load(ctx, id)
	if storeErr != nil {
		if errors.Is(storeErr, ErrRunNotFound) {
			return nil, err
		}
		return nil, storeErr
	}
	return p, nil
}

// ListActive - запуски в состояниях Running и Paused, по времени старта.
func (o *Orchestrator) ListActive() []*Progress {
	o.mu.RLock()
	out := make([]*Progress, 0, len(o.runs))
	for _, r := range o.runs {
		if !r.Status().Terminal() {
			out = append(out, r.snapshot())
		}
	}
	o.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

// Shutdown отменяет активные запуски и ждёт их финальных снимков.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.RLock()
	for _, r := range o.runs {
		r.transition(StatusCancelled, StatusRunning, StatusPaused)
	}
	o.mu.RUnlock()
	o.stop()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// checkpoint вызывается перед каждой страницей и элементом. На паузе опрашивает
// состояние с интервалом PollInterval; false - запуск надо завершать.
func (o *Orchestrator) checkpoint(r *run) bool {
	for {
		switch r.Status() {
		case StatusRunning:
			return r.sleepCtx.Err() == nil
		case StatusPaused:
			if !r.sleep(o.cfg.PollInterval) {
				return false
			}
		default:
			return false
		}
	}
}

func (o *Orchestrator) process(r *run) {
	defer o.finish(r)

	pacing := rate.Inf
	if o.cfg.ItemDelay > 0 {
		pacing = rate.Every(o.cfg.ItemDelay)
	}
	pacer := rate.NewLimiter(pacing, 1)

	for page := 1; ; page++ {
		if !o.checkpoint(r) {
			return
		}
		cp, err := o.fetchPage(r, page)
		if err != nil {
			if r.sleepCtx.Err() != nil {
				return
			}
			totalPages, known := r.pagesKnown()
			if !known {
				o.log.Error("run %s: page %d failed after %d retries, no page to fall back on: %v", r.id, page, r.opts.retries(), err)
				r.fail(RunError{Time: o.now(), Kind: ErrorKindPage, Page: page, Message: err.Error()})
				return
			}
			o.log.Error("run %s: skipping page %d after %d retries: %v", r.id, page, r.opts.retries(), err)
			r.addError(RunError{Time: o.now(), Kind: ErrorKindPage, Page: page, Message: err.Error()})
			if page >= totalPages {
				return
			}
			continue
		}
		r.setPage(page, cp.TotalItems, cp.TotalPages)

		for i := range cp.Items {
			if !o.checkpoint(r) {
				return
			}
			if err := pacer.Wait(r.sleepCtx); err != nil {
				return
			}
			o.processItem(r, &cp.Items[i])
		}
		o.flush(r.snapshot())

		if len(cp.Items) == 0 || !cp.HasNext() {
			return
		}
	}
}

// fetchPage повторяет загрузку страницы с задержкой base*2^n.
func (o *Orchestrator) fetchPage(r *run, page int) (*storefront.CatalogPage, error) {
	for attempt := 0; ; attempt++ {
		cp, err := o.catalog.GetCatalogPage(r.workCtx, page, r.opts.BatchSize)
		if err == nil {
			return cp, nil
		}
		if attempt >= r.opts.retries() {
			return nil, err
		}
		delay := backoff(o.cfg.PageRetryBase, attempt)
		o.log.Error("run %s: page %d attempt %d failed, retry in %v: %v", r.id, page, attempt+1, delay, err)
		if !r.sleep(delay) {
			return nil, err
		}
	}
}

func backoff(base time.Duration, attempt int) time.Duration {
	return base * time.Duration(1<<attempt)
}

func (o *Orchestrator) processItem(r *run, ci *storefront.CatalogItem) {
	label := ci.SKU
	if label == "" {
		label = fmt.Sprintf("#%d", ci.ID)
	}
	r.setCurrent(label)
	start := time.Now()

	result, err := o.reconcileWithRetry(r, ci)
	switch {
	case err != nil:
		r.counters.Record(metrics.ResultFailed)
		r.addError(RunError{Time: o.now(), Kind: ErrorKindItem, ExternalID: ci.ID, SKU: ci.SKU, Message: err.Error()})
		o.log.Error("run %s: item %s failed: %v", r.id, label, err)
	case result == resultSkipped:
		r.counters.Record(metrics.ResultSkipped)
	default:
		r.counters.Record(metrics.ResultSucceeded)
	}
	r.observe(time.Since(start))
}

func (o *Orchestrator) reconcileWithRetry(r *run, ci *storefront.CatalogItem) (itemResult, error) {
	for attempt := 0; ; attempt++ {
		result, err := o.reconcile(r, ci)
		if err == nil || !isTransient(err) || attempt >= r.opts.retries() {
			return result, err
		}
		delay := backoff(o.cfg.PageRetryBase, attempt)
		if wait := retryAfter(err); wait > delay {
			delay = wait
		}
		if !r.sleep(delay) {
			return result, err
		}
	}
}

// finish фиксирует итог, сохраняет финальный снимок и планирует удаление записи.
func (o *Orchestrator) finish(r *run) {
	status := r.complete(o.now())
	// освобождает дочерний контекст от родителя
	r.cancelSleep()
	metrics.RecordSyncRun(string(status))

	p := r.snapshot()
	o.flush(p)
	o.log.Log("run %s %s: processed=%d succeeded=%d failed=%d skipped=%d errors=%d",
		r.id, status, p.Processed, p.Succeeded, p.Failed, p.Skipped, p.ErrorCount)
	close(r.done)

	time.AfterFunc(o.cfg.Retention, func() {
		o.mu.Lock()
		delete(o.runs, r.id)
		o.mu.Unlock()
	})
}

func (o *Orchestrator) flush(p *Progress) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.store.Save(ctx, p, o.cfg.Retention); err != nil {
		o.log.Error("run %s: save progress: %v", p.ID, err)
	}
}
