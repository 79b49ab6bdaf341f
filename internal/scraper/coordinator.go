package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"gopartsync_api/internal/core/models"
	"gopartsync_api/internal/pricing"
	"gopartsync_api/internal/ratelimit"
	"gopartsync_api/internal/storage"
	"gopartsync_api/metrics"
	"gopartsync_api/pkg/logger"
)

var (
	ErrInvalidRegistration = errors.New("invalid worker registration")
	ErrWorkerNotFound      = errors.New("worker not found")
	ErrNoWorker            = errors.New("no online worker for supplier")
	ErrCaptchaPending      = errors.New("captcha resolution pending")
)

type Coordinator struct {
	mu      sync.RWMutex
	workers map[string]*Worker
	captcha map[models.Supplier]*CaptchaState

	items     storage.ItemRepository
	quotes    storage.QuoteRepository
	pricing   *pricing.Service
	transport WorkerTransport

	liveness       time.Duration
	requestTimeout time.Duration
	now            func() time.Time
	log            logger.Logger
}

func NewCoordinator(
	items storage.ItemRepository,
	quotes storage.QuoteRepository,
	pricingService *pricing.Service,
	transport WorkerTransport,
	liveness, requestTimeout time.Duration,
	log logger.Logger,
) *Coordinator {
	return &Coordinator{
		workers:        make(map[string]*Worker),
		captcha:        make(map[models.Supplier]*CaptchaState),
		items:          items,
		quotes:         quotes,
		pricing:        pricingService,
		transport:      transport,
		liveness:       liveness,
		requestTimeout: requestTimeout,
		now:            time.Now,
		log:            log,
	}
}

// RegisterWorker регистрирует воркер. Повторная регистрация с того же адреса сохраняет ID.
func (c *Coordinator) RegisterWorker(reg Registration) (*Worker, error) {
	name := strings.TrimSpace(reg.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidRegistration)
	}
	if net.ParseIP(reg.IPAddress) == nil {
		return nil, fmt.Errorf("%w: invalid ip address %q", ErrInvalidRegistration, reg.IPAddress)
	}
	if reg.Port <= 0 || reg.Port > 65535 {
		return nil, fmt.Errorf("%w: invalid port %d", ErrInvalidRegistration, reg.Port)
	}
	if len(reg.Capabilities) == 0 {
		return nil, fmt.Errorf("%w: at least one capability is required", ErrInvalidRegistration)
	}
	caps := make([]models.Supplier, 0, len(reg.Capabilities))
	for _, raw := range reg.Capabilities {
		s, err := models.ParseSupplier(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRegistration, err)
		}
		caps = append(caps, s)
	}
	models.SortSuppliers(caps)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for _, w := range c.workers {
		if w.IPAddress == reg.IPAddress && w.Port == reg.Port {
			w.Name = name
			w.Capabilities = caps
			w.LastHeartbeat = now
			c.log.Log("worker %s re-registered at %s", w.ID, w.BaseURL())
			copied := *w
			return &copied, nil
		}
	}

	w := &Worker{
		ID:            uuid.NewString(),
		Name:          name,
		IPAddress:     reg.IPAddress,
		Port:          reg.Port,
		Capabilities:  caps,
		RegisteredAt:  now,
		LastHeartbeat: now,
	}
	c.workers[w.ID] = w
	c.log.Log("worker %s (%s) registered at %s for %v", w.ID, w.Name, w.BaseURL(), models.DisplayNames(caps))
	copied := *w
	return &copied, nil
}

// Heartbeat продлевает жизнь воркера. Флаг капчи переводит поставщиков в ожидание;
// снимается ожидание только через ResolveCaptcha.
func (c *Coordinator) Heartbeat(workerID string, hb Heartbeat) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.workers[workerID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrWorkerNotFound, workerID)
	}
	w.LastHeartbeat = c.now()
	w.Status = hb.Status
	w.BrowserReady = hb.BrowserReady
	w.LoggedIn = hb.LoggedIn
	if !hb.CaptchaWaiting {
		return nil
	}

	suppliers := w.Capabilities
	if hb.CaptchaSupplier != "" {
		s, err := models.ParseSupplier(hb.CaptchaSupplier)
		if err != nil {
			return err
		}
		suppliers = []models.Supplier{s}
	}
	w.CaptchaWaiting = true
	for _, s := range suppliers {
		c.blockLocked(s, w.ID)
	}
	return nil
}

func (c *Coordinator) online(w *Worker, now time.Time) bool {
	return now.Sub(w.LastHeartbeat) <= c.liveness
}

func (c *Coordinator) Workers() []WorkerView {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	out := make([]WorkerView, 0, len(c.workers))
	for _, w := range c.workers {
		out = append(out, WorkerView{Worker: *w, Online: c.online(w, now)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// pickWorker выбирает живой воркер поставщика без капчи с самым свежим heartbeat.
func (c *Coordinator) pickWorker(s models.Supplier) (Worker, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if st, ok := c.captcha[s]; ok && st.Waiting {
		return Worker{}, fmt.Errorf("%s: %w", s.DisplayName(), ErrCaptchaPending)
	}

	now := c.now()
	var best *Worker
	for _, w := range c.workers {
		if !w.Supports(s) || w.CaptchaWaiting || !c.online(w, now) {
			continue
		}
		if best == nil || w.LastHeartbeat.After(best.LastHeartbeat) {
			best = w
		}
	}
	if best == nil {
		return Worker{}, fmt.Errorf("%s: %w", s.DisplayName(), ErrNoWorker)
	}
	return *best, nil
}

// RequestScrape запрашивает у воркера свежую котировку и применяет результат:
// найдено - upsert котировки и пересчёт; не найдено - удаление котировки; капча - блокировка поставщика.
// Ошибки доставки возвращаются как OutcomeTransportError без изменения состояния.
func (c *Coordinator) RequestScrape(ctx context.Context, itemID int64, stockCode string, supplier models.Supplier) (*Outcome, error) {
	if !supplier.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownSupplier, supplier)
	}
	item, err := c.items.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if stockCode == "" {
		stockCode = item.SKU
	}

	w, err := c.pickWorker(supplier)
	if err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	outcome := &Outcome{ItemID: itemID, Supplier: supplier, WorkerID: w.ID}
	resp, err := c.transport.Scrape(reqCtx, w, ScrapeRequest{StockCode: stockCode, Supplier: supplier})
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var rejected *ratelimit.RejectedError
		if errors.As(err, &rejected) {
			return nil, err
		}
		outcome.Kind = OutcomeTransportError
		outcome.Error = err.Error()
		c.log.Error("scrape %s/%s via %s failed: %v", supplier, stockCode, w.Name, err)

	case resp.RequiresManualIntervention:
		outcome.Kind = OutcomeBlocked
		c.mu.Lock()
		if live, ok := c.workers[w.ID]; ok {
			live.CaptchaWaiting = true
		}
		c.blockLocked(supplier, w.ID)
		c.mu.Unlock()

	case !resp.Success:
		outcome.Kind = OutcomeTransportError
		outcome.Error = resp.Error
		c.log.Error("scrape %s/%s via %s: worker error %q", supplier, stockCode, w.Name, resp.Error)

	case resp.FoundAtSupplier != nil && !*resp.FoundAtSupplier:
		outcome.Kind = OutcomeNotFound
		if err := c.applyNotFound(ctx, outcome); err != nil {
			return nil, err
		}

	default:
		outcome.Kind = OutcomeFound
		outcome.Price = resp.Price
		outcome.Stock = resp.Stock
		outcome.Available = resp.IsAvailable
		if err := c.applyFound(ctx, outcome); err != nil {
			return nil, err
		}
	}

	metrics.RecordScrape(string(supplier), string(outcome.Kind))
	return outcome, nil
}

func (c *Coordinator) applyFound(ctx context.Context, o *Outcome) error {
	if o.Price.IsNegative() {
		return fmt.Errorf("worker returned negative price %s", o.Price)
	}
	quote := &models.SupplierQuote{
		ItemID:      o.ItemID,
		Supplier:    o.Supplier,
		Price:       o.Price,
		Stock:       o.Stock,
		Available:   o.Available,
		StockStatus: models.StatusFor(o.Available, o.Stock),
		Active:      true,
	}
	if err := c.quotes.Upsert(ctx, quote); err != nil {
		return err
	}
	sel, err := c.pricing.Refresh(ctx, o.ItemID)
	if err != nil && !errors.Is(err, pricing.ErrNoneAvailable) {
		return err
	}
	o.Selection = sel
	return nil
}

// applyNotFound удаляет котировку поставщика; теги пересчитываются вместе с ценой.
func (c *Coordinator) applyNotFound(ctx context.Context, o *Outcome) error {
	deleted, err := c.quotes.Delete(ctx, o.ItemID, o.Supplier)
	if err != nil {
		return err
	}
	if deleted {
		c.log.Log("item %d not found at %s, quote removed", o.ItemID, o.Supplier.DisplayName())
	}
	sel, err := c.pricing.Refresh(ctx, o.ItemID)
	if err != nil && !errors.Is(err, pricing.ErrNoneAvailable) {
		return err
	}
	o.Selection = sel
	return nil
}
