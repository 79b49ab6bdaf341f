package catalogsync

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"gopartsync_api/internal/core/models"
	"gopartsync_api/internal/ratelimit"
	"gopartsync_api/internal/scraper"
	"gopartsync_api/internal/storage"
	"gopartsync_api/internal/storefront"
)

type itemResult int

const (
	resultUpdated itemResult = iota
	resultCreated
	resultSkipped
)

var errScrapeTransport = errors.New("scraper transport error")

// reconcile сводит элемент внешнего каталога с локальной записью.
// У существующего товара обновляются только описательные поля: цену и остаток
// определяют котировки поставщиков и ручные правки.
func (o *Orchestrator) reconcile(r *run, ci *storefront.CatalogItem) (itemResult, error) {
	ctx := r.workCtx

	item, err := o.findLocal(ctx, ci)
	result := resultUpdated
	switch {
	case errors.Is(err, storage.ErrNotFound):
		item, err = o.createFromCatalog(ctx, ci)
		if err != nil {
			return resultUpdated, err
		}
		result = resultCreated
	case err != nil:
		return resultUpdated, err
	default:
		if shouldSkip(item, ci, r.opts) {
			return resultSkipped, nil
		}
		item, err = o.items.Update(ctx, item.ID, func(it *models.Item) error {
			applyMetadata(it, ci)
			if !it.SyncRequired {
				t := o.now()
				it.LastSyncedAt = &t
			}
			return nil
		})
		if err != nil {
			return resultUpdated, err
		}
	}

	if r.opts.RefreshQuotes {
		if err := o.refreshQuotes(r, item); err != nil {
			return result, err
		}
		if item, err = o.items.GetByID(ctx, item.ID); err != nil {
			return result, err
		}
	}

	if item.SyncRequired && item.ExternalID != 0 {
		if err := o.push(ctx, item); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (o *Orchestrator) findLocal(ctx context.Context, ci *storefront.CatalogItem) (*models.Item, error) {
	item, err := o.items.GetByExternalID(ctx, ci.ID)
	if !errors.Is(err, storage.ErrNotFound) {
		return item, err
	}
	return o.items.GetBySKU(ctx, skuOf(ci))
}

// skuOf - артикул элемента; без артикула товар адресуется внешним ID.
func skuOf(ci *storefront.CatalogItem) string {
	if sku := strings.TrimSpace(ci.SKU); sku != "" {
		return sku
	}
	return fmt.Sprintf("EXT-%d", ci.ID)
}

// createFromCatalog создаёт товар целиком из каталога. Значения совпадают с витриной,
// поэтому отправка не требуется.
func (o *Orchestrator) createFromCatalog(ctx context.Context, ci *storefront.CatalogItem) (*models.Item, error) {
	now := o.now()
	item := &models.Item{
		ExternalID:         ci.ID,
		SKU:                skuOf(ci),
		Name:               ci.PlainName(),
		Price:              ci.Price().Round(2),
		StockQuantity:      ci.Stock(),
		StockStatus:        ci.LocalStockStatus(),
		Categories:         ci.CategoryNames(),
		Images:             ci.ImageURLs(),
		SupplierTags:       []models.Supplier{},
		ExternalModifiedAt: ci.ModifiedAt(),
		LastSyncedAt:       &now,
	}
	if err := o.items.Create(ctx, item); err != nil {
		return nil, err
	}
	o.log.Log("item %s created from catalog (external id %d)", item.SKU, ci.ID)
	return item, nil
}

func applyMetadata(it *models.Item, ci *storefront.CatalogItem) {
	if name := ci.PlainName(); name != "" {
		it.Name = name
	}
	it.Categories = ci.CategoryNames()
	it.Images = ci.ImageURLs()
	if mod := ci.ModifiedAt(); mod != nil {
		it.ExternalModifiedAt = mod
	}
	if it.ExternalID == 0 {
		it.ExternalID = ci.ID
	}
}

// shouldSkip: товар не менялся на витрине после последней синхронизации и не ждёт отправки.
func shouldSkip(item *models.Item, ci *storefront.CatalogItem, opts Options) bool {
	if opts.ForceUpdate || opts.RefreshQuotes {
		return false
	}
	if item.SyncRequired || item.ExternalID == 0 || item.LastSyncedAt == nil {
		return false
	}
	mod := ci.ModifiedAt()
	return mod == nil || !mod.After(*item.LastSyncedAt)
}

// refreshQuotes запрашивает котировки у всех поставщиков, для которых есть воркер.
// Состояние капчи спрашивается у координатора на каждом элементе, поэтому решённая
// капча возвращает поставщика в запуск. Ошибка доставки делает элемент неудачным.
func (o *Orchestrator) refreshQuotes(r *run, item *models.Item) error {
	var transportErr error
	for _, s := range models.AllSuppliers() {
		if r.skipSupplier(s) {
			continue
		}
		out, err := o.refresher.RequestScrape(r.workCtx, item.ID, item.SKU, s)
		switch {
		case errors.Is(err, scraper.ErrNoWorker):
			if r.markNoWorker(s) {
				o.log.Error("run %s: no online worker for %s, supplier skipped for this run", r.id, s.DisplayName())
			}
			continue
		case errors.Is(err, scraper.ErrCaptchaPending):
			o.blockSupplier(r, s, item, "captcha resolution pending")
			continue
		case err != nil:
			return fmt.Errorf("%s: %w", s.DisplayName(), err)
		}

		if out.Kind == scraper.OutcomeBlocked {
			o.blockSupplier(r, s, item, "manual intervention required")
			continue
		}
		if r.unblock(s) {
			o.log.Log("run %s: %s answers again, captcha resolved", r.id, s.DisplayName())
		}
		if out.Kind == scraper.OutcomeTransportError {
			transportErr = fmt.Errorf("%s: %w: %s", s.DisplayName(), errScrapeTransport, out.Error)
		}
	}
	return transportErr
}

func (o *Orchestrator) blockSupplier(r *run, s models.Supplier, item *models.Item, reason string) {
	if !r.block(s) {
		return
	}
	supplier := s
	r.addError(RunError{Time: o.now(), Kind: ErrorKindCaptcha, SKU: item.SKU, ExternalID: item.ExternalID, Supplier: &supplier, Message: reason})
	o.log.Error("run %s: %s blocked (%s), quotes skipped until the captcha is resolved", r.id, s.DisplayName(), reason)
}

// push отправляет канонические значения; флаг снимается, только если товар не менялся во время отправки.
func (o *Orchestrator) push(ctx context.Context, item *models.Item) error {
	if o.pusher == nil {
		return errors.New("storefront push is not configured")
	}
	if err := o.pusher.PushItem(ctx, item); err != nil {
		return fmt.Errorf("push item %s: %w", item.SKU, err)
	}
	_, err := o.items.Update(ctx, item.ID, func(cur *models.Item) error {
		if cur.SameCanonical(item) {
			cur.MarkSynced(o.now())
		}
		return nil
	})
	return err
}

// isTransient - ошибки, после которых элемент имеет смысл повторить.
func isTransient(err error) bool {
	if errors.Is(err, errScrapeTransport) {
		return true
	}
	var rejected *ratelimit.RejectedError
	if errors.As(err, &rejected) {
		return true
	}
	var status *storefront.StatusError
	if errors.As(err, &status) {
		return status.StatusCode >= http.StatusInternalServerError || status.StatusCode == http.StatusTooManyRequests
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func retryAfter(err error) time.Duration {
	var rejected *ratelimit.RejectedError
	if errors.As(err, &rejected) {
		return rejected.RetryAfter
	}
	return 0
}
