package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"gopartsync_api/internal/core/models"
	"gopartsync_api/internal/storage"
)

// Store - хранилище в памяти процесса для режима без БД и тестов.
type Store struct {
	mu sync.Mutex

	nextItemID  int64
	nextQuoteID int64

	items  map[int64]*models.Item
	quotes map[int64][]*models.SupplierQuote // по item_id, в порядке появления

	margins       map[models.Supplier]decimal.Decimal
	defaultMargin *decimal.Decimal
	metadata      map[string]time.Time

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		items:    make(map[int64]*models.Item),
		quotes:   make(map[int64][]*models.SupplierQuote),
		margins:  make(map[models.Supplier]decimal.Decimal),
		metadata: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Repositories возвращает набор репозиториев поверх этого хранилища.
func (s *Store) Repositories() storage.Store {
	return storage.Store{
		Items:    (*itemRepo)(s),
		Quotes:   (*quoteRepo)(s),
		Margins:  (*marginRepo)(s),
		Metadata: (*metadataRepo)(s),
	}
}

type itemRepo Store

func (r *itemRepo) GetByID(ctx context.Context, id int64) (*models.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("item %d: %w", id, storage.ErrNotFound)
	}
	c := item.Clone()
	return &c, nil
}

func (r *itemRepo) GetByExternalID(ctx context.Context, externalID int64) (*models.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if externalID != 0 {
		for _, item := range r.items {
			if item.ExternalID == externalID {
				c := item.Clone()
				return &c, nil
			}
		}
	}
	return nil, fmt.Errorf("item with external id %d: %w", externalID, storage.ErrNotFound)
}

func (r *itemRepo) GetBySKU(ctx context.Context, sku string) (*models.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sku != "" {
		for _, item := range r.items {
			if item.SKU == sku {
				c := item.Clone()
				return &c, nil
			}
		}
	}
	return nil, fmt.Errorf("item with sku %q: %w", sku, storage.ErrNotFound)
}

func (r *itemRepo) Create(ctx context.Context, item *models.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.items {
		if existing.SKU == item.SKU {
			return fmt.Errorf("item with sku %q already exists", item.SKU)
		}
		if item.ExternalID != 0 && existing.ExternalID == item.ExternalID {
			return fmt.Errorf("item with external id %d already exists", item.ExternalID)
		}
	}
	r.nextItemID++
	now := r.now()
	item.ID = r.nextItemID
	item.CreatedAt = now
	item.UpdatedAt = now
	c := item.Clone()
	r.items[item.ID] = &c
	return nil
}

func (r *itemRepo) Update(ctx context.Context, id int64, fn func(item *models.Item) error) (*models.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("item %d: %w", id, storage.ErrNotFound)
	}
	working := stored.Clone()
	if err := fn(&working); err != nil {
		return nil, err
	}
	working.ID = id
	working.UpdatedAt = r.now()
	saved := working.Clone()
	r.items[id] = &saved
	return &working, nil
}

type quoteRepo Store

func (r *quoteRepo) ListByItem(ctx context.Context, itemID int64) ([]models.SupplierQuote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.quotes[itemID]
	out := make([]models.SupplierQuote, 0, len(list))
	for _, q := range list {
		out = append(out, *q)
	}
	return out, nil
}

func (r *quoteRepo) Upsert(ctx context.Context, quote *models.SupplierQuote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[quote.ItemID]; !ok {
		return fmt.Errorf("item %d: %w", quote.ItemID, storage.ErrNotFound)
	}
	quote.UpdatedAt = r.now()
	for _, q := range r.quotes[quote.ItemID] {
		if q.Supplier == quote.Supplier {
			quote.ID = q.ID
			*q = *quote
			return nil
		}
	}
	r.nextQuoteID++
	quote.ID = r.nextQuoteID
	c := *quote
	r.quotes[quote.ItemID] = append(r.quotes[quote.ItemID], &c)
	return nil
}

func (r *quoteRepo) Delete(ctx context.Context, itemID int64, supplier models.Supplier) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.quotes[itemID]
	for i, q := range list {
		if q.Supplier == supplier {
			r.quotes[itemID] = append(list[:i:i], list[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

type marginRepo Store

func (r *marginRepo) Margins(ctx context.Context) (map[models.Supplier]decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[models.Supplier]decimal.Decimal, len(r.margins))
	for k, v := range r.margins {
		out[k] = v
	}
	return out, nil
}

func (r *marginRepo) DefaultMargin(ctx context.Context) (decimal.Decimal, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.defaultMargin == nil {
		return decimal.Zero, false, nil
	}
	return *r.defaultMargin, true, nil
}

func (r *marginRepo) SetMargin(ctx context.Context, supplier models.Supplier, margin decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.margins[supplier] = margin
	return nil
}

func (r *marginRepo) SetDefaultMargin(ctx context.Context, margin decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := margin
	r.defaultMargin = &m
	return nil
}

type metadataRepo Store

func (r *metadataRepo) LastUpdate(ctx context.Context, key string) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metadata[key], nil
}

func (r *metadataRepo) SetLastUpdate(ctx context.Context, key string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metadata[key] = at
	return nil
}
