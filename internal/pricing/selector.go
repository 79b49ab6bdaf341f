package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"gopartsync_api/internal/core/models"
	"gopartsync_api/internal/storage"
	"gopartsync_api/pkg/logger"
)

var (
	ErrNoneAvailable = errors.New("no available supplier quote")
	ErrInvalidValue  = errors.New("invalid value")
)

// Selection - результат выбора лучшего поставщика.
type Selection struct {
	ItemID        int64              `json:"itemId"`
	Supplier      models.Supplier    `json:"supplier"`
	SupplierPrice decimal.Decimal    `json:"supplierPrice"`
	Margin        decimal.Decimal    `json:"margin"`
	Price         decimal.Decimal    `json:"price"`
	Stock         int                `json:"stock"`
	StockStatus   models.StockStatus `json:"stockStatus"`
	Changed       bool               `json:"changed"`
}

// Pusher отправляет каноническое состояние товара на витрину.
type Pusher interface {
	PushItem(ctx context.Context, item *models.Item) error
}

type Service struct {
	items   storage.ItemRepository
	quotes  storage.QuoteRepository
	margins *MarginSource
	pusher  Pusher
	log     logger.Logger
	now     func() time.Time
}

func NewService(items storage.ItemRepository, quotes storage.QuoteRepository, margins *MarginSource, log logger.Logger) *Service {
	return &Service{
		items:   items,
		quotes:  quotes,
		margins: margins,
		log:     log,
		now:     time.Now,
	}
}

// SetPusher подключает отправку на витрину для ручной корректировки цены.
func (s *Service) SetPusher(p Pusher) {
	s.pusher = p
}

func (s *Service) Margins() *MarginSource {
	return s.margins
}

// BestQuote выбирает минимальную цену среди активных котировок в наличии.
// При равенстве побеждает котировка, появившаяся раньше.
func BestQuote(quotes []models.SupplierQuote) (models.SupplierQuote, bool) {
	var (
		best  models.SupplierQuote
		found bool
	)
	for _, q := range quotes {
		if !q.Eligible() {
			continue
		}
		if !found || q.Price.LessThan(best.Price) {
			best = q
			found = true
		}
	}
	return best, found
}

// TagsFor - поставщики с активной котировкой, независимо от цены и наличия.
func TagsFor(quotes []models.SupplierQuote) []models.Supplier {
	seen := make(map[models.Supplier]bool)
	var tags []models.Supplier
	for _, q := range quotes {
		if q.Active && !seen[q.Supplier] {
			seen[q.Supplier] = true
			tags = append(tags, q.Supplier)
		}
	}
	models.SortSuppliers(tags)
	return tags
}

// SelectBest пересчитывает каноническую цену и остаток товара.
// Без подходящих котировок возвращает ErrNoneAvailable и не меняет товар.
func (s *Service) SelectBest(ctx context.Context, itemID int64) (*Selection, error) {
	quotes, err := s.quotes.ListByItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	best, ok := BestQuote(quotes)
	if !ok {
		if _, err := s.items.GetByID(ctx, itemID); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("item %d: %w", itemID, ErrNoneAvailable)
	}

	margin, err := s.margins.For(ctx, best.Supplier)
	if err != nil {
		return nil, err
	}
	sel := &Selection{
		ItemID:        itemID,
		Supplier:      best.Supplier,
		SupplierPrice: best.Price,
		Margin:        margin,
		Price:         CanonicalPrice(best.Price, margin),
		Stock:         best.Stock,
		StockStatus:   models.InStock,
	}

	_, err = s.items.Update(ctx, itemID, func(item *models.Item) error {
		sel.Changed = item.SetCanonical(sel.Price, sel.Stock, sel.StockStatus)
		chosen := best.Supplier
		item.ChosenSupplier = &chosen
		if sel.Changed {
			item.SyncRequired = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if sel.Changed {
		s.log.Log("item %d: %s wins at %s (+%s%%) -> %s, stock %d",
			itemID, best.Supplier.DisplayName(), best.Price.StringFixed(2), margin.String(), sel.Price.StringFixed(2), sel.Stock)
	}
	return sel, nil
}

// RecomputeTags приводит теги товара к набору поставщиков с активными котировками.
func (s *Service) RecomputeTags(ctx context.Context, itemID int64) ([]models.Supplier, bool, error) {
	quotes, err := s.quotes.ListByItem(ctx, itemID)
	if err != nil {
		return nil, false, err
	}
	tags := TagsFor(quotes)
	var changed bool
	item, err := s.items.Update(ctx, itemID, func(item *models.Item) error {
		changed = item.SetSupplierTags(tags)
		if changed {
			item.SyncRequired = true
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return item.SupplierTags, changed, nil
}

// Refresh выполняется после каждой записи котировок: сначала теги, затем выбор цены.
// ErrNoneAvailable возвращается как есть; теги к этому моменту уже обновлены.
func (s *Service) Refresh(ctx context.Context, itemID int64) (*Selection, error) {
	if _, _, err := s.RecomputeTags(ctx, itemID); err != nil {
		return nil, fmt.Errorf("recompute tags for item %d: %w", itemID, err)
	}
	return s.SelectBest(ctx, itemID)
}

// OverridePrice записывает цену и остаток в обход выбора и сразу отправляет товар на витрину.
// При неудачной отправке товар остаётся помеченным sync_required.
func (s *Service) OverridePrice(ctx context.Context, itemID int64, price decimal.Decimal, stock int) (*models.Item, error) {
	if price.IsNegative() {
		return nil, fmt.Errorf("%w: price must not be negative", ErrInvalidValue)
	}
	if stock < 0 {
		return nil, fmt.Errorf("%w: stock must not be negative", ErrInvalidValue)
	}
	item, err := s.items.Update(ctx, itemID, func(item *models.Item) error {
		item.SetCanonical(price.Round(2), stock, models.StatusFor(true, stock))
		item.ChosenSupplier = nil
		item.SyncRequired = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Log("item %d: manual price override -> %s, stock %d", itemID, item.Price.StringFixed(2), stock)

	if s.pusher == nil || item.ExternalID == 0 {
		return item, nil
	}
	if err := s.pusher.PushItem(ctx, item); err != nil {
		s.log.Error("item %d: push after override failed: %v", itemID, err)
		return item, nil
	}
	pushed := item
	return s.items.Update(ctx, itemID, func(item *models.Item) error {
		if item.SameCanonical(pushed) {
			item.MarkSynced(s.now())
		}
		return nil
	})
}
