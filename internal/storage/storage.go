package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"gopartsync_api/internal/core/models"
)

var ErrNotFound = errors.New("not found")

type ItemRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Item, error)
	GetByExternalID(ctx context.Context, externalID int64) (*models.Item, error)
	GetBySKU(ctx context.Context, sku string) (*models.Item, error)
	// Create присваивает ID и время создания.
	Create(ctx context.Context, item *models.Item) error
	// Update атомарно читает запись, применяет fn и сохраняет результат.
	// Ошибка из fn отменяет запись.
	Update(ctx context.Context, id int64, fn func(item *models.Item) error) (*models.Item, error)
}

type QuoteRepository interface {
	// ListByItem возвращает котировки в порядке первого появления.
	ListByItem(ctx context.Context, itemID int64) ([]models.SupplierQuote, error)
	// Upsert создаёт или обновляет котировку пары (товар, поставщик), сохраняя порядок появления.
	Upsert(ctx context.Context, quote *models.SupplierQuote) error
	Delete(ctx context.Context, itemID int64, supplier models.Supplier) (bool, error)
}

type MarginRepository interface {
	Margins(ctx context.Context) (map[models.Supplier]decimal.Decimal, error)
	// DefaultMargin возвращает ok=false, если значение не задано.
	DefaultMargin(ctx context.Context) (decimal.Decimal, bool, error)
	SetMargin(ctx context.Context, supplier models.Supplier, margin decimal.Decimal) error
	SetDefaultMargin(ctx context.Context, margin decimal.Decimal) error
}

// MetadataRepository хранит время последней загрузки внешних прайс-листов.
type MetadataRepository interface {
	LastUpdate(ctx context.Context, key string) (time.Time, error)
	SetLastUpdate(ctx context.Context, key string, at time.Time) error
}

// Store объединяет репозитории одного хранилища.
type Store struct {
	Items    ItemRepository
	Quotes   QuoteRepository
	Margins  MarginRepository
	Metadata MetadataRepository
}
