package catalogsync

import (
	"context"

	"gopartsync_api/internal/core/models"
	"gopartsync_api/internal/storage"
	"gopartsync_api/internal/storefront"
)

// ItemWriter - запись товара на витрину.
type ItemWriter interface {
	UpsertItem(ctx context.Context, item *models.Item) (*storefront.CatalogItem, error)
}

// StorefrontPusher отправляет канонические значения товара на витрину.
// Товар, созданный на витрине впервые, получает внешний ID.
type StorefrontPusher struct {
	writer ItemWriter
	items  storage.ItemRepository
}

func NewStorefrontPusher(writer ItemWriter, items storage.ItemRepository) *StorefrontPusher {
	return &StorefrontPusher{writer: writer, items: items}
}

func (p *StorefrontPusher) PushItem(ctx context.Context, item *models.Item) error {
	saved, err := p.writer.UpsertItem(ctx, item)
	if err != nil {
		return err
	}
	if item.ExternalID != 0 || saved == nil || saved.ID == 0 {
		return nil
	}
	linked, err := p.items.Update(ctx, item.ID, func(it *models.Item) error {
		if it.ExternalID == 0 {
			it.ExternalID = saved.ID
		}
		return nil
	})
	if err != nil {
		return err
	}
	item.ExternalID = linked.ExternalID
	return nil
}
