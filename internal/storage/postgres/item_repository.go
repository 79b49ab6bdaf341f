package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"gopartsync_api/internal/core/models"
	"gopartsync_api/internal/storage"
)

const itemColumns = `id, external_id, sku, name, price, stock_quantity, stock_status, chosen_supplier,
	categories, images, supplier_tags, sync_required, last_synced_at, external_modified_at,
	created_at, updated_at`

type ItemRepository struct {
	db *sql.DB
}

func NewItemRepository(db *sql.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (*models.Item, error) {
	var (
		item        models.Item
		externalID  sql.NullInt64
		status      string
		chosen      sql.NullString
		tags        []string
		lastSynced  sql.NullTime
		extModified sql.NullTime
		categories  []string
		images      []string
	)
	err := row.Scan(&item.ID, &externalID, &item.SKU, &item.Name, &item.Price, &item.StockQuantity, &status, &chosen,
		pq.Array(&categories), pq.Array(&images), pq.Array(&tags), &item.SyncRequired, &lastSynced, &extModified,
		&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	item.ExternalID = externalID.Int64
	item.StockStatus = models.StockStatus(status)
	if chosen.Valid {
		s := models.Supplier(chosen.String)
		item.ChosenSupplier = &s
	}
	item.Categories = categories
	item.Images = images
	item.SupplierTags = make([]models.Supplier, 0, len(tags))
	for _, t := range tags {
		item.SupplierTags = append(item.SupplierTags, models.Supplier(t))
	}
	if lastSynced.Valid {
		t := lastSynced.Time
		item.LastSyncedAt = &t
	}
	if extModified.Valid {
		t := extModified.Time
		item.ExternalModifiedAt = &t
	}
	return &item, nil
}

func (r *ItemRepository) getOne(ctx context.Context, what string, query string, arg interface{}) (*models.Item, error) {
	item, err := scanItem(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %s: %w", what, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query item %s: %w", what, err)
	}
	return item, nil
}

func (r *ItemRepository) GetByID(ctx context.Context, id int64) (*models.Item, error) {
	return r.getOne(ctx, fmt.Sprintf("%d", id),
		`SELECT `+itemColumns+` FROM inventory.items WHERE id = $1`, id)
}

func (r *ItemRepository) GetByExternalID(ctx context.Context, externalID int64) (*models.Item, error) {
	return r.getOne(ctx, fmt.Sprintf("external_id=%d", externalID),
		`SELECT `+itemColumns+` FROM inventory.items WHERE external_id = $1`, externalID)
}

func (r *ItemRepository) GetBySKU(ctx context.Context, sku string) (*models.Item, error) {
	return r.getOne(ctx, fmt.Sprintf("sku=%q", sku),
		`SELECT `+itemColumns+` FROM inventory.items WHERE sku = $1`, sku)
}

func (r *ItemRepository) Create(ctx context.Context, item *models.Item) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO inventory.items (external_id, sku, name, price, stock_quantity, stock_status,
			categories, images, supplier_tags, sync_required, last_synced_at, external_modified_at, chosen_supplier)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at`,
		itemArgs(item)...,
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert item sku=%q: %w", item.SKU, err)
	}
	return nil
}

func (r *ItemRepository) Update(ctx context.Context, id int64, fn func(item *models.Item) error) (*models.Item, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	item, err := scanItem(tx.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM inventory.items WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %d: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lock item %d: %w", id, err)
	}

	if err := fn(item); err != nil {
		return nil, err
	}

	args := append(itemArgs(item), id)
	err = tx.QueryRowContext(ctx, `
		UPDATE inventory.items SET
			external_id = $1, sku = $2, name = $3, price = $4, stock_quantity = $5, stock_status = $6,
			categories = $7, images = $8, supplier_tags = $9, sync_required = $10,
			last_synced_at = $11, external_modified_at = $12, chosen_supplier = $13, updated_at = now()
		WHERE id = $14
		RETURNING updated_at`, args...).Scan(&item.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update item %d: %w", id, err)
	}
	item.ID = id

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit item %d: %w", id, err)
	}
	return item, nil
}

func itemArgs(item *models.Item) []interface{} {
	var externalID interface{}
	if item.ExternalID != 0 {
		externalID = item.ExternalID
	}
	tags := make([]string, len(item.SupplierTags))
	for i, s := range item.SupplierTags {
		tags[i] = string(s)
	}
	var chosen interface{}
	if item.ChosenSupplier != nil {
		chosen = string(*item.ChosenSupplier)
	}
	status := item.StockStatus
	if status == "" {
		status = models.OutOfStock
	}
	return []interface{}{
		externalID, item.SKU, item.Name, item.Price.Round(2), item.StockQuantity, string(status),
		pq.Array(nonNil(item.Categories)), pq.Array(nonNil(item.Images)), pq.Array(tags),
		item.SyncRequired, nullTime(item.LastSyncedAt), nullTime(item.ExternalModifiedAt), chosen,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
