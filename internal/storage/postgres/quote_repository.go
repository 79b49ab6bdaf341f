package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"gopartsync_api/internal/core/models"
)

type QuoteRepository struct {
	db *sql.DB
}

func NewQuoteRepository(db *sql.DB) *QuoteRepository {
	return &QuoteRepository{db: db}
}

// ListByItem - порядок по id совпадает с порядком первого появления: upsert не меняет id.
func (r *QuoteRepository) ListByItem(ctx context.Context, itemID int64) ([]models.SupplierQuote, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, item_id, supplier, price, stock, available, stock_status, active, updated_at
		FROM inventory.supplier_quotes
		WHERE item_id = $1
		ORDER BY id`, itemID)
	if err != nil {
		return nil, fmt.Errorf("query quotes for item %d: %w", itemID, err)
	}
	defer rows.Close()

	var quotes []models.SupplierQuote
	for rows.Next() {
		var (
			q        models.SupplierQuote
			supplier string
			status   string
		)
		if err := rows.Scan(&q.ID, &q.ItemID, &supplier, &q.Price, &q.Stock, &q.Available, &status, &q.Active, &q.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan quote: %w", err)
		}
		q.Supplier = models.Supplier(supplier)
		q.StockStatus = models.StockStatus(status)
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}

func (r *QuoteRepository) Upsert(ctx context.Context, q *models.SupplierQuote) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO inventory.supplier_quotes (item_id, supplier, price, stock, available, stock_status, active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (item_id, supplier) DO UPDATE SET
			price = EXCLUDED.price,
			stock = EXCLUDED.stock,
			available = EXCLUDED.available,
			stock_status = EXCLUDED.stock_status,
			active = EXCLUDED.active,
			updated_at = now()
		RETURNING id, updated_at`,
		q.ItemID, string(q.Supplier), q.Price, q.Stock, q.Available, string(q.StockStatus), q.Active,
	).Scan(&q.ID, &q.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert quote item=%d supplier=%s: %w", q.ItemID, q.Supplier, err)
	}
	return nil
}

func (r *QuoteRepository) Delete(ctx context.Context, itemID int64, supplier models.Supplier) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM inventory.supplier_quotes WHERE item_id = $1 AND supplier = $2`, itemID, string(supplier))
	if err != nil {
		return false, fmt.Errorf("delete quote item=%d supplier=%s: %w", itemID, supplier, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
