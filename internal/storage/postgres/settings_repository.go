package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"gopartsync_api/internal/core/models"
)

const (
	defaultMarginKey  = "default_profit_margin"
	supplierMarginKey = "profit_margin:"
)

// SettingsRepository хранит наценки в таблице ключ-значение.
type SettingsRepository struct {
	db *sql.DB
}

func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

func (r *SettingsRepository) Margins(ctx context.Context) (map[models.Supplier]decimal.Decimal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT key, value FROM inventory.settings WHERE key LIKE $1`, supplierMarginKey+"%")
	if err != nil {
		return nil, fmt.Errorf("query margins: %w", err)
	}
	defer rows.Close()

	margins := make(map[models.Supplier]decimal.Decimal)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		m, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("margin %s: %w", key, err)
		}
		margins[models.Supplier(strings.TrimPrefix(key, supplierMarginKey))] = m
	}
	return margins, rows.Err()
}

func (r *SettingsRepository) DefaultMargin(ctx context.Context) (decimal.Decimal, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM inventory.settings WHERE key = $1`, defaultMarginKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("query default margin: %w", err)
	}
	m, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("default margin: %w", err)
	}
	return m, true, nil
}

func (r *SettingsRepository) SetMargin(ctx context.Context, supplier models.Supplier, margin decimal.Decimal) error {
	return r.set(ctx, supplierMarginKey+string(supplier), margin.String())
}

func (r *SettingsRepository) SetDefaultMargin(ctx context.Context, margin decimal.Decimal) error {
	return r.set(ctx, defaultMarginKey, margin.String())
}

func (r *SettingsRepository) set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO inventory.settings (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`, key, value)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// MetadataRepository - время последней загрузки прайс-листов.
type MetadataRepository struct {
	db *sql.DB
}

func NewMetadataRepository(db *sql.DB) *MetadataRepository {
	return &MetadataRepository{db: db}
}

func (r *MetadataRepository) LastUpdate(ctx context.Context, key string) (time.Time, error) {
	var storedTime time.Time
	err := r.db.QueryRowContext(ctx,
		"SELECT last_update FROM inventory.metadata WHERE key_name = $1", key).Scan(&storedTime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return storedTime, nil
}

func (r *MetadataRepository) SetLastUpdate(ctx context.Context, key string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO inventory.metadata (key_name, last_update)
		VALUES ($1, $2)
		ON CONFLICT (key_name) DO UPDATE SET last_update = EXCLUDED.last_update`, key, at)
	if err != nil {
		return fmt.Errorf("metadata update error: %w", err)
	}
	return nil
}
