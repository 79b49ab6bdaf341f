package pricing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"gopartsync_api/internal/core/models"
	"gopartsync_api/internal/storage"
)

// DefaultMarginPercent - встроенная наценка, когда в конфигурации она не задана.
var DefaultMarginPercent = decimal.NewFromInt(15)

// Margins - снимок настроек наценок.
type Margins struct {
	Default   decimal.Decimal                     `json:"default"`
	Suppliers map[models.Supplier]decimal.Decimal `json:"suppliers"`
}

type MarginSource struct {
	repo     storage.MarginRepository
	fallback decimal.Decimal
}

// NewMarginSource: fallback действует, пока наценка по умолчанию не сохранена; ноль допустим.
func NewMarginSource(repo storage.MarginRepository, fallback decimal.Decimal) *MarginSource {
	return &MarginSource{repo: repo, fallback: fallback}
}

// For возвращает наценку поставщика в процентах: своя -> сохранённая по умолчанию -> встроенная.
func (m *MarginSource) For(ctx context.Context, supplier models.Supplier) (decimal.Decimal, error) {
	margins, err := m.repo.Margins(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("load margins: %w", err)
	}
	if v, ok := margins[supplier]; ok {
		return v, nil
	}
	return m.defaultMargin(ctx)
}

func (m *MarginSource) defaultMargin(ctx context.Context) (decimal.Decimal, error) {
	v, ok, err := m.repo.DefaultMargin(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("load default margin: %w", err)
	}
	if !ok {
		return m.fallback, nil
	}
	return v, nil
}

func (m *MarginSource) Snapshot(ctx context.Context) (*Margins, error) {
	def, err := m.defaultMargin(ctx)
	if err != nil {
		return nil, err
	}
	suppliers, err := m.repo.Margins(ctx)
	if err != nil {
		return nil, fmt.Errorf("load margins: %w", err)
	}
	return &Margins{Default: def, Suppliers: suppliers}, nil
}

// Update сохраняет наценки. Отрицательные значения не допускаются; при ошибке проверки ничего не записывается.
func (m *MarginSource) Update(ctx context.Context, def *decimal.Decimal, suppliers map[models.Supplier]decimal.Decimal) error {
	if def != nil && def.IsNegative() {
		return fmt.Errorf("%w: default margin must not be negative", ErrInvalidValue)
	}
	for s, v := range suppliers {
		if !s.Valid() {
			return fmt.Errorf("%w: %q", models.ErrUnknownSupplier, s)
		}
		if v.IsNegative() {
			return fmt.Errorf("%w: margin for %s must not be negative", ErrInvalidValue, s)
		}
	}

	if def != nil {
		if err := m.repo.SetDefaultMargin(ctx, *def); err != nil {
			return err
		}
	}
	for s, v := range suppliers {
		if err := m.repo.SetMargin(ctx, s, v); err != nil {
			return err
		}
	}
	return nil
}

// CanonicalPrice = price * (1 + margin/100), округление до копеек.
func CanonicalPrice(supplierPrice, marginPercent decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(100).Add(marginPercent).Div(decimal.NewFromInt(100))
	return supplierPrice.Mul(factor).Round(2)
}
