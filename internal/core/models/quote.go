package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SupplierQuote - цена и наличие у одного поставщика. На пару (товар, поставщик) не больше одной котировки.
type SupplierQuote struct {
	ID          int64           `json:"id"`
	ItemID      int64           `json:"itemId"`
	Supplier    Supplier        `json:"supplier"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Available   bool            `json:"available"`
	StockStatus StockStatus     `json:"stockStatus"`
	Active      bool            `json:"active"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Eligible - котировка участвует в выборе цены.
func (q SupplierQuote) Eligible() bool {
	return q.Active && q.Available && q.StockStatus == InStock
}

// StatusFor выводит статус наличия по количеству и флагу доступности.
func StatusFor(available bool, stock int) StockStatus {
	if available && stock > 0 {
		return InStock
	}
	return OutOfStock
}
