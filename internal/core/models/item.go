package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type StockStatus string

const (
	InStock    StockStatus = "in_stock"
	OutOfStock StockStatus = "out_of_stock"
	Backorder  StockStatus = "backorder"
)

func (s StockStatus) Valid() bool {
	switch s {
	case InStock, OutOfStock, Backorder:
		return true
	}
	return false
}

// Item - локальная запись товара каталога. Цена и остаток канонические:
// их пишет только выбор лучшего поставщика или ручная корректировка.
type Item struct {
	ID                 int64           `json:"id"`
	ExternalID         int64           `json:"externalId,omitempty"`
	SKU                string          `json:"sku"`
	Name               string          `json:"name"`
	Price              decimal.Decimal `json:"price"`
	StockQuantity      int             `json:"stockQuantity"`
	StockStatus        StockStatus     `json:"stockStatus"`
	ChosenSupplier     *Supplier       `json:"chosenSupplier,omitempty"`
	Categories         []string        `json:"categories"`
	Images             []string        `json:"images"`
	SupplierTags       []Supplier      `json:"supplierTags"`
	SyncRequired       bool            `json:"syncRequired"`
	LastSyncedAt       *time.Time      `json:"lastSyncedAt,omitempty"`
	ExternalModifiedAt *time.Time      `json:"externalModifiedAt,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// SetSupplierTags заменяет набор тегов и сообщает, изменился ли он.
func (i *Item) SetSupplierTags(tags []Supplier) bool {
	sorted := append([]Supplier(nil), tags...)
	SortSuppliers(sorted)
	if sameSuppliers(i.SupplierTags, sorted) {
		return false
	}
	i.SupplierTags = sorted
	return true
}

// SetCanonical записывает цену и остаток; возвращает true, если значения изменились.
func (i *Item) SetCanonical(price decimal.Decimal, stock int, status StockStatus) bool {
	if i.Price.Equal(price) && i.StockQuantity == stock && i.StockStatus == status {
		return false
	}
	i.Price = price
	i.StockQuantity = stock
	i.StockStatus = status
	return true
}

// MarkSynced снимает флаг после успешной отправки на витрину.
func (i *Item) MarkSynced(at time.Time) {
	i.SyncRequired = false
	t := at
	i.LastSyncedAt = &t
}

// SameCanonical сравнивает поля, которые отправляются на витрину.
func (i *Item) SameCanonical(o *Item) bool {
	return i.Price.Equal(o.Price) && i.StockQuantity == o.StockQuantity &&
		i.StockStatus == o.StockStatus && sameSuppliers(i.SupplierTags, o.SupplierTags)
}

func sameSuppliers(a, b []Supplier) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Clone возвращает копию без общих срезов.
func (i Item) Clone() Item {
	c := i
	c.Categories = append([]string(nil), i.Categories...)
	c.Images = append([]string(nil), i.Images...)
	c.SupplierTags = append([]Supplier(nil), i.SupplierTags...)
	if i.ChosenSupplier != nil {
		s := *i.ChosenSupplier
		c.ChosenSupplier = &s
	}
	if i.LastSyncedAt != nil {
		t := *i.LastSyncedAt
		c.LastSyncedAt = &t
	}
	if i.ExternalModifiedAt != nil {
		t := *i.ExternalModifiedAt
		c.ExternalModifiedAt = &t
	}
	return c
}
