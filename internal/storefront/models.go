package storefront

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"gopartsync_api/internal/core/models"
)

type Named struct {
	ID   int64  `json:"id,omitempty"`
	Name string `json:"name"`
}

type Image struct {
	Src string `json:"src"`
}

// CatalogItem - товар в формате REST API витрины.
type CatalogItem struct {
	ID              int64   `json:"id"`
	SKU             string  `json:"sku"`
	Name            string  `json:"name"`
	RegularPrice    string  `json:"regular_price"`
	StockQuantity   *int    `json:"stock_quantity"`
	StockStatus     string  `json:"stock_status"`
	Categories      []Named `json:"categories"`
	Images          []Image `json:"images"`
	Tags            []Named `json:"tags"`
	DateModifiedGMT string  `json:"date_modified_gmt"`
}

// CatalogPage - страница каталога и сведения о пагинации из заголовков ответа.
type CatalogPage struct {
	Page       int
	Items      []CatalogItem
	TotalItems int
	TotalPages int
}

func (p *CatalogPage) HasNext() bool {
	return p.Page < p.TotalPages
}

type pageEnvelope struct {
	items  *[]CatalogItem
	header http.Header
}

func (e *pageEnvelope) setHeader(h http.Header) { e.header = h }
func (e *pageEnvelope) target() interface{}     { return e.items }

func headerInt(h http.Header, key string) int {
	v, err := strconv.Atoi(h.Get(key))
	if err != nil {
		return 0
	}
	return v
}

func (ci *CatalogItem) CategoryNames() []string {
	out := make([]string, 0, len(ci.Categories))
	for _, c := range ci.Categories {
		if name := PlainText(c.Name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func (ci *CatalogItem) ImageURLs() []string {
	out := make([]string, 0, len(ci.Images))
	for _, img := range ci.Images {
		out = append(out, img.Src)
	}
	return out
}

// Price разбирает regular_price; пустое значение - ноль.
func (ci *CatalogItem) Price() decimal.Decimal {
	p, err := decimal.NewFromString(strings.TrimSpace(ci.RegularPrice))
	if err != nil {
		return decimal.Zero
	}
	return p
}

func (ci *CatalogItem) Stock() int {
	if ci.StockQuantity == nil {
		return 0
	}
	return *ci.StockQuantity
}

// ModifiedAt - date_modified_gmt без зоны, трактуется как UTC.
func (ci *CatalogItem) ModifiedAt() *time.Time {
	if ci.DateModifiedGMT == "" {
		return nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05", ci.DateModifiedGMT, time.UTC)
	if err != nil {
		return nil
	}
	return &t
}

func (ci *CatalogItem) LocalStockStatus() models.StockStatus {
	switch ci.StockStatus {
	case "instock":
		return models.InStock
	case "onbackorder":
		return models.Backorder
	}
	return models.OutOfStock
}

func remoteStockStatus(s models.StockStatus) string {
	switch s {
	case models.InStock:
		return "instock"
	case models.Backorder:
		return "onbackorder"
	}
	return "outofstock"
}

// itemUpdate - тело записи канонических значений товара.
type itemUpdate struct {
	SKU           string  `json:"sku,omitempty"`
	Name          string  `json:"name,omitempty"`
	RegularPrice  string  `json:"regular_price"`
	ManageStock   bool    `json:"manage_stock"`
	StockQuantity int     `json:"stock_quantity"`
	StockStatus   string  `json:"stock_status"`
	Tags          []Named `json:"tags"`
}

func newItemUpdate(item *models.Item) itemUpdate {
	tags := make([]Named, 0, len(item.SupplierTags))
	for _, name := range models.DisplayNames(item.SupplierTags) {
		tags = append(tags, Named{Name: name})
	}
	u := itemUpdate{
		RegularPrice:  item.Price.StringFixed(2),
		ManageStock:   true,
		StockQuantity: item.StockQuantity,
		StockStatus:   remoteStockStatus(item.StockStatus),
		Tags:          tags,
	}
	if item.ExternalID == 0 {
		u.SKU = item.SKU
		u.Name = item.Name
	}
	return u
}
