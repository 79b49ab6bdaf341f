package storefront

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gopartsync_api/config"
	"gopartsync_api/internal/core/models"
	"gopartsync_api/internal/ratelimit"
	"gopartsync_api/pkg/logger"
)

const productsEndpoint = "/wp-json/wc/v3/products"

var ErrNotConfigured = errors.New("storefront is not configured")

// Client - REST-клиент витрины. Все запросы проходят через лимитер класса витрины.
type Client struct {
	*BaseClient
}

func NewClient(cfg config.StorefrontConfig, limiter *ratelimit.Limiter, log logger.Logger) *Client {
	apiURL := strings.TrimRight(cfg.URL, "/")
	base := NewBaseClient(apiURL, cfg.Timeout, NewBasicAuth(cfg.ConsumerKey, cfg.ConsumerSecret), log,
		limiter.WaitMiddleware(LimiterKey(apiURL), ratelimit.ClassStorefront))
	return &Client{BaseClient: base}
}

// LimiterKey - ключ исходящих запросов к витрине в лимитере.
func LimiterKey(apiURL string) string {
	if u, err := url.Parse(apiURL); err == nil && u.Host != "" {
		return "storefront:" + u.Host
	}
	return "storefront:" + apiURL
}

// Ping проверяет доступность API и учётных данных одним минимальным запросом.
func (c *Client) Ping(ctx context.Context) error {
	if c.ApiURL == "" {
		return ErrNotConfigured
	}
	var items []CatalogItem
	if err := c.request(ctx, http.MethodGet, productsEndpoint+"?per_page=1", nil, &items); err != nil {
		return fmt.Errorf("storefront connectivity: %w", err)
	}
	return nil
}

func (c *Client) GetCatalogPage(ctx context.Context, page, pageSize int) (*CatalogPage, error) {
	if c.ApiURL == "" {
		return nil, ErrNotConfigured
	}
	var items []CatalogItem
	env := &pageEnvelope{items: &items}
	endpoint := fmt.Sprintf("%s?page=%d&per_page=%d&orderby=id&order=asc", productsEndpoint, page, pageSize)
	start := time.Now()
	if err := c.request(ctx, http.MethodGet, endpoint, nil, env); err != nil {
		return nil, fmt.Errorf("catalog page %d: %w", page, err)
	}
	c.log.Log("catalog page %d: %d items in %v", page, len(items), time.Since(start))

	result := &CatalogPage{
		Page:       page,
		Items:      items,
		TotalItems: headerInt(env.header, "X-WP-Total"),
		TotalPages: headerInt(env.header, "X-WP-TotalPages"),
	}
	// без заголовков пагинации считаем, что неполная страница - последняя
	if result.TotalPages == 0 {
		result.TotalPages = page
		if len(items) >= pageSize {
			result.TotalPages = page + 1
		}
	}
	return result, nil
}

// UpsertItem записывает каноническую цену, остаток, статус и теги поставщиков.
// Товар без внешнего ID создаётся; возвращается состояние витрины после записи.
func (c *Client) UpsertItem(ctx context.Context, item *models.Item) (*CatalogItem, error) {
	if c.ApiURL == "" {
		return nil, ErrNotConfigured
	}
	var saved CatalogItem
	body := newItemUpdate(item)
	if item.ExternalID == 0 {
		if err := c.request(ctx, http.MethodPost, productsEndpoint, body, &saved); err != nil {
			return nil, fmt.Errorf("create item sku=%q: %w", item.SKU, err)
		}
		return &saved, nil
	}
	endpoint := fmt.Sprintf("%s/%d", productsEndpoint, item.ExternalID)
	if err := c.request(ctx, http.MethodPut, endpoint, body, &saved); err != nil {
		return nil, fmt.Errorf("update item %d: %w", item.ExternalID, err)
	}
	return &saved, nil
}
