package quotefeed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"gopartsync_api/internal/core/models"
	"gopartsync_api/internal/pricing"
	"gopartsync_api/internal/storage"
	"gopartsync_api/pkg/logger"
)

// Repricer пересчитывает теги и цену товара после записи котировок.
type Repricer interface {
	Refresh(ctx context.Context, itemID int64) (*pricing.Selection, error)
}

// Feed - прайс-лист одного поставщика.
type Feed struct {
	Supplier models.Supplier
	InfURL   string
	CSVURL   string
}

func (f Feed) metadataKey() string {
	return "quotes:" + string(f.Supplier)
}

type Result struct {
	Supplier    models.Supplier `json:"supplier"`
	UpToDate    bool            `json:"upToDate"`
	ModTime     time.Time       `json:"modTime"`
	Rows        int             `json:"rows"`
	RowErrors   int             `json:"rowErrors"`
	Created     int             `json:"itemsCreated"`
	Quotes      int             `json:"quotesWritten"`
	Repriced    int             `json:"itemsRepriced"`
	Unavailable int             `json:"itemsWithoutOffer"`
}

// Updater загружает прайс-лист, если inf-файл сообщает о более новой версии,
// и записывает котировки поставщика.
type Updater struct {
	feed      Feed
	fetcher   Fetcher
	processor *Processor
	store     storage.Store
	repricer  Repricer
	log       logger.Logger
	now       func() time.Time
}

func NewUpdater(feed Feed, fetcher Fetcher, processor *Processor, store storage.Store, repricer Repricer, log logger.Logger) *Updater {
	return &Updater{
		feed:      feed,
		fetcher:   fetcher,
		processor: processor,
		store:     store,
		repricer:  repricer,
		log:       log,
		now:       time.Now,
	}
}

func (u *Updater) Feed() Feed {
	return u.feed
}

// fetchInfTime получает время последнего обновления из inf-файла.
// Первая разборчивая строка: "2006-01-02 15:04:05" или Unix-время в секундах.
func (u *Updater) fetchInfTime(ctx context.Context) (time.Time, error) {
	if u.feed.InfURL == "" {
		return u.now(), nil
	}
	body, err := u.fetcher.Fetch(ctx, u.feed.InfURL)
	if err != nil {
		return time.Time{}, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return time.Time{}, err
	}
	str := strings.TrimSpace(string(data))
	if str == "" {
		return time.Time{}, fmt.Errorf("inf-файл пустой")
	}

	for _, line := range strings.Split(str, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if t, err := time.ParseInLocation("2006-01-02 15:04:05", line, time.UTC); err == nil {
			return t, nil
		}
		if epochSec, err := strconv.ParseInt(line, 10, 64); err == nil {
			return time.Unix(epochSec, 0).UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("не удалось определить время из inf-файла")
}

// Execute выполняет обновление, если это необходимо; force игнорирует время из inf-файла.
func (u *Updater) Execute(ctx context.Context, force bool) (*Result, error) {
	result := &Result{Supplier: u.feed.Supplier}

	modTime, err := u.fetchInfTime(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s inf: %w", u.feed.Supplier, err)
	}
	result.ModTime = modTime
	storedTime, err := u.store.Metadata.LastUpdate(ctx, u.feed.metadataKey())
	if err != nil {
		return nil, err
	}
	if !force && !modTime.After(storedTime) {
		u.log.Log("%s: обновление не требуется, данные актуальны (%s)", u.feed.Supplier.DisplayName(), storedTime.Format(time.RFC3339))
		result.UpToDate = true
		return result, nil
	}

	u.log.Log("%s: начало обновления котировок с %s", u.feed.Supplier.DisplayName(), u.feed.CSVURL)
	body, err := u.fetcher.Fetch(ctx, u.feed.CSVURL)
	if err != nil {
		return nil, fmt.Errorf("%s csv: %w", u.feed.Supplier, err)
	}
	defer body.Close()

	rows, rowErrors, err := u.processor.ProcessCSV(body)
	if err != nil {
		return nil, fmt.Errorf("%s csv: %w", u.feed.Supplier, err)
	}
	result.Rows = len(rows)
	result.RowErrors = len(rowErrors)
	for _, re := range rowErrors {
		u.log.Error("%s: %v", u.feed.Supplier.DisplayName(), re)
	}

	touched := make([]int64, 0, len(rows))
	seen := make(map[int64]bool, len(rows))
	for _, row := range rows {
		itemID, created, err := u.writeQuote(ctx, row)
		if err != nil {
			// уже записанные котировки не должны остаться без пересчёта цены
			if rerr := u.reprice(ctx, touched, result); rerr != nil {
				u.log.Error("%s: %v", u.feed.Supplier.DisplayName(), rerr)
			}
			return nil, fmt.Errorf("%s %s: %w", u.feed.Supplier, row.StockCode, err)
		}
		result.Quotes++
		if created {
			result.Created++
		}
		if !seen[itemID] {
			seen[itemID] = true
			touched = append(touched, itemID)
		}
	}

	if err := u.reprice(ctx, touched, result); err != nil {
		return nil, err
	}

	if err := u.store.Metadata.SetLastUpdate(ctx, u.feed.metadataKey(), modTime); err != nil {
		return nil, err
	}
	u.log.Log("%s: обновление завершено: строк %d, новых товаров %d, пересчитано %d",
		u.feed.Supplier.DisplayName(), result.Rows, result.Created, result.Repriced)
	return result, nil
}

func (u *Updater) reprice(ctx context.Context, touched []int64, result *Result) error {
	for _, id := range touched {
		sel, err := u.repricer.Refresh(ctx, id)
		switch {
		case errors.Is(err, pricing.ErrNoneAvailable):
			result.Unavailable++
		case err != nil:
			return fmt.Errorf("reprice item %d: %w", id, err)
		case sel.Changed:
			result.Repriced++
		}
	}
	return nil
}

// writeQuote записывает котировку строки; товар без записи создаётся по артикулу.
func (u *Updater) writeQuote(ctx context.Context, row Row) (int64, bool, error) {
	created := false
	item, err := u.store.Items.GetBySKU(ctx, row.StockCode)
	if errors.Is(err, storage.ErrNotFound) {
		name := row.Name
		if name == "" {
			name = row.StockCode
		}
		item = &models.Item{SKU: row.StockCode, Name: name, StockStatus: models.OutOfStock}
		if err := u.store.Items.Create(ctx, item); err != nil {
			return 0, false, err
		}
		created = true
	} else if err != nil {
		return 0, false, err
	}

	available := row.Stock > 0
	quote := &models.SupplierQuote{
		ItemID:      item.ID,
		Supplier:    u.feed.Supplier,
		Price:       row.Price,
		Stock:       row.Stock,
		Available:   available,
		StockStatus: models.StatusFor(available, row.Stock),
		Active:      true,
	}
	if err := u.store.Quotes.Upsert(ctx, quote); err != nil {
		return 0, false, err
	}
	return item.ID, created, nil
}
