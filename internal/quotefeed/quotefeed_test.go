package quotefeed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"golang.org/x/text/encoding/charmap"

	"gopartsync_api/internal/core/models"
	"gopartsync_api/internal/pricing"
	"gopartsync_api/internal/storage"
	"gopartsync_api/internal/storage/memory"
	"gopartsync_api/pkg/logger"
)

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"1.234,56", "1234.56", false},
		{"1234,5", "1234.5", false},
		{"99.90", "99.9", false},
		{" 12 TL", "12", false},
		{"", "0", false},
		{"abc", "", true},
		{"-5", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDecimal(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if !tt.wantErr && got.String() != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseStock(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"12", 12},
		{">10", 10},
		{"3,00", 3},
		{"", 0},
		{"-2", 0},
	}
	for _, tt := range tests {
		got, err := ParseStock(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseStock(%q) = %d, %v; want %d", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseStock("many"); err == nil {
		t.Error("expected error")
	}
}

func win1254(t *testing.T, s string) string {
	t.Helper()
	out, err := charmap.Windows1254.NewEncoder().String(s)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestProcessCSV(t *testing.T) {
	data := win1254(t, "stock_code;name;price;stock\nYF-100;Yağ filtresi;1.250,00;4\nBJ-7;Buji;abc;1\n;boş;1;1\nHF-2;Hava filtresi;80,5;0\n")
	rows, rowErrors, err := NewProcessor().ProcessCSV(strings.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || len(rowErrors) != 1 || rowErrors[0].Line != 3 {
		t.Fatalf("rows = %+v, errors = %+v", rows, rowErrors)
	}
	if rows[0].Name != "Yağ filtresi" || rows[0].Price.String() != "1250" || rows[0].Stock != 4 {
		t.Errorf("row = %+v", rows[0])
	}
}

func TestProcessCSVWithoutHeader(t *testing.T) {
	rows, _, err := NewProcessor().ProcessCSV(strings.NewReader("A-1;Part;10,00;2\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].StockCode != "A-1" || rows[0].Stock != 2 {
		t.Errorf("rows = %+v", rows)
	}
}

type mapFetcher map[string]string

func (m mapFetcher) Fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	body, ok := m[url]
	if !ok {
		return nil, fmt.Errorf("fetch %s: unexpected status code 404", url)
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func newUpdaterFixture(t *testing.T, fetcher Fetcher, supplier models.Supplier) (*Updater, storage.Store) {
	t.Helper()
	repos := memory.NewStore().Repositories()
	svc := pricing.NewService(repos.Items, repos.Quotes, pricing.NewMarginSource(repos.Margins, pricing.DefaultMarginPercent), logger.Discard())
	feed := Feed{Supplier: supplier, InfURL: "http://feed/" + string(supplier) + ".inf", CSVURL: "http://feed/" + string(supplier) + ".csv"}
	return NewUpdater(feed, fetcher, NewProcessor(), repos, svc, logger.Discard()), repos
}

func TestUpdaterExecute(t *testing.T) {
	ctx := context.Background()
	fetcher := mapFetcher{
		"http://feed/dinamik.inf": "2024-05-01 08:00:00\n1714550400\n",
		"http://feed/dinamik.csv": "stock_code;name;price;stock\nYF-100;Oil filter;100,00;4\nHF-2;Air filter;0;0\n",
	}
	u, repos := newUpdaterFixture(t, fetcher, models.SupplierDinamik)

	res, err := u.Execute(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.UpToDate || res.Rows != 2 || res.Created != 2 || res.Quotes != 2 || res.Repriced != 1 || res.Unavailable != 1 {
		t.Fatalf("result = %+v", res)
	}

	item, err := repos.Items.GetBySKU(ctx, "YF-100")
	if err != nil {
		t.Fatal(err)
	}
	if item.Price.StringFixed(2) != "115.00" || item.StockQuantity != 4 || !item.SyncRequired {
		t.Errorf("item = %+v", item)
	}
	unpriced, _ := repos.Items.GetBySKU(ctx, "HF-2")
	if len(unpriced.SupplierTags) != 1 || unpriced.SupplierTags[0] != models.SupplierDinamik {
		t.Errorf("zero-price quote must still tag the item: %v", unpriced.SupplierTags)
	}

	again, err := u.Execute(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if !again.UpToDate {
		t.Errorf("second run must be up to date: %+v", again)
	}

	forced, err := u.Execute(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if forced.UpToDate || forced.Created != 0 || forced.Quotes != 2 {
		t.Errorf("forced = %+v", forced)
	}
}

// failingQuotes отказывает в записи котировки товара с артикулом failSKU.
type failingQuotes struct {
	storage.QuoteRepository
	items   storage.ItemRepository
	failSKU string
}

func (f *failingQuotes) Upsert(ctx context.Context, quote *models.SupplierQuote) error {
	item, err := f.items.GetByID(ctx, quote.ItemID)
	if err == nil && item.SKU == f.failSKU {
		return errors.New("connection reset by peer")
	}
	return f.QuoteRepository.Upsert(ctx, quote)
}

func TestUpdaterRepricesWrittenRowsOnFailure(t *testing.T) {
	ctx := context.Background()
	fetcher := mapFetcher{
		"http://feed/dinamik.inf": "2024-05-01 08:00:00\n",
		"http://feed/dinamik.csv": "stock_code;name;price;stock\nYF-100;Oil filter;100,00;4\nBAD-1;Broken;50,00;1\nYF-200;Fuel filter;20,00;2\n",
	}
	u, repos := newUpdaterFixture(t, fetcher, models.SupplierDinamik)
	u.store.Quotes = &failingQuotes{QuoteRepository: repos.Quotes, items: repos.Items, failSKU: "BAD-1"}

	if _, err := u.Execute(ctx, false); err == nil || !strings.Contains(err.Error(), "BAD-1") {
		t.Fatalf("expected BAD-1 write error, got %v", err)
	}

	item, err := repos.Items.GetBySKU(ctx, "YF-100")
	if err != nil {
		t.Fatal(err)
	}
	if item.Price.StringFixed(2) != "115.00" || item.StockQuantity != 4 || len(item.SupplierTags) != 1 {
		t.Errorf("quote written before the failure was not repriced: %+v", item)
	}
	if _, err := repos.Items.GetBySKU(ctx, "YF-200"); err == nil {
		t.Error("rows after the failure must not be written")
	}
	if at, _ := repos.Metadata.LastUpdate(ctx, "quotes:dinamik"); !at.IsZero() {
		t.Errorf("failed update must not record the feed time, got %v", at)
	}
}

func TestSchedulerRefreshAllContinuesOnError(t *testing.T) {
	ctx := context.Background()
	fetcher := mapFetcher{
		"http://feed/basbug.csv": "A-1;Part;10;1\n",
	}
	ok, _ := newUpdaterFixture(t, fetcher, models.SupplierBasbug)
	ok.feed.InfURL = ""
	broken, _ := newUpdaterFixture(t, fetcher, models.SupplierDogus)

	s := NewScheduler(logger.Discard())
	s.Add(broken, 0)
	s.Add(ok, 0)

	results, errs := s.RefreshAll(ctx, false)
	if len(errs) != 1 || len(results) != 1 || results[0].Supplier != models.SupplierBasbug {
		t.Fatalf("results = %+v, errs = %v", results, errs)
	}
}
