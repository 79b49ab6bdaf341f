package pricing

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"gopartsync_api/internal/core/models"
	"gopartsync_api/internal/storage"
	"gopartsync_api/internal/storage/memory"
	"gopartsync_api/pkg/logger"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestService(t *testing.T) (*Service, storage.Store, *models.Item) {
	t.Helper()
	repos := memory.NewStore().Repositories()
	item := &models.Item{SKU: "ABC-1", Name: "Oil filter", Price: d("50"), StockQuantity: 1, StockStatus: models.InStock}
	if err := repos.Items.Create(context.Background(), item); err != nil {
		t.Fatal(err)
	}
	svc := NewService(repos.Items, repos.Quotes, NewMarginSource(repos.Margins, DefaultMarginPercent), logger.Discard())
	return svc, repos, item
}

func addQuote(t *testing.T, repos storage.Store, itemID int64, s models.Supplier, price string, stock int, available, active bool) {
	t.Helper()
	q := &models.SupplierQuote{
		ItemID:      itemID,
		Supplier:    s,
		Price:       d(price),
		Stock:       stock,
		Available:   available,
		StockStatus: models.StatusFor(available, stock),
		Active:      active,
	}
	if err := repos.Quotes.Upsert(context.Background(), q); err != nil {
		t.Fatal(err)
	}
}

func TestCanonicalPrice(t *testing.T) {
	tests := []struct {
		price, margin, want string
	}{
		{"95", "20", "114.00"},
		{"100", "15", "115.00"},
		{"10.005", "0", "10.01"},
		{"19.99", "15", "22.99"},
		{"0", "15", "0.00"},
	}
	for _, tt := range tests {
		got := CanonicalPrice(d(tt.price), d(tt.margin))
		if got.StringFixed(2) != tt.want {
			t.Errorf("CanonicalPrice(%s, %s) = %s, want %s", tt.price, tt.margin, got.StringFixed(2), tt.want)
		}
	}
}

func TestSelectBestPicksCheapestWithMargin(t *testing.T) {
	ctx := context.Background()
	svc, repos, item := newTestService(t)
	repos.Margins.SetMargin(ctx, models.SupplierBasbug, d("20"))

	addQuote(t, repos, item.ID, models.SupplierDinamik, "100", 5, true, true)
	addQuote(t, repos, item.ID, models.SupplierBasbug, "95", 3, true, true)
	addQuote(t, repos, item.ID, models.SupplierDogus, "90", 0, false, true)

	sel, err := svc.SelectBest(ctx, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if sel.Supplier != models.SupplierBasbug {
		t.Errorf("supplier = %s, want basbug", sel.Supplier)
	}
	if sel.Price.StringFixed(2) != "114.00" || sel.Stock != 3 || !sel.Changed {
		t.Errorf("selection = %+v", sel)
	}

	got, _ := repos.Items.GetByID(ctx, item.ID)
	if got.Price.StringFixed(2) != "114.00" || got.StockQuantity != 3 || got.StockStatus != models.InStock {
		t.Errorf("item = %+v", got)
	}
	if !got.SyncRequired {
		t.Error("price change must set sync_required")
	}
}

func TestSelectBestTieFirstSeenWins(t *testing.T) {
	ctx := context.Background()
	svc, repos, item := newTestService(t)
	addQuote(t, repos, item.ID, models.SupplierDogus, "80", 2, true, true)
	addQuote(t, repos, item.ID, models.SupplierDinamik, "80", 9, true, true)

	for i := 0; i < 3; i++ {
		sel, err := svc.SelectBest(ctx, item.ID)
		if err != nil {
			t.Fatal(err)
		}
		if sel.Supplier != models.SupplierDogus || sel.Stock != 2 {
			t.Fatalf("run %d: selection = %+v", i, sel)
		}
		if i > 0 && sel.Changed {
			t.Errorf("run %d: repeated selection must be idempotent", i)
		}
	}
}

func TestSelectBestDefaultMargin(t *testing.T) {
	ctx := context.Background()
	svc, repos, item := newTestService(t)
	addQuote(t, repos, item.ID, models.SupplierDinamik, "100", 1, true, true)

	sel, err := svc.SelectBest(ctx, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !sel.Margin.Equal(d("15")) || sel.Price.StringFixed(2) != "115.00" {
		t.Errorf("selection = %+v", sel)
	}

	repos.Margins.SetDefaultMargin(ctx, d("10"))
	sel, _ = svc.SelectBest(ctx, item.ID)
	if sel.Price.StringFixed(2) != "110.00" {
		t.Errorf("stored default margin ignored: %s", sel.Price)
	}
}

func TestZeroFallbackMargin(t *testing.T) {
	ctx := context.Background()
	_, repos, item := newTestService(t)
	svc := NewService(repos.Items, repos.Quotes, NewMarginSource(repos.Margins, decimal.Zero), logger.Discard())
	addQuote(t, repos, item.ID, models.SupplierDinamik, "100", 1, true, true)

	sel, err := svc.SelectBest(ctx, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !sel.Margin.IsZero() || sel.Price.StringFixed(2) != "100.00" {
		t.Errorf("configured zero margin replaced: %+v", sel)
	}
}

func TestSelectBestNoneAvailableKeepsPrice(t *testing.T) {
	ctx := context.Background()
	svc, repos, item := newTestService(t)
	addQuote(t, repos, item.ID, models.SupplierDinamik, "10", 0, false, true)
	addQuote(t, repos, item.ID, models.SupplierDogus, "5", 4, true, false)

	_, err := svc.SelectBest(ctx, item.ID)
	if !errors.Is(err, ErrNoneAvailable) {
		t.Fatalf("expected ErrNoneAvailable, got %v", err)
	}
	got, _ := repos.Items.GetByID(ctx, item.ID)
	if !got.Price.Equal(d("50")) || got.StockQuantity != 1 || got.SyncRequired {
		t.Errorf("item must be untouched: %+v", got)
	}
}

func TestSelectBestUnknownItem(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.SelectBest(context.Background(), 999); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecomputeTagsIncludesZeroPrice(t *testing.T) {
	ctx := context.Background()
	svc, repos, item := newTestService(t)
	addQuote(t, repos, item.ID, models.SupplierDogus, "0", 0, false, true)
	addQuote(t, repos, item.ID, models.SupplierDinamik, "12", 1, true, true)
	addQuote(t, repos, item.ID, models.SupplierBasbug, "11", 1, true, false)

	tags, changed, err := svc.RecomputeTags(ctx, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := []models.Supplier{models.SupplierDinamik, models.SupplierDogus}
	if !changed || !reflect.DeepEqual(tags, want) {
		t.Errorf("tags = %v (changed=%v), want %v", tags, changed, want)
	}
	got, _ := repos.Items.GetByID(ctx, item.ID)
	if !got.SyncRequired {
		t.Error("tag change must set sync_required")
	}

	_, changed, _ = svc.RecomputeTags(ctx, item.ID)
	if changed {
		t.Error("second recompute must be a no-op")
	}
}

func TestRefreshAfterQuoteRemoval(t *testing.T) {
	ctx := context.Background()
	svc, repos, item := newTestService(t)
	addQuote(t, repos, item.ID, models.SupplierDinamik, "100", 1, true, true)
	addQuote(t, repos, item.ID, models.SupplierDogus, "120", 1, true, true)
	if _, err := svc.Refresh(ctx, item.ID); err != nil {
		t.Fatal(err)
	}

	repos.Quotes.Delete(ctx, item.ID, models.SupplierDogus)
	sel, err := svc.Refresh(ctx, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if sel.Changed || sel.Supplier != models.SupplierDinamik {
		t.Errorf("price driven by another supplier must stay: %+v", sel)
	}
	got, _ := repos.Items.GetByID(ctx, item.ID)
	if !reflect.DeepEqual(got.SupplierTags, []models.Supplier{models.SupplierDinamik}) {
		t.Errorf("tags = %v", got.SupplierTags)
	}
}

type recordingPusher struct {
	pushed []models.Item
	err    error
}

func (p *recordingPusher) PushItem(ctx context.Context, item *models.Item) error {
	p.pushed = append(p.pushed, item.Clone())
	return p.err
}

func TestOverridePrice(t *testing.T) {
	ctx := context.Background()

	t.Run("push clears sync flag", func(t *testing.T) {
		svc, repos, item := newTestService(t)
		repos.Items.Update(ctx, item.ID, func(i *models.Item) error { i.ExternalID = 77; return nil })
		pusher := &recordingPusher{}
		svc.SetPusher(pusher)

		got, err := svc.OverridePrice(ctx, item.ID, d("42.5"), 3)
		if err != nil {
			t.Fatal(err)
		}
		if got.SyncRequired || got.LastSyncedAt == nil {
			t.Errorf("item = %+v", got)
		}
		if len(pusher.pushed) != 1 || pusher.pushed[0].Price.StringFixed(2) != "42.50" {
			t.Errorf("pushed = %+v", pusher.pushed)
		}
	})

	t.Run("failed push keeps sync flag", func(t *testing.T) {
		svc, repos, item := newTestService(t)
		repos.Items.Update(ctx, item.ID, func(i *models.Item) error { i.ExternalID = 77; return nil })
		svc.SetPusher(&recordingPusher{err: errors.New("storefront down")})

		got, err := svc.OverridePrice(ctx, item.ID, d("42.5"), 0)
		if err != nil {
			t.Fatal(err)
		}
		if !got.SyncRequired || got.StockStatus != models.OutOfStock {
			t.Errorf("item = %+v", got)
		}
	})

	t.Run("negative price rejected", func(t *testing.T) {
		svc, _, item := newTestService(t)
		if _, err := svc.OverridePrice(ctx, item.ID, d("-1"), 1); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestMarginUpdateValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	neg := d("-5")
	if err := svc.Margins().Update(ctx, &neg, nil); err == nil {
		t.Error("negative default must be rejected")
	}
	if err := svc.Margins().Update(ctx, nil, map[models.Supplier]decimal.Decimal{"acme": d("5")}); !errors.Is(err, models.ErrUnknownSupplier) {
		t.Errorf("expected ErrUnknownSupplier, got %v", err)
	}
	def := d("12")
	if err := svc.Margins().Update(ctx, &def, map[models.Supplier]decimal.Decimal{models.SupplierDogus: d("30")}); err != nil {
		t.Fatal(err)
	}
	snap, _ := svc.Margins().Snapshot(ctx)
	if !snap.Default.Equal(def) || !snap.Suppliers[models.SupplierDogus].Equal(d("30")) {
		t.Errorf("snapshot = %+v", snap)
	}
}
