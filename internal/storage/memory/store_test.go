package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"gopartsync_api/internal/core/models"
	"gopartsync_api/internal/storage"
)

func TestItemLookupAndUpdate(t *testing.T) {
	ctx := context.Background()
	repos := NewStore().Repositories()

	item := &models.Item{SKU: "BRK-100", ExternalID: 42, Name: "Brake pad"}
	if err := repos.Items.Create(ctx, item); err != nil {
		t.Fatal(err)
	}
	if item.ID == 0 {
		t.Fatal("expected ID to be assigned")
	}

	byExt, err := repos.Items.GetByExternalID(ctx, 42)
	if err != nil || byExt.ID != item.ID {
		t.Fatalf("GetByExternalID = %v, %v", byExt, err)
	}
	bySKU, err := repos.Items.GetBySKU(ctx, "BRK-100")
	if err != nil || bySKU.ID != item.ID {
		t.Fatalf("GetBySKU = %v, %v", bySKU, err)
	}
	if _, err := repos.Items.GetBySKU(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	updated, err := repos.Items.Update(ctx, item.ID, func(i *models.Item) error {
		i.Name = "Brake pad set"
		return nil
	})
	if err != nil || updated.Name != "Brake pad set" {
		t.Fatalf("Update = %v, %v", updated, err)
	}

	boom := errors.New("boom")
	if _, err := repos.Items.Update(ctx, item.ID, func(i *models.Item) error {
		i.Name = "discarded"
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	got, _ := repos.Items.GetByID(ctx, item.ID)
	if got.Name != "Brake pad set" {
		t.Errorf("failed update must not persist, name = %q", got.Name)
	}
}

func TestCreateRejectsDuplicateSKU(t *testing.T) {
	ctx := context.Background()
	repos := NewStore().Repositories()
	if err := repos.Items.Create(ctx, &models.Item{SKU: "A"}); err != nil {
		t.Fatal(err)
	}
	if err := repos.Items.Create(ctx, &models.Item{SKU: "A"}); err == nil {
		t.Fatal("expected duplicate error")
	}
}

func TestQuoteUpsertKeepsFirstSeenOrder(t *testing.T) {
	ctx := context.Background()
	repos := NewStore().Repositories()
	item := &models.Item{SKU: "X"}
	repos.Items.Create(ctx, item)

	for _, s := range []models.Supplier{models.SupplierDogus, models.SupplierDinamik} {
		if err := repos.Quotes.Upsert(ctx, &models.SupplierQuote{ItemID: item.ID, Supplier: s, Price: decimal.NewFromInt(10)}); err != nil {
			t.Fatal(err)
		}
	}
	// обновление не меняет порядок
	repos.Quotes.Upsert(ctx, &models.SupplierQuote{ItemID: item.ID, Supplier: models.SupplierDogus, Price: decimal.NewFromInt(5)})

	quotes, _ := repos.Quotes.ListByItem(ctx, item.ID)
	if len(quotes) != 2 {
		t.Fatalf("len = %d, want 2", len(quotes))
	}
	if quotes[0].Supplier != models.SupplierDogus || !quotes[0].Price.Equal(decimal.NewFromInt(5)) {
		t.Errorf("first quote = %+v", quotes[0])
	}

	deleted, _ := repos.Quotes.Delete(ctx, item.ID, models.SupplierDogus)
	if !deleted {
		t.Error("expected delete")
	}
	deleted, _ = repos.Quotes.Delete(ctx, item.ID, models.SupplierDogus)
	if deleted {
		t.Error("second delete must report false")
	}
	quotes, _ = repos.Quotes.ListByItem(ctx, item.ID)
	if len(quotes) != 1 || quotes[0].Supplier != models.SupplierDinamik {
		t.Errorf("quotes after delete = %+v", quotes)
	}
}

func TestQuoteUpsertUnknownItem(t *testing.T) {
	repos := NewStore().Repositories()
	err := repos.Quotes.Upsert(context.Background(), &models.SupplierQuote{ItemID: 99, Supplier: models.SupplierDinamik})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMargins(t *testing.T) {
	ctx := context.Background()
	repos := NewStore().Repositories()
	if _, ok, _ := repos.Margins.DefaultMargin(ctx); ok {
		t.Fatal("default margin must be unset")
	}
	repos.Margins.SetDefaultMargin(ctx, decimal.NewFromInt(12))
	repos.Margins.SetMargin(ctx, models.SupplierBasbug, decimal.NewFromInt(20))

	m, ok, _ := repos.Margins.DefaultMargin(ctx)
	if !ok || !m.Equal(decimal.NewFromInt(12)) {
		t.Errorf("default = %v %v", m, ok)
	}
	all, _ := repos.Margins.Margins(ctx)
	if !all[models.SupplierBasbug].Equal(decimal.NewFromInt(20)) {
		t.Errorf("margins = %v", all)
	}
}
