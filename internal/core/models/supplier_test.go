package models

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseSupplier(t *testing.T) {
	tests := []struct {
		in   string
		want Supplier
	}{
		{"dinamik", SupplierDinamik},
		{"Dinamik", SupplierDinamik},
		{"Başbuğ", SupplierBasbug},
		{"BASBUG", SupplierBasbug},
		{" basbug ", SupplierBasbug},
		{"Doğuş", SupplierDogus},
		{"DOĞUŞ", SupplierDogus},
		{"dogus", SupplierDogus},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSupplier(tt.in)
			if err != nil {
				t.Fatalf("ParseSupplier(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseSupplier(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseSupplierUnknown(t *testing.T) {
	_, err := ParseSupplier("acme")
	if !errors.Is(err, ErrUnknownSupplier) {
		t.Fatalf("expected ErrUnknownSupplier, got %v", err)
	}
}

func TestSupplierJSON(t *testing.T) {
	var body struct {
		Supplier Supplier `json:"supplier"`
	}
	if err := json.Unmarshal([]byte(`{"supplier":"Doğuş"}`), &body); err != nil {
		t.Fatal(err)
	}
	if body.Supplier != SupplierDogus {
		t.Errorf("supplier = %q", body.Supplier)
	}
	out, _ := json.Marshal(body)
	if string(out) != `{"supplier":"dogus"}` {
		t.Errorf("marshal = %s", out)
	}
	if err := json.Unmarshal([]byte(`{"supplier":"nope"}`), &body); err == nil {
		t.Error("expected error for unknown supplier")
	}
}

func TestSetSupplierTags(t *testing.T) {
	item := Item{}
	if !item.SetSupplierTags([]Supplier{SupplierDogus, SupplierDinamik}) {
		t.Fatal("first assignment must report change")
	}
	want := []Supplier{SupplierDinamik, SupplierDogus}
	if !reflect.DeepEqual(item.SupplierTags, want) {
		t.Errorf("tags = %v, want %v", item.SupplierTags, want)
	}
	if item.SetSupplierTags([]Supplier{SupplierDinamik, SupplierDogus}) {
		t.Error("same set must not report change")
	}
	if got := DisplayNames(item.SupplierTags); !reflect.DeepEqual(got, []string{"Dinamik", "Doğuş"}) {
		t.Errorf("display names = %v", got)
	}
}

func TestSetCanonical(t *testing.T) {
	item := Item{Price: decimal.RequireFromString("10.00"), StockQuantity: 1, StockStatus: InStock}
	if item.SetCanonical(decimal.RequireFromString("10"), 1, InStock) {
		t.Error("equal price with different scale must not count as change")
	}
	if !item.SetCanonical(decimal.RequireFromString("11"), 1, InStock) {
		t.Error("expected change")
	}
}

func TestQuoteEligible(t *testing.T) {
	q := SupplierQuote{Active: true, Available: true, StockStatus: InStock}
	if !q.Eligible() {
		t.Error("expected eligible")
	}
	q.StockStatus = Backorder
	if q.Eligible() {
		t.Error("backorder must not be eligible")
	}
	if StatusFor(true, 0) != OutOfStock || StatusFor(true, 2) != InStock || StatusFor(false, 5) != OutOfStock {
		t.Error("StatusFor mismatch")
	}
}
