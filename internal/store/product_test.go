package store

import (
	"context"
	"errors"
	"testing"

	"github.com/dukerupert/larder/internal/model"
)

func TestProductGetOrCreateByNameCaseInsensitive(t *testing.T) {
	db := setupTestDB(t)
	ps := NewProductStore(db)
	ctx := context.Background()
	h := seedHousehold(t, db, "PRODNAME")

	first, err := ps.GetOrCreateByName(ctx, h.ID, "Leche", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := ps.GetOrCreateByName(ctx, h.ID, "LECHE", "Pascual")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("id = %d, want %d", second.ID, first.ID)
	}
	if second.Brand != "Pascual" {
		t.Errorf("brand = %q, want missing brand filled", second.Brand)
	}

	third, err := ps.GetOrCreateByName(ctx, h.ID, "leche", "Otra")
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	if third.Brand != "Pascual" {
		t.Errorf("brand = %q, want existing brand kept", third.Brand)
	}
}

func TestProductGetOrCreateByNameIgnoresBarcoded(t *testing.T) {
	db := setupTestDB(t)
	ps := NewProductStore(db)
	ctx := context.Background()
	h := seedHousehold(t, db, "PRODBAR1")

	scanned, err := ps.GetOrCreateByBarcode(ctx, h.ID, "8410000000001", "Leche", "", "")
	if err != nil {
		t.Fatalf("create by barcode: %v", err)
	}
	manual, err := ps.GetOrCreateByName(ctx, h.ID, "Leche", "")
	if err != nil {
		t.Fatalf("create by name: %v", err)
	}
	if manual.ID == scanned.ID {
		t.Error("manual entry matched a barcoded product")
	}
}

func TestProductGetOrCreateByBarcode(t *testing.T) {
	db := setupTestDB(t)
	ps := NewProductStore(db)
	ctx := context.Background()
	h := seedHousehold(t, db, "PRODBAR2")

	if _, err := ps.GetOrCreateByBarcode(ctx, h.ID, "123", "", "", ""); !errors.Is(err, model.ErrValidation) {
		t.Errorf("new barcode without name err = %v, want ErrValidation", err)
	}

	p, err := ps.GetOrCreateByBarcode(ctx, h.ID, "123", "Atún", "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	again, err := ps.GetOrCreateByBarcode(ctx, h.ID, "123", "", "Calvo", "https://img/atun.png")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if again.ID != p.ID {
		t.Errorf("id = %d, want %d", again.ID, p.ID)
	}
	if again.Brand != "Calvo" || again.ImageURL != "https://img/atun.png" {
		t.Errorf("brand, image = %q, %q; want filled from scan", again.Brand, again.ImageURL)
	}
	if again.Name != "Atún" {
		t.Errorf("name = %q, want Atún", again.Name)
	}

	other := seedHousehold(t, db, "PRODBAR3")
	o, err := ps.GetOrCreateByBarcode(ctx, other.ID, "123", "Atún", "", "")
	if err != nil {
		t.Fatalf("create in other household: %v", err)
	}
	if o.ID == p.ID {
		t.Error("barcode lookup crossed households")
	}
}

func TestProductSearch(t *testing.T) {
	db := setupTestDB(t)
	ps := NewProductStore(db)
	ctx := context.Background()
	h := seedHousehold(t, db, "SEARCH01")

	for _, name := range []string{"Leche entera", "Pan de molde", "Leche de avena"} {
		if _, err := ps.GetOrCreateByName(ctx, h.ID, name, ""); err != nil {
			t.Fatalf("create %q: %v", name, err)
		}
	}
	got, err := ps.Search(ctx, h.ID, "leche", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d results, want 2", len(got))
	}
	got, err = ps.Search(ctx, h.ID, "100%", 10)
	if err != nil {
		t.Fatalf("search wildcard: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d results for literal %%, want 0", len(got))
	}
}

func TestProductSuggestLocations(t *testing.T) {
	db := setupTestDB(t)
	ps := NewProductStore(db)
	ls := NewLocationStore(db)
	ss := NewStockStore(db)
	ctx := context.Background()
	h := seedHousehold(t, db, "SUGGEST1")

	fridge, _ := ls.Create(ctx, h.ID, "Nevera", false)
	pantry, _ := ls.Create(ctx, h.ID, "Despensa", false)
	milk, _ := ps.GetOrCreateByName(ctx, h.ID, "Leche", "")
	rice, _ := ps.GetOrCreateByName(ctx, h.ID, "Arroz", "")
	salt, _ := ps.GetOrCreateByName(ctx, h.ID, "Sal", "")

	if _, err := ss.Insert(ctx, &model.StockLine{
		HouseholdID: h.ID, ProductID: milk.ID, LocationID: fridge.ID, Quantity: 3,
		ExpiresOn: model.MustParseDate("2026-03-01"), Lifecycle: model.Sealed{},
	}); err != nil {
		t.Fatalf("insert stock: %v", err)
	}
	if err := ps.SetLastLocation(ctx, h.ID, milk.ID, pantry.ID); err != nil {
		t.Fatalf("set last location: %v", err)
	}
	if err := ps.SetLastLocation(ctx, h.ID, rice.ID, pantry.ID); err != nil {
		t.Fatalf("set last location: %v", err)
	}

	got, err := ps.SuggestLocations(ctx, h.ID, []int64{milk.ID, rice.ID, salt.ID})
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d suggestions, want 2: %+v", len(got), got)
	}
	if got[0].LocationID != fridge.ID || got[0].Source != "stock" {
		t.Errorf("milk suggestion = %+v, want fridge from stock", got[0])
	}
	if got[1].LocationID != pantry.ID || got[1].Source != "last_used" {
		t.Errorf("rice suggestion = %+v, want pantry from last_used", got[1])
	}
}

func TestProductNameMatchFoldsAccentedLetters(t *testing.T) {
	db := setupTestDB(t)
	ps := NewProductStore(db)
	ctx := context.Background()
	h := seedHousehold(t, db, "PRODACC1")

	lower, err := ps.GetOrCreateByName(ctx, h.ID, "plátano", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	upper, err := ps.GetOrCreateByName(ctx, h.ID, "PLÁTANO", "")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if upper.ID != lower.ID {
		t.Errorf("id = %d, want %d", upper.ID, lower.ID)
	}

	if _, err := ps.GetOrCreateByBarcode(ctx, h.ID, "8410000000099", "Plátano de Canarias", "Ñam", ""); err != nil {
		t.Fatalf("create by barcode: %v", err)
	}
	found, err := ps.Search(ctx, h.ID, "ÁTANO", 20)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(found) != 2 {
		t.Errorf("search ÁTANO = %d products, want 2", len(found))
	}
	byBrand, err := ps.Search(ctx, h.ID, "ñam", 20)
	if err != nil {
		t.Fatalf("search brand: %v", err)
	}
	if len(byBrand) != 1 || byBrand[0].Name != "Plátano de Canarias" {
		t.Errorf("search ñam = %+v, want the barcoded product", byBrand)
	}
}

func TestProductUpdateRefreshesSearchKey(t *testing.T) {
	db := setupTestDB(t)
	ps := NewProductStore(db)
	ctx := context.Background()
	h := seedHousehold(t, db, "PRODACC2")

	p, err := ps.GetOrCreateByName(ctx, h.ID, "Limon", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	name := "Limón"
	if _, err := ps.Update(ctx, h.ID, p.ID, ProductUpdate{Name: &name}); err != nil {
		t.Fatalf("update: %v", err)
	}
	again, err := ps.GetOrCreateByName(ctx, h.ID, "LIMÓN", "")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if again.ID != p.ID {
		t.Errorf("id = %d, want renamed product %d", again.ID, p.ID)
	}
}
