package store

import (
	"context"
	"errors"
	"testing"

	"github.com/dukerupert/larder/internal/model"
)

func TestLocationCreateDuplicateName(t *testing.T) {
	db := setupTestDB(t)
	ls := NewLocationStore(db)
	ctx := context.Background()
	h := seedHousehold(t, db, "LOCDUP01")

	if _, err := ls.Create(ctx, h.ID, "Nevera", false); err != nil {
		t.Fatalf("create location: %v", err)
	}
	_, err := ls.Create(ctx, h.ID, "Nevera", true)
	if !errors.Is(err, model.ErrDuplicate) {
		t.Errorf("err = %v, want ErrDuplicate", err)
	}
}

func TestLocationScopedToHousehold(t *testing.T) {
	db := setupTestDB(t)
	ls := NewLocationStore(db)
	ctx := context.Background()
	h1 := seedHousehold(t, db, "SCOPE001")
	h2 := seedHousehold(t, db, "SCOPE002")

	loc, err := ls.Create(ctx, h1.ID, "Despensa", false)
	if err != nil {
		t.Fatalf("create location: %v", err)
	}
	if _, err := ls.GetByID(ctx, h2.ID, loc.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("cross-household get err = %v, want ErrNotFound", err)
	}
}

func TestLocationDeleteInUse(t *testing.T) {
	db := setupTestDB(t)
	ls := NewLocationStore(db)
	ctx := context.Background()
	h := seedHousehold(t, db, "INUSE001")

	loc, err := ls.Create(ctx, h.ID, "Nevera", false)
	if err != nil {
		t.Fatalf("create location: %v", err)
	}
	p, err := NewProductStore(db).GetOrCreateByName(ctx, h.ID, "Yogur", "")
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	line, err := NewStockStore(db).Insert(ctx, &model.StockLine{
		HouseholdID: h.ID, ProductID: p.ID, LocationID: loc.ID, Quantity: 2,
		ExpiresOn: model.MustParseDate("2026-02-01"), Lifecycle: model.Sealed{},
	})
	if err != nil {
		t.Fatalf("insert stock: %v", err)
	}

	if err := ls.Delete(ctx, h.ID, loc.ID); !errors.Is(err, model.ErrInUse) {
		t.Fatalf("delete referenced err = %v, want ErrInUse", err)
	}
	other := seedHousehold(t, db, "INUSE002")
	if err := ls.Delete(ctx, other.ID, loc.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("delete from other household err = %v, want ErrNotFound", err)
	}

	if err := NewStockStore(db).Delete(ctx, h.ID, line.ID); err != nil {
		t.Fatalf("delete stock: %v", err)
	}
	if err := ls.Delete(ctx, h.ID, loc.ID); err != nil {
		t.Fatalf("delete unreferenced: %v", err)
	}
}

func TestLocationSeedDefaults(t *testing.T) {
	db := setupTestDB(t)
	ls := NewLocationStore(db)
	ctx := context.Background()
	h := seedHousehold(t, db, "SEED0001")

	if err := ls.SeedDefaults(ctx, h.ID); err != nil {
		t.Fatalf("seed defaults: %v", err)
	}
	locs, err := ls.List(ctx, h.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(locs) != 3 {
		t.Fatalf("got %d locations, want 3", len(locs))
	}
	freezers := 0
	for _, l := range locs {
		if l.IsFreezer {
			freezers++
		}
	}
	if freezers != 1 {
		t.Errorf("freezers = %d, want 1", freezers)
	}
}
