package alerts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dukerupert/larder/internal/clock"
	"github.com/dukerupert/larder/internal/database"
	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/store"
)

var today = model.MustParseDate("2026-03-10")

type fixture struct {
	projector *Projector
	stock     *store.StockStore
	products  *store.ProductStore
	hid       int64
	loc       int64
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	h, err := store.NewHouseholdStore(db).Create(ctx, "Casa", "owner", "ALERTS01", "")
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	loc, err := store.NewLocationStore(db).Create(ctx, h.ID, "Nevera", false)
	if err != nil {
		t.Fatalf("create location: %v", err)
	}
	clk := clock.Fixed(time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC))
	return &fixture{
		projector: New(db, clk),
		stock:     store.NewStockStore(db),
		products:  store.NewProductStore(db),
		hid:       h.ID,
		loc:       loc.ID,
	}
}

func (f *fixture) line(t *testing.T, name string, days int, lc model.Lifecycle) int64 {
	t.Helper()
	ctx := context.Background()
	p, err := f.products.GetOrCreateByName(ctx, f.hid, name, "")
	if err != nil {
		t.Fatalf("product %q: %v", name, err)
	}
	l, err := f.stock.Insert(ctx, &model.StockLine{
		HouseholdID: f.hid,
		ProductID:   p.ID,
		LocationID:  f.loc,
		Quantity:    1,
		ExpiresOn:   today.AddDays(days),
		Lifecycle:   lc,
	})
	if err != nil {
		t.Fatalf("insert line: %v", err)
	}
	return l.ID
}

func TestGetOrdersByUrgency(t *testing.T) {
	f := setup(t)
	open := f.line(t, "Leche", 3, model.Opened{On: today, ShelfLifeDays: 3})
	sealedToday := f.line(t, "Pan", 0, model.Sealed{})
	thawedToday := f.line(t, "Pollo", 0, model.Thawed{On: today.AddDays(-2), FrozenOn: today.AddDays(-20), ShelfLifeDays: 2})
	expired := f.line(t, "Yogur", -1, model.Sealed{})
	f.line(t, "Guisantes", -5, model.Frozen{On: today.AddDays(-30)})
	f.line(t, "Arroz", 11, model.Sealed{})

	got, err := f.projector.Get(context.Background(), f.hid, DefaultHorizonDays)
	if err != nil {
		t.Fatalf("get alerts: %v", err)
	}

	want := []struct {
		id   int64
		days int
	}{
		{expired, -1},
		{thawedToday, 0},
		{sealedToday, 0},
		{open, 3},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d alerts, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].ID != w.id || got[i].DaysLeft != w.days {
			t.Errorf("alert %d = line %d (%d days), want line %d (%d days)", i, got[i].ID, got[i].DaysLeft, w.id, w.days)
		}
	}
}

func TestGetHorizonBoundary(t *testing.T) {
	f := setup(t)
	f.line(t, "Queso", 3, model.Sealed{})
	f.line(t, "Jamón", 4, model.Sealed{})

	got, err := f.projector.Get(context.Background(), f.hid, 3)
	if err != nil {
		t.Fatalf("get alerts: %v", err)
	}
	if len(got) != 1 || got[0].ProductName != "Queso" {
		t.Errorf("alerts = %+v, want only Queso", got)
	}
}

func TestGetTiesBrokenByName(t *testing.T) {
	f := setup(t)
	f.line(t, "manzana", 2, model.Sealed{})
	f.line(t, "Banana", 2, model.Sealed{})

	got, err := f.projector.Get(context.Background(), f.hid, 5)
	if err != nil {
		t.Fatalf("get alerts: %v", err)
	}
	if len(got) != 2 || got[0].ProductName != "Banana" {
		t.Errorf("first alert = %q, want Banana", got[0].ProductName)
	}
}

func TestGetRejectsBadHorizon(t *testing.T) {
	f := setup(t)
	for _, days := range []int{-1, MaxHorizonDays + 1} {
		if _, err := f.projector.Get(context.Background(), f.hid, days); !errors.Is(err, model.ErrValidation) {
			t.Errorf("horizon %d: err = %v, want ErrValidation", days, err)
		}
	}
}
