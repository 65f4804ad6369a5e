package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dukerupert/larder/internal/model"
)

func TestOpenConservesQuantity(t *testing.T) {
	const total = 4
	for q := 1; q <= total; q++ {
		t.Run(fmt.Sprintf("open %d of %d", q, total), func(t *testing.T) {
			f := setupLedger(t)
			milk := f.product(t, "Milk")
			src := f.add(t, milk, f.fridge, total, today.AddDays(10))

			res, err := f.ledger.Open(context.Background(), f.hid, src.ID, OpenRequest{Quantity: q, KeepExpiration: true})
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			if res.Processed != q {
				t.Errorf("processed = %d, want %d", res.Processed, q)
			}
			if got := f.total(t); got != total {
				t.Errorf("total = %d, want %d", got, total)
			}
			if q == total {
				if res.OriginalID != nil {
					t.Errorf("original id = %d, want nil when source used up", *res.OriginalID)
				}
				if _, err := f.ledger.Get(context.Background(), f.hid, src.ID); !errors.Is(err, model.ErrNotFound) {
					t.Errorf("source err = %v, want ErrNotFound", err)
				}
			} else if got := f.get(t, src.ID).Quantity; got != total-q {
				t.Errorf("source quantity = %d, want %d", got, total-q)
			}
		})
	}
}

func TestOpenExpiration(t *testing.T) {
	f := setupLedger(t)
	milk := f.product(t, "Milk")
	printed := today.AddDays(20)
	src := f.add(t, milk, f.fridge, 3, printed)

	kept, err := f.ledger.Open(context.Background(), f.hid, src.ID, OpenRequest{Quantity: 1, KeepExpiration: true})
	if err != nil {
		t.Fatalf("open keep: %v", err)
	}
	if got := f.get(t, kept.NewID); got.ExpiresOn != printed {
		t.Errorf("kept expiration = %s, want %s", got.ExpiresOn, printed)
	}

	recomputed, err := f.ledger.Open(context.Background(), f.hid, src.ID, OpenRequest{Quantity: 1, ShelfLifeDays: 3})
	if err != nil {
		t.Fatalf("open recompute: %v", err)
	}
	got := f.get(t, recomputed.NewID)
	if got.ExpiresOn != today.AddDays(3) {
		t.Errorf("recomputed expiration = %s, want %s", got.ExpiresOn, today.AddDays(3))
	}
	opened, ok := got.Lifecycle.(model.Opened)
	if !ok {
		t.Fatalf("lifecycle = %T, want Opened", got.Lifecycle)
	}
	if opened.On != today || opened.ShelfLifeDays != 3 {
		t.Errorf("opened = %+v, want today with 3 days", opened)
	}
}

func TestOpenDefaultsShelfLife(t *testing.T) {
	f := setupLedger(t)
	milk := f.product(t, "Milk")
	src := f.add(t, milk, f.fridge, 2, today.AddDays(20))

	res, err := f.ledger.Open(context.Background(), f.hid, src.ID, OpenRequest{Quantity: 1})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got := f.get(t, res.NewID).ExpiresOn; got != today.AddDays(DefaultOpenShelfLifeDays) {
		t.Errorf("expiration = %s, want today + %d", got, DefaultOpenShelfLifeDays)
	}

	_, err = f.ledger.Open(context.Background(), f.hid, src.ID, OpenRequest{Quantity: 1, ShelfLifeDays: 31})
	if !errors.Is(err, model.ErrValidation) {
		t.Errorf("31 day shelf life err = %v, want ErrValidation", err)
	}
}

func TestOpenNeverMerges(t *testing.T) {
	f := setupLedger(t)
	milk := f.product(t, "Milk")
	src := f.add(t, milk, f.fridge, 4, today.AddDays(10))

	a, err := f.ledger.Open(context.Background(), f.hid, src.ID, OpenRequest{Quantity: 1, KeepExpiration: true})
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	b, err := f.ledger.Open(context.Background(), f.hid, src.ID, OpenRequest{Quantity: 1, KeepExpiration: true})
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	if a.NewID == b.NewID {
		t.Error("two openings merged into one line")
	}
}

func TestOpenToTargetLocation(t *testing.T) {
	f := setupLedger(t)
	jam := f.product(t, "Mermelada")
	src := f.add(t, jam, f.pantry, 2, today.AddDays(100))

	res, err := f.ledger.Open(context.Background(), f.hid, src.ID, OpenRequest{Quantity: 1, TargetLocationID: &f.fridge, ShelfLifeDays: 30})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got := f.get(t, res.NewID).LocationID; got != f.fridge {
		t.Errorf("location = %d, want fridge %d", got, f.fridge)
	}
}

func TestInvalidTransitionsMutateNothing(t *testing.T) {
	f := setupLedger(t)
	ctx := context.Background()
	milk := f.product(t, "Milk")
	sealed := f.add(t, milk, f.fridge, 3, today.AddDays(10))
	frozen := f.add(t, milk, f.freezer, 2, today.AddDays(10))
	openRes, err := f.ledger.Open(ctx, f.hid, sealed.ID, OpenRequest{Quantity: 1, KeepExpiration: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	before := f.lineCount(t)

	tests := []struct {
		name string
		fn   func() error
	}{
		{"open an open line", func() error {
			_, err := f.ledger.Open(ctx, f.hid, openRes.NewID, OpenRequest{Quantity: 1})
			return err
		}},
		{"open a frozen line", func() error {
			_, err := f.ledger.Open(ctx, f.hid, frozen.ID, OpenRequest{Quantity: 1})
			return err
		}},
		{"freeze a frozen line", func() error {
			_, err := f.ledger.Freeze(ctx, f.hid, frozen.ID, FreezeRequest{Quantity: 1, FreezerLocationID: f.freezer})
			return err
		}},
		{"thaw a sealed line", func() error {
			_, err := f.ledger.Thaw(ctx, f.hid, sealed.ID, ThawRequest{Quantity: 1, TargetLocationID: f.fridge})
			return err
		}},
		{"thaw an open line", func() error {
			_, err := f.ledger.Thaw(ctx, f.hid, openRes.NewID, ThawRequest{Quantity: 1, TargetLocationID: f.fridge})
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, model.ErrInvalidState) {
				t.Errorf("err = %v, want ErrInvalidState", err)
			}
			if got := f.total(t); got != 5 {
				t.Errorf("total = %d, want 5", got)
			}
			if got := f.lineCount(t); got != before {
				t.Errorf("lines = %d, want %d", got, before)
			}
		})
	}
}

func TestQuantityAboveAvailableFails(t *testing.T) {
	f := setupLedger(t)
	milk := f.product(t, "Milk")
	src := f.add(t, milk, f.fridge, 2, today.AddDays(10))

	_, err := f.ledger.Open(context.Background(), f.hid, src.ID, OpenRequest{Quantity: 3})
	if !errors.Is(err, model.ErrInsufficientQuantity) {
		t.Errorf("open err = %v, want ErrInsufficientQuantity", err)
	}
	_, err = f.ledger.Freeze(context.Background(), f.hid, src.ID, FreezeRequest{Quantity: 3, FreezerLocationID: f.freezer})
	if !errors.Is(err, model.ErrInsufficientQuantity) {
		t.Errorf("freeze err = %v, want ErrInsufficientQuantity", err)
	}
	_, err = f.ledger.Relocate(context.Background(), f.hid, src.ID, RelocateRequest{Quantity: 3, TargetLocationID: f.pantry})
	if !errors.Is(err, model.ErrInsufficientQuantity) {
		t.Errorf("relocate err = %v, want ErrInsufficientQuantity", err)
	}
	if got := f.get(t, src.ID).Quantity; got != 2 {
		t.Errorf("quantity = %d, want 2", got)
	}
}

func TestFreezeThenThaw(t *testing.T) {
	f := setupLedger(t)
	ctx := context.Background()
	chicken := f.product(t, "Pollo")
	src := f.add(t, chicken, f.fridge, 4, today.AddDays(10))

	frz, err := f.ledger.Freeze(ctx, f.hid, src.ID, FreezeRequest{Quantity: 2, FreezerLocationID: f.freezer})
	if err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if got := f.get(t, src.ID); got.Quantity != 2 || got.State() != model.StateSealed {
		t.Errorf("source = %d %s, want 2 sealed", got.Quantity, got.State())
	}
	frozen := f.get(t, frz.NewID)
	if frozen.Quantity != 2 || frozen.State() != model.StateFrozen || frozen.LocationID != f.freezer {
		t.Errorf("frozen line = %d %s @%d, want 2 frozen in freezer", frozen.Quantity, frozen.State(), frozen.LocationID)
	}
	if frozen.ExpiresOn != today.AddDays(10) {
		t.Errorf("frozen expiration = %s, want carried over", frozen.ExpiresOn)
	}

	thw, err := f.ledger.Thaw(ctx, f.hid, frz.NewID, ThawRequest{Quantity: 2, TargetLocationID: f.fridge, ShelfLifeDays: 2})
	if err != nil {
		t.Fatalf("thaw: %v", err)
	}
	if thw.NewID != frz.NewID {
		t.Errorf("full thaw id = %d, want line %d changed in place", thw.NewID, frz.NewID)
	}
	thawed := f.get(t, frz.NewID)
	if thawed.State() != model.StateThawed {
		t.Errorf("state = %s, want thawed", thawed.State())
	}
	if thawed.ExpiresOn != today.AddDays(2) {
		t.Errorf("expiration = %s, want %s", thawed.ExpiresOn, today.AddDays(2))
	}
	if thawed.LocationID != f.fridge {
		t.Errorf("location = %d, want fridge", thawed.LocationID)
	}
	cols := model.EncodeLifecycle(thawed.Lifecycle)
	if cols.OpenedOn == nil || *cols.OpenedOn != today {
		t.Errorf("opened on = %v, want today", cols.OpenedOn)
	}
	if cols.FrozenOn == nil || *cols.FrozenOn != today {
		t.Errorf("frozen on = %v, want freeze date kept", cols.FrozenOn)
	}
}

func TestThawPartialSplits(t *testing.T) {
	f := setupLedger(t)
	ctx := context.Background()
	peas := f.product(t, "Guisantes")
	src := f.add(t, peas, f.freezer, 5, today.AddDays(200))

	res, err := f.ledger.Thaw(ctx, f.hid, src.ID, ThawRequest{Quantity: 2, TargetLocationID: f.fridge})
	if err != nil {
		t.Fatalf("thaw: %v", err)
	}
	if res.OriginalID == nil || *res.OriginalID != src.ID {
		t.Errorf("original id = %v, want %d", res.OriginalID, src.ID)
	}
	if got := f.get(t, src.ID); got.Quantity != 3 || got.State() != model.StateFrozen {
		t.Errorf("source = %d %s, want 3 frozen", got.Quantity, got.State())
	}
	thawed := f.get(t, res.NewID)
	if thawed.Quantity != 2 || thawed.State() != model.StateThawed {
		t.Errorf("thawed = %d %s, want 2 thawed", thawed.Quantity, thawed.State())
	}
	if thawed.ExpiresOn != today.AddDays(DefaultThawShelfLifeDays) {
		t.Errorf("expiration = %s, want default thaw window", thawed.ExpiresOn)
	}
	if got := f.total(t); got != 5 {
		t.Errorf("total = %d, want 5", got)
	}
}

func TestFreezeRequiresFreezerLocation(t *testing.T) {
	f := setupLedger(t)
	milk := f.product(t, "Milk")
	src := f.add(t, milk, f.fridge, 2, today.AddDays(10))

	_, err := f.ledger.Freeze(context.Background(), f.hid, src.ID, FreezeRequest{Quantity: 1, FreezerLocationID: f.pantry})
	if !errors.Is(err, model.ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}
}

func TestFreezeOpenedKeepsOpeningHistory(t *testing.T) {
	f := setupLedger(t)
	ctx := context.Background()
	sauce := f.product(t, "Tomate")
	src := f.add(t, sauce, f.fridge, 1, today.AddDays(30))
	opened, err := f.ledger.Open(ctx, f.hid, src.ID, OpenRequest{Quantity: 1, ShelfLifeDays: 5})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	res, err := f.ledger.Freeze(ctx, f.hid, opened.NewID, FreezeRequest{Quantity: 1, FreezerLocationID: f.freezer})
	if err != nil {
		t.Fatalf("freeze: %v", err)
	}
	frozen, ok := f.get(t, res.NewID).Lifecycle.(model.Frozen)
	if !ok {
		t.Fatal("expected frozen lifecycle")
	}
	if frozen.Opened == nil || frozen.Opened.On != today || frozen.Opened.ShelfLifeDays != 5 {
		t.Errorf("opened history = %+v, want today with 5 days", frozen.Opened)
	}
}

func TestRelocateMergesIntoExistingLine(t *testing.T) {
	f := setupLedger(t)
	p := f.product(t, "Arroz")
	exp := today.AddDays(100)
	a := f.add(t, p, f.fridge, 3, exp)
	b := f.add(t, p, f.pantry, 5, exp)

	res, err := f.ledger.Relocate(context.Background(), f.hid, a.ID, RelocateRequest{Quantity: 3, TargetLocationID: f.pantry})
	if err != nil {
		t.Fatalf("relocate: %v", err)
	}
	if !res.Merged || res.NewID != b.ID {
		t.Errorf("merged, new id = %v, %d; want true, %d", res.Merged, res.NewID, b.ID)
	}
	if _, err := f.ledger.Get(context.Background(), f.hid, a.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("line A err = %v, want ErrNotFound", err)
	}
	if got := f.get(t, b.ID).Quantity; got != 8 {
		t.Errorf("line B quantity = %d, want 8", got)
	}
}

func TestRelocatePreservesLifecycle(t *testing.T) {
	f := setupLedger(t)
	ctx := context.Background()
	p := f.product(t, "Leche")
	src := f.add(t, p, f.fridge, 3, today.AddDays(10))
	opened, err := f.ledger.Open(ctx, f.hid, src.ID, OpenRequest{Quantity: 2, ShelfLifeDays: 4})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	res, err := f.ledger.Relocate(ctx, f.hid, opened.NewID, RelocateRequest{Quantity: 1, TargetLocationID: f.pantry})
	if err != nil {
		t.Fatalf("relocate: %v", err)
	}
	if res.Merged {
		t.Error("relocate merged with a line in another state")
	}
	moved := f.get(t, res.NewID)
	got, ok := moved.Lifecycle.(model.Opened)
	if !ok || got.On != today || got.ShelfLifeDays != 4 {
		t.Errorf("lifecycle = %+v, want opened today with 4 days", moved.Lifecycle)
	}
	if f.get(t, opened.NewID).Quantity != 1 {
		t.Error("source not decremented")
	}
	if total := f.total(t); total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
}

func TestRelocateToSameLocationFails(t *testing.T) {
	f := setupLedger(t)
	p := f.product(t, "Arroz")
	src := f.add(t, p, f.pantry, 1, today.AddDays(100))

	_, err := f.ledger.Relocate(context.Background(), f.hid, src.ID, RelocateRequest{Quantity: 1, TargetLocationID: f.pantry})
	if !errors.Is(err, model.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestTransitionsOnMissingLine(t *testing.T) {
	f := setupLedger(t)
	_, err := f.ledger.Open(context.Background(), f.hid, 424242, OpenRequest{Quantity: 1})
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
