package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukerupert/larder/internal/model"
)

const (
	DefaultOpenShelfLifeDays = 4
	MaxOpenShelfLifeDays     = 30
	DefaultThawShelfLifeDays = 2
	MaxThawShelfLifeDays     = 7
)

// OpenRequest opens units of a sealed line.
type OpenRequest struct {
	Quantity int
	// TargetLocationID defaults to the source line's location.
	TargetLocationID *int64
	// KeepExpiration keeps the printed date instead of today + ShelfLifeDays.
	KeepExpiration bool
	// ShelfLifeDays defaults to the product's own value, then to
	// DefaultOpenShelfLifeDays.
	ShelfLifeDays int
}

// Open splits opened units off a sealed line into a new open line. Opened
// batches never merge: each opening is tracked by its own date.
func (s *Service) Open(ctx context.Context, householdID, stockID int64, req OpenRequest) (*Result, error) {
	var out *Result
	err := s.run(ctx, "open", householdID, func(ctx context.Context, st stores) error {
		line, err := st.stock.Get(ctx, householdID, stockID)
		if err != nil {
			return err
		}
		if line.State() != model.StateSealed {
			return fmt.Errorf("open stock line %d in state %s: %w", line.ID, line.State(), model.ErrInvalidState)
		}
		if err := requireQuantity(req.Quantity, line.Quantity); err != nil {
			return err
		}

		target := line.LocationID
		if req.TargetLocationID != nil {
			loc, err := st.locations.GetByID(ctx, householdID, *req.TargetLocationID)
			if err != nil {
				return err
			}
			target = loc.ID
		}

		days := req.ShelfLifeDays
		if days == 0 {
			p, err := st.products.GetByID(ctx, householdID, line.ProductID)
			if err != nil {
				return err
			}
			days = DefaultOpenShelfLifeDays
			if p.ShelfLifeDays != nil && *p.ShelfLifeDays > 0 {
				days = min(*p.ShelfLifeDays, MaxOpenShelfLifeDays)
			}
		}
		if days < 1 || days > MaxOpenShelfLifeDays {
			return fmt.Errorf("shelf life must be between 1 and %d days: %w", MaxOpenShelfLifeDays, model.ErrValidation)
		}

		today := s.Today()
		expires := today.AddDays(days)
		if req.KeepExpiration {
			expires = line.ExpiresOn
		}

		deleted, err := take(ctx, st, line, req.Quantity)
		if err != nil {
			return err
		}
		opened, err := st.stock.Insert(ctx, &model.StockLine{
			HouseholdID: householdID,
			ProductID:   line.ProductID,
			LocationID:  target,
			Quantity:    req.Quantity,
			ExpiresOn:   expires,
			Lifecycle:   model.Opened{On: today, ShelfLifeDays: days},
		})
		if err != nil {
			return err
		}

		out = &Result{
			Message:    fmt.Sprintf("opened %d", req.Quantity),
			OriginalID: remainingID(line, deleted),
			NewID:      opened.ID,
			Processed:  req.Quantity,
		}
		return nil
	})
	return out, err
}

// FreezeRequest freezes units of a line into a freezer location.
type FreezeRequest struct {
	Quantity          int
	FreezerLocationID int64
}

// Freeze splits units off any non-frozen line into a new frozen line. The
// expiration is carried over for reference only.
func (s *Service) Freeze(ctx context.Context, householdID, stockID int64, req FreezeRequest) (*Result, error) {
	var out *Result
	err := s.run(ctx, "freeze", householdID, func(ctx context.Context, st stores) error {
		line, err := st.stock.Get(ctx, householdID, stockID)
		if err != nil {
			return err
		}
		if line.State() == model.StateFrozen {
			return fmt.Errorf("freeze stock line %d: already frozen: %w", line.ID, model.ErrInvalidState)
		}
		if err := requireQuantity(req.Quantity, line.Quantity); err != nil {
			return err
		}
		freezer, err := st.locations.GetByID(ctx, householdID, req.FreezerLocationID)
		if err != nil {
			return err
		}
		if !freezer.IsFreezer {
			return fmt.Errorf("location %q is not a freezer: %w", freezer.Name, model.ErrInvalidState)
		}

		frozen := model.Frozen{On: s.Today()}
		switch v := line.Lifecycle.(type) {
		case model.Opened:
			frozen.Opened = &v
		case model.Thawed:
			frozen.Opened = &model.Opened{On: v.On, ShelfLifeDays: v.ShelfLifeDays}
		}

		deleted, err := take(ctx, st, line, req.Quantity)
		if err != nil {
			return err
		}
		created, err := st.stock.Insert(ctx, &model.StockLine{
			HouseholdID: householdID,
			ProductID:   line.ProductID,
			LocationID:  freezer.ID,
			Quantity:    req.Quantity,
			ExpiresOn:   line.ExpiresOn,
			Lifecycle:   frozen,
		})
		if err != nil {
			return err
		}

		out = &Result{
			Message:    fmt.Sprintf("froze %d", req.Quantity),
			OriginalID: remainingID(line, deleted),
			NewID:      created.ID,
			Processed:  req.Quantity,
		}
		return nil
	})
	return out, err
}

// ThawRequest thaws units of a frozen line.
type ThawRequest struct {
	Quantity         int
	TargetLocationID int64
	// ShelfLifeDays defaults to DefaultThawShelfLifeDays.
	ShelfLifeDays int
}

// Thaw moves frozen units to the target location with a short consumption
// window. Thawing the whole line changes it in place; thawing part of it
// splits the thawed units into a new line and leaves the rest frozen.
func (s *Service) Thaw(ctx context.Context, householdID, stockID int64, req ThawRequest) (*Result, error) {
	var out *Result
	err := s.run(ctx, "thaw", householdID, func(ctx context.Context, st stores) error {
		line, err := st.stock.Get(ctx, householdID, stockID)
		if err != nil {
			return err
		}
		frozen, ok := line.Lifecycle.(model.Frozen)
		if !ok {
			return fmt.Errorf("thaw stock line %d in state %s: %w", line.ID, line.State(), model.ErrInvalidState)
		}
		if err := requireQuantity(req.Quantity, line.Quantity); err != nil {
			return err
		}
		target, err := st.locations.GetByID(ctx, householdID, req.TargetLocationID)
		if err != nil {
			return err
		}
		days := req.ShelfLifeDays
		if days == 0 {
			days = DefaultThawShelfLifeDays
		}
		if days < 1 || days > MaxThawShelfLifeDays {
			return fmt.Errorf("thawed shelf life must be between 1 and %d days: %w", MaxThawShelfLifeDays, model.ErrValidation)
		}

		today := s.Today()
		thawed := model.Thawed{On: today, FrozenOn: frozen.On, ShelfLifeDays: days}

		if req.Quantity == line.Quantity {
			line.LocationID = target.ID
			line.ExpiresOn = today.AddDays(days)
			line.Lifecycle = thawed
			if err := st.stock.Save(ctx, line); err != nil {
				return err
			}
			out = &Result{
				Message:    fmt.Sprintf("thawed %d", req.Quantity),
				OriginalID: nil,
				NewID:      line.ID,
				Processed:  req.Quantity,
			}
			return nil
		}

		if _, err := take(ctx, st, line, req.Quantity); err != nil {
			return err
		}
		created, err := st.stock.Insert(ctx, &model.StockLine{
			HouseholdID: householdID,
			ProductID:   line.ProductID,
			LocationID:  target.ID,
			Quantity:    req.Quantity,
			ExpiresOn:   today.AddDays(days),
			Lifecycle:   thawed,
		})
		if err != nil {
			return err
		}
		out = &Result{
			Message:    fmt.Sprintf("thawed %d", req.Quantity),
			OriginalID: remainingID(line, false),
			NewID:      created.ID,
			Processed:  req.Quantity,
		}
		return nil
	})
	return out, err
}

// RelocateRequest moves units of a line to another location.
type RelocateRequest struct {
	Quantity         int
	TargetLocationID int64
}

// Relocate moves units to another location, merging with a line that
// already holds the same product, expiration and state there.
func (s *Service) Relocate(ctx context.Context, householdID, stockID int64, req RelocateRequest) (*Result, error) {
	var out *Result
	err := s.run(ctx, "relocate", householdID, func(ctx context.Context, st stores) error {
		line, err := st.stock.Get(ctx, householdID, stockID)
		if err != nil {
			return err
		}
		if req.TargetLocationID == line.LocationID {
			return fmt.Errorf("stock line %d is already in location %d: %w", line.ID, line.LocationID, model.ErrValidation)
		}
		if err := requireQuantity(req.Quantity, line.Quantity); err != nil {
			return err
		}
		target, err := st.locations.GetByID(ctx, householdID, req.TargetLocationID)
		if err != nil {
			return err
		}

		key := line.Key()
		key.LocationID = target.ID
		existing, err := st.stock.FindByKey(ctx, key, line.ID)
		if err != nil && !errors.Is(err, model.ErrNotFound) {
			return err
		}

		deleted, err := take(ctx, st, line, req.Quantity)
		if err != nil {
			return err
		}

		out = &Result{
			Message:    fmt.Sprintf("moved %d", req.Quantity),
			OriginalID: remainingID(line, deleted),
			Processed:  req.Quantity,
		}
		if existing != nil {
			if err := st.stock.SetQuantity(ctx, householdID, existing.ID, existing.Quantity+req.Quantity); err != nil {
				return err
			}
			out.NewID, out.Merged = existing.ID, true
			return nil
		}

		moved, err := st.stock.Insert(ctx, &model.StockLine{
			HouseholdID: householdID,
			ProductID:   line.ProductID,
			LocationID:  target.ID,
			Quantity:    req.Quantity,
			ExpiresOn:   line.ExpiresOn,
			Lifecycle:   line.Lifecycle,
		})
		if err != nil {
			return err
		}
		out.NewID = moved.ID
		return nil
	})
	return out, err
}
