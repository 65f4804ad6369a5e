package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/store"
)

// Consume uses up one unit. It returns the remaining line, or nil once the
// last unit is gone and the line deleted.
func (s *Service) Consume(ctx context.Context, householdID, stockID int64) (*model.StockView, error) {
	return s.remove(ctx, "consume", householdID, stockID, 1)
}

// RemoveQuantity discards q units. Asking for more than the line holds
// fails with ErrInsufficientQuantity.
func (s *Service) RemoveQuantity(ctx context.Context, householdID, stockID int64, q int) (*model.StockView, error) {
	return s.remove(ctx, "remove", householdID, stockID, q)
}

func (s *Service) remove(ctx context.Context, op string, householdID, stockID int64, q int) (*model.StockView, error) {
	var out *model.StockView
	err := s.run(ctx, op, householdID, func(ctx context.Context, st stores) error {
		line, err := st.stock.Get(ctx, householdID, stockID)
		if err != nil {
			return err
		}
		if err := requireQuantity(q, line.Quantity); err != nil {
			return err
		}
		deleted, err := take(ctx, st, line, q)
		if err != nil || deleted {
			return err
		}
		out, err = st.stock.GetView(ctx, householdID, line.ID)
		return err
	})
	return out, err
}

// Delete removes a line regardless of its quantity.
func (s *Service) Delete(ctx context.Context, householdID, stockID int64) error {
	return s.run(ctx, "delete", householdID, func(ctx context.Context, st stores) error {
		return st.stock.Delete(ctx, householdID, stockID)
	})
}

// Details is a partial update of a line. Nil fields are left alone.
type Details struct {
	ProductName *string
	Brand       *string
	ExpiresOn   *model.Date
	Quantity    *int
	LocationID  *int64
}

// UpdateDetails edits a line. Name and brand changes apply to the product
// itself. Quantity zero deletes the line and returns nil with no error. If
// the new location or expiration makes the line collide with another line's
// grouping key, the two are merged and the surviving line returned.
func (s *Service) UpdateDetails(ctx context.Context, householdID, stockID int64, d Details) (*model.StockView, error) {
	var out *model.StockView
	err := s.run(ctx, "update", householdID, func(ctx context.Context, st stores) error {
		line, err := st.stock.Get(ctx, householdID, stockID)
		if err != nil {
			return err
		}

		if d.Quantity != nil {
			switch {
			case *d.Quantity < 0:
				return fmt.Errorf("quantity cannot be negative: %w", model.ErrValidation)
			case *d.Quantity == 0:
				return st.stock.Delete(ctx, householdID, line.ID)
			}
			line.Quantity = *d.Quantity
		}

		if d.ProductName != nil || d.Brand != nil {
			if _, err := st.products.Update(ctx, householdID, line.ProductID, store.ProductUpdate{
				Name:  d.ProductName,
				Brand: d.Brand,
			}); err != nil {
				return err
			}
		}

		if d.LocationID != nil && *d.LocationID != line.LocationID {
			loc, err := st.locations.GetByID(ctx, householdID, *d.LocationID)
			if err != nil {
				return err
			}
			line.LocationID = loc.ID
		}
		if d.ExpiresOn != nil {
			line.ExpiresOn = *d.ExpiresOn
		}

		id := line.ID
		existing, err := st.stock.FindByKey(ctx, line.Key(), line.ID)
		switch {
		case err == nil:
			existing.Quantity += line.Quantity
			if err := st.stock.SetQuantity(ctx, householdID, existing.ID, existing.Quantity); err != nil {
				return err
			}
			if err := st.stock.Delete(ctx, householdID, line.ID); err != nil {
				return err
			}
			id = existing.ID
		case errors.Is(err, model.ErrNotFound):
			if err := st.stock.Save(ctx, line); err != nil {
				return err
			}
		default:
			return err
		}

		out, err = st.stock.GetView(ctx, householdID, id)
		return err
	})
	return out, err
}
