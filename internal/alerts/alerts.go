// Package alerts projects stock lines into expiration alerts.
package alerts

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/dukerupert/larder/internal/clock"
	"github.com/dukerupert/larder/internal/database"
	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/store"
)

const (
	DefaultHorizonDays = 10
	MaxHorizonDays     = 365
)

// Alert is a stock line that expires within the horizon.
type Alert struct {
	model.StockView
	DaysLeft int
}

// Projector reads the ledger; it never writes.
type Projector struct {
	db    database.DBTX
	clock clock.Clock
}

func New(db database.DBTX, clk clock.Clock) *Projector {
	return &Projector{db: db, clock: clk}
}

// Get returns every non-frozen line of the household expiring within
// horizonDays of today, already-expired lines included. Alerts are ordered
// by days left, then thawed before open before sealed, then product name.
func (p *Projector) Get(ctx context.Context, householdID int64, horizonDays int) ([]Alert, error) {
	if horizonDays < 0 || horizonDays > MaxHorizonDays {
		return nil, fmt.Errorf("horizon must be between 0 and %d days: %w", MaxHorizonDays, model.ErrValidation)
	}
	today := p.clock.Today()
	views, err := store.NewStockStore(p.db).ListExpiring(ctx, householdID, today.AddDays(horizonDays))
	if err != nil {
		return nil, err
	}

	out := make([]Alert, 0, len(views))
	for _, v := range views {
		out = append(out, Alert{StockView: v, DaysLeft: v.DaysLeft(today)})
	}
	slices.SortFunc(out, compare)
	return out, nil
}

// Today is the day DaysLeft is counted from.
func (p *Projector) Today() model.Date {
	return p.clock.Today()
}

// urgency ranks states that spoil faster first.
func urgency(s model.State) int {
	switch s {
	case model.StateThawed:
		return 0
	case model.StateOpen:
		return 1
	default:
		return 2
	}
}

func compare(a, b Alert) int {
	if c := cmp.Compare(a.DaysLeft, b.DaysLeft); c != 0 {
		return c
	}
	if c := cmp.Compare(urgency(a.State()), urgency(b.State())); c != 0 {
		return c
	}
	if c := strings.Compare(strings.ToLower(a.ProductName), strings.ToLower(b.ProductName)); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
