// Package ledger owns stock lines: entry, grouping, lifecycle transitions and
// quantity changes. Every mutation runs in a single transaction; preconditions
// are checked before the first write, so a failed operation changes nothing.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukerupert/larder/internal/clock"
	"github.com/dukerupert/larder/internal/database"
	"github.com/dukerupert/larder/internal/metrics"
	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/dukerupert/larder/internal/ledger")

// Service is the stock ledger. It keeps no state between calls.
type Service struct {
	db     *sql.DB
	clock  clock.Clock
	logger *slog.Logger
}

func New(db *sql.DB, clk clock.Clock, logger *slog.Logger) *Service {
	return &Service{db: db, clock: clk, logger: logger}
}

// Today is the day expiration math is relative to.
func (s *Service) Today() model.Date {
	return s.clock.Today()
}

// stores binds every store the ledger touches to one transaction.
type stores struct {
	stock     *store.StockStore
	locations *store.LocationStore
	products  *store.ProductStore
	shopping  *store.ShoppingStore
}

func bind(tx database.DBTX) stores {
	return stores{
		stock:     store.NewStockStore(tx),
		locations: store.NewLocationStore(tx),
		products:  store.NewProductStore(tx),
		shopping:  store.NewShoppingStore(tx),
	}
}

// run executes fn in a transaction inside a span and records the outcome.
func (s *Service) run(ctx context.Context, op string, householdID int64, fn func(ctx context.Context, st stores) error) error {
	ctx, span := tracer.Start(ctx, "ledger."+op, trace.WithAttributes(attribute.Int64("household.id", householdID)))
	defer span.End()

	err := database.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(ctx, bind(tx))
	})
	metrics.ObserveLedgerOp(op, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if metrics.Outcome(err) == "error" {
			s.logger.Error("ledger operation failed", "op", op, "household_id", householdID, "error", err)
		}
	}
	return err
}

// Entry describes stock being added to a household.
type Entry struct {
	ProductID  int64
	LocationID int64
	Quantity   int
	ExpiresOn  model.Date
	// State is the initial state; empty means sealed. A freezer location
	// forces frozen.
	State model.State
}

// Created is the line that received new stock.
type Created struct {
	Line   *model.StockView `json:"line"`
	Merged bool             `json:"merged"`
}

// Result reports what a transition did to the source line and where the
// units went. OriginalID is nil when the source line was used up.
type Result struct {
	Message    string `json:"message"`
	OriginalID *int64 `json:"original_id,omitempty"`
	NewID      int64  `json:"new_id"`
	Processed  int    `json:"processed_quantity"`
	Merged     bool   `json:"merged"`
}

// CreateOrMerge adds stock, merging into the line with the same grouping key
// if one exists.
func (s *Service) CreateOrMerge(ctx context.Context, householdID int64, e Entry) (*Created, error) {
	var out *Created
	err := s.run(ctx, "create", householdID, func(ctx context.Context, st stores) error {
		if _, err := st.products.GetByID(ctx, householdID, e.ProductID); err != nil {
			return err
		}
		var err error
		out, err = s.createOrMerge(ctx, st, householdID, e)
		return err
	})
	return out, err
}

func (s *Service) createOrMerge(ctx context.Context, st stores, householdID int64, e Entry) (*Created, error) {
	if e.Quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive: %w", model.ErrValidation)
	}
	if e.ExpiresOn.IsZero() {
		return nil, fmt.Errorf("expiration date is required: %w", model.ErrValidation)
	}
	loc, err := st.locations.GetByID(ctx, householdID, e.LocationID)
	if err != nil {
		return nil, err
	}

	lc, err := s.entryLifecycle(e.State, loc.IsFreezer)
	if err != nil {
		return nil, err
	}

	line := &model.StockLine{
		HouseholdID: householdID,
		ProductID:   e.ProductID,
		LocationID:  loc.ID,
		Quantity:    e.Quantity,
		ExpiresOn:   e.ExpiresOn,
		Lifecycle:   lc,
	}

	var id int64
	merged := false
	existing, err := st.stock.FindByKey(ctx, line.Key(), 0)
	switch {
	case err == nil:
		if err := st.stock.SetQuantity(ctx, householdID, existing.ID, existing.Quantity+e.Quantity); err != nil {
			return nil, err
		}
		id, merged = existing.ID, true
	case errors.Is(err, model.ErrNotFound):
		created, err := st.stock.Insert(ctx, line)
		if err != nil {
			return nil, err
		}
		id = created.ID
	default:
		return nil, err
	}

	if err := st.products.SetLastLocation(ctx, householdID, e.ProductID, loc.ID); err != nil {
		return nil, err
	}

	view, err := st.stock.GetView(ctx, householdID, id)
	if err != nil {
		return nil, err
	}
	return &Created{Line: view, Merged: merged}, nil
}

func (s *Service) entryLifecycle(state model.State, freezer bool) (model.Lifecycle, error) {
	today := s.Today()
	if freezer {
		return model.Frozen{On: today}, nil
	}
	switch state {
	case "", model.StateSealed:
		return model.Sealed{}, nil
	case model.StateOpen:
		return model.Opened{On: today}, nil
	case model.StateFrozen:
		return model.Frozen{On: today}, nil
	}
	return nil, fmt.Errorf("stock cannot be entered as %q: %w", state, model.ErrValidation)
}

// ManualEntry is stock typed in by name.
type ManualEntry struct {
	Name       string
	Brand      string
	LocationID int64
	Quantity   int
	ExpiresOn  model.Date
	State      model.State
}

// AddManual resolves the product by name, creating it if needed, and adds
// the stock.
func (s *Service) AddManual(ctx context.Context, householdID int64, e ManualEntry) (*Created, error) {
	var out *Created
	err := s.run(ctx, "add_manual", householdID, func(ctx context.Context, st stores) error {
		p, err := st.products.GetOrCreateByName(ctx, householdID, e.Name, e.Brand)
		if err != nil {
			return err
		}
		out, err = s.createOrMerge(ctx, st, householdID, Entry{
			ProductID:  p.ID,
			LocationID: e.LocationID,
			Quantity:   e.Quantity,
			ExpiresOn:  e.ExpiresOn,
			State:      e.State,
		})
		return err
	})
	return out, err
}

// ScanEntry is stock added from a barcode scan.
type ScanEntry struct {
	Barcode    string
	Name       string
	Brand      string
	ImageURL   string
	LocationID int64
	Quantity   int
	ExpiresOn  model.Date
}

// AddScanned resolves the product by barcode, creating it if needed, and
// adds the stock.
func (s *Service) AddScanned(ctx context.Context, householdID int64, e ScanEntry) (*Created, error) {
	var out *Created
	err := s.run(ctx, "add_scanned", householdID, func(ctx context.Context, st stores) error {
		p, err := st.products.GetOrCreateByBarcode(ctx, householdID, e.Barcode, e.Name, e.Brand, e.ImageURL)
		if err != nil {
			return err
		}
		out, err = s.createOrMerge(ctx, st, householdID, Entry{
			ProductID:  p.ID,
			LocationID: e.LocationID,
			Quantity:   e.Quantity,
			ExpiresOn:  e.ExpiresOn,
		})
		return err
	})
	return out, err
}

// Purchase moves a shopping-list item into stock: the product is resolved by
// the item's name, the stock added, and the item removed. Quantity zero
// means the item's own quantity.
func (s *Service) Purchase(ctx context.Context, householdID, itemID, locationID int64, quantity int, expiresOn model.Date) (*Created, error) {
	var out *Created
	err := s.run(ctx, "purchase", householdID, func(ctx context.Context, st stores) error {
		item, err := st.shopping.Get(ctx, householdID, itemID)
		if err != nil {
			return err
		}
		if quantity == 0 {
			quantity = item.Quantity
		}
		p, err := st.products.GetOrCreateByName(ctx, householdID, item.Name, "")
		if err != nil {
			return err
		}
		out, err = s.createOrMerge(ctx, st, householdID, Entry{
			ProductID:  p.ID,
			LocationID: locationID,
			Quantity:   quantity,
			ExpiresOn:  expiresOn,
		})
		if err != nil {
			return err
		}
		return st.shopping.Delete(ctx, householdID, item.ID)
	})
	return out, err
}

// Get returns one line with its product and location.
func (s *Service) Get(ctx context.Context, householdID, id int64) (*model.StockView, error) {
	return store.NewStockStore(s.db).GetView(ctx, householdID, id)
}

// requireQuantity checks 0 < q <= available.
func requireQuantity(q, available int) error {
	if q <= 0 {
		return fmt.Errorf("quantity must be positive: %w", model.ErrValidation)
	}
	if q > available {
		return fmt.Errorf("requested %d of %d available: %w", q, available, model.ErrInsufficientQuantity)
	}
	return nil
}

// take removes q units from line, deleting it when none remain. It reports
// whether the line was deleted.
func take(ctx context.Context, st stores, line *model.StockLine, q int) (bool, error) {
	if q == line.Quantity {
		if err := st.stock.Delete(ctx, line.HouseholdID, line.ID); err != nil {
			return false, err
		}
		return true, nil
	}
	line.Quantity -= q
	if err := st.stock.SetQuantity(ctx, line.HouseholdID, line.ID, line.Quantity); err != nil {
		return false, err
	}
	return false, nil
}

func remainingID(line *model.StockLine, deleted bool) *int64 {
	if deleted {
		return nil
	}
	id := line.ID
	return &id
}
