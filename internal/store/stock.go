package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dukerupert/larder/internal/database"
	"github.com/dukerupert/larder/internal/model"
)

type StockStore struct {
	db database.DBTX
}

func NewStockStore(db database.DBTX) *StockStore {
	return &StockStore{db: db}
}

const stockCols = `s.id, s.household_id, s.product_id, s.location_id, s.quantity, s.expires_on,
	s.state, s.opened_on, s.frozen_on, s.thawed_on, s.shelf_life_days, s.created_at, s.updated_at`

const stockViewCols = stockCols + `, p.name, p.brand, p.barcode, p.image_url, l.name, l.is_freezer`

const stockViewFrom = ` FROM stock_lines s
	JOIN products p ON p.id = s.product_id
	JOIN locations l ON l.id = s.location_id`

// scanStockLine reads stockCols followed by any extra destinations.
func scanStockLine(sc scanner, extra ...any) (*model.StockLine, error) {
	var l model.StockLine
	var state string
	var opened, frozen, thawed model.NullDate
	var shelfLife sql.NullInt64
	dest := append([]any{
		&l.ID, &l.HouseholdID, &l.ProductID, &l.LocationID, &l.Quantity, &l.ExpiresOn,
		&state, &opened, &frozen, &thawed, &shelfLife, &l.CreatedAt, &l.UpdatedAt,
	}, extra...)
	if err := sc.Scan(dest...); err != nil {
		return nil, err
	}
	lc, err := model.DecodeLifecycle(model.LifecycleColumns{
		State:         model.State(state),
		OpenedOn:      opened.Ptr(),
		FrozenOn:      frozen.Ptr(),
		ThawedOn:      thawed.Ptr(),
		ShelfLifeDays: nullIntPtr(shelfLife),
	})
	if err != nil {
		return nil, fmt.Errorf("stock line %d: %w", l.ID, err)
	}
	l.Lifecycle = lc
	return &l, nil
}

func scanStockView(sc scanner) (*model.StockView, error) {
	var v model.StockView
	var barcode sql.NullString
	var freezer int
	line, err := scanStockLine(sc, &v.ProductName, &v.Brand, &barcode, &v.ImageURL, &v.LocationName, &freezer)
	if err != nil {
		return nil, err
	}
	v.StockLine = *line
	v.Barcode = nullStringPtr(barcode)
	v.IsFreezer = freezer == 1
	return &v, nil
}

// Get returns the line only if it belongs to the household.
func (s *StockStore) Get(ctx context.Context, householdID, id int64) (*model.StockLine, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+stockCols+` FROM stock_lines s WHERE s.id = ? AND s.household_id = ?`, id, householdID)
	l, err := scanStockLine(row)
	if err != nil {
		return nil, translate(fmt.Sprintf("get stock line %d", id), err)
	}
	return l, nil
}

// FindByKey returns the line holding the grouping key, ignoring excludeID.
// Pass 0 to consider every line.
func (s *StockStore) FindByKey(ctx context.Context, key model.GroupingKey, excludeID int64) (*model.StockLine, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+stockCols+` FROM stock_lines s
		 WHERE s.household_id = ? AND s.product_id = ? AND s.location_id = ?
		   AND s.expires_on = ? AND s.state = ? AND s.id != ?
		 ORDER BY s.id ASC LIMIT 1`,
		key.HouseholdID, key.ProductID, key.LocationID, key.ExpiresOn, string(key.State), excludeID,
	)
	l, err := scanStockLine(row)
	if err != nil {
		return nil, translate("find stock line by key", err)
	}
	return l, nil
}

// Insert writes a new line and returns it as stored.
func (s *StockStore) Insert(ctx context.Context, l *model.StockLine) (*model.StockLine, error) {
	if l.Quantity <= 0 {
		return nil, fmt.Errorf("insert stock line with quantity %d: %w", l.Quantity, model.ErrValidation)
	}
	c := model.EncodeLifecycle(l.Lifecycle)
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO stock_lines (household_id, product_id, location_id, quantity, expires_on,
		                          state, opened_on, frozen_on, thawed_on, shelf_life_days)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.HouseholdID, l.ProductID, l.LocationID, l.Quantity, l.ExpiresOn,
		string(c.State), model.NullDateOf(c.OpenedOn), model.NullDateOf(c.FrozenOn), model.NullDateOf(c.ThawedOn), c.ShelfLifeDays,
	)
	if err != nil {
		return nil, translate("insert stock line", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.Get(ctx, l.HouseholdID, id)
}

// Save writes every mutable field of an existing line.
func (s *StockStore) Save(ctx context.Context, l *model.StockLine) error {
	if l.Quantity <= 0 {
		return fmt.Errorf("save stock line %d with quantity %d: %w", l.ID, l.Quantity, model.ErrValidation)
	}
	c := model.EncodeLifecycle(l.Lifecycle)
	result, err := s.db.ExecContext(ctx,
		`UPDATE stock_lines
		 SET product_id = ?, location_id = ?, quantity = ?, expires_on = ?, state = ?,
		     opened_on = ?, frozen_on = ?, thawed_on = ?, shelf_life_days = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND household_id = ?`,
		l.ProductID, l.LocationID, l.Quantity, l.ExpiresOn, string(c.State),
		model.NullDateOf(c.OpenedOn), model.NullDateOf(c.FrozenOn), model.NullDateOf(c.ThawedOn), c.ShelfLifeDays,
		l.ID, l.HouseholdID,
	)
	if err != nil {
		return translate(fmt.Sprintf("save stock line %d", l.ID), err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("save stock line %d: %w", l.ID, model.ErrNotFound)
	}
	return nil
}

// SetQuantity changes a line's quantity. Callers delete instead of setting
// zero.
func (s *StockStore) SetQuantity(ctx context.Context, householdID, id int64, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("set stock line %d quantity to %d: %w", id, quantity, model.ErrValidation)
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE stock_lines SET quantity = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND household_id = ?`,
		quantity, id, householdID,
	)
	if err != nil {
		return translate(fmt.Sprintf("set stock line %d quantity", id), err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("set stock line %d quantity: %w", id, model.ErrNotFound)
	}
	return nil
}

func (s *StockStore) Delete(ctx context.Context, householdID, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM stock_lines WHERE id = ? AND household_id = ?`, id, householdID)
	if err != nil {
		return translate(fmt.Sprintf("delete stock line %d", id), err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("delete stock line %d: %w", id, model.ErrNotFound)
	}
	return nil
}

func (s *StockStore) GetView(ctx context.Context, householdID, id int64) (*model.StockView, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+stockViewCols+stockViewFrom+` WHERE s.id = ? AND s.household_id = ?`, id, householdID)
	v, err := scanStockView(row)
	if err != nil {
		return nil, translate(fmt.Sprintf("get stock line %d", id), err)
	}
	return v, nil
}

// ListViews returns every line of the household, optionally narrowed to
// products whose name, brand or barcode contain search.
func (s *StockStore) ListViews(ctx context.Context, householdID int64, search string) ([]model.StockView, error) {
	query := `SELECT ` + stockViewCols + stockViewFrom + ` WHERE s.household_id = ?`
	args := []any{householdID}
	if q := strings.TrimSpace(search); q != "" {
		pattern := likePattern(FoldKey(q))
		query += ` AND (p.name_key LIKE ? ESCAPE '\' OR p.brand_key LIKE ? ESCAPE '\' OR COALESCE(p.barcode, '') LIKE ? ESCAPE '\')`
		args = append(args, pattern, pattern, pattern)
	}
	query += ` ORDER BY s.id ASC`
	return s.queryViews(ctx, query, args...)
}

// ListExpiring returns non-frozen lines expiring on or before until,
// including lines already past it.
func (s *StockStore) ListExpiring(ctx context.Context, householdID int64, until model.Date) ([]model.StockView, error) {
	return s.queryViews(ctx,
		`SELECT `+stockViewCols+stockViewFrom+`
		 WHERE s.household_id = ? AND s.state != 'frozen' AND s.expires_on <= ?
		 ORDER BY s.expires_on ASC, s.id ASC`,
		householdID, until,
	)
}

func (s *StockStore) queryViews(ctx context.Context, query string, args ...any) ([]model.StockView, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list stock: %w", err)
	}
	defer rows.Close()

	var views []model.StockView
	for rows.Next() {
		v, err := scanStockView(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stock line: %w", err)
		}
		views = append(views, *v)
	}
	return views, rows.Err()
}
