package store

import (
	"context"
	"fmt"

	"github.com/dukerupert/larder/internal/database"
	"github.com/dukerupert/larder/internal/model"
)

type LocationStore struct {
	db database.DBTX
}

func NewLocationStore(db database.DBTX) *LocationStore {
	return &LocationStore{db: db}
}

const locationCols = `id, household_id, name, is_freezer, created_at`

func scanLocation(sc scanner) (*model.Location, error) {
	var l model.Location
	var freezer int
	if err := sc.Scan(&l.ID, &l.HouseholdID, &l.Name, &freezer, &l.CreatedAt); err != nil {
		return nil, err
	}
	l.IsFreezer = freezer == 1
	return &l, nil
}

func (s *LocationStore) Create(ctx context.Context, householdID int64, name string, isFreezer bool) (*model.Location, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO locations (household_id, name, is_freezer) VALUES (?, ?, ?)`,
		householdID, name, boolToInt(isFreezer),
	)
	if err != nil {
		return nil, translate(fmt.Sprintf("create location %q", name), err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, householdID, id)
}

// GetByID returns the location only if it belongs to the household.
func (s *LocationStore) GetByID(ctx context.Context, householdID, id int64) (*model.Location, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+locationCols+` FROM locations WHERE id = ? AND household_id = ?`, id, householdID)
	l, err := scanLocation(row)
	if err != nil {
		return nil, translate(fmt.Sprintf("get location %d", id), err)
	}
	return l, nil
}

func (s *LocationStore) List(ctx context.Context, householdID int64) ([]model.Location, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+locationCols+` FROM locations WHERE household_id = ? ORDER BY name COLLATE NOCASE ASC`, householdID)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	defer rows.Close()

	var locations []model.Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		locations = append(locations, *l)
	}
	return locations, rows.Err()
}

func (s *LocationStore) Update(ctx context.Context, householdID, id int64, name string, isFreezer bool) (*model.Location, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE locations SET name = ?, is_freezer = ? WHERE id = ? AND household_id = ?`,
		name, boolToInt(isFreezer), id, householdID,
	)
	if err != nil {
		return nil, translate(fmt.Sprintf("update location %d", id), err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("update location %d: %w", id, model.ErrNotFound)
	}
	return s.GetByID(ctx, householdID, id)
}

// Delete removes a location that no stock line references. A location of
// another household is reported as not found, whether in use or not.
func (s *LocationStore) Delete(ctx context.Context, householdID, id int64) error {
	if _, err := s.GetByID(ctx, householdID, id); err != nil {
		return err
	}
	var refs int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM stock_lines WHERE location_id = ?`, id,
	).Scan(&refs); err != nil {
		return fmt.Errorf("count location refs: %w", err)
	}
	if refs > 0 {
		return fmt.Errorf("delete location %d: %d stock lines: %w", id, refs, model.ErrInUse)
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM locations WHERE id = ? AND household_id = ?`, id, householdID)
	if err != nil {
		return translate(fmt.Sprintf("delete location %d", id), err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("delete location %d: %w", id, model.ErrNotFound)
	}
	return nil
}

// SeedDefaults creates the starter locations of a new household.
func (s *LocationStore) SeedDefaults(ctx context.Context, householdID int64) error {
	defaults := []struct {
		name    string
		freezer bool
	}{
		{"Despensa", false}, {"Nevera", false}, {"Congelador", true},
	}
	for _, d := range defaults {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO locations (household_id, name, is_freezer) VALUES (?, ?, ?)`,
			householdID, d.name, boolToInt(d.freezer),
		); err != nil {
			return translate(fmt.Sprintf("seed location %q", d.name), err)
		}
	}
	return nil
}
