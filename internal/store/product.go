package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dukerupert/larder/internal/database"
	"github.com/dukerupert/larder/internal/model"
)

type ProductStore struct {
	db database.DBTX
}

func NewProductStore(db database.DBTX) *ProductStore {
	return &ProductStore{db: db}
}

const productCols = `id, household_id, barcode, name, brand, image_url, shelf_life_days, last_location_id, created_at, updated_at`

func scanProduct(sc scanner) (*model.Product, error) {
	var p model.Product
	var barcode sql.NullString
	var shelfLife, lastLocation sql.NullInt64
	err := sc.Scan(&p.ID, &p.HouseholdID, &barcode, &p.Name, &p.Brand, &p.ImageURL,
		&shelfLife, &lastLocation, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Barcode = nullStringPtr(barcode)
	p.ShelfLifeDays = nullIntPtr(shelfLife)
	p.LastLocationID = nullInt64Ptr(lastLocation)
	return &p, nil
}

// likePattern builds a LIKE pattern matching q anywhere, with wildcards in q
// escaped.
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(q) + "%"
}

// GetByID returns the product only if it belongs to the household.
func (s *ProductStore) GetByID(ctx context.Context, householdID, id int64) (*model.Product, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+productCols+` FROM products WHERE id = ? AND household_id = ?`, id, householdID)
	p, err := scanProduct(row)
	if err != nil {
		return nil, translate(fmt.Sprintf("get product %d", id), err)
	}
	return p, nil
}

func (s *ProductStore) GetByBarcode(ctx context.Context, householdID int64, barcode string) (*model.Product, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+productCols+` FROM products WHERE household_id = ? AND barcode = ?`, householdID, barcode)
	p, err := scanProduct(row)
	if err != nil {
		return nil, translate(fmt.Sprintf("get product by barcode %q", barcode), err)
	}
	return p, nil
}

// getByName matches case-insensitively among products without a barcode.
func (s *ProductStore) getByName(ctx context.Context, householdID int64, name string) (*model.Product, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+productCols+` FROM products
		 WHERE household_id = ? AND barcode IS NULL AND name_key = ?
		 ORDER BY id ASC LIMIT 1`, householdID, FoldKey(name))
	p, err := scanProduct(row)
	if err != nil {
		return nil, translate(fmt.Sprintf("get product by name %q", name), err)
	}
	return p, nil
}

func (s *ProductStore) insert(ctx context.Context, householdID int64, barcode *string, name, brand, imageURL string) (*model.Product, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO products (household_id, barcode, name, name_key, brand, brand_key, image_url) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		householdID, barcode, name, FoldKey(name), brand, FoldKey(brand), imageURL,
	)
	if err != nil {
		return nil, translate(fmt.Sprintf("create product %q", name), err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, householdID, id)
}

// GetOrCreateByName resolves a manually entered product. An existing match
// without a brand picks up the given one.
func (s *ProductStore) GetOrCreateByName(ctx context.Context, householdID int64, name, brand string) (*model.Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("product name is required: %w", model.ErrValidation)
	}
	p, err := s.getByName(ctx, householdID, name)
	if errors.Is(err, model.ErrNotFound) {
		return s.insert(ctx, householdID, nil, name, brand, "")
	}
	if err != nil {
		return nil, err
	}
	if p.Brand == "" && brand != "" {
		return s.fill(ctx, p, p.Name, brand, p.ImageURL)
	}
	return p, nil
}

// GetOrCreateByBarcode resolves a scanned product. Missing name, brand or
// image on an existing match are filled from the scan.
func (s *ProductStore) GetOrCreateByBarcode(ctx context.Context, householdID int64, barcode, name, brand, imageURL string) (*model.Product, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return nil, fmt.Errorf("barcode is required: %w", model.ErrValidation)
	}
	p, err := s.GetByBarcode(ctx, householdID, barcode)
	if errors.Is(err, model.ErrNotFound) {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("product name is required for new barcode %q: %w", barcode, model.ErrValidation)
		}
		return s.insert(ctx, householdID, &barcode, strings.TrimSpace(name), brand, imageURL)
	}
	if err != nil {
		return nil, err
	}

	newName, newBrand, newImage := p.Name, p.Brand, p.ImageURL
	if newName == "" && name != "" {
		newName = name
	}
	if newBrand == "" && brand != "" {
		newBrand = brand
	}
	if newImage == "" && imageURL != "" {
		newImage = imageURL
	}
	if newName != p.Name || newBrand != p.Brand || newImage != p.ImageURL {
		return s.fill(ctx, p, newName, newBrand, newImage)
	}
	return p, nil
}

func (s *ProductStore) fill(ctx context.Context, p *model.Product, name, brand, imageURL string) (*model.Product, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE products SET name = ?, name_key = ?, brand = ?, brand_key = ?, image_url = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		name, FoldKey(name), brand, FoldKey(brand), imageURL, p.ID,
	)
	if err != nil {
		return nil, translate(fmt.Sprintf("update product %d", p.ID), err)
	}
	return s.GetByID(ctx, p.HouseholdID, p.ID)
}

// ProductUpdate holds optional product changes. Nil fields are left alone.
type ProductUpdate struct {
	Name          *string
	Brand         *string
	ImageURL      *string
	ShelfLifeDays *int
}

func (s *ProductStore) Update(ctx context.Context, householdID, id int64, u ProductUpdate) (*model.Product, error) {
	p, err := s.GetByID(ctx, householdID, id)
	if err != nil {
		return nil, err
	}
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return nil, fmt.Errorf("product name is required: %w", model.ErrValidation)
		}
		p.Name = name
	}
	if u.Brand != nil {
		p.Brand = *u.Brand
	}
	if u.ImageURL != nil {
		p.ImageURL = *u.ImageURL
	}
	if u.ShelfLifeDays != nil {
		if *u.ShelfLifeDays <= 0 {
			p.ShelfLifeDays = nil
		} else {
			p.ShelfLifeDays = u.ShelfLifeDays
		}
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE products SET name = ?, name_key = ?, brand = ?, brand_key = ?, image_url = ?, shelf_life_days = ?,
		 updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND household_id = ?`,
		p.Name, FoldKey(p.Name), p.Brand, FoldKey(p.Brand), p.ImageURL, p.ShelfLifeDays, id, householdID,
	)
	if err != nil {
		return nil, translate(fmt.Sprintf("update product %d", id), err)
	}
	return s.GetByID(ctx, householdID, id)
}

// SetLastLocation records where stock of the product was last put.
func (s *ProductStore) SetLastLocation(ctx context.Context, householdID, id, locationID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE products SET last_location_id = ? WHERE id = ? AND household_id = ?`,
		locationID, id, householdID,
	)
	if err != nil {
		return translate(fmt.Sprintf("set last location of product %d", id), err)
	}
	return nil
}

// Search matches name, brand or barcode regardless of case.
func (s *ProductStore) Search(ctx context.Context, householdID int64, q string, limit int) ([]model.Product, error) {
	pattern := likePattern(FoldKey(q))
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+productCols+` FROM products
		 WHERE household_id = ?
		   AND (name_key LIKE ? ESCAPE '\' OR brand_key LIKE ? ESCAPE '\' OR COALESCE(barcode, '') LIKE ? ESCAPE '\')
		 ORDER BY name_key ASC, id ASC
		 LIMIT ?`,
		householdID, pattern, pattern, pattern, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

// SuggestLocations proposes a location for each product: the location
// holding most of its active stock, else the last location used. Products
// with neither, or outside the household, get no suggestion.
func (s *ProductStore) SuggestLocations(ctx context.Context, householdID int64, productIDs []int64) ([]model.LocationSuggestion, error) {
	var out []model.LocationSuggestion
	for _, id := range productIDs {
		var locationID int64
		err := s.db.QueryRowContext(ctx,
			`SELECT location_id FROM stock_lines
			 WHERE household_id = ? AND product_id = ? AND quantity > 0
			 GROUP BY location_id
			 ORDER BY SUM(quantity) DESC, location_id ASC
			 LIMIT 1`,
			householdID, id,
		).Scan(&locationID)
		if err == nil {
			out = append(out, model.LocationSuggestion{ProductID: id, LocationID: locationID, Source: "stock"})
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("suggest location for product %d: %w", id, err)
		}

		var last sql.NullInt64
		err = s.db.QueryRowContext(ctx,
			`SELECT last_location_id FROM products WHERE id = ? AND household_id = ?`, id, householdID,
		).Scan(&last)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("last location for product %d: %w", id, err)
		}
		if last.Valid {
			out = append(out, model.LocationSuggestion{ProductID: id, LocationID: last.Int64, Source: "last_used"})
		}
	}
	return out, nil
}
