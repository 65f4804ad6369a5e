package model

import "time"

type Product struct {
	ID             int64     `json:"id"`
	HouseholdID    int64     `json:"household_id"`
	Barcode        *string   `json:"barcode"`
	Name           string    `json:"name"`
	Brand          string    `json:"brand"`
	ImageURL       string    `json:"image_url"`
	ShelfLifeDays  *int      `json:"shelf_life_days"`
	LastLocationID *int64    `json:"last_location_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// LocationSuggestion is where new stock of a product should probably go.
type LocationSuggestion struct {
	ProductID  int64  `json:"product_id"`
	LocationID int64  `json:"location_id"`
	Source     string `json:"source"` // "stock" or "last_used"
}
