package model

import "time"

type ShoppingItem struct {
	ID          int64     `json:"id"`
	HouseholdID int64     `json:"household_id"`
	Name        string    `json:"name"`
	Quantity    int       `json:"quantity"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
}
