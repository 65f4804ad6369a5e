package model

import "time"

type Location struct {
	ID          int64     `json:"id"`
	HouseholdID int64     `json:"household_id"`
	Name        string    `json:"name"`
	IsFreezer   bool      `json:"is_freezer"`
	CreatedAt   time.Time `json:"created_at"`
}
