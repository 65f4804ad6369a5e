package model

import "errors"

// Domain errors. Callers wrap these with context and classify them with
// errors.Is at the HTTP boundary.
var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidState         = errors.New("invalid state")
	ErrInsufficientQuantity = errors.New("insufficient quantity")
	ErrDuplicate            = errors.New("already exists")
	ErrInUse                = errors.New("still in use")
	ErrIntegrity            = errors.New("integrity violation")
	ErrValidation           = errors.New("validation failed")
	ErrForbidden            = errors.New("forbidden")
)
