package domain

import "errors"

var (
	ErrValidation       = errors.New("validation error")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrIO               = errors.New("i/o failure")
	ErrInsufficientData = errors.New("insufficient data")
)
