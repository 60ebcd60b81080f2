package request

import "errors"

var (
	ErrNotFound     = errors.New("access request not found")
	ErrConflict     = errors.New("access request conflict")
	ErrInvalidInput = errors.New("invalid input")
)
