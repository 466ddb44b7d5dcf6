package orders

import "errors"

var (
	ErrNotFound          = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrForbidden         = errors.New("role not permitted")
	ErrValidation        = errors.New("invalid request")
	ErrUpstream          = errors.New("upstream service unavailable")
)
