package store

import "errors"

var (
	ErrUnknownDriver    = errors.New("unknown store driver")
	ErrInvalidRetention = errors.New("retention must be greater than 0")
	ErrWriteTimeout     = errors.New("write operation timeout")
)
