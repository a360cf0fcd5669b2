package interfaces

import "errors"

// Common errors shared by transport and store implementations.
var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrStoreClosed        = errors.New("message store is closed")
)
