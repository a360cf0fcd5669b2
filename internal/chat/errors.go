package chat

import "errors"

var (
	ErrCoordinatorAlreadyRunning = errors.New("coordinator is already running")
	ErrCoordinatorNotRunning     = errors.New("coordinator is not running")
	ErrMissingTransport          = errors.New("coordinator needs a transport")
	ErrMissingStore              = errors.New("coordinator needs a message store")
	ErrMissingFilter             = errors.New("coordinator needs a filter")
)
