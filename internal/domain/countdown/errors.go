package countdown

import "errors"

// Sentinel kinds for countdown errors.
var (
	ErrAlreadyStarted = errors.New("countdown already started")
	ErrTickPanicked   = errors.New("tick hook panicked")
)
