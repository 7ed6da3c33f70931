package questitem

import "errors"

// Sentinel kinds for custody failures.
var (
	ErrAlreadySpawned   = errors.New("quest item already spawned")
	ErrItemNotAvailable = errors.New("quest item not available")
	ErrNotHoldingItem   = errors.New("not holding the quest item")
)
