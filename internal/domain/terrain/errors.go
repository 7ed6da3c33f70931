package terrain

import "errors"

// Sentinel kinds for terrain errors.
var (
	ErrUnknownRegion = errors.New("unknown region set")
	ErrAuthority     = errors.New("terrain authority failed")
)
