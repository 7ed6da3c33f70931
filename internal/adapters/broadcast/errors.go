package broadcast

import "errors"

var (
	ErrNoConnection  = errors.New("messenger has no connection")
	ErrSendPanicked  = errors.New("messenger send panicked")
	ErrEncodeMessage = errors.New("encode message")
)
