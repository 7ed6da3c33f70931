package simulate

import "errors"

// Sentinel kinds for simulation errors.
var (
	ErrUnhealthy       = errors.New("service is not healthy")
	ErrUnexpectedReply = errors.New("unexpected service reply")
	ErrPhaseTimeout    = errors.New("phase transition timed out")
	ErrVerification    = errors.New("result verification failed")
)
