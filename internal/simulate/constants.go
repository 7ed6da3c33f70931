package simulate

import "time"

// Defaults applied by Run when a Config field is zero.
const (
	defaultParticipants = 4
	defaultWorkers      = 4
	defaultTopN         = 10
	defaultTimeout      = 10 * time.Second
	defaultPhaseTimeout = 30 * time.Second
	pollInterval        = 20 * time.Millisecond
	channelMultiplier   = 2
)
