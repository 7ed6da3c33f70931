package siege

import "errors"

// Sentinel kinds for siege errors.
var (
	ErrMissingQuestItem   = errors.New("quest item definition missing")
	ErrMissingBoss        = errors.New("boss definition missing")
	ErrInvalidLevel       = errors.New("invalid siege level")
	ErrEmptyRoster        = errors.New("roster is empty")
	ErrRosterTooLarge     = errors.New("roster exceeds max participants")
	ErrAlreadyStarted     = errors.New("siege already started")
	ErrNotRunning         = errors.New("siege is not running")
	ErrAlreadyWon         = errors.New("siege already has a winner")
	ErrUnknownStructure   = errors.New("unknown structure killed")
	ErrNotFinalized       = errors.New("siege not finalized")
	ErrUnknownParticipant = errors.New("unknown participant")
)
