package repository

import "errors"

// Sentinel kinds for leaderboard errors.
var (
	ErrNotFound     = errors.New("participant not found")
	ErrInvalidLimit = errors.New("invalid leaderboard limit")
	ErrSinkFailed   = errors.New("ranking sink failed")
)
