package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted          = errors.New("service not started")
	ErrSiegeNotFound       = errors.New("siege not found")
	ErrInvalidNotification = errors.New("invalid notification")
	ErrBackpressure        = errors.New("notification queue is full")
)
