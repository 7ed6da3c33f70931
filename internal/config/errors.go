package config

import "errors"

var (
	// ErrInvalidConfig wraps every Validate failure.
	ErrInvalidConfig = errors.New("invalid siege config")
	// ErrLoadConfig wraps file, env and decode failures in Load.
	ErrLoadConfig = errors.New("load siege config")
)
