package config

import "errors"

// Load and Validate wrap these; match them with errors.Is.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("cannot load config")
)
