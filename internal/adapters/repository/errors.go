package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound       = errors.New("record not found")
	ErrConflict       = errors.New("record conflicts with an existing one")
	ErrInvalidLimit   = errors.New("invalid ranked items limit")
	ErrUnknownDialect = errors.New("unknown sql dialect")
	ErrClosed         = errors.New("store closed")
)
