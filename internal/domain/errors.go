package domain

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrConflict              = errors.New("conflict")
	ErrStaleSequence         = errors.New("stale sequence number")
	ErrCorruptRecord         = errors.New("corrupt session record")
	ErrInvalidInput          = errors.New("invalid input")
	ErrRetriesExhausted      = errors.New("start retries exhausted")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)
