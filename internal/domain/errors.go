package domain

import "errors"

var (
	// ErrInvalidInput marks validation failures. Never retried.
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	// ErrConflict is returned when a row is claimed or in a state that
	// forbids the requested transition.
	ErrConflict = errors.New("conflict")
	// ErrUnauthentic marks a webhook whose signature did not verify.
	ErrUnauthentic = errors.New("event signature invalid")
	// ErrExternalUnavailable wraps failures of search, renderer, blob,
	// invoice or notification collaborators.
	ErrExternalUnavailable = errors.New("external collaborator unavailable")
	// ErrAlreadyKnown is a duplicate insert on a unique key. Callers treat
	// it as a successful no-op.
	ErrAlreadyKnown = errors.New("already known")
)
