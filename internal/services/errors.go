package services

import "errors"

var (
	ErrListNotFound    = errors.New("list not found")
	ErrItemNotFound    = errors.New("item not found")
	ErrInvalidPassword = errors.New("invalid password")
	ErrInvalidInput    = errors.New("invalid input")

	// ErrPersistenceUnavailable reports a presence write that could not be
	// queued. Callers log it and carry on.
	ErrPersistenceUnavailable = errors.New("session persistence unavailable")
)
