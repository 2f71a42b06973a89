package models

import "errors"

var (
	// Storage
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflicting record")

	// Request
	ErrBadRequest        = errors.New("bad request")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidIdentifier = errors.New("identifier is required")
	ErrInvalidTimeRange  = errors.New("invalid time range")

	// ErrLedgerUnavailable wraps any failure reading or writing the attempt
	// ledger. It is retryable; the gate never opens on it.
	ErrLedgerUnavailable = errors.New("attempt ledger unavailable")
)
