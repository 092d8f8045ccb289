package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrProfileNotFound    = errors.New("membership profile not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrUnauthorized       = errors.New("missing or invalid credentials")
	ErrSignatureInvalid   = errors.New("webhook signature verification failed")
	ErrDuplicateEvent     = errors.New("event already processed")
	ErrGatewayUnavailable = errors.New("billing gateway unavailable")
	ErrConflict           = errors.New("concurrent write contention")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context")
)
