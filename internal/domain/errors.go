package domain

import "errors"

var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrConflict            = errors.New("conflict")
	ErrIdempotencyRequired = errors.New("idempotency key required")
	ErrIdempotencyConflict = errors.New("idempotency conflict")
	ErrUnsupportedEvent    = errors.New("unsupported event type")

	ErrInvalidSpec           = errors.New("invalid escrow specification")
	ErrInvalidTransition     = errors.New("invalid milestone transition")
	ErrNotSubmitted          = errors.New("milestone not submitted for approval")
	ErrAlreadyResolved       = errors.New("dispute already resolved")
	ErrInvariantViolation    = errors.New("ledger invariant violation")
	ErrAccountFrozen         = errors.New("escrow account frozen pending investigation")
	ErrTransferFailed        = errors.New("transfer failed")
	ErrTransferIndeterminate = errors.New("transfer outcome indeterminate")
)
