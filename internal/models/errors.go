package models

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrConcurrencyConflict    = errors.New("concurrency conflict, retry the operation")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrDuplicateOperation     = errors.New("duplicate operation")
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrReferenceConflict      = errors.New("reference already used for a different operation")
)
