package shared

import "errors"

var (
	// ErrUnauthorized indicates a missing or invalid credential.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates the actor lacks a required permission.
	// The message never names which permission was missing.
	ErrForbidden = errors.New("insufficient permission")
	// ErrValidation indicates malformed or incomplete input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates the target row is absent.
	ErrNotFound = errors.New("resource not found")
	// ErrDuplicate indicates a unique-key conflict.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrStoreTimeout indicates connection acquisition exceeded its bound.
	ErrStoreTimeout = errors.New("store acquire timeout")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
