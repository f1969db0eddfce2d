package domain

import "errors"

// Sentinel errors for the application.
//
// Connection-level errors terminate the websocket handshake; per-event errors
// are logged and, for acknowledged events, surfaced to the originating
// connection only. ErrForbidden is returned for authorization failures
// regardless of whether the target exists, so callers cannot probe for
// message existence.
var (
	ErrNoCredential      = errors.New("no credential provided")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrCredentialExpired = errors.New("credential expired")
	ErrAccountSuspended  = errors.New("account suspended")

	ErrEmptyMessage   = errors.New("message cannot be empty")
	ErrInvalidRequest = errors.New("invalid request")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrStorage        = errors.New("storage error")
)
