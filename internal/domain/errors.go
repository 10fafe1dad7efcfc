package domain

import "errors"

// Sentinel errors for the chat core. Handlers map them to wire error codes
// and HTTP statuses with errors.Is.
var (
	ErrNotFound             = errors.New("resource not found")
	ErrUnauthorized         = errors.New("unauthorized access")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrNotInRoom            = errors.New("not in this conversation room")
	ErrAlreadyInRoom        = errors.New("already joined another conversation")
	ErrPersistence          = errors.New("persistence failure")
	ErrInvalidInput         = errors.New("invalid input")
)
