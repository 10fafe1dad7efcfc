package ws

import (
	"errors"

	"matchchat/internal/domain"
)

// errorCode maps a refusal to its wire code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrNotInRoom):
		return "not_in_room"
	case errors.Is(err, domain.ErrAlreadyInRoom):
		return "already_in_room"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, domain.ErrPersistence):
		return "persistence_failure"
	default:
		return "internal"
	}
}

// errorReason keeps storage details out of client-facing messages.
func errorReason(err error) string {
	switch errorCode(err) {
	case "unauthorized":
		return domain.ErrUnauthorized.Error()
	case "not_in_room":
		return domain.ErrNotInRoom.Error()
	case "already_in_room":
		return domain.ErrAlreadyInRoom.Error()
	case "not_found":
		return domain.ErrNotFound.Error()
	case "invalid_input":
		return err.Error()
	case "persistence_failure":
		return domain.ErrPersistence.Error()
	default:
		return "internal error"
	}
}
