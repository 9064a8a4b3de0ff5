package controlplane

import (
	"errors"
	"net/http"

	"github.com/fentz26/questline/internal/quest"
)

// Sentinel errors for control plane operations.
var (
	ErrUnknownAction = errors.New("unknown quest action")
	ErrInvalidURL    = errors.New("listener url must be http or https")
	ErrEmptyKey      = errors.New("listener key required")
)

// statusFor maps an operation error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, quest.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, quest.ErrInvalidState), errors.Is(err, quest.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, quest.ErrGuardFailed), errors.Is(err, quest.ErrMissingDependency):
		return http.StatusUnprocessableEntity
	case errors.Is(err, quest.ErrNotSupported):
		return http.StatusNotImplemented
	case errors.Is(err, ErrUnknownAction):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidURL), errors.Is(err, ErrEmptyKey):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
