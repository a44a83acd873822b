package casebridge_errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrNotFound              = errors.New("not found")
	ErrNotAuthorized         = errors.New("not authorized")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrAlreadyExists         = errors.New("already exists")
	ErrAlreadyParticipant    = fmt.Errorf("already participant: %w", ErrAlreadyExists)
	ErrInvalidState          = errors.New("invalid state")
	ErrInvalidInput          = errors.New("invalid input")
	ErrChannelDeliveryFailed = errors.New("channel delivery failed")
	ErrRateLimited           = errors.New("rate limited")
)

// DirectExistsError is returned when a DIRECT conversation already exists for a pair of users.
type DirectExistsError struct {
	ConversationID uuid.UUID
}

func (e *DirectExistsError) Error() string {
	return fmt.Sprintf("direct conversation %s already exists", e.ConversationID)
}

func (e *DirectExistsError) Unwrap() error {
	return ErrAlreadyExists
}

// HTTPStatus maps an error onto the status code returned by the API.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Code maps an error onto the machine readable code used in API and websocket errors.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_REQUEST"
	case errors.Is(err, ErrUnauthorized):
		return "UNAUTHENTICATED"
	case errors.Is(err, ErrNotAuthorized):
		return "NOT_AUTHORIZED"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrAlreadyParticipant):
		return "ALREADY_PARTICIPANT"
	case errors.Is(err, ErrAlreadyExists):
		return "ALREADY_EXISTS"
	case errors.Is(err, ErrInvalidState):
		return "INVALID_STATE"
	case errors.Is(err, ErrRateLimited):
		return "RATE_LIMITED"
	default:
		return "INTERNAL_ERROR"
	}
}
