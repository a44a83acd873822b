package casebridge_errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("create: %w", ErrInvalidInput), http.StatusBadRequest},
		{ErrUnauthorized, http.StatusUnauthorized},
		{ErrNotAuthorized, http.StatusForbidden},
		{ErrNotFound, http.StatusNotFound},
		{ErrAlreadyParticipant, http.StatusConflict},
		{ErrInvalidState, http.StatusConflict},
		{ErrRateLimited, http.StatusTooManyRequests},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestAlreadyParticipantIsAlreadyExists(t *testing.T) {
	if !errors.Is(ErrAlreadyParticipant, ErrAlreadyExists) {
		t.Fatal("ErrAlreadyParticipant should match ErrAlreadyExists")
	}
	if Code(ErrAlreadyParticipant) != "ALREADY_PARTICIPANT" {
		t.Errorf("Code = %s", Code(ErrAlreadyParticipant))
	}
}

func TestDirectExistsError(t *testing.T) {
	id := uuid.New()
	err := fmt.Errorf("create conversation: %w", &DirectExistsError{ConversationID: id})

	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatal("DirectExistsError should unwrap to ErrAlreadyExists")
	}
	var de *DirectExistsError
	if !errors.As(err, &de) || de.ConversationID != id {
		t.Fatalf("errors.As failed: %v", err)
	}
}
