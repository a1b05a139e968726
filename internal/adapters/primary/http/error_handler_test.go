package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/navbat/queue-backend/internal/core/errors"
)

func TestErrorHandler_MapsDomainErrors(t *testing.T) {
	handler := NewErrorHandler(slog.New(slog.NewTextHandler(io.Discard, nil)))

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"transition", &apperrors.TransitionError{TicketID: "t1", Action: "SERVED", Status: "WAITING"}, stdhttp.StatusConflict, "INVALID_TRANSITION"},
		{"already queued", apperrors.ErrAlreadyQueued, stdhttp.StatusConflict, "ALREADY_QUEUED"},
		{"already evaluated", apperrors.ErrAlreadyEvaluated, stdhttp.StatusConflict, "ALREADY_EVALUATED"},
		{"closed", apperrors.ErrOrganizationClosed, stdhttp.StatusConflict, "ORGANIZATION_CLOSED"},
		{"empty queue", apperrors.ErrNoWaitingTicket, stdhttp.StatusConflict, "QUEUE_EMPTY"},
		{"wrapped not found", fmt.Errorf("load: %w", apperrors.ErrTicketNotFound), stdhttp.StatusNotFound, "TICKET_NOT_FOUND"},
		{"forbidden", apperrors.ErrForbidden, stdhttp.StatusForbidden, "FORBIDDEN"},
		{"rate limited", apperrors.ErrRateLimited, stdhttp.StatusTooManyRequests, "RATE_LIMITED"},
		{"lock timeout", context.DeadlineExceeded, stdhttp.StatusServiceUnavailable, "QUEUE_BUSY"},
		{"app error", apperrors.NewBadRequestError(errors.New("x"), "Invalid request body"), stdhttp.StatusBadRequest, "BAD_REQUEST"},
		{"unknown", errors.New("boom"), stdhttp.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			req := httptest.NewRequest(stdhttp.MethodGet, "/", nil)

			handler.Handle(recorder, req, tt.err)

			assert.Equal(t, tt.wantStatus, recorder.Code)
			assert.Equal(t, tt.wantCode, decodeBody[ErrorResponse](t, recorder).Code)
		})
	}
}

func TestErrorHandler_ValidationErrors(t *testing.T) {
	handler := NewErrorHandler(slog.New(slog.NewTextHandler(io.Discard, nil)))

	errs := apperrors.NewValidationErrors()
	errs.Add("organizationId", "This field is required")

	recorder := httptest.NewRecorder()
	handler.Handle(recorder, httptest.NewRequest(stdhttp.MethodPost, "/", nil), errs)

	require.Equal(t, stdhttp.StatusUnprocessableEntity, recorder.Code)
	body := decodeBody[ValidationErrorResponse](t, recorder)
	assert.Equal(t, []string{"This field is required"}, body.Fields["organizationId"])
}
