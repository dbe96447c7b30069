package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/outreach-agent/internal/outreach"
	"github.com/jonathan/outreach-agent/internal/worker"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var validationErr *ErrValidation
	switch {
	case errors.As(err, &validationErr),
		errors.Is(err, outreach.ErrInvalidInput),
		errors.Is(err, outreach.ErrInvalidAction),
		errors.Is(err, outreach.ErrRoleNotAllowed):
		return http.StatusBadRequest
	case errors.Is(err, outreach.ErrEmailRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, outreach.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, outreach.ErrInvalidTransition),
		errors.Is(err, outreach.ErrCampaignNotActive),
		errors.Is(err, outreach.ErrDispatchInProgress),
		errors.Is(err, outreach.ErrDuplicateEmail):
		return http.StatusConflict
	case errors.Is(err, worker.ErrQueueFull),
		errors.Is(err, worker.ErrPoolStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
