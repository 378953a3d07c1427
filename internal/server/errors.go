package server

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/SelfScore/Self-Score-sub000/internal/types"
	"github.com/SelfScore/Self-Score-sub000/internal/voice"
)

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		notAuthorized    *types.NotAuthorizedError
		invalidState     *types.InvalidStateError
		transition       *voice.TransitionError
		alreadySubmitted *types.AlreadySubmittedError
		unknownQuestion  *types.UnknownQuestionError
		validation       *types.ValidationError
		fieldErrors      validator.ValidationErrors
		notFound         *types.NotFoundError
		catalog          *types.CatalogUnavailableError
		provider         *types.ProviderFailureError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &notAuthorized):
		return http.StatusForbidden
	case errors.As(err, &alreadySubmitted),
		errors.As(err, &invalidState),
		errors.As(err, &transition):
		return http.StatusConflict
	case errors.As(err, &unknownQuestion),
		errors.As(err, &validation),
		errors.As(err, &fieldErrors):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &catalog):
		return http.StatusServiceUnavailable
	case errors.As(err, &provider):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorCode is the machine-readable kind reported alongside the message.
func errorCode(err error) string {
	var (
		notAuthorized    *types.NotAuthorizedError
		alreadySubmitted *types.AlreadySubmittedError
		unknownQuestion  *types.UnknownQuestionError
		catalog          *types.CatalogUnavailableError
		provider         *types.ProviderFailureError
	)
	switch {
	case errors.As(err, &notAuthorized):
		return "not_authorized"
	case errors.As(err, &alreadySubmitted):
		return "already_submitted"
	case errors.As(err, &unknownQuestion):
		return "unknown_question"
	case errors.As(err, &catalog):
		return "catalog_unavailable"
	case errors.As(err, &provider):
		return "provider_failure"
	}
	switch HTTPStatus(err) {
	case http.StatusConflict:
		return "invalid_state"
	case http.StatusBadRequest:
		return "validation_error"
	case http.StatusNotFound:
		return "not_found"
	default:
		return "internal_error"
	}
}
