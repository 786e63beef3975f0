package app

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/metinatakli/payment-service/api"
	"github.com/metinatakli/payment-service/internal/domain"
	appvalidator "github.com/metinatakli/payment-service/internal/validator"
)

const (
	ErrInternalServer   = "The server encountered a problem and could not process your request"
	ErrNotFound         = "The requested resource not found"
	ErrMethodNotAllowed = "The method is not supported for this resource"
	ErrFailedValidation = "One or more fields failed validation"
	ErrInvalidSignature = "Invalid callback signature"
)

func (app *Application) logError(r *http.Request, err error) {
	var (
		method = r.Method
		uri    = r.URL.RequestURI()
	)

	app.contextGetLogger(r).Error(err.Error(), "method", method, "uri", uri)
}

// The errorResponse() method is a generic helper for sending JSON-formatted error
// messages to the client with a given status code.
func (app *Application) errorResponse(w http.ResponseWriter, r *http.Request, status int, message string) {
	resp := api.ErrorResponse{
		Message:   message,
		RequestId: middleware.GetReqID(r.Context()),
		Timestamp: time.Now(),
	}

	err := app.writeJSON(w, status, resp, nil)
	if err != nil {
		app.logError(r, err)
		w.WriteHeader(500)
	}
}

func (app *Application) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logError(r, err)
	app.errorResponse(w, r, http.StatusInternalServerError, ErrInternalServer)
}

func (app *Application) notFoundResponse(w http.ResponseWriter, r *http.Request) {
	app.errorResponse(w, r, http.StatusNotFound, ErrNotFound)
}

func (app *Application) methodNotAllowedResponse(w http.ResponseWriter, r *http.Request) {
	app.errorResponse(w, r, http.StatusMethodNotAllowed, ErrMethodNotAllowed)
}

func (app *Application) badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.errorResponse(w, r, http.StatusBadRequest, err.Error())
}

func (app *Application) failedValidationResponse(w http.ResponseWriter, r *http.Request, err error) {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		app.badRequestResponse(w, r, err)
		return
	}

	resp := api.ValidationErrorResponse{
		Message:          ErrFailedValidation,
		RequestId:        middleware.GetReqID(r.Context()),
		Timestamp:        time.Now(),
		ValidationErrors: make([]api.ValidationError, 0, len(validationErrs)),
	}

	for _, fe := range validationErrs {
		resp.ValidationErrors = append(resp.ValidationErrors, api.ValidationError{
			Field: fe.Field(),
			Issue: appvalidator.ValidationMessage(fe),
		})
	}

	err = app.writeJSON(w, http.StatusUnprocessableEntity, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

// paymentErrorResponse maps the payment error taxonomy onto HTTP statuses.
func (app *Application) paymentErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		app.errorResponse(w, r, http.StatusBadRequest, domain.ErrorMessage(err))
	case errors.Is(err, domain.ErrConflict):
		app.errorResponse(w, r, http.StatusConflict, domain.ErrorMessage(err))
	case errors.Is(err, domain.ErrNotFound):
		app.errorResponse(w, r, http.StatusNotFound, domain.ErrorMessage(err))
	case errors.Is(err, domain.ErrConfiguration):
		app.contextGetLogger(r).Warn("payment provider not configured", "error", err)
		app.errorResponse(w, r, http.StatusServiceUnavailable, domain.ErrorMessage(err))
	case errors.Is(err, domain.ErrProvider):
		app.contextGetLogger(r).Error("payment provider failure", "error", err, "temporary", domain.IsTemporary(err))
		app.errorResponse(w, r, http.StatusBadGateway, domain.ErrorMessage(err))
	case errors.Is(err, domain.ErrSignature):
		app.contextGetLogger(r).Warn("callback failed authentication", "error", err)
		app.errorResponse(w, r, http.StatusBadRequest, ErrInvalidSignature)
	default:
		app.serverErrorResponse(w, r, err)
	}
}
