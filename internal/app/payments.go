package app

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/metinatakli/payment-service/api"
	"github.com/metinatakli/payment-service/internal/domain"
	"github.com/metinatakli/payment-service/internal/orchestrator"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func (app *Application) ListPaymentMethodsHandler(w http.ResponseWriter, r *http.Request) {
	info := app.orchestrator.Methods()

	resp := api.PaymentMethodsResponse{
		Methods:              make([]api.PaymentMethod, 0, len(info.Methods)),
		StripePublishableKey: info.StripePublishableKey,
	}

	for _, m := range info.Methods {
		resp.Methods = append(resp.Methods, api.PaymentMethod{
			ID:          string(m.ID),
			Name:        m.Name,
			Description: m.Description,
			Currency:    m.Currency,
			Enabled:     m.Enabled,
		})
	}

	err := app.writeJSON(w, http.StatusOK, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) CreateStripeIntentHandler(w http.ResponseWriter, r *http.Request) {
	var input api.CreateStripeIntentRequest
	err := app.readJSON(w, r, &input)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	err = app.validator.Struct(input)
	if err != nil {
		app.failedValidationResponse(w, r, err)
		return
	}

	session, err := app.orchestrator.Initiate(r.Context(), orchestrator.InitiateRequest{
		InvoiceID: input.InvoiceID,
		UserID:    input.UserID,
		Method:    domain.PaymentMethodStripe,
		Amount:    input.Amount,
		Currency:  strings.ToLower(input.Currency),
		Customer: domain.CustomerInfo{
			Email:    input.Email,
			ClientIP: clientIP(r),
		},
	})
	if err != nil {
		app.paymentErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusCreated, toSessionResponse(session), nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

// createSessionHandler serves the redirect based gateways, which share a
// request shape.
func (app *Application) createSessionHandler(method domain.PaymentMethod) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input api.CreateSessionRequest
		err := app.readJSON(w, r, &input)
		if err != nil {
			app.badRequestResponse(w, r, err)
			return
		}

		err = app.validator.Struct(input)
		if err != nil {
			app.failedValidationResponse(w, r, err)
			return
		}

		customer := input.CustomerInfo
		session, err := app.orchestrator.Initiate(r.Context(), orchestrator.InitiateRequest{
			InvoiceID: input.InvoiceID,
			UserID:    input.UserID,
			Method:    method,
			Amount:    input.Amount,
			Customer: domain.CustomerInfo{
				Name:     customer.Name,
				Email:    customer.Email,
				Phone:    customer.Phone,
				Address:  customer.Address,
				City:     customer.City,
				PostCode: customer.PostCode,
				Country:  customer.Country,
				ClientIP: clientIP(r),
			},
			SuccessURL: input.SuccessURL,
			FailURL:    input.FailURL,
			CancelURL:  input.CancelURL,
		})
		if err != nil {
			app.paymentErrorResponse(w, r, err)
			return
		}

		err = app.writeJSON(w, http.StatusCreated, toSessionResponse(session), nil)
		if err != nil {
			app.serverErrorResponse(w, r, err)
		}
	}
}

func (app *Application) CreateCashOnDeliveryHandler(w http.ResponseWriter, r *http.Request) {
	var input api.CashOnDeliveryRequest
	err := app.readJSON(w, r, &input)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	err = app.validator.Struct(input)
	if err != nil {
		app.failedValidationResponse(w, r, err)
		return
	}

	session, err := app.orchestrator.Initiate(r.Context(), orchestrator.InitiateRequest{
		InvoiceID: input.InvoiceID,
		UserID:    input.UserID,
		Method:    domain.PaymentMethodCashOnDelivery,
		Note:      input.Note,
	})
	if err != nil {
		app.paymentErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusCreated, toSessionResponse(session), nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) ConfirmStripePaymentHandler(w http.ResponseWriter, r *http.Request) {
	var input api.ConfirmStripeRequest
	err := app.readJSON(w, r, &input)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	err = app.validator.Struct(input)
	if err != nil {
		app.failedValidationResponse(w, r, err)
		return
	}

	outcome, err := app.orchestrator.Confirm(r.Context(), input.PaymentIntentID)
	if err != nil {
		app.paymentErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, toOutcomeResponse(outcome), nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

// callbackHandler handles the browser redirect back from a provider.
func (app *Application) callbackHandler(method domain.PaymentMethod) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := app.readCallbackPayload(w, r)
		if err != nil {
			app.badRequestResponse(w, r, err)
			return
		}

		outcome, err := app.orchestrator.HandleCallback(r.Context(), method, payload)
		if err != nil {
			app.paymentErrorResponse(w, r, err)
			return
		}

		err = app.writeJSON(w, http.StatusOK, toOutcomeResponse(outcome), nil)
		if err != nil {
			app.serverErrorResponse(w, r, err)
		}
	}
}

// ipnHandler acknowledges server-to-server notifications in plain text.
// Anything but a forged notification is answered with OK so the provider
// stops retrying.
func (app *Application) ipnHandler(method domain.PaymentMethod) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := app.contextGetLogger(r)

		payload, err := app.readCallbackPayload(w, r)
		if err != nil {
			logger.Warn("unreadable ipn payload", "method", method, "error", err)
			ack(w, http.StatusBadRequest, "INVALID")
			return
		}

		err = app.orchestrator.HandleIPN(r.Context(), method, payload)
		if err != nil {
			if errors.Is(err, domain.ErrSignature) {
				logger.Warn("rejected ipn", "method", method, "error", err)
				ack(w, http.StatusBadRequest, "INVALID")
				return
			}

			app.logError(r, err)
		}

		ack(w, http.StatusOK, "OK")
	}
}

func ack(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func (app *Application) GetPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, err := app.readIDParam(r, "id")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	payment, err := app.orchestrator.Get(r.Context(), id)
	if err != nil {
		app.paymentErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, toPaymentResponse(payment), nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) ListUserPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := app.readIDParam(r, "userId")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	payments, err := app.orchestrator.ListByUser(r.Context(), userID)
	if err != nil {
		app.serverErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, api.PaymentListResponse{Payments: toPaymentResponses(payments)}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) ListPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()

	pagination := domain.Pagination{
		Page:     app.readInt(qs, "page", 1),
		PageSize: app.readInt(qs, "pageSize", defaultPageSize),
		Status:   domain.PaymentStatus(qs.Get("status")),
		Method:   domain.PaymentMethod(qs.Get("method")),
	}

	if pagination.Page < 1 {
		app.badRequestResponse(w, r, errors.New("page must be greater than zero"))
		return
	}

	if pagination.PageSize < 1 || pagination.PageSize > maxPageSize {
		app.badRequestResponse(w, r, fmt.Errorf("pageSize must be between 1 and %d", maxPageSize))
		return
	}

	if pagination.Status != "" && !validStatus(pagination.Status) {
		app.badRequestResponse(w, r, fmt.Errorf("unknown payment status %q", pagination.Status))
		return
	}

	if pagination.Method != "" && !pagination.Method.Valid() {
		app.badRequestResponse(w, r, fmt.Errorf("unknown payment method %q", pagination.Method))
		return
	}

	payments, metadata, err := app.orchestrator.ListAll(r.Context(), pagination)
	if err != nil {
		app.serverErrorResponse(w, r, err)
		return
	}

	resp := api.PaymentListResponse{
		Payments: toPaymentResponses(payments),
		Metadata: toMetadataResponse(metadata),
	}

	err = app.writeJSON(w, http.StatusOK, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) GetPaymentStatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := app.orchestrator.Stats(r.Context())
	if err != nil {
		app.serverErrorResponse(w, r, err)
		return
	}

	resp := api.PaymentStatsResponse{
		StatusBreakdown:      toStatResponses(stats.StatusBreakdown),
		MethodBreakdown:      toStatResponses(stats.MethodBreakdown),
		TotalPayments:        stats.TotalPayments,
		TotalCompletedAmount: stats.TotalCompletedAmount,
	}

	err = app.writeJSON(w, http.StatusOK, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) UpdatePaymentStatusHandler(w http.ResponseWriter, r *http.Request) {
	id, err := app.readIDParam(r, "id")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	var input api.UpdatePaymentStatusRequest
	err = app.readJSON(w, r, &input)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	err = app.validator.Struct(input)
	if err != nil {
		app.failedValidationResponse(w, r, err)
		return
	}

	payment, err := app.orchestrator.UpdateStatus(r.Context(), id, domain.PaymentStatus(input.Status), input.Note)
	if err != nil {
		app.paymentErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, toPaymentResponse(payment), nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) RefundPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, err := app.readIDParam(r, "id")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	var input api.RefundPaymentRequest
	err = app.readJSON(w, r, &input)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	err = app.validator.Struct(input)
	if err != nil {
		app.failedValidationResponse(w, r, err)
		return
	}

	outcome, err := app.orchestrator.Refund(r.Context(), orchestrator.RefundRequest{
		PaymentID: id,
		Amount:    input.RefundAmount,
		Reason:    input.Reason,
	})
	if err != nil {
		app.paymentErrorResponse(w, r, err)
		return
	}

	resp := api.RefundResponse{
		PaymentID:       outcome.Payment.ID,
		Status:          string(outcome.Payment.Status),
		RefundAmount:    input.RefundAmount,
		RefundReference: outcome.RefundReference,
	}

	if outcome.Payment.RefundedAt != nil {
		resp.RefundedAt = *outcome.Payment.RefundedAt
	}

	err = app.writeJSON(w, http.StatusOK, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

func validStatus(status domain.PaymentStatus) bool {
	for _, s := range domain.PaymentStatuses {
		if s == status {
			return true
		}
	}

	return false
}

func toSessionResponse(session *orchestrator.PaymentSession) api.PaymentSessionResponse {
	p := session.Payment

	return api.PaymentSessionResponse{
		PaymentID:       p.ID,
		Status:          string(p.Status),
		TransactionID:   deref(p.TransactionID),
		PaymentIntentID: deref(p.PaymentIntentID),
		ClientSecret:    session.ClientSecret,
		GatewayURL:      session.RedirectURL,
		SessionKey:      session.SessionKey,
		Amount:          p.Amount,
		Currency:        p.Currency,
	}
}

func toOutcomeResponse(outcome *orchestrator.PaymentOutcome) api.PaymentOutcomeResponse {
	p := outcome.Payment

	return api.PaymentOutcomeResponse{
		PaymentID:     p.ID,
		InvoiceID:     p.InvoiceID,
		Status:        string(p.Status),
		TransactionID: deref(p.TransactionID),
		Message:       outcome.Message,
	}
}

func toPaymentResponse(p *domain.Payment) api.Payment {
	return api.Payment{
		ID:              p.ID,
		UserID:          p.UserID,
		InvoiceID:       p.InvoiceID,
		PaymentMethod:   string(p.PaymentMethod),
		Amount:          p.Amount,
		Currency:        p.Currency,
		Status:          string(p.Status),
		TransactionID:   p.TransactionID,
		PaymentIntentID: p.PaymentIntentID,
		GatewayResponse: p.GatewayResponse,
		Metadata:        p.Metadata,
		FailureReason:   p.FailureReason,
		PaymentDate:     p.PaymentDate,
		RefundedAt:      p.RefundedAt,
		RefundAmount:    p.RefundAmount,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func toPaymentResponses(payments []domain.Payment) []api.Payment {
	resp := make([]api.Payment, 0, len(payments))
	for i := range payments {
		resp = append(resp, toPaymentResponse(&payments[i]))
	}

	return resp
}

func toStatResponses(stats []domain.PaymentStat) []api.PaymentStat {
	resp := make([]api.PaymentStat, 0, len(stats))
	for _, s := range stats {
		resp = append(resp, api.PaymentStat{Key: s.Key, Count: s.Count, TotalAmount: s.TotalAmount})
	}

	return resp
}

func toMetadataResponse(m *domain.Metadata) *api.Metadata {
	if m == nil {
		return nil
	}

	return &api.Metadata{
		CurrentPage:  m.CurrentPage,
		FirstPage:    m.FirstPage,
		LastPage:     m.LastPage,
		PageSize:     m.PageSize,
		TotalRecords: m.TotalRecords,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}
