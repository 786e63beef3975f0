package app

import (
	"errors"
	"net/http"

	"github.com/metinatakli/payment-service/api"
	"github.com/metinatakli/payment-service/internal/domain"
)

func (app *Application) CreateInvoiceHandler(w http.ResponseWriter, r *http.Request) {
	var input api.CreateInvoiceRequest
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

	total := input.Subtotal.Add(input.Tax).Sub(input.Discount)
	if total.IsNegative() {
		app.badRequestResponse(w, r, errors.New("discount must not exceed subtotal plus tax"))
		return
	}

	invoice := &domain.Invoice{
		UserID:          input.UserID,
		Subtotal:        input.Subtotal,
		Tax:             input.Tax,
		Discount:        input.Discount,
		Total:           total,
		PaymentMethod:   domain.PaymentMethod(input.PaymentMethod),
		ShippingAddress: toDomainAddress(input.ShippingAddress),
		BillingAddress:  toDomainAddress(input.BillingAddress),
		CustomerEmail:   input.CustomerEmail,
		Notes:           input.Notes,
	}

	err = app.invoiceRepo.Create(r.Context(), invoice)
	if err != nil {
		app.serverErrorResponse(w, r, err)
		return
	}

	app.contextGetLogger(r).Info("invoice created", "invoice_id", invoice.ID, "invoice_number", invoice.InvoiceNumber)

	err = app.writeJSON(w, http.StatusCreated, toInvoiceResponse(invoice), nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) GetInvoiceHandler(w http.ResponseWriter, r *http.Request) {
	id, err := app.readIDParam(r, "id")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	invoice, err := app.invoiceRepo.GetById(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			app.notFoundResponse(w, r)
			return
		}

		app.serverErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, toInvoiceResponse(invoice), nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func toInvoiceResponse(i *domain.Invoice) api.Invoice {
	return api.Invoice{
		ID:              i.ID,
		UserID:          i.UserID,
		InvoiceNumber:   i.InvoiceNumber,
		OrderDate:       i.OrderDate,
		DueDate:         i.DueDate,
		Status:          string(i.Status),
		Subtotal:        i.Subtotal,
		Tax:             i.Tax,
		Discount:        i.Discount,
		Total:           i.Total,
		PaymentMethod:   string(i.PaymentMethod),
		PaymentStatus:   string(i.PaymentStatus),
		ShippingAddress: toAddressResponse(i.ShippingAddress),
		BillingAddress:  toAddressResponse(i.BillingAddress),
		CustomerEmail:   i.CustomerEmail,
		Notes:           i.Notes,
		CreatedAt:       i.CreatedAt,
		UpdatedAt:       i.UpdatedAt,
	}
}

func toDomainAddress(a *api.Address) *domain.Address {
	if a == nil {
		return nil
	}

	return &domain.Address{
		Street:  a.Street,
		City:    a.City,
		State:   a.State,
		ZipCode: a.ZipCode,
		Country: a.Country,
	}
}

func toAddressResponse(a *domain.Address) *api.Address {
	if a == nil {
		return nil
	}

	return &api.Address{
		Street:  a.Street,
		City:    a.City,
		State:   a.State,
		ZipCode: a.ZipCode,
		Country: a.Country,
	}
}
