package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/metinatakli/payment-service/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	receiptTemplate = "payment_receipt.tmpl"
	refundTemplate  = "payment_refunded.tmpl"
)

var eventStatus = map[domain.EventType]domain.PaymentStatus{
	domain.EventPaymentCompleted: domain.PaymentStatusCompleted,
	domain.EventPaymentFailed:    domain.PaymentStatusFailed,
	domain.EventPaymentRefunded:  domain.PaymentStatusRefunded,
}

type paymentEvent struct {
	PaymentID     int                  `json:"payment_id"`
	InvoiceID     int                  `json:"invoice_id"`
	UserID        int                  `json:"user_id"`
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
	Amount        decimal.Decimal      `json:"amount"`
	Currency      string               `json:"currency"`
	Status        domain.PaymentStatus `json:"status"`
	TransactionID string               `json:"transaction_id,omitempty"`
	RefundAmount  *decimal.Decimal     `json:"refund_amount,omitempty"`
	OccurredAt    time.Time            `json:"occurred_at"`
}

func newEvent(
	eventType domain.EventType,
	payment *domain.Payment,
	at time.Time,
	refundAmount *decimal.Decimal) (*domain.OutboxEvent, error) {

	body := paymentEvent{
		PaymentID:     payment.ID,
		InvoiceID:     payment.InvoiceID,
		UserID:        payment.UserID,
		PaymentMethod: payment.PaymentMethod,
		Amount:        payment.Amount,
		Currency:      payment.Currency,
		Status:        eventStatus[eventType],
		RefundAmount:  refundAmount,
		OccurredAt:    at.UTC(),
	}

	if payment.TransactionID != nil {
		body.TransactionID = *payment.TransactionID
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	return &domain.OutboxEvent{
		Type:        eventType,
		AggregateID: payment.ID,
		Payload:     payload,
	}, nil
}

type notificationData struct {
	InvoiceNumber string
	Amount        string
	Currency      string
	PaymentMethod string
	TransactionID string
	PaidAt        string
}

// notify mails the invoice's customer in the background. Failures are logged
// and never reach the caller.
func (o *Orchestrator) notify(ctx context.Context, payment *domain.Payment, templateFile string) {
	if o.mailer == nil {
		return
	}

	ctx = context.WithoutCancel(ctx)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()

		defer func() {
			if err := recover(); err != nil {
				o.logger.ErrorContext(ctx, "panic occurred during sending payment mail", "panic", err)
			}
		}()

		invoice, err := o.invoices.GetById(ctx, payment.InvoiceID)
		if err != nil {
			o.logger.ErrorContext(ctx, "failed to load invoice for payment mail",
				"payment_id", payment.ID, "error", err)
			return
		}

		if invoice.CustomerEmail == "" {
			return
		}

		data := notificationData{
			InvoiceNumber: invoice.InvoiceNumber,
			Amount:        payment.Amount.StringFixed(2),
			Currency:      payment.Currency,
			PaymentMethod: string(payment.PaymentMethod),
		}

		if payment.TransactionID != nil {
			data.TransactionID = *payment.TransactionID
		}

		if payment.PaymentDate != nil {
			data.PaidAt = payment.PaymentDate.Format(time.RFC1123)
		}

		if templateFile == refundTemplate && payment.RefundAmount != nil {
			data.Amount = payment.RefundAmount.StringFixed(2)
		}

		err = o.mailer.Send(invoice.CustomerEmail, templateFile, data)
		if err != nil {
			o.logger.ErrorContext(ctx, "failed to send payment mail",
				"payment_id", payment.ID, "template", templateFile, "error", err)
			return
		}

		o.logger.InfoContext(ctx, "payment mail sent", "payment_id", payment.ID, "template", templateFile)
	}()
}
