package orchestrator

import (
	"context"
	"errors"

	"github.com/metinatakli/payment-service/internal/domain"
)

var openStatuses = []domain.PaymentStatus{
	domain.PaymentStatusPending,
	domain.PaymentStatusProcessing,
}

// PaymentOutcome is the state of a payment after a callback was processed.
// Applied is false when the callback changed nothing, either because the
// provider has not settled yet or because the outcome was already recorded.
type PaymentOutcome struct {
	Payment *domain.Payment
	Applied bool
	Message string
}

// HandleCallback verifies a provider callback and applies its outcome.
// Unknown payments and forged callbacks are rejected without any write. A
// temporary provider error is returned as is and leaves the payment open.
func (o *Orchestrator) HandleCallback(
	ctx context.Context,
	method domain.PaymentMethod,
	payload domain.CallbackPayload) (*PaymentOutcome, error) {

	gateway, err := o.gateways.Get(method)
	if err != nil {
		return nil, err
	}

	keys, err := gateway.LookupKeys(payload)
	if err != nil {
		return nil, err
	}

	payment, err := o.payments.FindByLookup(ctx, method, keys)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Payment not found")
		}

		return nil, err
	}

	result, err := gateway.VerifyCallback(ctx, payload)
	if err != nil {
		if !errors.Is(err, domain.ErrProvider) {
			return nil, err
		}

		// The provider may still settle the payment, so it stays open.
		if domain.IsTemporary(err) {
			o.logger.WarnContext(ctx, "payment verification unavailable, leaving payment open",
				"payment_id", payment.ID, "method", method, "error", err)
			return nil, err
		}

		o.logger.WarnContext(ctx, "payment verification failed at provider",
			"payment_id", payment.ID, "method", method, "error", err)

		return o.fail(ctx, payment, domain.ErrorMessage(err), nil)
	}

	if !result.Valid {
		o.logger.WarnContext(ctx, "rejected callback with invalid signature",
			"payment_id", payment.ID, "method", method)
		return nil, domain.NewSignatureError("Invalid callback signature")
	}

	switch result.Status {
	case domain.VerifySucceeded:
		return o.complete(ctx, payment, result)
	case domain.VerifyFailed:
		return o.fail(ctx, payment, firstNonEmpty(result.Message, "Payment failed"), result.Raw)
	default:
		return &PaymentOutcome{
			Payment: payment,
			Message: firstNonEmpty(result.Message, "Payment is still pending"),
		}, nil
	}
}

// HandleIPN runs the callback logic for a server-to-server notification.
// Only a forged notification is reported back, so that providers are not
// taught to retry messages that were already handled.
func (o *Orchestrator) HandleIPN(ctx context.Context, method domain.PaymentMethod, payload domain.CallbackPayload) error {
	_, err := o.HandleCallback(ctx, method, payload)
	if err == nil {
		return nil
	}

	if errors.Is(err, domain.ErrSignature) {
		return err
	}

	o.logger.InfoContext(ctx, "ipn acknowledged without changes", "method", method, "reason", err)

	return nil
}

// Confirm settles a Stripe payment after the client confirmed the intent.
func (o *Orchestrator) Confirm(ctx context.Context, paymentIntentID string) (*PaymentOutcome, error) {
	if paymentIntentID == "" {
		return nil, domain.NewValidationError("Payment intent ID is required")
	}

	return o.HandleCallback(ctx, domain.PaymentMethodStripe, domain.CallbackPayload{
		Fields: map[string]string{"payment_intent_id": paymentIntentID},
	})
}

func (o *Orchestrator) complete(
	ctx context.Context,
	payment *domain.Payment,
	result *domain.VerifyResult) (*PaymentOutcome, error) {

	now := o.now()
	invoiceStatus := domain.InvoiceStatusConfirmed
	paymentStatus := domain.InvoicePaymentCompleted

	transition := domain.PaymentTransition{
		PaymentID:       payment.ID,
		From:            openStatuses,
		To:              domain.PaymentStatusCompleted,
		TransactionID:   optional(result.TransactionID),
		GatewayResponse: result.Raw,
		Metadata:        result.Metadata,
		PaymentDate:     &now,
		Invoice: domain.InvoiceUpdate{
			Status:        &invoiceStatus,
			PaymentStatus: &paymentStatus,
		},
	}

	if payment.TransactionID != nil {
		transition.TransactionID = nil
	}

	event, err := newEvent(domain.EventPaymentCompleted, payment, now, nil)
	if err != nil {
		return nil, err
	}
	transition.Event = event

	res, err := o.payments.Transition(ctx, transition)
	if err != nil {
		return nil, err
	}

	if !res.Applied {
		return &PaymentOutcome{Payment: res.Payment, Message: alreadyProcessed(res.Payment)}, nil
	}

	o.metrics.completed(ctx, payment.PaymentMethod)
	o.logger.InfoContext(ctx, "payment completed", "payment_id", payment.ID, "method", payment.PaymentMethod)
	o.notify(ctx, res.Payment, receiptTemplate)

	return &PaymentOutcome{
		Payment: res.Payment,
		Applied: true,
		Message: "Payment completed successfully",
	}, nil
}

func (o *Orchestrator) fail(
	ctx context.Context,
	payment *domain.Payment,
	reason string,
	raw map[string]any) (*PaymentOutcome, error) {

	now := o.now()
	transition := domain.PaymentTransition{
		PaymentID:       payment.ID,
		From:            openStatuses,
		To:              domain.PaymentStatusFailed,
		GatewayResponse: raw,
		FailureReason:   &reason,
	}

	event, err := newEvent(domain.EventPaymentFailed, payment, now, nil)
	if err != nil {
		return nil, err
	}
	transition.Event = event

	res, err := o.payments.Transition(ctx, transition)
	if err != nil {
		return nil, err
	}

	if !res.Applied {
		return &PaymentOutcome{Payment: res.Payment, Message: alreadyProcessed(res.Payment)}, nil
	}

	o.metrics.failed(ctx, payment.PaymentMethod)
	o.logger.InfoContext(ctx, "payment failed", "payment_id", payment.ID, "method", payment.PaymentMethod, "reason", reason)

	return &PaymentOutcome{
		Payment: res.Payment,
		Applied: true,
		Message: reason,
	}, nil
}

func alreadyProcessed(p *domain.Payment) string {
	return "Payment already " + string(p.Status)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
