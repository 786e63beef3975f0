package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/metinatakli/payment-service/internal/domain"
	"github.com/shopspring/decimal"
)

type RefundRequest struct {
	PaymentID int
	Amount    decimal.Decimal
	Reason    string
}

type RefundOutcome struct {
	Payment         *domain.Payment
	RefundReference string
}

// refundLease is how long an unsettled refund claim blocks other attempts.
const refundLease = 15 * time.Minute

// Refund returns money for a completed payment. The payment is claimed in the
// store before the provider is called; a concurrent request that loses the
// claim gets a ConflictError. Nothing else is persisted unless the provider
// accepted the refund.
func (o *Orchestrator) Refund(ctx context.Context, req RefundRequest) (*RefundOutcome, error) {
	payment, err := o.payment(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}

	if payment.Status != domain.PaymentStatusCompleted {
		return nil, domain.NewValidationError("Only completed payments can be refunded")
	}

	if !req.Amount.IsPositive() {
		return nil, domain.NewValidationError("Refund amount must be greater than zero")
	}

	if req.Amount.GreaterThan(payment.Amount) {
		return nil, domain.NewValidationError("Refund amount cannot exceed payment amount")
	}

	gateway, err := o.gateways.Get(payment.PaymentMethod)
	if err != nil {
		return nil, err
	}

	claim, err := o.payments.ClaimRefund(ctx, payment.ID, refundLease)
	if err != nil {
		return nil, err
	}

	if !claim.Applied {
		if claim.Payment.Status != domain.PaymentStatusCompleted {
			return nil, domain.NewConflictError("Payment is no longer completed")
		}

		return nil, domain.NewConflictError("A refund for this payment is already in progress")
	}

	refund, err := gateway.ProcessRefund(ctx, domain.RefundRequest{
		Payment: *claim.Payment,
		Amount:  req.Amount,
		Reason:  req.Reason,
	})
	if err != nil {
		o.logger.WarnContext(ctx, "refund rejected", "payment_id", payment.ID, "error", err)

		// A timed out refund may still go through at the provider, so the
		// claim is kept until the lease runs out.
		if !domain.IsTemporary(err) {
			o.releaseRefund(ctx, payment.ID)
		}

		return nil, err
	}

	now := o.now()
	amount := req.Amount
	invoiceStatus := domain.InvoiceStatusRefunded

	metadata := map[string]any{
		"refund_id":     refund.RefundReference,
		"refund_reason": req.Reason,
	}
	for k, v := range refund.Metadata {
		metadata[k] = v
	}

	event, err := newEvent(domain.EventPaymentRefunded, payment, now, &amount)
	if err != nil {
		return nil, err
	}

	res, err := o.payments.Transition(ctx, domain.PaymentTransition{
		PaymentID:    payment.ID,
		From:         []domain.PaymentStatus{domain.PaymentStatusCompleted},
		To:           domain.PaymentStatusRefunded,
		Metadata:     metadata,
		RefundedAt:   &now,
		RefundAmount: &amount,
		Invoice:      domain.InvoiceUpdate{Status: &invoiceStatus},
		Event:        event,
	})
	if err != nil {
		return nil, err
	}

	if !res.Applied {
		o.logger.ErrorContext(ctx, "refund accepted by provider but payment already left completed",
			"payment_id", payment.ID, "status", res.Payment.Status, "refund_reference", refund.RefundReference)
		return nil, domain.NewConflictError("Payment is no longer completed")
	}

	o.metrics.refunded(ctx, payment.PaymentMethod)
	o.logger.InfoContext(ctx, "payment refunded", "payment_id", payment.ID, "amount", amount)
	o.notify(ctx, res.Payment, refundTemplate)

	return &RefundOutcome{
		Payment:         res.Payment,
		RefundReference: refund.RefundReference,
	}, nil
}

// UpdateStatus is the operator override. It follows the same state machine
// as provider callbacks, and a completed payment can only leave through
// Refund.
func (o *Orchestrator) UpdateStatus(
	ctx context.Context,
	paymentID int,
	status domain.PaymentStatus,
	note string) (*domain.Payment, error) {

	payment, err := o.payment(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	if payment.Status == status {
		return payment, nil
	}

	if !payment.Status.CanTransitionTo(status) {
		return nil, domain.NewConflictError("Cannot change payment status from %s to %s", payment.Status, status)
	}

	now := o.now()
	transition := domain.PaymentTransition{
		PaymentID: payment.ID,
		From:      []domain.PaymentStatus{payment.Status},
		To:        status,
	}

	if note != "" {
		transition.Metadata = map[string]any{"status_note": note}
	}

	var eventType domain.EventType

	switch status {
	case domain.PaymentStatusCompleted:
		invoiceStatus := domain.InvoiceStatusConfirmed
		paymentStatus := domain.InvoicePaymentCompleted
		transition.PaymentDate = &now
		transition.Invoice = domain.InvoiceUpdate{Status: &invoiceStatus, PaymentStatus: &paymentStatus}
		eventType = domain.EventPaymentCompleted
	case domain.PaymentStatusFailed:
		reason := firstNonEmpty(note, "Marked as failed by operator")
		transition.FailureReason = &reason
		eventType = domain.EventPaymentFailed
	case domain.PaymentStatusCancelled:
		if note != "" {
			transition.FailureReason = &note
		}
	}

	if eventType != "" {
		transition.Event, err = newEvent(eventType, payment, now, nil)
		if err != nil {
			return nil, err
		}
	}

	res, err := o.payments.Transition(ctx, transition)
	if err != nil {
		return nil, err
	}

	if !res.Applied {
		return nil, domain.NewConflictError("Payment status changed concurrently, now %s", res.Payment.Status)
	}

	o.logger.InfoContext(ctx, "payment status overridden",
		"payment_id", payment.ID, "from", payment.Status, "to", status)

	switch status {
	case domain.PaymentStatusCompleted:
		o.metrics.completed(ctx, payment.PaymentMethod)
		o.notify(ctx, res.Payment, receiptTemplate)
	case domain.PaymentStatusFailed:
		o.metrics.failed(ctx, payment.PaymentMethod)
	}

	return res.Payment, nil
}

func (o *Orchestrator) releaseRefund(ctx context.Context, id int) {
	err := o.payments.ReleaseRefund(context.WithoutCancel(ctx), id)
	if err != nil {
		o.logger.ErrorContext(ctx, "failed to release refund claim", "payment_id", id, "error", err)
	}
}

func (o *Orchestrator) payment(ctx context.Context, id int) (*domain.Payment, error) {
	payment, err := o.payments.GetById(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Payment not found")
		}

		return nil, err
	}

	return payment, nil
}
