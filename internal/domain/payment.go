package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

// IsTerminal reports whether no further transition may leave s, except the
// completed -> refunded edge which only the refund operation can take.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusRefunded:
		return true
	}

	return false
}

// IsActive reports whether a payment in status s blocks a new attempt for the
// same invoice and method.
func (s PaymentStatus) IsActive() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusProcessing, PaymentStatusCompleted:
		return true
	}

	return false
}

// CanTransitionTo encodes the payment state machine used by status overrides.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentStatusPending:
		return next == PaymentStatusProcessing ||
			next == PaymentStatusCompleted ||
			next == PaymentStatusFailed ||
			next == PaymentStatusCancelled
	case PaymentStatusProcessing:
		return next == PaymentStatusCompleted ||
			next == PaymentStatusFailed ||
			next == PaymentStatusCancelled
	}

	return false
}

var PaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusProcessing,
	PaymentStatusCompleted,
	PaymentStatusFailed,
	PaymentStatusCancelled,
	PaymentStatusRefunded,
}

type Payment struct {
	ID              int
	UserID          int
	InvoiceID       int
	PaymentMethod   PaymentMethod
	Amount          decimal.Decimal
	Currency        string
	Status          PaymentStatus
	TransactionID   *string
	PaymentIntentID *string
	GatewayResponse map[string]any
	Metadata        map[string]any
	FailureReason   *string
	PaymentDate     *time.Time
	RefundedAt      *time.Time
	RefundAmount    *decimal.Decimal
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// MetadataString returns the metadata value under key when it is a non-empty
// string.
func (p *Payment) MetadataString(key string) string {
	if p.Metadata == nil {
		return ""
	}

	v, _ := p.Metadata[key].(string)
	return v
}

// GatewayString is MetadataString for the stored gateway response.
func (p *Payment) GatewayString(key string) string {
	if p.GatewayResponse == nil {
		return ""
	}

	v, _ := p.GatewayResponse[key].(string)
	return v
}

// PaymentTransition describes one verified outcome to apply to a payment.
// The store applies it only while the payment is still open, so applying the
// same transition twice is a no-op the second time.
type PaymentTransition struct {
	PaymentID       int
	From            []PaymentStatus
	To              PaymentStatus
	TransactionID   *string
	GatewayResponse map[string]any
	Metadata        map[string]any
	FailureReason   *string
	PaymentDate     *time.Time
	RefundedAt      *time.Time
	RefundAmount    *decimal.Decimal

	Invoice InvoiceUpdate
	Event   *OutboxEvent
}

// TransitionResult reports the payment as stored after a transition attempt.
// Applied is false when the payment had already left the From states.
type TransitionResult struct {
	Payment *Payment
	Applied bool
}

type PaymentStat struct {
	Key         string
	Count       int
	TotalAmount decimal.Decimal
}

type PaymentStats struct {
	StatusBreakdown      []PaymentStat
	MethodBreakdown      []PaymentStat
	TotalPayments        int
	TotalCompletedAmount decimal.Decimal
}

type PaymentRepository interface {
	Create(ctx context.Context, payment *Payment) error
	GetById(ctx context.Context, id int) (*Payment, error)
	FindActive(ctx context.Context, invoiceID int, method PaymentMethod) (*Payment, error)
	FindByLookup(ctx context.Context, method PaymentMethod, keys []LookupKey) (*Payment, error)
	ListByUserId(ctx context.Context, userID int) ([]Payment, error)
	List(ctx context.Context, pagination Pagination) ([]Payment, *Metadata, error)
	Transition(ctx context.Context, transition PaymentTransition) (*TransitionResult, error)
	// ClaimRefund reserves a completed payment for a single refund attempt.
	// A claim older than lease is considered abandoned and can be taken over.
	// Applied is false when the payment is not completed or already claimed.
	ClaimRefund(ctx context.Context, id int, lease time.Duration) (*TransitionResult, error)
	ReleaseRefund(ctx context.Context, id int) error
	Stats(ctx context.Context) (*PaymentStats, error)
}
