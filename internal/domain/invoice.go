package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "pending"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
	InvoiceStatusConfirmed InvoiceStatus = "confirmed"
	InvoiceStatusRefunded  InvoiceStatus = "refunded"
)

type InvoicePaymentStatus string

const (
	InvoicePaymentPending   InvoicePaymentStatus = "pending"
	InvoicePaymentCompleted InvoicePaymentStatus = "completed"
	InvoicePaymentFailed    InvoicePaymentStatus = "failed"
)

const InvoiceDueIn = 30 * 24 * time.Hour

type Address struct {
	Street  string `json:"street,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	ZipCode string `json:"zipCode,omitempty"`
	Country string `json:"country,omitempty"`
}

type Invoice struct {
	ID              int
	UserID          int
	InvoiceNumber   string
	OrderDate       time.Time
	DueDate         time.Time
	Status          InvoiceStatus
	Subtotal        decimal.Decimal
	Tax             decimal.Decimal
	Discount        decimal.Decimal
	Total           decimal.Decimal
	PaymentMethod   PaymentMethod
	PaymentStatus   InvoicePaymentStatus
	ShippingAddress *Address
	BillingAddress  *Address
	CustomerEmail   string
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// InvoiceUpdate is the projection of a payment outcome onto its invoice.
// Nil fields are left untouched.
type InvoiceUpdate struct {
	Status        *InvoiceStatus
	PaymentStatus *InvoicePaymentStatus
}

type InvoiceRepository interface {
	Create(ctx context.Context, invoice *Invoice) error
	GetById(ctx context.Context, id int) (*Invoice, error)
}
