// Package api holds the wire types of the HTTP API and the OpenAPI document
// that describes them.
package api

import (
	"time"

	"github.com/shopspring/decimal"
)

type ErrorResponse struct {
	Message   string    `json:"message"`
	RequestId string    `json:"requestId"`
	Timestamp time.Time `json:"timestamp"`
}

type ValidationError struct {
	Field string `json:"field"`
	Issue string `json:"issue"`
}

type ValidationErrorResponse struct {
	Message          string            `json:"message"`
	RequestId        string            `json:"requestId"`
	Timestamp        time.Time         `json:"timestamp"`
	ValidationErrors []ValidationError `json:"validationErrors"`
}

type SystemInfo struct {
	Version     string `json:"version"`
	Environment string `json:"environment"`
}

type HealthcheckResponse struct {
	Status     string     `json:"status"`
	SystemInfo SystemInfo `json:"systemInfo"`
}

type CustomerInfo struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"omitempty,email"`
	Phone    string `json:"phone" validate:"required,max=20"`
	Address  string `json:"address" validate:"max=255"`
	City     string `json:"city" validate:"max=100"`
	PostCode string `json:"post_code" validate:"max=20"`
	Country  string `json:"country" validate:"max=100"`
}

type CreateStripeIntentRequest struct {
	InvoiceID int             `json:"invoice_id" validate:"required,gt=0"`
	UserID    int             `json:"user_id" validate:"omitempty,gt=0"`
	Amount    decimal.Decimal `json:"amount" validate:"decimal_gte0"`
	Currency  string          `json:"currency" validate:"omitempty,currency"`
	Email     string          `json:"email" validate:"omitempty,email"`
}

type CreateSessionRequest struct {
	InvoiceID    int             `json:"invoice_id" validate:"required,gt=0"`
	UserID       int             `json:"user_id" validate:"omitempty,gt=0"`
	Amount       decimal.Decimal `json:"amount" validate:"decimal_gte0"`
	CustomerInfo *CustomerInfo   `json:"customer_info" validate:"required"`
	SuccessURL   string          `json:"success_url" validate:"omitempty,url"`
	FailURL      string          `json:"fail_url" validate:"omitempty,url"`
	CancelURL    string          `json:"cancel_url" validate:"omitempty,url"`
}

type ConfirmStripeRequest struct {
	PaymentIntentID string `json:"payment_intent_id" validate:"required"`
}

type CashOnDeliveryRequest struct {
	InvoiceID int    `json:"invoice_id" validate:"required,gt=0"`
	UserID    int    `json:"user_id" validate:"omitempty,gt=0"`
	Note      string `json:"note" validate:"max=500"`
}

type UpdatePaymentStatusRequest struct {
	Status string `json:"status" validate:"required,payment_status"`
	Note   string `json:"note" validate:"max=500"`
}

type RefundPaymentRequest struct {
	RefundAmount decimal.Decimal `json:"refund_amount" validate:"decimal_gt0"`
	Reason       string          `json:"reason" validate:"max=500"`
}

type PaymentSessionResponse struct {
	PaymentID       int             `json:"payment_id"`
	Status          string          `json:"status"`
	TransactionID   string          `json:"transaction_id,omitempty"`
	PaymentIntentID string          `json:"payment_intent_id,omitempty"`
	ClientSecret    string          `json:"client_secret,omitempty"`
	GatewayURL      string          `json:"gateway_url,omitempty"`
	SessionKey      string          `json:"session_key,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
}

type PaymentOutcomeResponse struct {
	PaymentID     int    `json:"payment_id"`
	InvoiceID     int    `json:"invoice_id"`
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id,omitempty"`
	Message       string `json:"message,omitempty"`
}

type RefundResponse struct {
	PaymentID       int             `json:"payment_id"`
	Status          string          `json:"status"`
	RefundAmount    decimal.Decimal `json:"refund_amount"`
	RefundReference string          `json:"refund_reference"`
	RefundedAt      time.Time       `json:"refunded_at"`
}

type Payment struct {
	ID              int              `json:"id"`
	UserID          int              `json:"user_id"`
	InvoiceID       int              `json:"invoice_id"`
	PaymentMethod   string           `json:"payment_method"`
	Amount          decimal.Decimal  `json:"amount"`
	Currency        string           `json:"currency"`
	Status          string           `json:"status"`
	TransactionID   *string          `json:"transaction_id,omitempty"`
	PaymentIntentID *string          `json:"payment_intent_id,omitempty"`
	GatewayResponse map[string]any   `json:"gateway_response,omitempty"`
	Metadata        map[string]any   `json:"metadata,omitempty"`
	FailureReason   *string          `json:"failure_reason,omitempty"`
	PaymentDate     *time.Time       `json:"payment_date,omitempty"`
	RefundedAt      *time.Time       `json:"refunded_at,omitempty"`
	RefundAmount    *decimal.Decimal `json:"refund_amount,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

type Metadata struct {
	CurrentPage  int `json:"current_page"`
	FirstPage    int `json:"first_page"`
	LastPage     int `json:"last_page"`
	PageSize     int `json:"page_size"`
	TotalRecords int `json:"total_records"`
}

type PaymentListResponse struct {
	Payments []Payment `json:"payments"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

type PaymentMethod struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Currency    string `json:"currency"`
	Enabled     bool   `json:"enabled"`
}

type PaymentMethodsResponse struct {
	Methods              []PaymentMethod `json:"methods"`
	StripePublishableKey string          `json:"stripe_publishable_key,omitempty"`
}

type PaymentStat struct {
	Key         string          `json:"key"`
	Count       int             `json:"count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

type PaymentStatsResponse struct {
	StatusBreakdown      []PaymentStat   `json:"status_breakdown"`
	MethodBreakdown      []PaymentStat   `json:"method_breakdown"`
	TotalPayments        int             `json:"total_payments"`
	TotalCompletedAmount decimal.Decimal `json:"total_completed_amount"`
}

type Address struct {
	Street  string `json:"street,omitempty" validate:"max=255"`
	City    string `json:"city,omitempty" validate:"max=100"`
	State   string `json:"state,omitempty" validate:"max=100"`
	ZipCode string `json:"zip_code,omitempty" validate:"max=20"`
	Country string `json:"country,omitempty" validate:"max=100"`
}

type CreateInvoiceRequest struct {
	UserID          int             `json:"user_id" validate:"required,gt=0"`
	Subtotal        decimal.Decimal `json:"subtotal" validate:"decimal_gte0"`
	Tax             decimal.Decimal `json:"tax" validate:"decimal_gte0"`
	Discount        decimal.Decimal `json:"discount" validate:"decimal_gte0"`
	PaymentMethod   string          `json:"payment_method" validate:"required,payment_method"`
	ShippingAddress *Address        `json:"shipping_address"`
	BillingAddress  *Address        `json:"billing_address"`
	CustomerEmail   string          `json:"customer_email" validate:"omitempty,email"`
	Notes           string          `json:"notes" validate:"max=1000"`
}

type Invoice struct {
	ID              int             `json:"id"`
	UserID          int             `json:"user_id"`
	InvoiceNumber   string          `json:"invoice_number"`
	OrderDate       time.Time       `json:"order_date"`
	DueDate         time.Time       `json:"due_date"`
	Status          string          `json:"status"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Tax             decimal.Decimal `json:"tax"`
	Discount        decimal.Decimal `json:"discount"`
	Total           decimal.Decimal `json:"total"`
	PaymentMethod   string          `json:"payment_method"`
	PaymentStatus   string          `json:"payment_status"`
	ShippingAddress *Address        `json:"shipping_address,omitempty"`
	BillingAddress  *Address        `json:"billing_address,omitempty"`
	CustomerEmail   string          `json:"customer_email,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}
