package domain

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentMethodStripe         PaymentMethod = "stripe"
	PaymentMethodSSLCommerz     PaymentMethod = "ssl_commerz"
	PaymentMethodShurjoPay      PaymentMethod = "shurjopay"
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

var PaymentMethods = []PaymentMethod{
	PaymentMethodStripe,
	PaymentMethodSSLCommerz,
	PaymentMethodShurjoPay,
	PaymentMethodCashOnDelivery,
}

func (m PaymentMethod) Valid() bool {
	for _, v := range PaymentMethods {
		if m == v {
			return true
		}
	}

	return false
}

type CustomerInfo struct {
	Name     string
	Email    string
	Phone    string
	Address  string
	City     string
	PostCode string
	Country  string
	ClientIP string
}

type SessionRequest struct {
	InvoiceID   int
	UserID      int
	Amount      decimal.Decimal
	Currency    string
	Customer    CustomerInfo
	SuccessURL  string
	FailURL     string
	CancelURL   string
	Description string
}

// SessionResult is what a gateway hands back when a payment session or intent
// has been opened. Metadata is persisted on the payment record as is.
type SessionResult struct {
	TransactionID   string
	PaymentIntentID string
	RedirectURL     string
	ClientSecret    string
	Amount          decimal.Decimal
	Currency        string
	Metadata        map[string]any
}

// CallbackPayload is an inbound provider notification as received over HTTP.
type CallbackPayload struct {
	Fields  map[string]string
	Body    []byte
	Headers http.Header
}

func (p CallbackPayload) Get(key string) string {
	if p.Fields == nil {
		return ""
	}

	return p.Fields[key]
}

// Raw returns the callback fields as a gateway response blob.
func (p CallbackPayload) Raw() map[string]any {
	raw := make(map[string]any, len(p.Fields))
	for k, v := range p.Fields {
		raw[k] = v
	}

	return raw
}

type VerifyStatus int

const (
	// VerifyPending means the provider has not reached a final state yet.
	VerifyPending VerifyStatus = iota
	VerifySucceeded
	VerifyFailed
)

type VerifyResult struct {
	Valid         bool
	Status        VerifyStatus
	TransactionID string
	OrderID       string
	Amount        decimal.Decimal
	Currency      string
	Message       string
	Raw           map[string]any
	Metadata      map[string]any
}

func (r VerifyResult) Successful() bool {
	return r.Valid && r.Status == VerifySucceeded
}

type RefundRequest struct {
	Payment Payment
	Amount  decimal.Decimal
	Reason  string
}

type RefundResult struct {
	RefundReference string
	Amount          decimal.Decimal
	Status          string
	Metadata        map[string]any
}

// Gateway is the integration boundary to a single payment provider.
type Gateway interface {
	Method() PaymentMethod
	Enabled() bool
	CreateSession(ctx context.Context, req SessionRequest) (*SessionResult, error)
	// LookupKeys extracts, without verifying anything, the ordered list of
	// identifiers a callback may reference its payment by.
	LookupKeys(payload CallbackPayload) ([]LookupKey, error)
	VerifyCallback(ctx context.Context, payload CallbackPayload) (*VerifyResult, error)
	ProcessRefund(ctx context.Context, req RefundRequest) (*RefundResult, error)
}

type LookupField string

const (
	LookupTransactionID   LookupField = "transaction_id"
	LookupPaymentIntentID LookupField = "payment_intent_id"
	LookupMetadata        LookupField = "metadata"
)

// LookupKey is one strategy for locating a payment from a callback. Strategies
// are tried in order and the first match wins.
type LookupKey struct {
	Field LookupField
	// MetadataKey names the metadata entry when Field is LookupMetadata.
	MetadataKey string
	Value       string
}

func ByTransactionID(v string) LookupKey {
	return LookupKey{Field: LookupTransactionID, Value: v}
}

func ByPaymentIntentID(v string) LookupKey {
	return LookupKey{Field: LookupPaymentIntentID, Value: v}
}

func ByMetadata(key, v string) LookupKey {
	return LookupKey{Field: LookupMetadata, MetadataKey: key, Value: v}
}

type MethodInfo struct {
	ID          PaymentMethod
	Name        string
	Description string
	Currency    string
	Enabled     bool
}
