package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/metinatakli/payment-service/internal/domain"
)

// CashOnDeliveryGateway settles offline, so every call succeeds locally.
type CashOnDeliveryGateway struct {
	currency string
	now      func() time.Time
}

func NewCashOnDeliveryGateway(currency string) *CashOnDeliveryGateway {
	return &CashOnDeliveryGateway{
		currency: firstNonEmpty(currency, defaultCODCurrency),
		now:      time.Now,
	}
}

func (g *CashOnDeliveryGateway) Method() domain.PaymentMethod {
	return domain.PaymentMethodCashOnDelivery
}

func (g *CashOnDeliveryGateway) Enabled() bool {
	return true
}

func (g *CashOnDeliveryGateway) CreateSession(ctx context.Context, req domain.SessionRequest) (*domain.SessionResult, error) {
	if !req.Amount.IsPositive() {
		return nil, domain.NewValidationError("amount must be greater than zero")
	}

	return &domain.SessionResult{
		TransactionID: fmt.Sprintf("COD_%d_%d", g.now().UnixMilli(), req.InvoiceID),
		Amount:        req.Amount,
		Currency:      firstNonEmpty(req.Currency, g.currency),
		Metadata: map[string]any{
			"delivery_note": firstNonEmpty(req.Description, "Payment will be collected on delivery"),
		},
	}, nil
}

func (g *CashOnDeliveryGateway) LookupKeys(payload domain.CallbackPayload) ([]domain.LookupKey, error) {
	tranID := payload.Get("transaction_id")
	if tranID == "" {
		return nil, domain.NewSignatureError("callback is missing transaction_id")
	}

	return []domain.LookupKey{domain.ByTransactionID(tranID)}, nil
}

// VerifyCallback accepts the delivery confirmation as is.
func (g *CashOnDeliveryGateway) VerifyCallback(ctx context.Context, payload domain.CallbackPayload) (*domain.VerifyResult, error) {
	return &domain.VerifyResult{
		Valid:         true,
		Status:        domain.VerifySucceeded,
		TransactionID: payload.Get("transaction_id"),
		Raw:           payload.Raw(),
	}, nil
}

func (g *CashOnDeliveryGateway) ProcessRefund(ctx context.Context, req domain.RefundRequest) (*domain.RefundResult, error) {
	return &domain.RefundResult{
		RefundReference: fmt.Sprintf("REF_%d", g.now().UnixMilli()),
		Amount:          req.Amount,
		Status:          "completed",
		Metadata: map[string]any{
			"manual_settlement": true,
		},
	}, nil
}
