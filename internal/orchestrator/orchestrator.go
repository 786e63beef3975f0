package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/metinatakli/payment-service/internal/domain"
	"github.com/metinatakli/payment-service/internal/mailer"
	"github.com/shopspring/decimal"
)

// GatewayProvider resolves payment methods to their gateways.
type GatewayProvider interface {
	Get(method domain.PaymentMethod) (domain.Gateway, error)
	Methods() []domain.MethodInfo
	PublishableKey() string
}

// Orchestrator drives payments through their lifecycle. It keeps no state
// between calls: duplicate prevention and idempotent transitions are left to
// the payment store.
type Orchestrator struct {
	payments domain.PaymentRepository
	invoices domain.InvoiceRepository
	gateways GatewayProvider
	mailer   mailer.Mailer
	logger   *slog.Logger
	metrics  *metrics
	now      func() time.Time

	wg sync.WaitGroup
}

func New(
	payments domain.PaymentRepository,
	invoices domain.InvoiceRepository,
	gateways GatewayProvider,
	mailer mailer.Mailer,
	logger *slog.Logger) *Orchestrator {

	m, err := newMetrics()
	if err != nil {
		logger.Warn("failed to register payment metrics", "error", err)
	}

	return &Orchestrator{
		payments: payments,
		invoices: invoices,
		gateways: gateways,
		mailer:   mailer,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// Wait blocks until every background notification has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

type InitiateRequest struct {
	InvoiceID int
	UserID    int
	Method    domain.PaymentMethod
	// Amount falls back to the invoice total when zero. Cash on delivery
	// always charges the invoice total.
	Amount     decimal.Decimal
	Currency   string
	Customer   domain.CustomerInfo
	SuccessURL string
	FailURL    string
	CancelURL  string
	Note       string
}

// PaymentSession is the pending payment together with whatever the client
// needs to continue on the provider side.
type PaymentSession struct {
	Payment      *domain.Payment
	RedirectURL  string
	ClientSecret string
	SessionKey   string
}

func (o *Orchestrator) Initiate(ctx context.Context, req InitiateRequest) (*PaymentSession, error) {
	if req.InvoiceID <= 0 {
		return nil, domain.NewValidationError("Invoice ID is required")
	}

	if req.Amount.IsNegative() {
		return nil, domain.NewValidationError("amount must not be negative")
	}

	gateway, err := o.gateways.Get(req.Method)
	if err != nil {
		return nil, err
	}

	invoice, err := o.invoice(ctx, req.InvoiceID)
	if err != nil {
		return nil, err
	}

	amount := req.Amount
	if amount.IsZero() || req.Method == domain.PaymentMethodCashOnDelivery {
		amount = invoice.Total
	}

	if amount.GreaterThan(invoice.Total) {
		return nil, domain.NewValidationError("amount %s exceeds the invoice total %s", amount, invoice.Total)
	}

	userID := req.UserID
	if userID == 0 {
		userID = invoice.UserID
	}

	_, err = o.payments.FindActive(ctx, invoice.ID, req.Method)
	switch {
	case err == nil:
		return nil, domain.NewConflictError("Payment already exists for this invoice")
	case !errors.Is(err, domain.ErrRecordNotFound):
		return nil, err
	}

	session, err := gateway.CreateSession(ctx, domain.SessionRequest{
		InvoiceID:   invoice.ID,
		UserID:      userID,
		Amount:      amount,
		Currency:    req.Currency,
		Customer:    req.Customer,
		SuccessURL:  req.SuccessURL,
		FailURL:     req.FailURL,
		CancelURL:   req.CancelURL,
		Description: req.Note,
	})
	if err != nil {
		o.logger.WarnContext(ctx, "failed to create payment session",
			"method", req.Method, "invoice_id", invoice.ID, "error", err)
		return nil, err
	}

	payment := &domain.Payment{
		UserID:          userID,
		InvoiceID:       invoice.ID,
		PaymentMethod:   req.Method,
		Amount:          amount,
		Currency:        session.Currency,
		Status:          domain.PaymentStatusPending,
		TransactionID:   optional(session.TransactionID),
		PaymentIntentID: optional(session.PaymentIntentID),
		GatewayResponse: map[string]any{},
		Metadata:        session.Metadata,
	}

	if payment.Metadata == nil {
		payment.Metadata = map[string]any{}
	}

	if req.Note != "" {
		payment.Metadata["note"] = req.Note
	}

	err = o.payments.Create(ctx, payment)
	if err != nil {
		return nil, err
	}

	o.metrics.initiated(ctx, req.Method)
	o.logger.InfoContext(ctx, "payment initiated",
		"payment_id", payment.ID, "method", req.Method, "invoice_id", invoice.ID)

	sessionKey, _ := session.Metadata["session_key"].(string)

	return &PaymentSession{
		Payment:      payment,
		RedirectURL:  session.RedirectURL,
		ClientSecret: session.ClientSecret,
		SessionKey:   sessionKey,
	}, nil
}

func (o *Orchestrator) invoice(ctx context.Context, id int) (*domain.Invoice, error) {
	invoice, err := o.invoices.GetById(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Invoice not found")
		}

		return nil, err
	}

	return invoice, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}
