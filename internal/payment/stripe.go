package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/metinatakli/payment-service/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

const (
	stripeSignatureHeader = "Stripe-Signature"
	defaultStripeCurrency = "usd"

	errStripeNotConfigured        = "Stripe is not configured. Please set the Stripe secret key"
	errStripeWebhookNotConfigured = "Stripe webhook secret is not configured"
)

var hundred = decimal.NewFromInt(100)

// intentAPI is the subset of the Stripe client the gateway needs. It lets
// tests swap the network for an in-process fake.
type intentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type refundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

type StripeGateway struct {
	cfg     StripeConfig
	intents intentAPI
	refunds refundAPI
}

func NewStripeGateway(cfg Config, httpClient *http.Client) *StripeGateway {
	g := &StripeGateway{cfg: cfg.Stripe}

	if cfg.Stripe.SecretKey == "" {
		return g
	}

	backendConfig := &stripe.BackendConfig{HTTPClient: httpClient}
	if cfg.Stripe.APIURL != "" {
		backendConfig.URL = stripe.String(cfg.Stripe.APIURL)
	}

	sc := client.New(cfg.Stripe.SecretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendConfig),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendConfig),
	})

	g.intents = sc.PaymentIntents
	g.refunds = sc.Refunds

	return g
}

func (g *StripeGateway) Method() domain.PaymentMethod {
	return domain.PaymentMethodStripe
}

func (g *StripeGateway) Enabled() bool {
	return g.cfg.SecretKey != "" && g.intents != nil
}

func (g *StripeGateway) CreateSession(ctx context.Context, req domain.SessionRequest) (*domain.SessionResult, error) {
	if !g.Enabled() {
		return nil, domain.NewConfigurationError(errStripeNotConfigured)
	}

	if !req.Amount.IsPositive() {
		return nil, domain.NewValidationError("amount must be greater than zero")
	}

	currency := strings.ToLower(firstNonEmpty(req.Currency, g.cfg.Currency, defaultStripeCurrency))

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(toMinorUnits(req.Amount)),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("invoice_id", strconv.Itoa(req.InvoiceID))
	params.AddMetadata("user_id", strconv.Itoa(req.UserID))
	params.AddMetadata("payment_method", string(domain.PaymentMethodStripe))

	if req.Customer.Email != "" {
		params.ReceiptEmail = stripe.String(req.Customer.Email)
	}

	pi, err := g.intents.New(params)
	if err != nil {
		return nil, stripeFailure("failed to create Stripe payment intent", err)
	}

	return &domain.SessionResult{
		PaymentIntentID: pi.ID,
		ClientSecret:    pi.ClientSecret,
		Amount:          fromMinorUnits(pi.Amount),
		Currency:        string(pi.Currency),
	}, nil
}

type stripeWebhookEnvelope struct {
	Data struct {
		Object struct {
			ID     string `json:"id"`
			Object string `json:"object"`
		} `json:"object"`
	} `json:"data"`
}

func (g *StripeGateway) LookupKeys(payload domain.CallbackPayload) ([]domain.LookupKey, error) {
	if payload.Headers.Get(stripeSignatureHeader) != "" {
		var envelope stripeWebhookEnvelope
		err := json.Unmarshal(payload.Body, &envelope)
		if err != nil || envelope.Data.Object.ID == "" {
			return nil, domain.NewSignatureError("malformed Stripe event")
		}

		return []domain.LookupKey{domain.ByPaymentIntentID(envelope.Data.Object.ID)}, nil
	}

	intentID := payload.Get("payment_intent_id")
	if intentID == "" {
		return nil, domain.NewValidationError("Payment intent ID is required")
	}

	return []domain.LookupKey{domain.ByPaymentIntentID(intentID)}, nil
}

// VerifyCallback never trusts a client confirmation as is: the intent is read
// back from Stripe. Webhook events are trusted once their signature checks out.
func (g *StripeGateway) VerifyCallback(ctx context.Context, payload domain.CallbackPayload) (*domain.VerifyResult, error) {
	if !g.Enabled() {
		return nil, domain.NewConfigurationError(errStripeNotConfigured)
	}

	if sig := payload.Headers.Get(stripeSignatureHeader); sig != "" {
		return g.verifyWebhook(payload.Body, sig)
	}

	intentID := payload.Get("payment_intent_id")
	if intentID == "" {
		return nil, domain.NewValidationError("Payment intent ID is required")
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.intents.Get(intentID, params)
	if err != nil {
		return nil, stripeFailure("failed to retrieve Stripe payment intent", err)
	}

	return intentResult(pi), nil
}

func (g *StripeGateway) verifyWebhook(body []byte, signature string) (*domain.VerifyResult, error) {
	if g.cfg.WebhookSecret == "" {
		return nil, domain.NewConfigurationError(errStripeWebhookNotConfigured)
	}

	event, err := webhook.ConstructEventWithOptions(body, signature, g.cfg.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return &domain.VerifyResult{Valid: false, Message: err.Error()}, nil
	}

	switch string(event.Type) {
	case "payment_intent.succeeded", "payment_intent.payment_failed", "payment_intent.canceled":
	default:
		return &domain.VerifyResult{Valid: true, Status: domain.VerifyPending}, nil
	}

	var pi stripe.PaymentIntent
	err = json.Unmarshal(event.Data.Raw, &pi)
	if err != nil {
		return nil, domain.NewProviderError("failed to decode Stripe event", err, false)
	}

	return intentResult(&pi), nil
}

func intentResult(pi *stripe.PaymentIntent) *domain.VerifyResult {
	result := &domain.VerifyResult{
		Valid:         true,
		TransactionID: pi.ID,
		Amount:        fromMinorUnits(pi.Amount),
		Currency:      string(pi.Currency),
		Raw: map[string]any{
			"id":       pi.ID,
			"status":   string(pi.Status),
			"amount":   fromMinorUnits(pi.Amount).String(),
			"currency": string(pi.Currency),
		},
	}

	if pi.PaymentMethod != nil {
		result.Raw["payment_method"] = pi.PaymentMethod.ID
	}

	if pi.LatestCharge != nil && pi.LatestCharge.ReceiptURL != "" {
		result.Raw["receipt_url"] = pi.LatestCharge.ReceiptURL
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		result.Status = domain.VerifySucceeded
	case stripe.PaymentIntentStatusCanceled, stripe.PaymentIntentStatusRequiresPaymentMethod:
		result.Status = domain.VerifyFailed
		result.Message = fmt.Sprintf("Payment not completed. Status: %s", pi.Status)
	default:
		result.Status = domain.VerifyPending
		result.Message = fmt.Sprintf("Payment not completed. Status: %s", pi.Status)
	}

	return result
}

func (g *StripeGateway) ProcessRefund(ctx context.Context, req domain.RefundRequest) (*domain.RefundResult, error) {
	if !g.Enabled() {
		return nil, domain.NewConfigurationError(errStripeNotConfigured)
	}

	if req.Payment.PaymentIntentID == nil || *req.Payment.PaymentIntentID == "" {
		return nil, domain.NewValidationError("payment has no Stripe payment intent to refund against")
	}

	params := &stripe.RefundParams{
		PaymentIntent: req.Payment.PaymentIntentID,
		Amount:        stripe.Int64(toMinorUnits(req.Amount)),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	if req.Reason != "" {
		params.AddMetadata("reason", req.Reason)
	}

	refund, err := g.refunds.New(params)
	if err != nil {
		return nil, stripeFailure("failed to create Stripe refund", err)
	}

	if refund.Status == stripe.RefundStatusFailed || refund.Status == stripe.RefundStatusCanceled {
		return nil, domain.NewProviderError(fmt.Sprintf("Stripe refund %s", refund.Status), nil, false)
	}

	return &domain.RefundResult{
		RefundReference: refund.ID,
		Amount:          fromMinorUnits(refund.Amount),
		Status:          string(refund.Status),
	}, nil
}

func stripeFailure(message string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		temporary := stripeErr.HTTPStatusCode >= http.StatusInternalServerError ||
			stripeErr.HTTPStatusCode == http.StatusTooManyRequests
		if stripeErr.Msg != "" {
			message = stripeErr.Msg
		}

		return domain.NewProviderError(message, err, temporary)
	}

	return providerFailure(message, err)
}

func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

func fromMinorUnits(amount int64) decimal.Decimal {
	return decimal.NewFromInt(amount).Div(hundred)
}
