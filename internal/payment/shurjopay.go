package payment

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/metinatakli/payment-service/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	shurjoPayCurrency  = "BDT"
	shurjoPayTokenPath = "/api/get_token"
	shurjoPayPayPath   = "/api/secret-pay"

	errShurjoPayNotConfigured = "ShurjoPay is not configured. Please set the endpoint, username, password, prefix and return url"
)

type ShurjoPayGateway struct {
	cfg    Config
	client *http.Client
	now    func() time.Time
}

func NewShurjoPayGateway(cfg Config, client *http.Client) *ShurjoPayGateway {
	return &ShurjoPayGateway{
		cfg:    cfg,
		client: client,
		now:    time.Now,
	}
}

func (g *ShurjoPayGateway) Method() domain.PaymentMethod {
	return domain.PaymentMethodShurjoPay
}

func (g *ShurjoPayGateway) Enabled() bool {
	c := g.cfg.ShurjoPay
	return c.Endpoint != "" && c.Username != "" && c.Password != ""
}

func (g *ShurjoPayGateway) configured() bool {
	c := g.cfg.ShurjoPay
	return g.Enabled() && c.Prefix != "" && c.ReturnURL != ""
}

func (g *ShurjoPayGateway) endpoint(path string) string {
	return strings.TrimRight(g.cfg.ShurjoPay.Endpoint, "/") + path
}

type shurjoPayTokenResponse struct {
	Token      string `json:"token"`
	StoreID    any    `json:"store_id"`
	ExecuteURL string `json:"execute_url"`
	TokenType  string `json:"token_type"`
	SpCode     any    `json:"sp_code"`
	Message    string `json:"message"`
}

type shurjoPayCheckoutResponse struct {
	CheckoutURL string `json:"checkout_url"`
	OrderID     string `json:"order_id"`
	SpOrderID   string `json:"sp_order_id"`
	SpPaymentID string `json:"sp_payment_id"`
	SpCode      any    `json:"sp_code"`
	SpMessage   string `json:"sp_message"`
	Message     string `json:"message"`
}

func (g *ShurjoPayGateway) CreateSession(ctx context.Context, req domain.SessionRequest) (*domain.SessionResult, error) {
	if !g.configured() {
		return nil, domain.NewConfigurationError(errShurjoPayNotConfigured)
	}

	if !req.Amount.IsPositive() {
		return nil, domain.NewValidationError("amount must be greater than zero")
	}

	if req.Customer.Name == "" || req.Customer.Phone == "" {
		return nil, domain.NewValidationError("customer name and phone are required")
	}

	token, err := g.token(ctx)
	if err != nil {
		return nil, err
	}

	orderID := fmt.Sprintf("SP_%d_%d", g.now().UnixMilli(), req.InvoiceID)

	body := map[string]any{
		"prefix":             g.cfg.ShurjoPay.Prefix,
		"token":              token.Token,
		"store_id":           token.StoreID,
		"return_url":         g.cfg.ShurjoPay.ReturnURL,
		"cancel_url":         firstNonEmpty(g.cfg.ShurjoPay.CancelURL, g.cfg.ShurjoPay.ReturnURL),
		"amount":             req.Amount.InexactFloat64(),
		"order_id":           orderID,
		"currency":           shurjoPayCurrency,
		"customer_name":      req.Customer.Name,
		"customer_address":   firstNonEmpty(req.Customer.Address, "N/A"),
		"customer_phone":     req.Customer.Phone,
		"customer_city":      firstNonEmpty(req.Customer.City, "Dhaka"),
		"customer_post_code": firstNonEmpty(req.Customer.PostCode, "1000"),
		"client_ip":          firstNonEmpty(req.Customer.ClientIP, "127.0.0.1"),
		"value1":             fmt.Sprint(req.InvoiceID),
	}

	executeURL := firstNonEmpty(token.ExecuteURL, g.endpoint(shurjoPayPayPath))

	var resp shurjoPayCheckoutResponse
	err = postJSON(ctx, g.client, executeURL, body, token.Token, &resp)
	if err != nil {
		return nil, providerFailure("ShurjoPay payment creation failed", err)
	}

	if resp.CheckoutURL == "" {
		return nil, domain.NewProviderError(firstNonEmpty(resp.SpMessage, resp.Message, "Invalid response from ShurjoPay"), nil, false)
	}

	return &domain.SessionResult{
		TransactionID: firstNonEmpty(resp.SpPaymentID, orderID),
		RedirectURL:   resp.CheckoutURL,
		Amount:        req.Amount,
		Currency:      shurjoPayCurrency,
		Metadata: map[string]any{
			"order_id":      firstNonEmpty(resp.OrderID, orderID),
			"sp_order_id":   resp.SpOrderID,
			"sp_payment_id": resp.SpPaymentID,
			"checkout_url":  resp.CheckoutURL,
		},
	}, nil
}

func (g *ShurjoPayGateway) token(ctx context.Context) (*shurjoPayTokenResponse, error) {
	body := map[string]string{
		"username": g.cfg.ShurjoPay.Username,
		"password": g.cfg.ShurjoPay.Password,
	}

	var resp shurjoPayTokenResponse
	err := postJSON(ctx, g.client, g.endpoint(shurjoPayTokenPath), body, "", &resp)
	if err != nil {
		return nil, providerFailure("failed to authenticate with ShurjoPay", err)
	}

	if resp.Token == "" {
		return nil, domain.NewProviderError(firstNonEmpty(resp.Message, "ShurjoPay did not return a token"), nil, false)
	}

	return &resp, nil
}

func (g *ShurjoPayGateway) LookupKeys(payload domain.CallbackPayload) ([]domain.LookupKey, error) {
	spOrderID := payload.Get("sp_order_id")
	spPaymentID := payload.Get("sp_payment_id")
	if spOrderID == "" || spPaymentID == "" {
		return nil, domain.NewSignatureError("Missing required callback data")
	}

	keys := []domain.LookupKey{
		domain.ByTransactionID(spPaymentID),
		domain.ByMetadata("sp_payment_id", spPaymentID),
		domain.ByMetadata("sp_order_id", spOrderID),
		domain.ByMetadata("order_id", spOrderID),
	}

	if orderID := payload.Get("order_id"); orderID != "" && orderID != spOrderID {
		keys = append(keys, domain.ByMetadata("order_id", orderID))
	}

	return keys, nil
}

func (g *ShurjoPayGateway) VerifyCallback(ctx context.Context, payload domain.CallbackPayload) (*domain.VerifyResult, error) {
	result := &domain.VerifyResult{
		Valid:         payload.Get("sp_order_id") != "" && payload.Get("sp_payment_id") != "",
		Status:        domain.VerifyFailed,
		TransactionID: payload.Get("sp_payment_id"),
		OrderID:       payload.Get("sp_order_id"),
		Currency:      payload.Get("sp_currency"),
		Message:       payload.Get("sp_message"),
		Raw:           payload.Raw(),
	}

	if !result.Valid {
		return result, nil
	}

	if amount, err := decimal.NewFromString(payload.Get("sp_amount")); err == nil {
		result.Amount = amount
	}

	// Both the provider code and its own signature check must agree.
	if payload.Get("sp_code") == g.cfg.ShurjoPay.successCode() && payload.Get("sp_signature_verify") == "true" {
		result.Status = domain.VerifySucceeded
		result.Metadata = map[string]any{
			"sp_code":           payload.Get("sp_code"),
			"sp_message":        payload.Get("sp_message"),
			"sp_payment_method": payload.Get("sp_payment_method"),
			"sp_payment_date":   payload.Get("sp_payment_date"),
		}
	}

	return result, nil
}

// ProcessRefund records a refund reference locally. ShurjoPay refunds are
// settled from the merchant panel, so nothing is sent to the provider.
func (g *ShurjoPayGateway) ProcessRefund(ctx context.Context, req domain.RefundRequest) (*domain.RefundResult, error) {
	spPaymentID := req.Payment.MetadataString("sp_payment_id")
	if spPaymentID == "" && req.Payment.TransactionID != nil {
		spPaymentID = *req.Payment.TransactionID
	}

	if spPaymentID == "" {
		return nil, domain.NewValidationError("Missing required refund data")
	}

	return &domain.RefundResult{
		RefundReference: fmt.Sprintf("REF_%d", g.now().UnixMilli()),
		Amount:          req.Amount,
		Status:          "completed",
		Metadata: map[string]any{
			"sp_payment_id":     spPaymentID,
			"manual_settlement": true,
		},
	}, nil
}
