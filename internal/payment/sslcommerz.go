package payment

import (
	"context"
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/metinatakli/payment-service/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	sslCommerzCurrency       = "BDT"
	sslCommerzSessionPath    = "/gwprocess/v4/api.php"
	sslCommerzValidationPath = "/validator/api/validationserverAPI.php"
	sslCommerzRefundPath     = "/validator/api/merchantTransIDvalidationAPI.php"

	errSSLCommerzNotConfigured = "SSL Commerz is not configured. Please set the store id and store password"
)

type SSLCommerzGateway struct {
	cfg    Config
	client *http.Client
	now    func() time.Time
}

func NewSSLCommerzGateway(cfg Config, client *http.Client) *SSLCommerzGateway {
	return &SSLCommerzGateway{
		cfg:    cfg,
		client: client,
		now:    time.Now,
	}
}

func (g *SSLCommerzGateway) Method() domain.PaymentMethod {
	return domain.PaymentMethodSSLCommerz
}

func (g *SSLCommerzGateway) Enabled() bool {
	return g.cfg.SSLCommerz.StoreID != "" && g.cfg.SSLCommerz.StorePassword != ""
}

type sslCommerzSessionResponse struct {
	Status         string `json:"status"`
	FailedReason   string `json:"failedreason"`
	SessionKey     string `json:"sessionkey"`
	GatewayPageURL string `json:"GatewayPageURL"`
}

func (g *SSLCommerzGateway) CreateSession(ctx context.Context, req domain.SessionRequest) (*domain.SessionResult, error) {
	if !g.Enabled() {
		return nil, domain.NewConfigurationError(errSSLCommerzNotConfigured)
	}

	if !req.Amount.IsPositive() {
		return nil, domain.NewValidationError("amount must be greater than zero")
	}

	if req.Customer.Name == "" || req.Customer.Phone == "" {
		return nil, domain.NewValidationError("customer name and phone are required")
	}

	currency := req.Currency
	if currency == "" {
		currency = sslCommerzCurrency
	}

	tranID := fmt.Sprintf("SSL_%d_%d", g.now().UnixMilli(), req.InvoiceID)
	country := req.Customer.Country
	if country == "" {
		country = "Bangladesh"
	}

	form := url.Values{}
	form.Set("store_id", g.cfg.SSLCommerz.StoreID)
	form.Set("store_passwd", g.cfg.SSLCommerz.StorePassword)
	form.Set("total_amount", req.Amount.StringFixed(2))
	form.Set("currency", currency)
	form.Set("tran_id", tranID)
	form.Set("product_category", "electronics")
	form.Set("success_url", firstNonEmpty(req.SuccessURL, g.cfg.frontendPage("/payment/success")))
	form.Set("fail_url", firstNonEmpty(req.FailURL, g.cfg.frontendPage("/payment/failed")))
	form.Set("cancel_url", firstNonEmpty(req.CancelURL, g.cfg.frontendPage("/payment/cancelled")))
	form.Set("ipn_url", strings.TrimRight(g.cfg.BackendURL, "/")+"/payments/ssl-commerz/ipn")
	form.Set("cus_name", req.Customer.Name)
	form.Set("cus_email", req.Customer.Email)
	form.Set("cus_add1", req.Customer.Address)
	form.Set("cus_city", req.Customer.City)
	form.Set("cus_postcode", req.Customer.PostCode)
	form.Set("cus_country", country)
	form.Set("cus_phone", req.Customer.Phone)
	form.Set("shipping_method", "NO")
	form.Set("num_of_item", "1")
	form.Set("product_name", firstNonEmpty(req.Description, "Order payment"))
	form.Set("product_profile", "general")
	form.Set("value_a", fmt.Sprint(req.InvoiceID))
	form.Set("value_b", fmt.Sprint(req.UserID))

	var resp sslCommerzSessionResponse
	err := postForm(ctx, g.client, g.cfg.SSLCommerz.Endpoint()+sslCommerzSessionPath, form, &resp)
	if err != nil {
		return nil, providerFailure("failed to reach SSL Commerz", err)
	}

	if resp.Status != "SUCCESS" || resp.GatewayPageURL == "" {
		return nil, domain.NewProviderError(firstNonEmpty(resp.FailedReason, "Failed to create session"), nil, false)
	}

	return &domain.SessionResult{
		TransactionID: tranID,
		RedirectURL:   resp.GatewayPageURL,
		Amount:        req.Amount,
		Currency:      currency,
		Metadata: map[string]any{
			"session_key": resp.SessionKey,
			"gateway_url": resp.GatewayPageURL,
		},
	}, nil
}

func (g *SSLCommerzGateway) LookupKeys(payload domain.CallbackPayload) ([]domain.LookupKey, error) {
	tranID := payload.Get("tran_id")
	if tranID == "" {
		return nil, domain.NewSignatureError("callback is missing tran_id")
	}

	return []domain.LookupKey{domain.ByTransactionID(tranID)}, nil
}

func (g *SSLCommerzGateway) VerifyCallback(ctx context.Context, payload domain.CallbackPayload) (*domain.VerifyResult, error) {
	if g.cfg.SSLCommerz.StorePassword == "" {
		return nil, domain.NewConfigurationError(errSSLCommerzNotConfigured)
	}

	result := &domain.VerifyResult{
		Valid:         verifySSLCommerzSignature(payload.Fields, g.cfg.SSLCommerz.StorePassword),
		Status:        domain.VerifyFailed,
		TransactionID: payload.Get("tran_id"),
		Currency:      payload.Get("currency"),
		Raw:           payload.Raw(),
	}

	if amount, err := decimal.NewFromString(payload.Get("amount")); err == nil {
		result.Amount = amount
	}

	if !result.Valid {
		return result, nil
	}

	status := payload.Get("status")
	if !isSSLCommerzValidStatus(status) {
		result.Message = "Payment failed on gateway"
		if reason := payload.Get("error"); reason != "" {
			result.Message = reason
		}

		return result, nil
	}

	result.Status = domain.VerifySucceeded
	result.Metadata = map[string]any{
		"bank_tran_id": payload.Get("bank_tran_id"),
		"val_id":       payload.Get("val_id"),
		"card_type":    payload.Get("card_type"),
	}

	valID := payload.Get("val_id")
	if g.cfg.SSLCommerz.ServerValidation && valID != "" {
		validated, err := g.validateTransaction(ctx, valID)
		if err != nil {
			return nil, err
		}

		if !isSSLCommerzValidStatus(validated.Status) || validated.TranID != result.TransactionID {
			result.Status = domain.VerifyFailed
			result.Message = "Payment could not be validated with SSL Commerz"
		}
	}

	return result, nil
}

type sslCommerzValidationResponse struct {
	Status     string `json:"status"`
	TranID     string `json:"tran_id"`
	Amount     string `json:"amount"`
	BankTranID string `json:"bank_tran_id"`
	RiskLevel  string `json:"risk_level"`
}

func (g *SSLCommerzGateway) validateTransaction(ctx context.Context, valID string) (*sslCommerzValidationResponse, error) {
	query := url.Values{}
	query.Set("val_id", valID)
	query.Set("store_id", g.cfg.SSLCommerz.StoreID)
	query.Set("store_passwd", g.cfg.SSLCommerz.StorePassword)
	query.Set("format", "json")

	var resp sslCommerzValidationResponse
	err := getJSON(ctx, g.client, g.cfg.SSLCommerz.Endpoint()+sslCommerzValidationPath, query, &resp)
	if err != nil {
		return nil, providerFailure("failed to validate transaction with SSL Commerz", err)
	}

	return &resp, nil
}

type sslCommerzRefundResponse struct {
	APIConnect  string `json:"APIConnect"`
	Status      string `json:"status"`
	RefundRefID string `json:"refund_ref_id"`
	ErrorReason string `json:"errorReason"`
}

func (g *SSLCommerzGateway) ProcessRefund(ctx context.Context, req domain.RefundRequest) (*domain.RefundResult, error) {
	if !g.Enabled() {
		return nil, domain.NewConfigurationError(errSSLCommerzNotConfigured)
	}

	bankTranID := req.Payment.GatewayString("bank_tran_id")
	if bankTranID == "" {
		bankTranID = req.Payment.MetadataString("bank_tran_id")
	}
	if bankTranID == "" {
		return nil, domain.NewValidationError("payment has no bank transaction id to refund against")
	}

	query := url.Values{}
	query.Set("bank_tran_id", bankTranID)
	query.Set("refund_amount", req.Amount.StringFixed(2))
	query.Set("refund_remarks", firstNonEmpty(req.Reason, "Refund requested"))
	query.Set("refe_id", fmt.Sprintf("REF_%d", g.now().UnixMilli()))
	query.Set("store_id", g.cfg.SSLCommerz.StoreID)
	query.Set("store_passwd", g.cfg.SSLCommerz.StorePassword)
	query.Set("format", "json")

	var resp sslCommerzRefundResponse
	err := getJSON(ctx, g.client, g.cfg.SSLCommerz.Endpoint()+sslCommerzRefundPath, query, &resp)
	if err != nil {
		return nil, providerFailure("failed to reach SSL Commerz", err)
	}

	if resp.APIConnect != "DONE" || resp.Status != "success" {
		return nil, domain.NewProviderError(firstNonEmpty(resp.ErrorReason, "Refund failed"), nil, false)
	}

	return &domain.RefundResult{
		RefundReference: resp.RefundRefID,
		Amount:          req.Amount,
		Status:          "completed",
	}, nil
}

func isSSLCommerzValidStatus(status string) bool {
	return status == "VALID" || status == "VALIDATED"
}

// sslCommerzHash rebuilds "k1=v1&k2=v2&...&" in the order given by keys,
// appends the store password and returns the hex MD5 of the result.
func sslCommerzHash(fields map[string]string, keys []string, storePassword string) string {
	var sb strings.Builder
	for _, key := range keys {
		sb.WriteString(key)
		sb.WriteByte('=')
		sb.WriteString(fields[key])
		sb.WriteByte('&')
	}
	sb.WriteString(storePassword)

	sum := md5.Sum([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

func verifySSLCommerzSignature(fields map[string]string, storePassword string) bool {
	verifyKey := fields["verify_key"]
	verifySign := fields["verify_sign"]
	if verifyKey == "" || verifySign == "" {
		return false
	}

	expected := sslCommerzHash(fields, strings.Split(verifyKey, ","), storePassword)

	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(verifySign))) == 1
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
