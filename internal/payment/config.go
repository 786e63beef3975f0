package payment

import (
	"strings"
	"time"
)

const (
	sslCommerzSandboxURL = "https://sandbox.sslcommerz.com"
	sslCommerzLiveURL    = "https://securepay.sslcommerz.com"

	defaultShurjoPaySuccessCode = "0000"
	defaultProviderTimeout      = 15 * time.Second
	defaultCODCurrency          = "BDT"
)

// Config carries the credentials and endpoints of every provider. It is built
// once at start-up and handed to the gateway constructors.
type Config struct {
	Stripe     StripeConfig
	SSLCommerz SSLCommerzConfig
	ShurjoPay  ShurjoPayConfig

	// BackendURL is the public base URL of this service, used for IPN URLs.
	BackendURL string
	// FrontendURL is the storefront base URL, used for default redirect pages.
	FrontendURL string
	Timeout     time.Duration
}

type StripeConfig struct {
	SecretKey      string
	PublishableKey string
	WebhookSecret  string
	Currency       string
	// APIURL overrides the Stripe API base URL. Empty means the real API.
	APIURL string
}

type SSLCommerzConfig struct {
	StoreID       string
	StorePassword string
	Sandbox       bool
	// BaseURL overrides the sandbox/live switch when set.
	BaseURL string
	// ServerValidation makes successful callbacks carrying a val_id be
	// re-checked against the validation API before they are trusted.
	ServerValidation bool
}

func (c SSLCommerzConfig) Endpoint() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}

	if c.Sandbox {
		return sslCommerzSandboxURL
	}

	return sslCommerzLiveURL
}

type ShurjoPayConfig struct {
	Endpoint    string
	Username    string
	Password    string
	Prefix      string
	ReturnURL   string
	CancelURL   string
	SuccessCode string
}

func (c ShurjoPayConfig) successCode() string {
	if c.SuccessCode == "" {
		return defaultShurjoPaySuccessCode
	}

	return c.SuccessCode
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return defaultProviderTimeout
	}

	return c.Timeout
}

func (c Config) frontendPage(path string) string {
	return strings.TrimRight(c.FrontendURL, "/") + path
}
