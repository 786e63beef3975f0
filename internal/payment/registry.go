package payment

import (
	"strings"

	"github.com/metinatakli/payment-service/internal/domain"
)

type methodDescription struct {
	name        string
	description string
}

var methodCatalogue = map[domain.PaymentMethod]methodDescription{
	domain.PaymentMethodStripe: {
		name:        "Stripe",
		description: "Pay with Credit/Debit Card via Stripe",
	},
	domain.PaymentMethodSSLCommerz: {
		name:        "SSL Commerz",
		description: "Pay with Credit/Debit Card, Mobile Banking via SSL Commerz",
	},
	domain.PaymentMethodShurjoPay: {
		name:        "ShurjoPay",
		description: "Pay with Credit/Debit Card, Mobile Banking via ShurjoPay",
	},
	domain.PaymentMethodCashOnDelivery: {
		name:        "Cash on Delivery",
		description: "Pay when you receive your order",
	},
}

// Registry resolves a payment method to its gateway.
type Registry struct {
	gateways map[domain.PaymentMethod]domain.Gateway
	stripe   StripeConfig
}

// NewRegistry builds every gateway from cfg. Gateways with missing
// credentials are still registered and report a ConfigurationError when used.
func NewRegistry(cfg Config) *Registry {
	client := NewHTTPClient(cfg)

	return NewRegistryWith(cfg.Stripe,
		NewStripeGateway(cfg, client),
		NewSSLCommerzGateway(cfg, client),
		NewShurjoPayGateway(cfg, client),
		NewCashOnDeliveryGateway(""),
	)
}

func NewRegistryWith(stripeCfg StripeConfig, gateways ...domain.Gateway) *Registry {
	r := &Registry{
		gateways: make(map[domain.PaymentMethod]domain.Gateway, len(gateways)),
		stripe:   stripeCfg,
	}

	for _, g := range gateways {
		r.gateways[g.Method()] = g
	}

	return r
}

func (r *Registry) Get(method domain.PaymentMethod) (domain.Gateway, error) {
	g, ok := r.gateways[method]
	if !ok {
		return nil, domain.NewValidationError("unsupported payment method: %s", method)
	}

	return g, nil
}

// Methods lists every supported method in a stable order.
func (r *Registry) Methods() []domain.MethodInfo {
	methods := make([]domain.MethodInfo, 0, len(domain.PaymentMethods))

	for _, m := range domain.PaymentMethods {
		desc := methodCatalogue[m]
		info := domain.MethodInfo{
			ID:          m,
			Name:        desc.name,
			Description: desc.description,
			Currency:    r.currency(m),
		}

		if g, ok := r.gateways[m]; ok {
			info.Enabled = g.Enabled()
		}

		methods = append(methods, info)
	}

	return methods
}

func (r *Registry) currency(m domain.PaymentMethod) string {
	switch m {
	case domain.PaymentMethodStripe:
		return strings.ToLower(firstNonEmpty(r.stripe.Currency, defaultStripeCurrency))
	case domain.PaymentMethodSSLCommerz:
		return sslCommerzCurrency
	case domain.PaymentMethodShurjoPay:
		return shurjoPayCurrency
	default:
		return defaultCODCurrency
	}
}

// PublishableKey is the Stripe key handed to browsers.
func (r *Registry) PublishableKey() string {
	return r.stripe.PublishableKey
}

// Enabled returns the ids of the methods that can take payments.
func (r *Registry) Enabled() []string {
	var enabled []string
	for _, m := range r.Methods() {
		if m.Enabled {
			enabled = append(enabled, string(m.ID))
		}
	}

	return enabled
}
