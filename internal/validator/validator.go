package validator

import (
	"fmt"
	"reflect"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/metinatakli/payment-service/internal/domain"
	"github.com/shopspring/decimal"
)

var currencyRgx = regexp.MustCompile(`^[A-Za-z]{3}$`)

func NewValidator() *validator.Validate {
	validator := validator.New(validator.WithRequiredStructEnabled())

	// Decimals are validated through their string form.
	validator.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{}, decimal.NullDecimal{})

	validator.RegisterValidation("payment_method", validatePaymentMethod)
	validator.RegisterValidation("payment_status", validatePaymentStatus)
	validator.RegisterValidation("currency", validateCurrency)
	validator.RegisterValidation("decimal_gt0", validateDecimalGreaterThanZero)
	validator.RegisterValidation("decimal_gte0", validateDecimalNotNegative)

	return validator
}

func decimalValue(field reflect.Value) any {
	switch v := field.Interface().(type) {
	case decimal.Decimal:
		return v.String()
	case decimal.NullDecimal:
		if !v.Valid {
			return nil
		}

		return v.Decimal.String()
	}

	return nil
}

func validatePaymentMethod(fl validator.FieldLevel) bool {
	return domain.PaymentMethod(fl.Field().String()).Valid()
}

func validatePaymentStatus(fl validator.FieldLevel) bool {
	status := domain.PaymentStatus(fl.Field().String())
	for _, s := range domain.PaymentStatuses {
		if s == status {
			return true
		}
	}

	return false
}

func validateCurrency(fl validator.FieldLevel) bool {
	return currencyRgx.MatchString(fl.Field().String())
}

func validateDecimalGreaterThanZero(fl validator.FieldLevel) bool {
	d, err := decimal.NewFromString(fl.Field().String())
	return err == nil && d.IsPositive()
}

func validateDecimalNotNegative(fl validator.FieldLevel) bool {
	d, err := decimal.NewFromString(fl.Field().String())
	return err == nil && !d.IsNegative()
}

// ValidationMessage converts validator errors into readable messages
func ValidationMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "min":
		return fmt.Sprintf("must be at least %s characters long", err.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters long", err.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", err.Param())
	case "payment_method":
		return "must be one of stripe, ssl_commerz, shurjopay, cash_on_delivery"
	case "payment_status":
		return "must be one of pending, processing, completed, failed, cancelled, refunded"
	case "currency":
		return "must be a three letter currency code"
	case "decimal_gt0":
		return "must be greater than zero"
	case "decimal_gte0":
		return "must not be negative"
	default:
		return "is invalid"
	}
}
