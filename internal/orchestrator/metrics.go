package orchestrator

import (
	"context"
	"errors"

	"github.com/metinatakli/payment-service/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/metinatakli/payment-service/internal/orchestrator"

// metrics counts payment lifecycle steps per method on the global meter.
type metrics struct {
	initiatedCounter metric.Int64Counter
	completedCounter metric.Int64Counter
	failedCounter    metric.Int64Counter
	refundedCounter  metric.Int64Counter
}

func newMetrics() (*metrics, error) {
	meter := otel.Meter(meterName)

	// the returned instruments are no-ops on error, so they are always usable
	initiated, err1 := meter.Int64Counter("payments.initiated", metric.WithDescription("Payment sessions opened"))
	completed, err2 := meter.Int64Counter("payments.completed", metric.WithDescription("Payments completed"))
	failed, err3 := meter.Int64Counter("payments.failed", metric.WithDescription("Payments failed"))
	refunded, err4 := meter.Int64Counter("payments.refunded", metric.WithDescription("Payments refunded"))

	return &metrics{
		initiatedCounter: initiated,
		completedCounter: completed,
		failedCounter:    failed,
		refundedCounter:  refunded,
	}, errors.Join(err1, err2, err3, err4)
}

func methodAttr(method domain.PaymentMethod) metric.AddOption {
	return metric.WithAttributes(attribute.String("payment.method", string(method)))
}

func (m *metrics) initiated(ctx context.Context, method domain.PaymentMethod) {
	m.initiatedCounter.Add(ctx, 1, methodAttr(method))
}

func (m *metrics) completed(ctx context.Context, method domain.PaymentMethod) {
	m.completedCounter.Add(ctx, 1, methodAttr(method))
}

func (m *metrics) failed(ctx context.Context, method domain.PaymentMethod) {
	m.failedCounter.Add(ctx, 1, methodAttr(method))
}

func (m *metrics) refunded(ctx context.Context, method domain.PaymentMethod) {
	m.refundedCounter.Add(ctx, 1, methodAttr(method))
}
