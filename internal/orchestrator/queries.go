package orchestrator

import (
	"context"

	"github.com/metinatakli/payment-service/internal/domain"
)

type MethodsInfo struct {
	Methods              []domain.MethodInfo
	StripePublishableKey string
}

func (o *Orchestrator) Get(ctx context.Context, id int) (*domain.Payment, error) {
	return o.payment(ctx, id)
}

func (o *Orchestrator) ListByUser(ctx context.Context, userID int) ([]domain.Payment, error) {
	return o.payments.ListByUserId(ctx, userID)
}

func (o *Orchestrator) ListAll(ctx context.Context, pagination domain.Pagination) ([]domain.Payment, *domain.Metadata, error) {
	return o.payments.List(ctx, pagination)
}

func (o *Orchestrator) Stats(ctx context.Context) (*domain.PaymentStats, error) {
	return o.payments.Stats(ctx)
}

func (o *Orchestrator) Methods() MethodsInfo {
	return MethodsInfo{
		Methods:              o.gateways.Methods(),
		StripePublishableKey: o.gateways.PublishableKey(),
	}
}
