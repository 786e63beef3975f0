package mocks

import (
	"context"
	"time"

	"github.com/metinatakli/payment-service/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockPaymentRepo struct {
	mock.Mock
	domain.PaymentRepository
}

func (m *MockPaymentRepo) Create(ctx context.Context, payment *domain.Payment) error {
	args := m.Called(ctx, payment)
	return args.Error(0)
}

func (m *MockPaymentRepo) GetById(ctx context.Context, id int) (*domain.Payment, error) {
	args := m.Called(ctx, id)
	return paymentOrNil(args.Get(0)), args.Error(1)
}

func (m *MockPaymentRepo) FindActive(ctx context.Context, invoiceID int, method domain.PaymentMethod) (*domain.Payment, error) {
	args := m.Called(ctx, invoiceID, method)
	return paymentOrNil(args.Get(0)), args.Error(1)
}

func (m *MockPaymentRepo) FindByLookup(
	ctx context.Context,
	method domain.PaymentMethod,
	keys []domain.LookupKey) (*domain.Payment, error) {

	args := m.Called(ctx, method, keys)
	return paymentOrNil(args.Get(0)), args.Error(1)
}

func (m *MockPaymentRepo) ListByUserId(ctx context.Context, userID int) ([]domain.Payment, error) {
	args := m.Called(ctx, userID)
	payments, _ := args.Get(0).([]domain.Payment)
	return payments, args.Error(1)
}

func (m *MockPaymentRepo) List(
	ctx context.Context,
	pagination domain.Pagination) ([]domain.Payment, *domain.Metadata, error) {

	args := m.Called(ctx, pagination)
	payments, _ := args.Get(0).([]domain.Payment)
	metadata, _ := args.Get(1).(*domain.Metadata)
	return payments, metadata, args.Error(2)
}

func (m *MockPaymentRepo) Transition(
	ctx context.Context,
	transition domain.PaymentTransition) (*domain.TransitionResult, error) {

	args := m.Called(ctx, transition)
	result, _ := args.Get(0).(*domain.TransitionResult)
	return result, args.Error(1)
}

func (m *MockPaymentRepo) ClaimRefund(
	ctx context.Context,
	id int,
	lease time.Duration) (*domain.TransitionResult, error) {

	args := m.Called(ctx, id, lease)
	result, _ := args.Get(0).(*domain.TransitionResult)
	return result, args.Error(1)
}

func (m *MockPaymentRepo) ReleaseRefund(ctx context.Context, id int) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockPaymentRepo) Stats(ctx context.Context) (*domain.PaymentStats, error) {
	args := m.Called(ctx)
	stats, _ := args.Get(0).(*domain.PaymentStats)
	return stats, args.Error(1)
}

func paymentOrNil(v any) *domain.Payment {
	p, _ := v.(*domain.Payment)
	return p
}
