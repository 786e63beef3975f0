package mocks

import (
	"context"

	"github.com/metinatakli/payment-service/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockGateway struct {
	mock.Mock
	PaymentMethod domain.PaymentMethod
}

func (m *MockGateway) Method() domain.PaymentMethod {
	return m.PaymentMethod
}

func (m *MockGateway) Enabled() bool {
	return true
}

func (m *MockGateway) CreateSession(ctx context.Context, req domain.SessionRequest) (*domain.SessionResult, error) {
	args := m.Called(ctx, req)
	result, _ := args.Get(0).(*domain.SessionResult)
	return result, args.Error(1)
}

func (m *MockGateway) LookupKeys(payload domain.CallbackPayload) ([]domain.LookupKey, error) {
	args := m.Called(payload)
	keys, _ := args.Get(0).([]domain.LookupKey)
	return keys, args.Error(1)
}

func (m *MockGateway) VerifyCallback(ctx context.Context, payload domain.CallbackPayload) (*domain.VerifyResult, error) {
	args := m.Called(ctx, payload)
	result, _ := args.Get(0).(*domain.VerifyResult)
	return result, args.Error(1)
}

func (m *MockGateway) ProcessRefund(ctx context.Context, req domain.RefundRequest) (*domain.RefundResult, error) {
	args := m.Called(ctx, req)
	result, _ := args.Get(0).(*domain.RefundResult)
	return result, args.Error(1)
}
