package mocks

import (
	"context"

	"github.com/metinatakli/payment-service/internal/domain"
)

type MockInvoiceRepo struct {
	domain.InvoiceRepository
	CreateFunc  func(ctx context.Context, invoice *domain.Invoice) error
	GetByIdFunc func(ctx context.Context, id int) (*domain.Invoice, error)
}

func (m *MockInvoiceRepo) Create(ctx context.Context, invoice *domain.Invoice) error {
	return m.CreateFunc(ctx, invoice)
}

func (m *MockInvoiceRepo) GetById(ctx context.Context, id int) (*domain.Invoice, error) {
	return m.GetByIdFunc(ctx, id)
}
