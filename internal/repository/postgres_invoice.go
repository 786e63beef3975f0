package repository

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/payment-service/internal/domain"
)

const invoiceNumberAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

type PostgresInvoiceRepository struct {
	db *pgxpool.Pool
}

func NewPostgresInvoiceRepository(db *pgxpool.Pool) *PostgresInvoiceRepository {
	return &PostgresInvoiceRepository{
		db: db,
	}
}

func (p *PostgresInvoiceRepository) Create(ctx context.Context, invoice *domain.Invoice) error {
	if invoice.InvoiceNumber == "" {
		invoice.InvoiceNumber = newInvoiceNumber(time.Now())
	}

	if invoice.OrderDate.IsZero() {
		invoice.OrderDate = time.Now()
	}

	if invoice.DueDate.IsZero() {
		invoice.DueDate = invoice.OrderDate.Add(domain.InvoiceDueIn)
	}

	if invoice.Status == "" {
		invoice.Status = domain.InvoiceStatusPending
	}

	if invoice.PaymentStatus == "" {
		invoice.PaymentStatus = domain.InvoicePaymentPending
	}

	query := `
		INSERT INTO invoices (
			user_id,
			invoice_number,
			order_date,
			due_date,
			status,
			subtotal,
			tax,
			discount,
			total,
			payment_method,
			payment_status,
			shipping_address,
			billing_address,
			customer_email,
			notes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at, updated_at
	`

	return p.db.QueryRow(
		ctx,
		query,
		invoice.UserID,
		invoice.InvoiceNumber,
		invoice.OrderDate,
		invoice.DueDate,
		string(invoice.Status),
		invoice.Subtotal,
		invoice.Tax,
		invoice.Discount,
		invoice.Total,
		string(invoice.PaymentMethod),
		string(invoice.PaymentStatus),
		invoice.ShippingAddress,
		invoice.BillingAddress,
		invoice.CustomerEmail,
		invoice.Notes,
	).Scan(&invoice.ID, &invoice.CreatedAt, &invoice.UpdatedAt)
}

func (p *PostgresInvoiceRepository) GetById(ctx context.Context, id int) (*domain.Invoice, error) {
	return getInvoice(ctx, p.db, id)
}

func getInvoice(ctx context.Context, q querier, id int) (*domain.Invoice, error) {
	query := `
		SELECT id, user_id, invoice_number, order_date, due_date, status,
			subtotal, tax, discount, total, payment_method, payment_status,
			shipping_address, billing_address, customer_email, notes,
			created_at, updated_at
		FROM invoices
		WHERE id = $1
	`

	var invoice domain.Invoice

	err := q.QueryRow(ctx, query, id).Scan(
		&invoice.ID,
		&invoice.UserID,
		&invoice.InvoiceNumber,
		&invoice.OrderDate,
		&invoice.DueDate,
		&invoice.Status,
		&invoice.Subtotal,
		&invoice.Tax,
		&invoice.Discount,
		&invoice.Total,
		&invoice.PaymentMethod,
		&invoice.PaymentStatus,
		&invoice.ShippingAddress,
		&invoice.BillingAddress,
		&invoice.CustomerEmail,
		&invoice.Notes,
		&invoice.CreatedAt,
		&invoice.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}

		return nil, err
	}

	return &invoice, nil
}

func updateInvoice(ctx context.Context, tx pgx.Tx, invoiceID int, update domain.InvoiceUpdate) error {
	if update.Status == nil && update.PaymentStatus == nil {
		return nil
	}

	query := `
		UPDATE invoices
		SET status = COALESCE($2, status),
			payment_status = COALESCE($3, payment_status),
			updated_at = NOW()
		WHERE id = $1
	`

	tag, err := tx.Exec(ctx, query, invoiceID, nullableString(update.Status), nullableString(update.PaymentStatus))
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("invoice %d: %w", invoiceID, domain.ErrRecordNotFound)
	}

	return nil
}

// newInvoiceNumber returns INV-<unix ms>-<9 random base36 chars>.
func newInvoiceNumber(now time.Time) string {
	suffix := make([]byte, 9)
	for i := range suffix {
		suffix[i] = invoiceNumberAlphabet[rand.IntN(len(invoiceNumberAlphabet))]
	}

	return fmt.Sprintf("INV-%d-%s", now.UnixMilli(), suffix)
}
