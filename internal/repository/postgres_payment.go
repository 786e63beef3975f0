package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/payment-service/internal/domain"
)

const (
	activePaymentIndex   = "payments_active_invoice_method_idx"
	transactionIDUnique  = "payments_transaction_id_key"
	paymentSelectColumns = `id, user_id, invoice_id, payment_method, amount, currency, status,
		transaction_id, payment_intent_id, gateway_response, metadata, failure_reason,
		payment_date, refunded_at, refund_amount, created_at, updated_at`
)

type PostgresPaymentRepository struct {
	db *pgxpool.Pool
}

func NewPostgresPaymentRepository(db *pgxpool.Pool) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{
		db: db,
	}
}

func (p *PostgresPaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (
			user_id,
			invoice_id,
			payment_method,
			amount,
			currency,
			status,
			transaction_id,
			payment_intent_id,
			gateway_response,
			metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, '{}'::jsonb), COALESCE($10, '{}'::jsonb))
		RETURNING id, created_at, updated_at
	`

	err := p.db.QueryRow(
		ctx,
		query,
		payment.UserID,
		payment.InvoiceID,
		string(payment.PaymentMethod),
		payment.Amount,
		payment.Currency,
		string(payment.Status),
		payment.TransactionID,
		payment.PaymentIntentID,
		jsonbOrNil(payment.GatewayResponse),
		jsonbOrNil(payment.Metadata),
	).Scan(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if !errors.As(err, &pgErr) {
			return err
		}

		switch {
		case pgErr.Code == pgerrcode.UniqueViolation && pgErr.ConstraintName == transactionIDUnique:
			return domain.NewConflictError("a payment with this transaction id already exists")
		case pgErr.Code == pgerrcode.UniqueViolation:
			return domain.NewConflictError("a %s payment for this invoice is already in progress or completed", payment.PaymentMethod)
		case pgErr.Code == pgerrcode.ForeignKeyViolation:
			return domain.NewNotFoundError("invoice %d not found", payment.InvoiceID)
		}

		return err
	}

	return nil
}

func (p *PostgresPaymentRepository) GetById(ctx context.Context, id int) (*domain.Payment, error) {
	return getPayment(ctx, p.db, id)
}

func getPayment(ctx context.Context, q querier, id int) (*domain.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE id = $1`, paymentSelectColumns)

	payment, err := scanPayment(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}

		return nil, err
	}

	return payment, nil
}

func (p *PostgresPaymentRepository) FindActive(
	ctx context.Context,
	invoiceID int,
	method domain.PaymentMethod) (*domain.Payment, error) {

	query := fmt.Sprintf(`SELECT %s FROM payments
		WHERE invoice_id = $1
			AND payment_method = $2
			AND status IN ('pending', 'processing', 'completed')
		LIMIT 1`, paymentSelectColumns)

	payment, err := scanPayment(p.db.QueryRow(ctx, query, invoiceID, string(method)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}

		return nil, err
	}

	return payment, nil
}

// FindByLookup tries each key in order and returns the first payment of the
// given method that matches.
func (p *PostgresPaymentRepository) FindByLookup(
	ctx context.Context,
	method domain.PaymentMethod,
	keys []domain.LookupKey) (*domain.Payment, error) {

	for _, key := range keys {
		if key.Value == "" {
			continue
		}

		var (
			query string
			args  []any
		)

		switch key.Field {
		case domain.LookupTransactionID:
			query = `transaction_id = $2`
			args = []any{string(method), key.Value}
		case domain.LookupPaymentIntentID:
			query = `payment_intent_id = $2`
			args = []any{string(method), key.Value}
		case domain.LookupMetadata:
			query = `metadata->>$2 = $3`
			args = []any{string(method), key.MetadataKey, key.Value}
		default:
			return nil, fmt.Errorf("unknown lookup field %q", key.Field)
		}

		query = fmt.Sprintf(`SELECT %s FROM payments
			WHERE payment_method = $1 AND %s
			ORDER BY created_at DESC
			LIMIT 1`, paymentSelectColumns, query)

		payment, err := scanPayment(p.db.QueryRow(ctx, query, args...))
		if err == nil {
			return payment, nil
		}

		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
	}

	return nil, domain.ErrRecordNotFound
}

func (p *PostgresPaymentRepository) ListByUserId(ctx context.Context, userID int) ([]domain.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments
		WHERE user_id = $1
		ORDER BY created_at DESC`, paymentSelectColumns)

	rows, err := p.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := []domain.Payment{}

	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}

		payments = append(payments, *payment)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return payments, nil
}

func (p *PostgresPaymentRepository) List(
	ctx context.Context,
	pagination domain.Pagination) ([]domain.Payment, *domain.Metadata, error) {

	query := fmt.Sprintf(`SELECT count(*) OVER(), %s FROM payments
		WHERE ($1 = '' OR status = $1)
			AND ($2 = '' OR payment_method = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`, paymentSelectColumns)

	rows, err := p.db.Query(
		ctx,
		query,
		string(pagination.Status),
		string(pagination.Method),
		pagination.Limit(),
		pagination.Offset(),
	)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	totalRecords := 0
	payments := []domain.Payment{}

	for rows.Next() {
		var payment domain.Payment

		err := rows.Scan(append([]any{&totalRecords}, paymentScanTargets(&payment)...)...)
		if err != nil {
			return nil, nil, err
		}

		payments = append(payments, payment)
	}

	if err = rows.Err(); err != nil {
		return nil, nil, err
	}

	metadata := domain.NewMetadata(totalRecords, pagination.Page, pagination.PageSize)

	return payments, metadata, nil
}

// Transition applies t only while the payment is still in one of t.From. The
// invoice projection and the outbox event are written in the same
// transaction, and only when the payment row actually changed.
func (p *PostgresPaymentRepository) Transition(
	ctx context.Context,
	t domain.PaymentTransition) (*domain.TransitionResult, error) {

	var result domain.TransitionResult

	err := runInTx(ctx, p.db, func(tx pgx.Tx) error {
		from := make([]string, 0, len(t.From))
		for _, s := range t.From {
			from = append(from, string(s))
		}

		query := fmt.Sprintf(`
			UPDATE payments
			SET status = $2,
				transaction_id = COALESCE($3, transaction_id),
				gateway_response = gateway_response || COALESCE($4, '{}'::jsonb),
				metadata = metadata || COALESCE($5, '{}'::jsonb),
				failure_reason = COALESCE($6, failure_reason),
				payment_date = COALESCE($7, payment_date),
				refunded_at = COALESCE($8, refunded_at),
				refund_amount = COALESCE($9, refund_amount),
				refund_claimed_at = NULL,
				updated_at = NOW()
			WHERE id = $1 AND status = ANY($10)
			RETURNING %s`, paymentSelectColumns)

		payment, err := scanPayment(tx.QueryRow(
			ctx,
			query,
			t.PaymentID,
			string(t.To),
			t.TransactionID,
			jsonbOrNil(t.GatewayResponse),
			jsonbOrNil(t.Metadata),
			t.FailureReason,
			t.PaymentDate,
			t.RefundedAt,
			t.RefundAmount,
			from,
		))

		if errors.Is(err, pgx.ErrNoRows) {
			current, err := getPayment(ctx, tx, t.PaymentID)
			if err != nil {
				return err
			}

			result.Payment = current
			return nil
		}

		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
				return domain.NewConflictError("another payment for this invoice is already active")
			}

			return err
		}

		result.Payment = payment
		result.Applied = true

		err = updateInvoice(ctx, tx, payment.InvoiceID, t.Invoice)
		if err != nil {
			return err
		}

		if t.Event != nil {
			err = insertOutboxEvent(ctx, tx, t.Event)
			if err != nil {
				return err
			}
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return &result, nil
}

func (p *PostgresPaymentRepository) Stats(ctx context.Context) (*domain.PaymentStats, error) {
	stats := domain.PaymentStats{
		StatusBreakdown: []domain.PaymentStat{},
		MethodBreakdown: []domain.PaymentStat{},
	}

	var err error

	stats.StatusBreakdown, err = p.groupBy(ctx, "status")
	if err != nil {
		return nil, err
	}

	stats.MethodBreakdown, err = p.groupBy(ctx, "payment_method")
	if err != nil {
		return nil, err
	}

	query := `
		SELECT count(*), COALESCE(SUM(amount) FILTER (WHERE status = 'completed'), 0)
		FROM payments
	`

	err = p.db.QueryRow(ctx, query).Scan(&stats.TotalPayments, &stats.TotalCompletedAmount)
	if err != nil {
		return nil, err
	}

	return &stats, nil
}

func (p *PostgresPaymentRepository) groupBy(ctx context.Context, column string) ([]domain.PaymentStat, error) {
	query := fmt.Sprintf(`SELECT %[1]s, count(*), COALESCE(SUM(amount), 0)
		FROM payments
		GROUP BY %[1]s
		ORDER BY %[1]s`, column)

	rows, err := p.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := []domain.PaymentStat{}

	for rows.Next() {
		var stat domain.PaymentStat

		err := rows.Scan(&stat.Key, &stat.Count, &stat.TotalAmount)
		if err != nil {
			return nil, err
		}

		stats = append(stats, stat)
	}

	return stats, rows.Err()
}

func (p *PostgresPaymentRepository) ClaimRefund(
	ctx context.Context,
	id int,
	lease time.Duration) (*domain.TransitionResult, error) {

	query := fmt.Sprintf(`
		UPDATE payments
		SET refund_claimed_at = NOW(), updated_at = NOW()
		WHERE id = $1
			AND status = 'completed'
			AND (refund_claimed_at IS NULL OR refund_claimed_at < NOW() - make_interval(secs => $2))
		RETURNING %s`, paymentSelectColumns)

	payment, err := scanPayment(p.db.QueryRow(ctx, query, id, lease.Seconds()))
	if errors.Is(err, pgx.ErrNoRows) {
		current, err := getPayment(ctx, p.db, id)
		if err != nil {
			return nil, err
		}

		return &domain.TransitionResult{Payment: current}, nil
	}

	if err != nil {
		return nil, err
	}

	return &domain.TransitionResult{Payment: payment, Applied: true}, nil
}

func (p *PostgresPaymentRepository) ReleaseRefund(ctx context.Context, id int) error {
	_, err := p.db.Exec(ctx, `
		UPDATE payments
		SET refund_claimed_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'completed'`, id)

	return err
}

func paymentScanTargets(payment *domain.Payment) []any {
	return []any{
		&payment.ID,
		&payment.UserID,
		&payment.InvoiceID,
		&payment.PaymentMethod,
		&payment.Amount,
		&payment.Currency,
		&payment.Status,
		&payment.TransactionID,
		&payment.PaymentIntentID,
		&payment.GatewayResponse,
		&payment.Metadata,
		&payment.FailureReason,
		&payment.PaymentDate,
		&payment.RefundedAt,
		&payment.RefundAmount,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	}
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var payment domain.Payment

	err := row.Scan(paymentScanTargets(&payment)...)
	if err != nil {
		return nil, err
	}

	return &payment, nil
}

func insertOutboxEvent(ctx context.Context, tx pgx.Tx, event *domain.OutboxEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	query := `
		INSERT INTO outbox_events (id, event_type, aggregate_id, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`

	return tx.QueryRow(
		ctx,
		query,
		event.ID,
		string(event.Type),
		event.AggregateID,
		string(event.Payload),
	).Scan(&event.CreatedAt)
}
