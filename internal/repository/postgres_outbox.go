package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/payment-service/internal/domain"
)

type PostgresOutboxRepository struct {
	db *pgxpool.Pool
}

func NewPostgresOutboxRepository(db *pgxpool.Pool) *PostgresOutboxRepository {
	return &PostgresOutboxRepository{
		db: db,
	}
}

func (p *PostgresOutboxRepository) FindUnpublished(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	query := `
		SELECT id, event_type, aggregate_id, payload, published_at, created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`

	rows, err := p.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []domain.OutboxEvent{}

	for rows.Next() {
		var (
			event   domain.OutboxEvent
			payload string
		)

		err := rows.Scan(
			&event.ID,
			&event.Type,
			&event.AggregateID,
			&payload,
			&event.PublishedAt,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		event.Payload = []byte(payload)
		events = append(events, event)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

func (p *PostgresOutboxRepository) MarkPublished(ctx context.Context, id string) error {
	query := `UPDATE outbox_events SET published_at = NOW() WHERE id = $1 AND published_at IS NULL`

	_, err := p.db.Exec(ctx, query, id)
	return err
}
