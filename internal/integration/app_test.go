package integration_test

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/payment-service/internal/app"
	"github.com/metinatakli/payment-service/internal/mailer"
	"github.com/metinatakli/payment-service/internal/orchestrator"
	"github.com/metinatakli/payment-service/internal/payment"
	"github.com/metinatakli/payment-service/internal/repository"
	appvalidator "github.com/metinatakli/payment-service/internal/validator"
	"github.com/redis/go-redis/v9"
)

type TestApp struct {
	App          *app.Application
	DB           *pgxpool.Pool
	RedisClient  *redis.Client
	Mailer       *mailer.MockMailer
	Orchestrator *orchestrator.Orchestrator
	Invoices     *repository.PostgresInvoiceRepository
	Outbox       *repository.PostgresOutboxRepository
}

func newTestApp(cfg app.Config) (*TestApp, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	validator := appvalidator.NewValidator()
	mailer := mailer.NewMockMailer()

	db, err := app.NewDatabasePool(cfg)
	if err != nil {
		return nil, err
	}

	redisClient, err := app.NewRedisClient(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	invoiceRepo := repository.NewPostgresInvoiceRepository(db)
	paymentRepo := repository.NewPostgresPaymentRepository(db)
	outboxRepo := repository.NewPostgresOutboxRepository(db)

	registry := payment.NewRegistryWith(cfg.Payment.Stripe,
		payment.NewSSLCommerzGateway(cfg.Payment, http.DefaultClient),
		payment.NewCashOnDeliveryGateway(""),
	)

	orch := orchestrator.New(paymentRepo, invoiceRepo, registry, mailer, logger)

	application := app.NewApp(
		cfg,
		logger,
		db,
		redisClient,
		validator,
		invoiceRepo,
		orch,
	)

	return &TestApp{
		App:          application,
		DB:           db,
		RedisClient:  redisClient,
		Mailer:       mailer,
		Orchestrator: orch,
		Invoices:     invoiceRepo,
		Outbox:       outboxRepo,
	}, nil
}
