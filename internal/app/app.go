package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/payment-service/internal/domain"
	"github.com/metinatakli/payment-service/internal/events"
	"github.com/metinatakli/payment-service/internal/mailer"
	"github.com/metinatakli/payment-service/internal/orchestrator"
	"github.com/metinatakli/payment-service/internal/payment"
	"github.com/metinatakli/payment-service/internal/repository"
	appvalidator "github.com/metinatakli/payment-service/internal/validator"
	"github.com/metinatakli/payment-service/internal/vcs"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/riandyrn/otelchi"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const serviceName = "payment-service"

var (
	version = vcs.Version()
)

type Application struct {
	config    Config
	logger    *slog.Logger
	db        *pgxpool.Pool
	redis     redis.UniversalClient
	validator *validator.Validate

	invoiceRepo  domain.InvoiceRepository
	orchestrator *orchestrator.Orchestrator
}

type Config struct {
	Port             int
	Env              string
	DB               DBConfig
	Redis            RedisConfig
	SMTP             SMTPConfig
	Kafka            KafkaConfig
	Payment          payment.Config
	OtelCollectorUrl string
}

type DBConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleTime  time.Duration
}

type RedisConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	MaxIdleTime  time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Sender   string
}

type KafkaConfig struct {
	Brokers      string
	Topic        string
	PollInterval time.Duration
	BatchSize    int
}

func (c KafkaConfig) brokerList() []string {
	var brokers []string
	for _, b := range strings.Split(c.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}

	return brokers
}

func NewApp(
	cfg Config,
	logger *slog.Logger,
	db *pgxpool.Pool,
	redis redis.UniversalClient,
	validator *validator.Validate,
	invoiceRepo domain.InvoiceRepository,
	orchestrator *orchestrator.Orchestrator) *Application {

	return &Application{
		config:       cfg,
		logger:       logger,
		db:           db,
		redis:        redis,
		validator:    validator,
		invoiceRepo:  invoiceRepo,
		orchestrator: orchestrator,
	}
}

func parseFlags() Config {
	var cfg Config

	flag.IntVar(&cfg.Port, "port", 3000, "server port")
	flag.StringVar(&cfg.Env, "env", "dev", "Environment (dev|staging|prod)")

	flag.StringVar(&cfg.DB.DSN, "db-dsn", "", "PostgreSQL DSN")
	flag.IntVar(&cfg.DB.MaxOpenConns, "db-max-open-conns", 25, "PostgreSQL max open connections")
	flag.DurationVar(&cfg.DB.MaxIdleTime, "db-max-idle-time", 15*time.Minute, "PostgreSQL max idle time for connections")

	flag.StringVar(&cfg.Redis.URL, "redis-url", "", "Redis URL")
	flag.IntVar(&cfg.Redis.MaxOpenConns, "redis-max-open-conns", 25, "Redis max open connections")
	flag.IntVar(&cfg.Redis.MaxIdleConns, "redis-max-idle-conns", 10, "Redis max idle connections")
	flag.DurationVar(&cfg.Redis.MaxIdleTime, "redis-max-idle-time", 2*time.Minute, "Redis max idle time for connections")

	flag.StringVar(&cfg.SMTP.Host, "smtp-host", "sandbox.smtp.mailtrap.io", "SMTP host")
	flag.IntVar(&cfg.SMTP.Port, "smtp-port", 2525, "SMTP port")
	flag.StringVar(&cfg.SMTP.Username, "smtp-username", "", "SMTP username")
	flag.StringVar(&cfg.SMTP.Password, "smtp-password", "", "SMTP password")
	flag.StringVar(&cfg.SMTP.Sender, "smtp-sender", "Payments <no-reply@example.com>", "SMTP sender")

	flag.StringVar(&cfg.Payment.Stripe.SecretKey, "stripe-key", "", "Stripe secret key")
	flag.StringVar(&cfg.Payment.Stripe.PublishableKey, "stripe-publishable-key", "", "Stripe publishable key")
	flag.StringVar(&cfg.Payment.Stripe.WebhookSecret, "stripe-webhook-secret", "", "Stripe webhook secret")
	flag.StringVar(&cfg.Payment.Stripe.Currency, "stripe-currency", "usd", "Stripe default currency")

	flag.StringVar(&cfg.Payment.SSLCommerz.StoreID, "sslcommerz-store-id", "", "SSL Commerz store id")
	flag.StringVar(&cfg.Payment.SSLCommerz.StorePassword, "sslcommerz-store-password", "", "SSL Commerz store password")
	flag.BoolVar(&cfg.Payment.SSLCommerz.Sandbox, "sslcommerz-sandbox", true, "Use the SSL Commerz sandbox")
	flag.BoolVar(&cfg.Payment.SSLCommerz.ServerValidation, "sslcommerz-server-validation", false, "Re-check successful SSL Commerz callbacks with the validation API")

	flag.StringVar(&cfg.Payment.ShurjoPay.Endpoint, "shurjopay-endpoint", "https://sandbox.shurjopayment.com", "ShurjoPay API endpoint")
	flag.StringVar(&cfg.Payment.ShurjoPay.Username, "shurjopay-username", "", "ShurjoPay username")
	flag.StringVar(&cfg.Payment.ShurjoPay.Password, "shurjopay-password", "", "ShurjoPay password")
	flag.StringVar(&cfg.Payment.ShurjoPay.Prefix, "shurjopay-prefix", "", "ShurjoPay order prefix")
	flag.StringVar(&cfg.Payment.ShurjoPay.ReturnURL, "shurjopay-return-url", "", "ShurjoPay return URL")
	flag.StringVar(&cfg.Payment.ShurjoPay.CancelURL, "shurjopay-cancel-url", "", "ShurjoPay cancel URL")
	flag.StringVar(&cfg.Payment.ShurjoPay.SuccessCode, "shurjopay-success-code", "0000", "ShurjoPay success code")

	flag.StringVar(&cfg.Payment.BackendURL, "backend-url", "http://localhost:3000", "Public base URL of this service")
	flag.StringVar(&cfg.Payment.FrontendURL, "frontend-url", "http://localhost:5173", "Storefront base URL")
	flag.DurationVar(&cfg.Payment.Timeout, "provider-timeout", 15*time.Second, "Timeout of outbound payment provider calls")

	flag.StringVar(&cfg.Kafka.Brokers, "kafka-brokers", "", "Comma separated Kafka brokers, empty disables event publishing")
	flag.StringVar(&cfg.Kafka.Topic, "kafka-topic", "payment-events", "Kafka topic for payment events")
	flag.DurationVar(&cfg.Kafka.PollInterval, "kafka-poll-interval", 2*time.Second, "Outbox poll interval")
	flag.IntVar(&cfg.Kafka.BatchSize, "kafka-batch-size", 100, "Outbox events published per poll")

	flag.StringVar(&cfg.OtelCollectorUrl, "otel-collector-url", "", "OpenTelemetry collector gRPC endpoint")

	return cfg
}

func Run() error {
	cfg := parseFlags()

	displayVersion := flag.Bool("version", false, "Display version and exit")

	flag.Parse()

	if *displayVersion {
		fmt.Printf("Version:\t%s\n", version)
		os.Exit(0)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	shutdownTelemetry, err := InitTelemetry(cfg, logger)
	if err != nil {
		return err
	}
	defer shutdownTelemetry(context.Background())

	if cfg.OtelCollectorUrl != "" {
		logger = slog.New(NewMultiHandler(logger.Handler(), otelslog.NewHandler(serviceName)))
	}

	db, err := NewDatabasePool(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient, err := NewRedisClient(cfg)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	invoiceRepo := repository.NewPostgresInvoiceRepository(db)
	paymentRepo := repository.NewPostgresPaymentRepository(db)
	outboxRepo := repository.NewPostgresOutboxRepository(db)

	registry := payment.NewRegistry(cfg.Payment)
	logger.Info("payment methods configured", "enabled", registry.Enabled())

	smtpMailer := mailer.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.Sender)
	orch := orchestrator.New(paymentRepo, invoiceRepo, registry, smtpMailer, logger)

	app := NewApp(cfg, logger, db, redisClient, appvalidator.NewValidator(), invoiceRepo, orch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if brokers := cfg.Kafka.brokerList(); len(brokers) > 0 {
		publisher := events.NewKafkaPublisher(brokers, cfg.Kafka.Topic)
		defer publisher.Close()

		dispatcher := events.NewDispatcher(outboxRepo, publisher, logger, cfg.Kafka.PollInterval, cfg.Kafka.BatchSize)
		go dispatcher.Run(ctx)

		logger.Info("outbox dispatcher started", "brokers", brokers, "topic", cfg.Kafka.Topic)
	}

	err = app.serve()

	// let in-flight receipt mails finish before the process exits
	orch.Wait()

	return err
}

func NewRedisClient(cfg Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:            cfg.Redis.URL,
		MaxIdleConns:    cfg.Redis.MaxIdleConns,
		MaxActiveConns:  cfg.Redis.MaxOpenConns,
		ConnMaxIdleTime: cfg.Redis.MaxIdleTime,
	})

	err := errors.Join(redisotel.InstrumentTracing(rdb), redisotel.InstrumentMetrics(rdb))
	if err != nil {
		rdb.Close()
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err = rdb.Ping(ctx).Err()
	if err != nil {
		rdb.Close()
		return nil, err
	}

	return rdb, nil
}

func NewDatabasePool(cfg Config) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(cfg.DB.DSN)
	if err != nil {
		return nil, err
	}

	config.MaxConnIdleTime = cfg.DB.MaxIdleTime
	config.MaxConns = int32(cfg.DB.MaxOpenConns)
	config.ConnConfig.Tracer = otelpgx.NewTracer()

	db, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err = db.Ping(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func (app *Application) serve() error {
	srv := &http.Server{
		Addr:         fmt.Sprintf("0.0.0.0:%d", app.config.Port),
		Handler:      app.Routes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: app.config.Payment.Timeout + 15*time.Second,
		ErrorLog:     slog.NewLogLogger(app.logger.Handler(), slog.LevelDebug),
	}

	shutdownError := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		app.logger.Info("shutting down server", "signal", s.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		shutdownError <- srv.Shutdown(ctx)
	}()

	app.logger.Info("starting server", "addr", srv.Addr, "env", app.config.Env)

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdownError
	if err != nil {
		return err
	}

	app.logger.Info("stopped server", "addr", srv.Addr)

	return nil
}

func (app *Application) Routes() http.Handler {
	r := chi.NewRouter()

	r.NotFound(app.notFoundResponse)
	r.MethodNotAllowed(app.methodNotAllowedResponse)

	r.Use(otelchi.Middleware(serviceName, otelchi.WithChiRoutes(r)))
	r.Use(middleware.Logger)
	r.Use(middleware.RequestID)
	r.Use(app.recoverPanic)

	r.Get("/healthcheck", app.GetHealth)
	r.Get("/openapi.json", app.GetOpenAPISpec)

	r.Route("/payments", func(r chi.Router) {
		r.Get("/methods", app.ListPaymentMethodsHandler)

		r.With(app.idempotent).Post("/stripe/create-intent", app.CreateStripeIntentHandler)
		r.Post("/stripe/confirm", app.ConfirmStripePaymentHandler)
		r.Post("/stripe/webhook", app.ipnHandler(domain.PaymentMethodStripe))

		r.With(app.idempotent).Post("/ssl-commerz/create-session", app.createSessionHandler(domain.PaymentMethodSSLCommerz))
		r.Post("/ssl-commerz/callback", app.callbackHandler(domain.PaymentMethodSSLCommerz))
		r.Post("/ssl-commerz/ipn", app.ipnHandler(domain.PaymentMethodSSLCommerz))

		r.With(app.idempotent).Post("/shurjopay/create-session", app.createSessionHandler(domain.PaymentMethodShurjoPay))
		r.Post("/shurjopay/callback", app.callbackHandler(domain.PaymentMethodShurjoPay))
		r.Post("/shurjopay/ipn", app.ipnHandler(domain.PaymentMethodShurjoPay))

		r.With(app.idempotent).Post("/cash-on-delivery", app.CreateCashOnDeliveryHandler)

		r.Get("/admin/all", app.ListPaymentsHandler)
		r.Get("/admin/stats", app.GetPaymentStatsHandler)
		r.Get("/user/{userId}", app.ListUserPaymentsHandler)

		r.Get("/{id}", app.GetPaymentHandler)
		r.Patch("/{id}/status", app.UpdatePaymentStatusHandler)
		r.Post("/{id}/refund", app.RefundPaymentHandler)
	})

	r.Route("/invoices", func(r chi.Router) {
		r.Post("/", app.CreateInvoiceHandler)
		r.Get("/{id}", app.GetInvoiceHandler)
	})

	return r
}
