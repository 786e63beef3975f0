package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/metinatakli/payment-service/api"
	"github.com/metinatakli/payment-service/internal/domain"
	"github.com/metinatakli/payment-service/internal/mailer"
	"github.com/metinatakli/payment-service/internal/mocks"
	"github.com/metinatakli/payment-service/internal/orchestrator"
	"github.com/metinatakli/payment-service/internal/payment"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type PaymentHandlerTestSuite struct {
	suite.Suite
	app          *Application
	router       http.Handler
	payments     *mocks.MockPaymentRepo
	invoices     *mocks.MockInvoiceRepo
	gateway      *mocks.MockGateway
	mailer       *mailer.MockMailer
	orchestrator *orchestrator.Orchestrator
	invoice      *domain.Invoice
}

func TestPaymentHandlerSuite(t *testing.T) {
	suite.Run(t, new(PaymentHandlerTestSuite))
}

func (s *PaymentHandlerTestSuite) SetupTest() {
	s.payments = new(mocks.MockPaymentRepo)
	s.gateway = &mocks.MockGateway{PaymentMethod: domain.PaymentMethodSSLCommerz}
	s.mailer = mailer.NewMockMailer()

	s.invoice = &domain.Invoice{
		ID:            7,
		UserID:        3,
		InvoiceNumber: "INV-1-abc",
		Total:         decimal.NewFromInt(1500),
		Status:        domain.InvoiceStatusPending,
		PaymentStatus: domain.InvoicePaymentPending,
		CustomerEmail: "buyer@example.com",
	}

	s.invoices = &mocks.MockInvoiceRepo{
		GetByIdFunc: func(ctx context.Context, id int) (*domain.Invoice, error) {
			if id != s.invoice.ID {
				return nil, domain.ErrRecordNotFound
			}

			return s.invoice, nil
		},
	}

	registry := payment.NewRegistryWith(payment.StripeConfig{},
		payment.NewStripeGateway(payment.Config{}, nil),
		s.gateway,
		payment.NewCashOnDeliveryGateway(""),
	)

	s.app = newTestApplication(func(a *Application) {
		a.invoiceRepo = s.invoices
	})
	s.orchestrator = orchestrator.New(s.payments, s.invoices, registry, s.mailer, s.app.logger)
	s.app.orchestrator = s.orchestrator
	s.router = s.app.Routes()
}

func (s *PaymentHandlerTestSuite) serve(w *httptest.ResponseRecorder, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *PaymentHandlerTestSuite) sslPayment(status domain.PaymentStatus) *domain.Payment {
	return &domain.Payment{
		ID:            11,
		UserID:        3,
		InvoiceID:     7,
		PaymentMethod: domain.PaymentMethodSSLCommerz,
		Amount:        decimal.NewFromInt(1500),
		Currency:      "BDT",
		Status:        status,
		TransactionID: ptr("SSL_1_7"),
	}
}

func (s *PaymentHandlerTestSuite) expectNewPayment(method domain.PaymentMethod) {
	s.payments.On("FindActive", mock.Anything, 7, method).Return(nil, domain.ErrRecordNotFound).Once()
	s.payments.On("Create", mock.Anything, mock.AnythingOfType("*domain.Payment")).
		Run(func(args mock.Arguments) { args.Get(1).(*domain.Payment).ID = 21 }).
		Return(nil).Once()
}

func (s *PaymentHandlerTestSuite) TestHealthcheck() {
	w, r := executeRequest(s.T(), http.MethodGet, "/healthcheck", nil)
	s.serve(w, r)

	s.Equal(http.StatusOK, w.Code)

	var resp api.HealthcheckResponse
	s.Require().NoError(json.NewDecoder(w.Body).Decode(&resp))
	s.Equal("UP", resp.Status)
	s.Equal("test", resp.SystemInfo.Environment)
}

func (s *PaymentHandlerTestSuite) TestListPaymentMethodsHandler() {
	w, r := executeRequest(s.T(), http.MethodGet, "/payments/methods", nil)
	s.serve(w, r)

	s.Equal(http.StatusOK, w.Code)

	var resp api.PaymentMethodsResponse
	s.Require().NoError(json.NewDecoder(w.Body).Decode(&resp))

	enabled := make(map[string]bool)
	for _, m := range resp.Methods {
		enabled[m.ID] = m.Enabled
	}

	s.Len(resp.Methods, 4)
	s.True(enabled[string(domain.PaymentMethodCashOnDelivery)])
	s.True(enabled[string(domain.PaymentMethodSSLCommerz)])
	s.False(enabled[string(domain.PaymentMethodStripe)])
	s.Empty(resp.StripePublishableKey)
}

func (s *PaymentHandlerTestSuite) TestCreateCashOnDeliveryHandler() {
	tests := []struct {
		name           string
		body           any
		setupMocks     func()
		wantStatus     int
		wantErrMessage string
	}{
		{
			name:           "should fail when invoice id is missing",
			body:           map[string]any{"note": "leave at the door"},
			setupMocks:     func() {},
			wantStatus:     http.StatusUnprocessableEntity,
			wantErrMessage: "is required",
		},
		{
			name:           "should fail on unknown fields",
			body:           map[string]any{"invoice_id": 7, "amount": "10"},
			setupMocks:     func() {},
			wantStatus:     http.StatusBadRequest,
			wantErrMessage: "body contains unknown key \"amount\"",
		},
		{
			name:           "should fail when invoice does not exist",
			body:           api.CashOnDeliveryRequest{InvoiceID: 99},
			setupMocks:     func() {},
			wantStatus:     http.StatusNotFound,
			wantErrMessage: "Invoice not found",
		},
		{
			name: "should fail when an active payment exists",
			body: api.CashOnDeliveryRequest{InvoiceID: 7},
			setupMocks: func() {
				s.payments.On("FindActive", mock.Anything, 7, domain.PaymentMethodCashOnDelivery).
					Return(&domain.Payment{ID: 5, Status: domain.PaymentStatusPending}, nil).Once()
			},
			wantStatus:     http.StatusConflict,
			wantErrMessage: "Payment already exists for this invoice",
		},
		{
			name: "should create a pending payment for the invoice total",
			body: api.CashOnDeliveryRequest{InvoiceID: 7, Note: "leave at the door"},
			setupMocks: func() {
				s.expectNewPayment(domain.PaymentMethodCashOnDelivery)
			},
			wantStatus: http.StatusCreated,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.SetupTest()
			tt.setupMocks()

			w, r := executeRequest(s.T(), http.MethodPost, "/payments/cash-on-delivery", tt.body)
			s.serve(w, r)

			s.Equal(tt.wantStatus, w.Code)
			checkErrorResponse(s.T(), w, struct {
				wantStatus     int
				wantErrMessage string
			}{tt.wantStatus, tt.wantErrMessage})

			if tt.wantStatus == http.StatusCreated {
				var resp api.PaymentSessionResponse
				s.Require().NoError(json.NewDecoder(w.Body).Decode(&resp))
				s.Equal(21, resp.PaymentID)
				s.Equal(string(domain.PaymentStatusPending), resp.Status)
				s.True(decimal.NewFromInt(1500).Equal(resp.Amount))
				s.Contains(resp.TransactionID, "COD_")
			}

			s.payments.AssertExpectations(s.T())
		})
	}
}

func (s *PaymentHandlerTestSuite) TestCreateStripeIntentHandler_NotConfigured() {
	s.payments.On("FindActive", mock.Anything, 7, domain.PaymentMethodStripe).Return(nil, domain.ErrRecordNotFound).Once()

	w, r := executeRequest(s.T(), http.MethodPost, "/payments/stripe/create-intent", api.CreateStripeIntentRequest{
		InvoiceID: 7,
		Currency:  "USD",
	})
	s.serve(w, r)

	s.Equal(http.StatusServiceUnavailable, w.Code)
	s.payments.AssertNotCalled(s.T(), "Create", mock.Anything, mock.Anything)
}

func (s *PaymentHandlerTestSuite) TestCreateStripeIntentHandler_InvalidCurrency() {
	w, r := executeRequest(s.T(), http.MethodPost, "/payments/stripe/create-intent", api.CreateStripeIntentRequest{
		InvoiceID: 7,
		Currency:  "DOLLAR",
	})
	s.serve(w, r)

	s.Equal(http.StatusUnprocessableEntity, w.Code)
	checkErrorResponse(s.T(), w, struct {
		wantStatus     int
		wantErrMessage string
	}{http.StatusUnprocessableEntity, "must be a three letter currency code"})
}

func (s *PaymentHandlerTestSuite) TestCreateSessionHandler() {
	s.expectNewPayment(domain.PaymentMethodSSLCommerz)
	s.gateway.On("CreateSession", mock.Anything, mock.MatchedBy(func(req domain.SessionRequest) bool {
		return req.InvoiceID == 7 && req.Amount.Equal(decimal.NewFromInt(1500)) && req.Customer.Name == "Rahim"
	})).Return(&domain.SessionResult{
		TransactionID: "SSL_1_7",
		RedirectURL:   "https://sandbox.sslcommerz.com/gwprocess/v4/gw.php?Q=pay",
		Amount:        decimal.NewFromInt(1500),
		Currency:      "BDT",
		Metadata:      map[string]any{"session_key": "sess-1"},
	}, nil).Once()

	w, r := executeRequest(s.T(), http.MethodPost, "/payments/ssl-commerz/create-session", api.CreateSessionRequest{
		InvoiceID: 7,
		CustomerInfo: &api.CustomerInfo{
			Name:  "Rahim",
			Phone: "01700000000",
			Email: "buyer@example.com",
		},
	})
	s.serve(w, r)

	s.Require().Equal(http.StatusCreated, w.Code)

	var resp api.PaymentSessionResponse
	s.Require().NoError(json.NewDecoder(w.Body).Decode(&resp))
	s.Equal("SSL_1_7", resp.TransactionID)
	s.Equal("sess-1", resp.SessionKey)
	s.Equal("BDT", resp.Currency)
	s.NotEmpty(resp.GatewayURL)
	s.gateway.AssertExpectations(s.T())
}

func (s *PaymentHandlerTestSuite) TestCreateSessionHandler_MissingCustomer() {
	w, r := executeRequest(s.T(), http.MethodPost, "/payments/ssl-commerz/create-session", api.CreateSessionRequest{InvoiceID: 7})
	s.serve(w, r)

	s.Equal(http.StatusUnprocessableEntity, w.Code)
	s.gateway.AssertNotCalled(s.T(), "CreateSession", mock.Anything, mock.Anything)
}

func (s *PaymentHandlerTestSuite) TestCallbackHandler() {
	keys := []domain.LookupKey{domain.ByTransactionID("SSL_1_7")}

	tests := []struct {
		name           string
		setupMocks     func()
		wantStatus     int
		wantErrMessage string
		wantState      string
		wantEmails     int
	}{
		{
			name: "should reject a forged callback without writing",
			setupMocks: func() {
				s.gateway.On("LookupKeys", mock.Anything).Return(keys, nil).Once()
				s.payments.On("FindByLookup", mock.Anything, domain.PaymentMethodSSLCommerz, keys).
					Return(s.sslPayment(domain.PaymentStatusPending), nil).Once()
				s.gateway.On("VerifyCallback", mock.Anything, mock.Anything).
					Return(&domain.VerifyResult{Valid: false}, nil).Once()
			},
			wantStatus:     http.StatusBadRequest,
			wantErrMessage: ErrInvalidSignature,
		},
		{
			name: "should fail for an unknown payment",
			setupMocks: func() {
				s.gateway.On("LookupKeys", mock.Anything).Return(keys, nil).Once()
				s.payments.On("FindByLookup", mock.Anything, domain.PaymentMethodSSLCommerz, keys).
					Return(nil, domain.ErrRecordNotFound).Once()
			},
			wantStatus:     http.StatusNotFound,
			wantErrMessage: "Payment not found",
		},
		{
			name: "should complete a verified payment and send a receipt",
			setupMocks: func() {
				completed := s.sslPayment(domain.PaymentStatusCompleted)

				s.gateway.On("LookupKeys", mock.Anything).Return(keys, nil).Once()
				s.payments.On("FindByLookup", mock.Anything, domain.PaymentMethodSSLCommerz, keys).
					Return(s.sslPayment(domain.PaymentStatusPending), nil).Once()
				s.gateway.On("VerifyCallback", mock.Anything, mock.Anything).
					Return(&domain.VerifyResult{
						Valid:         true,
						Status:        domain.VerifySucceeded,
						TransactionID: "SSL_1_7",
						Amount:        decimal.NewFromInt(1500),
					}, nil).Once()
				s.payments.On("Transition", mock.Anything, mock.MatchedBy(func(t domain.PaymentTransition) bool {
					return t.PaymentID == 11 && t.To == domain.PaymentStatusCompleted && t.Event != nil
				})).Return(&domain.TransitionResult{Payment: completed, Applied: true}, nil).Once()
			},
			wantStatus: http.StatusOK,
			wantState:  string(domain.PaymentStatusCompleted),
			wantEmails: 1,
		},
		{
			name: "should acknowledge a replayed success without a second receipt",
			setupMocks: func() {
				completed := s.sslPayment(domain.PaymentStatusCompleted)

				s.gateway.On("LookupKeys", mock.Anything).Return(keys, nil).Once()
				s.payments.On("FindByLookup", mock.Anything, domain.PaymentMethodSSLCommerz, keys).
					Return(completed, nil).Once()
				s.gateway.On("VerifyCallback", mock.Anything, mock.Anything).
					Return(&domain.VerifyResult{Valid: true, Status: domain.VerifySucceeded, TransactionID: "SSL_1_7"}, nil).Once()
				s.payments.On("Transition", mock.Anything, mock.Anything).
					Return(&domain.TransitionResult{Payment: completed, Applied: false}, nil).Once()
			},
			wantStatus: http.StatusOK,
			wantState:  string(domain.PaymentStatusCompleted),
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.SetupTest()
			tt.setupMocks()

			w, r := executeFormRequest(http.MethodPost, "/payments/ssl-commerz/callback", "tran_id=SSL_1_7&status=VALID&val_id=v1")
			s.serve(w, r)
			s.orchestrator.Wait()

			s.Equal(tt.wantStatus, w.Code)
			checkErrorResponse(s.T(), w, struct {
				wantStatus     int
				wantErrMessage string
			}{tt.wantStatus, tt.wantErrMessage})

			if tt.wantStatus == http.StatusOK {
				var resp api.PaymentOutcomeResponse
				s.Require().NoError(json.NewDecoder(w.Body).Decode(&resp))
				s.Equal(tt.wantState, resp.Status)
				s.Equal(7, resp.InvoiceID)
			}

			if tt.wantStatus != http.StatusOK {
				s.payments.AssertNotCalled(s.T(), "Transition", mock.Anything, mock.Anything)
			}

			s.Len(s.mailer.EmailsTo("buyer@example.com", "payment_receipt.tmpl"), tt.wantEmails)
		})
	}
}

func (s *PaymentHandlerTestSuite) TestIPNHandler() {
	keys := []domain.LookupKey{domain.ByTransactionID("SSL_unknown")}

	s.Run("should acknowledge an unknown transaction without writing", func() {
		s.SetupTest()
		s.gateway.On("LookupKeys", mock.Anything).Return(keys, nil).Once()
		s.payments.On("FindByLookup", mock.Anything, domain.PaymentMethodSSLCommerz, keys).
			Return(nil, domain.ErrRecordNotFound).Once()

		w, r := executeFormRequest(http.MethodPost, "/payments/ssl-commerz/ipn", "tran_id=SSL_unknown&status=VALID")
		s.serve(w, r)

		s.Equal(http.StatusOK, w.Code)
		s.Equal("OK", w.Body.String())
		s.payments.AssertNotCalled(s.T(), "Transition", mock.Anything, mock.Anything)
	})

	s.Run("should reject a forged notification", func() {
		s.SetupTest()
		s.gateway.On("LookupKeys", mock.Anything).Return(nil, domain.NewSignatureError("missing tran_id")).Once()

		w, r := executeFormRequest(http.MethodPost, "/payments/ssl-commerz/ipn", "status=VALID")
		s.serve(w, r)

		s.Equal(http.StatusBadRequest, w.Code)
		s.Equal("INVALID", w.Body.String())
	})
}

func (s *PaymentHandlerTestSuite) TestGetPaymentHandler() {
	tests := []struct {
		name           string
		url            string
		setupMocks     func()
		wantStatus     int
		wantErrMessage string
	}{
		{
			name:           "should fail on a malformed id",
			url:            "/payments/abc",
			setupMocks:     func() {},
			wantStatus:     http.StatusBadRequest,
			wantErrMessage: "invalid id parameter",
		},
		{
			name: "should fail when payment does not exist",
			url:  "/payments/99",
			setupMocks: func() {
				s.payments.On("GetById", mock.Anything, 99).Return(nil, domain.ErrRecordNotFound).Once()
			},
			wantStatus:     http.StatusNotFound,
			wantErrMessage: "Payment not found",
		},
		{
			name: "should return the payment",
			url:  "/payments/11",
			setupMocks: func() {
				s.payments.On("GetById", mock.Anything, 11).Return(s.sslPayment(domain.PaymentStatusPending), nil).Once()
			},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.SetupTest()
			tt.setupMocks()

			w, r := executeRequest(s.T(), http.MethodGet, tt.url, nil)
			s.serve(w, r)

			s.Equal(tt.wantStatus, w.Code)
			checkErrorResponse(s.T(), w, struct {
				wantStatus     int
				wantErrMessage string
			}{tt.wantStatus, tt.wantErrMessage})

			if tt.wantStatus == http.StatusOK {
				var resp api.Payment
				s.Require().NoError(json.NewDecoder(w.Body).Decode(&resp))
				s.Equal(11, resp.ID)
				s.Equal("ssl_commerz", resp.PaymentMethod)
			}
		})
	}
}

func (s *PaymentHandlerTestSuite) TestListPaymentsHandler() {
	tests := []struct {
		name           string
		url            string
		setupMocks     func()
		wantStatus     int
		wantErrMessage string
	}{
		{
			name:           "should fail when page size is too large",
			url:            "/payments/admin/all?pageSize=500",
			setupMocks:     func() {},
			wantStatus:     http.StatusBadRequest,
			wantErrMessage: "pageSize must be between 1 and 100",
		},
		{
			name:           "should fail on an unknown status filter",
			url:            "/payments/admin/all?status=done",
			setupMocks:     func() {},
			wantStatus:     http.StatusBadRequest,
			wantErrMessage: "unknown payment status \"done\"",
		},
		{
			name:           "should fail on an unknown method filter",
			url:            "/payments/admin/all?method=paypal",
			setupMocks:     func() {},
			wantStatus:     http.StatusBadRequest,
			wantErrMessage: "unknown payment method \"paypal\"",
		},
		{
			name: "should list a filtered page",
			url:  "/payments/admin/all?page=2&pageSize=10&status=completed",
			setupMocks: func() {
				want := domain.Pagination{Page: 2, PageSize: 10, Status: domain.PaymentStatusCompleted}
				s.payments.On("List", mock.Anything, want).
					Return([]domain.Payment{*s.sslPayment(domain.PaymentStatusCompleted)}, domain.NewMetadata(25, 2, 10), nil).Once()
			},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.SetupTest()
			tt.setupMocks()

			w, r := executeRequest(s.T(), http.MethodGet, tt.url, nil)
			s.serve(w, r)

			s.Equal(tt.wantStatus, w.Code)
			checkErrorResponse(s.T(), w, struct {
				wantStatus     int
				wantErrMessage string
			}{tt.wantStatus, tt.wantErrMessage})

			if tt.wantStatus == http.StatusOK {
				var resp api.PaymentListResponse
				s.Require().NoError(json.NewDecoder(w.Body).Decode(&resp))
				s.Len(resp.Payments, 1)
				s.Require().NotNil(resp.Metadata)
				s.Equal(3, resp.Metadata.LastPage)
				s.Equal(25, resp.Metadata.TotalRecords)
			}

			s.payments.AssertExpectations(s.T())
		})
	}
}

func (s *PaymentHandlerTestSuite) TestListUserPaymentsHandler() {
	s.payments.On("ListByUserId", mock.Anything, 3).
		Return([]domain.Payment{*s.sslPayment(domain.PaymentStatusPending)}, nil).Once()

	w, r := executeRequest(s.T(), http.MethodGet, "/payments/user/3", nil)
	s.serve(w, r)

	s.Equal(http.StatusOK, w.Code)

	var resp api.PaymentListResponse
	s.Require().NoError(json.NewDecoder(w.Body).Decode(&resp))
	s.Len(resp.Payments, 1)
	s.Nil(resp.Metadata)
}

func (s *PaymentHandlerTestSuite) TestGetPaymentStatsHandler() {
	s.payments.On("Stats", mock.Anything).Return(&domain.PaymentStats{
		StatusBreakdown: []domain.PaymentStat{
			{Key: "completed", Count: 2, TotalAmount: decimal.NewFromInt(3000)},
		},
		MethodBreakdown: []domain.PaymentStat{
			{Key: "ssl_commerz", Count: 2, TotalAmount: decimal.NewFromInt(3000)},
		},
		TotalPayments:        2,
		TotalCompletedAmount: decimal.NewFromInt(3000),
	}, nil).Once()

	w, r := executeRequest(s.T(), http.MethodGet, "/payments/admin/stats", nil)
	s.serve(w, r)

	s.Equal(http.StatusOK, w.Code)

	var resp api.PaymentStatsResponse
	s.Require().NoError(json.NewDecoder(w.Body).Decode(&resp))
	s.Equal(2, resp.TotalPayments)
	s.True(decimal.NewFromInt(3000).Equal(resp.TotalCompletedAmount))
	s.Equal("completed", resp.StatusBreakdown[0].Key)
}

func (s *PaymentHandlerTestSuite) TestUpdatePaymentStatusHandler() {
	tests := []struct {
		name           string
		body           any
		setupMocks     func()
		wantStatus     int
		wantErrMessage string
	}{
		{
			name:           "should fail on an unknown status",
			body:           api.UpdatePaymentStatusRequest{Status: "done"},
			setupMocks:     func() {},
			wantStatus:     http.StatusUnprocessableEntity,
			wantErrMessage: "must be one of pending, processing, completed, failed, cancelled, refunded",
		},
		{
			name: "should fail when leaving a terminal status",
			body: api.UpdatePaymentStatusRequest{Status: "pending"},
			setupMocks: func() {
				s.payments.On("GetById", mock.Anything, 11).Return(s.sslPayment(domain.PaymentStatusFailed), nil).Once()
			},
			wantStatus: http.StatusConflict,
		},
		{
			name: "should cancel a pending payment",
			body: api.UpdatePaymentStatusRequest{Status: "cancelled", Note: "customer changed their mind"},
			setupMocks: func() {
				s.payments.On("GetById", mock.Anything, 11).Return(s.sslPayment(domain.PaymentStatusPending), nil).Once()
				s.payments.On("Transition", mock.Anything, mock.MatchedBy(func(t domain.PaymentTransition) bool {
					return t.To == domain.PaymentStatusCancelled
				})).Return(&domain.TransitionResult{Payment: s.sslPayment(domain.PaymentStatusCancelled), Applied: true}, nil).Once()
			},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.SetupTest()
			tt.setupMocks()

			w, r := executeRequest(s.T(), http.MethodPatch, "/payments/11/status", tt.body)
			s.serve(w, r)

			s.Equal(tt.wantStatus, w.Code)
			checkErrorResponse(s.T(), w, struct {
				wantStatus     int
				wantErrMessage string
			}{tt.wantStatus, tt.wantErrMessage})

			if tt.wantStatus == http.StatusOK {
				var resp api.Payment
				s.Require().NoError(json.NewDecoder(w.Body).Decode(&resp))
				s.Equal("cancelled", resp.Status)
			}
		})
	}
}

func (s *PaymentHandlerTestSuite) claimRefund() {
	s.payments.On("ClaimRefund", mock.Anything, 11, mock.Anything).
		Return(&domain.TransitionResult{Payment: s.sslPayment(domain.PaymentStatusCompleted), Applied: true}, nil).Once()
}

func (s *PaymentHandlerTestSuite) TestRefundPaymentHandler() {
	tests := []struct {
		name           string
		body           any
		setupMocks     func()
		wantStatus     int
		wantErrMessage string
	}{
		{
			name:           "should fail on a zero refund amount",
			body:           api.RefundPaymentRequest{RefundAmount: decimal.Zero},
			setupMocks:     func() {},
			wantStatus:     http.StatusUnprocessableEntity,
			wantErrMessage: "must be greater than zero",
		},
		{
			name: "should fail when the refund exceeds the payment",
			body: api.RefundPaymentRequest{RefundAmount: decimal.NewFromInt(2000)},
			setupMocks: func() {
				s.payments.On("GetById", mock.Anything, 11).Return(s.sslPayment(domain.PaymentStatusCompleted), nil).Once()
			},
			wantStatus:     http.StatusBadRequest,
			wantErrMessage: "Refund amount cannot exceed payment amount",
		},
		{
			name: "should fail when the payment is not completed",
			body: api.RefundPaymentRequest{RefundAmount: decimal.NewFromInt(100)},
			setupMocks: func() {
				s.payments.On("GetById", mock.Anything, 11).Return(s.sslPayment(domain.PaymentStatusPending), nil).Once()
			},
			wantStatus:     http.StatusBadRequest,
			wantErrMessage: "Only completed payments can be refunded",
		},
		{
			name: "should surface a provider rejection",
			body: api.RefundPaymentRequest{RefundAmount: decimal.NewFromInt(100)},
			setupMocks: func() {
				s.payments.On("GetById", mock.Anything, 11).Return(s.sslPayment(domain.PaymentStatusCompleted), nil).Once()
				s.claimRefund()
				s.payments.On("ReleaseRefund", mock.Anything, 11).Return(nil).Once()
				s.gateway.On("ProcessRefund", mock.Anything, mock.Anything).
					Return(nil, domain.NewProviderError("refund declined", nil, false)).Once()
			},
			wantStatus:     http.StatusBadGateway,
			wantErrMessage: "refund declined",
		},
		{
			name: "should reject a refund already in progress",
			body: api.RefundPaymentRequest{RefundAmount: decimal.NewFromInt(100)},
			setupMocks: func() {
				s.payments.On("GetById", mock.Anything, 11).Return(s.sslPayment(domain.PaymentStatusCompleted), nil).Once()
				s.payments.On("ClaimRefund", mock.Anything, 11, mock.Anything).
					Return(&domain.TransitionResult{Payment: s.sslPayment(domain.PaymentStatusCompleted)}, nil).Once()
			},
			wantStatus:     http.StatusConflict,
			wantErrMessage: "A refund for this payment is already in progress",
		},
		{
			name: "should refund a completed payment",
			body: api.RefundPaymentRequest{RefundAmount: decimal.NewFromInt(500), Reason: "damaged"},
			setupMocks: func() {
				refunded := s.sslPayment(domain.PaymentStatusRefunded)
				refunded.RefundAmount = ptr(decimal.NewFromInt(500))
				refunded.RefundedAt = ptr(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))

				s.payments.On("GetById", mock.Anything, 11).Return(s.sslPayment(domain.PaymentStatusCompleted), nil).Once()
				s.claimRefund()
				s.gateway.On("ProcessRefund", mock.Anything, mock.Anything).
					Return(&domain.RefundResult{RefundReference: "ref-1", Amount: decimal.NewFromInt(500)}, nil).Once()
				s.payments.On("Transition", mock.Anything, mock.MatchedBy(func(t domain.PaymentTransition) bool {
					return t.To == domain.PaymentStatusRefunded && t.RefundAmount != nil
				})).Return(&domain.TransitionResult{Payment: refunded, Applied: true}, nil).Once()
			},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.SetupTest()
			tt.setupMocks()

			w, r := executeRequest(s.T(), http.MethodPost, "/payments/11/refund", tt.body)
			s.serve(w, r)
			s.orchestrator.Wait()

			s.Equal(tt.wantStatus, w.Code)
			checkErrorResponse(s.T(), w, struct {
				wantStatus     int
				wantErrMessage string
			}{tt.wantStatus, tt.wantErrMessage})

			if tt.wantStatus == http.StatusOK {
				var resp api.RefundResponse
				s.Require().NoError(json.NewDecoder(w.Body).Decode(&resp))
				s.Equal("refunded", resp.Status)
				s.Equal("ref-1", resp.RefundReference)
				s.True(decimal.NewFromInt(500).Equal(resp.RefundAmount))
				s.Len(s.mailer.EmailsTo("buyer@example.com", "payment_refunded.tmpl"), 1)
			} else {
				s.payments.AssertNotCalled(s.T(), "Transition", mock.Anything, mock.Anything)
			}
		})
	}
}

func (s *PaymentHandlerTestSuite) TestIdempotentReplay() {
	redisClient := new(mocks.MockRedisClient)
	s.app.redis = redisClient

	cacheKey := idempotencyCacheKey("/payments/cash-on-delivery", "key-1")
	var stored []byte

	redisClient.On("Get", mock.Anything, cacheKey).Return(redis.NewStringResult("", redis.Nil)).Once()
	redisClient.On("Set", mock.Anything, cacheKey, mock.Anything, idempotencyTTL).
		Run(func(args mock.Arguments) { stored = args.Get(2).([]byte) }).
		Return(redis.NewStatusResult("OK", nil)).Once()
	s.expectNewPayment(domain.PaymentMethodCashOnDelivery)

	w, r := executeRequest(s.T(), http.MethodPost, "/payments/cash-on-delivery", api.CashOnDeliveryRequest{InvoiceID: 7})
	r.Header.Set(idempotencyHeader, "key-1")
	s.serve(w, r)

	s.Require().Equal(http.StatusCreated, w.Code)
	s.Require().NotEmpty(stored)
	first := w.Body.String()

	redisClient.On("Get", mock.Anything, cacheKey).Return(redis.NewStringResult(string(stored), nil)).Once()

	w, r = executeRequest(s.T(), http.MethodPost, "/payments/cash-on-delivery", api.CashOnDeliveryRequest{InvoiceID: 7})
	r.Header.Set(idempotencyHeader, "key-1")
	s.serve(w, r)

	s.Equal(http.StatusCreated, w.Code)
	s.Equal("true", w.Header().Get("Idempotent-Replayed"))
	s.Equal(first, w.Body.String())
	s.payments.AssertNumberOfCalls(s.T(), "Create", 1)
	redisClient.AssertExpectations(s.T())
}

func (s *PaymentHandlerTestSuite) TestIdempotencyKeyTooLong() {
	s.app.redis = new(mocks.MockRedisClient)

	key := make([]byte, maxIdempotencyKeyLen+1)
	for i := range key {
		key[i] = 'k'
	}

	w, r := executeRequest(s.T(), http.MethodPost, "/payments/cash-on-delivery", api.CashOnDeliveryRequest{InvoiceID: 7})
	r.Header.Set(idempotencyHeader, string(key))
	s.serve(w, r)

	s.Equal(http.StatusBadRequest, w.Code)
	s.payments.AssertNotCalled(s.T(), "Create", mock.Anything, mock.Anything)
}

func (s *PaymentHandlerTestSuite) TestIdempotencyFailsOpen() {
	redisClient := new(mocks.MockRedisClient)
	s.app.redis = redisClient

	redisClient.On("Get", mock.Anything, mock.Anything).
		Return(redis.NewStringResult("", mocks.MockRedisError{Msg: "connection refused"})).Once()
	redisClient.On("Set", mock.Anything, mock.Anything, mock.Anything, idempotencyTTL).
		Return(redis.NewStatusResult("", mocks.MockRedisError{Msg: "connection refused"})).Once()
	s.expectNewPayment(domain.PaymentMethodCashOnDelivery)

	w, r := executeRequest(s.T(), http.MethodPost, "/payments/cash-on-delivery", api.CashOnDeliveryRequest{InvoiceID: 7})
	r.Header.Set(idempotencyHeader, "key-2")
	s.serve(w, r)

	s.Equal(http.StatusCreated, w.Code)
}
