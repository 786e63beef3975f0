package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/metinatakli/payment-service/internal/app"
	"github.com/metinatakli/payment-service/internal/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
)

const (
	dbName         = "payments"
	dbUser         = "test_user"
	dbPassword     = "test_password"
	dbImageName    = "postgres:17-alpine"
	cacheImageName = "redis:7"
)

type BaseSuite struct {
	suite.Suite
	app            *TestApp
	dbContainer    *PostgresContainer
	cacheContainer *RedisContainer
	gateway        *fakeSSLCommerz
}

func (s *BaseSuite) SetupSuite() {
	ctx := context.Background()

	postgresContainer, err := getDbContainer(ctx)
	if err != nil {
		log.Printf("failed to start container: %s", err)
		return
	}

	redisContainer, err := getCacheContainer(ctx)
	if err != nil {
		log.Printf("failed to start container: %s", err)
		return
	}

	s.dbContainer = postgresContainer
	s.cacheContainer = redisContainer
	s.gateway = newFakeSSLCommerz()

	cfg := app.Config{
		Port: 3000,
		Env:  "test",
		DB: app.DBConfig{
			DSN:          postgresContainer.ConnectionString,
			MaxOpenConns: 25,
			MaxIdleTime:  2 * time.Minute,
		},
		Redis: app.RedisConfig{
			URL:          redisContainer.ConnectionString,
			MaxOpenConns: 10,
			MaxIdleConns: 10,
			MaxIdleTime:  2 * time.Minute,
		},
		Payment: payment.Config{
			SSLCommerz: payment.SSLCommerzConfig{
				StoreID:       TestStoreID,
				StorePassword: TestStorePassword,
				BaseURL:       s.gateway.URL,
			},
			BackendURL:  "http://localhost:3000",
			FrontendURL: "http://localhost:5173",
			Timeout:     5 * time.Second,
		},
	}

	testApp, err := newTestApp(cfg)
	if err != nil {
		log.Printf("cannot initialize app: %s", err)
		return
	}

	s.app = testApp
}

func (s *BaseSuite) TearDownSuite() {
	if s.gateway != nil {
		s.gateway.Close()
	}
	if err := testcontainers.TerminateContainer(s.dbContainer.Container); err != nil {
		log.Printf("failed to terminate container: %s", err)
	}
	if err := testcontainers.TerminateContainer(s.cacheContainer.Container); err != nil {
		log.Printf("failed to terminate container: %s", err)
	}
}

func (s *BaseSuite) SetupTest() {
	s.Require().NotNil(s.app, "test app was not initialized")

	truncateTables(s.T(), s.app)
	s.app.Mailer.Reset()
	s.gateway.refunds.Store(0)
}

type fakeSSLCommerz struct {
	*httptest.Server
	refunds atomic.Int32
}

// newFakeSSLCommerz answers the session and refund endpoints the way the
// sandbox does for a healthy store.
func newFakeSSLCommerz() *fakeSSLCommerz {
	fake := &fakeSSLCommerz{}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /gwprocess/v4/api.php", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"status":         "SUCCESS",
			"sessionkey":     "fake-session-key",
			"GatewayPageURL": "https://sandbox.sslcommerz.com/EasyCheckOut/fake",
		})
	})

	mux.HandleFunc("GET /validator/api/merchantTransIDvalidationAPI.php", func(w http.ResponseWriter, r *http.Request) {
		fake.refunds.Add(1)
		time.Sleep(50 * time.Millisecond)

		if r.URL.Query().Get("bank_tran_id") != TestBankTranID {
			json.NewEncoder(w).Encode(map[string]string{
				"APIConnect":  "DONE",
				"status":      "failed",
				"errorReason": "unknown bank transaction",
			})
			return
		}

		json.NewEncoder(w).Encode(map[string]string{
			"APIConnect":    "DONE",
			"status":        "success",
			"refund_ref_id": TestRefundRefID,
		})
	})

	fake.Server = httptest.NewServer(mux)
	return fake
}

type Scenario struct {
	Name             string
	Method           string
	URL              string
	Body             io.Reader
	Headers          map[string]string
	ExpectedStatus   int
	ExpectedResponse string
	BeforeTestFunc   func(t testing.TB, app *TestApp)
	AfterTestFunc    func(t testing.TB, app *TestApp, res *http.Response)
}

func (s Scenario) Run(t *testing.T, testApp *TestApp) {
	t.Run(s.Name, func(t *testing.T) {
		req, err := prepareRequest(s.Method, s.URL, s.Body, s.Headers)
		require.NoError(t, err)

		if s.BeforeTestFunc != nil {
			s.BeforeTestFunc(t, testApp)
		}

		rec := httptest.NewRecorder()
		testApp.App.Routes().ServeHTTP(rec, req)
		testApp.Orchestrator.Wait()

		res := rec.Result()
		defer res.Body.Close()

		assert.Equal(t, s.ExpectedStatus, res.StatusCode)

		if s.ExpectedResponse != "" {
			compareResponse(t, res.Body, s.ExpectedResponse)
		}

		if s.AfterTestFunc != nil {
			s.AfterTestFunc(t, testApp, res)
		}
	})
}
