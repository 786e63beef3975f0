package integration_test

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/metinatakli/payment-service/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var keysToIgnore = map[string]struct{}{
	"timestamp":  {},
	"requestId":  {},
	"created_at": {},
	"updated_at": {},
}

func prepareRequest(method, path string, body io.Reader, headers map[string]string) (*http.Request, error) {
	req := httptest.NewRequest(method, path, body)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

func compareResponse(t testing.TB, body io.Reader, expectedResponse string) {
	var actual map[string]any
	require.NoError(t, json.NewDecoder(body).Decode(&actual))

	cleanMap(actual)

	var expected map[string]any
	require.NoError(t, json.Unmarshal([]byte(expectedResponse), &expected))

	// only the keys named in the expectation are compared
	opts := cmpopts.IgnoreMapEntries(func(k string, _ any) bool {
		_, ok := expected[k]
		return !ok
	})

	if diff := cmp.Diff(expected, actual, opts); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}
}

func cleanMap(m map[string]any) {
	for k := range m {
		if _, ok := keysToIgnore[k]; ok {
			delete(m, k)
			continue
		}
		if nested, ok := m[k].(map[string]any); ok {
			cleanMap(nested)
		}
	}
}

func truncateTables(t testing.TB, app *TestApp) {
	_, err := app.DB.Exec(context.Background(),
		"TRUNCATE outbox_events, payments, invoices RESTART IDENTITY CASCADE")
	require.NoError(t, err)

	require.NoError(t, app.RedisClient.FlushDB(context.Background()).Err())
}

func createTestInvoice(t testing.TB, app *TestApp, method domain.PaymentMethod) *domain.Invoice {
	invoice := &domain.Invoice{
		UserID:        TestUserId,
		Subtotal:      decimal.RequireFromString(TestInvoiceSubtotal),
		Tax:           decimal.RequireFromString(TestInvoiceTax),
		Total:         decimal.RequireFromString(TestInvoiceTotal),
		PaymentMethod: method,
		CustomerEmail: TestCustomerEmail,
	}

	require.NoError(t, app.Invoices.Create(context.Background(), invoice))

	return invoice
}

func countRows(t testing.TB, app *TestApp, query string, args ...any) int {
	var n int
	require.NoError(t, app.DB.QueryRow(context.Background(), query, args...).Scan(&n))

	return n
}

// signedSSLCommerzForm returns fields signed the way SSL Commerz signs its
// callbacks: verify_key lists the signed fields and verify_sign is the MD5
// of "k=v&..." followed by the store password.
func signedSSLCommerzForm(fields map[string]string, storePassword string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k + "=" + fields[k] + "&")
	}
	sb.WriteString(storePassword)
	sum := md5.Sum([]byte(sb.String()))

	form := url.Values{}
	for k, v := range fields {
		form.Set(k, v)
	}
	form.Set("verify_key", strings.Join(keys, ","))
	form.Set("verify_sign", hex.EncodeToString(sum[:]))

	return form.Encode()
}

func postForm(t testing.TB, app *TestApp, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := httptest.NewRecorder()
	app.App.Routes().ServeHTTP(rec, req)
	app.Orchestrator.Wait()

	return rec
}
