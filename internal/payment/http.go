package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/metinatakli/payment-service/internal/domain"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxProviderResponseBytes = 1 << 20

// NewHTTPClient returns the client used for every outbound provider call.
func NewHTTPClient(cfg Config) *http.Client {
	return &http.Client{
		Timeout:   cfg.timeout(),
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

func postForm(ctx context.Context, client *http.Client, endpoint string, form url.Values, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return doJSON(client, req, dst)
}

func postJSON(ctx context.Context, client *http.Client, endpoint string, body any, bearer string, dst any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	return doJSON(client, req, dst)
}

func getJSON(ctx context.Context, client *http.Client, endpoint string, query url.Values, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}

	return doJSON(client, req, dst)
}

func doJSON(client *http.Client, req *http.Request, dst any) error {
	req.Header.Set("Accept", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxProviderResponseBytes))
	if err != nil {
		return err
	}

	if res.StatusCode >= http.StatusInternalServerError {
		return &statusError{code: res.StatusCode}
	}

	err = json.Unmarshal(body, dst)
	if err != nil {
		if res.StatusCode >= http.StatusBadRequest {
			return &statusError{code: res.StatusCode}
		}

		return fmt.Errorf("decode provider response: %w", err)
	}

	return nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("provider responded with status %d", e.code)
}

// providerFailure turns a transport level failure into a ProviderError,
// flagging timeouts, connection failures and 5xx answers as temporary.
func providerFailure(message string, err error) error {
	return domain.NewProviderError(message, err, isTemporary(err))
}

func isTemporary(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var sErr *statusError
	if errors.As(err, &sErr) {
		return sErr.code >= http.StatusInternalServerError
	}

	return false
}
