package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fitvox/FitVox/internal/pkg/env"
)

// ErrProviderUnavailable covers timeouts, transport errors and non-2xx
// responses from the payment provider. Callers fall back to local state or
// pending; this error never reaches an end user.
var ErrProviderUnavailable = errors.New("billing: payment provider unavailable")

const providerRequestTimeout = 10 * time.Second

// ProviderClient talks to the payment provider's REST API. An empty APIBaseURL
// means webhook-only mode: every call reports the provider as unavailable and
// the reconciler works from local state alone.
type ProviderClient struct {
	APIBaseURL string
	APIKey     string

	HTTPClient *http.Client
}

// ProviderPayment is the provider's view of one payment.
type ProviderPayment struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	AmountCents int64  `json:"amount"`
	PaymentLink string `json:"payment_link"`
}

// NewProviderClientFromEnv builds a client from PAYGATE_* environment values.
func NewProviderClientFromEnv() *ProviderClient {
	return &ProviderClient{
		APIBaseURL: strings.TrimRight(strings.TrimSpace(env.GetEnv("PAYGATE_API_BASE_URL", "")), "/"),
		APIKey:     strings.TrimSpace(env.GetEnv("PAYGATE_API_KEY", "")),
		HTTPClient: &http.Client{
			Timeout: providerRequestTimeout,
		},
	}
}

// WebhookOnly reports whether outbound provider calls are configured.
func (c *ProviderClient) WebhookOnly() bool {
	return c == nil || c.APIBaseURL == ""
}

// GetPayment fetches the provider's current status for a payment.
func (c *ProviderClient) GetPayment(ctx context.Context, paymentID string) (*ProviderPayment, error) {
	if c.WebhookOnly() {
		return nil, ErrProviderUnavailable
	}
	if strings.TrimSpace(paymentID) == "" {
		return nil, errors.New("payment id is required")
	}

	url := fmt.Sprintf("%s/payments/%s", c.APIBaseURL, paymentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status=%d body=%s", ErrProviderUnavailable, resp.StatusCode, string(body))
	}

	var out ProviderPayment
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, errors.New("provider payment response missing id")
	}
	return &out, nil
}

// CancelSubscription asks the provider to stop charging a subscription. The
// caller treats any failure as acceptable: the local cancel commits
// regardless and the provider's webhook reconciles later.
func (c *ProviderClient) CancelSubscription(ctx context.Context, providerSubscriptionID string) error {
	if c.WebhookOnly() {
		return ErrProviderUnavailable
	}
	if strings.TrimSpace(providerSubscriptionID) == "" {
		return errors.New("provider subscription id is required")
	}

	url := fmt.Sprintf("%s/subscriptions/%s/cancel", c.APIBaseURL, providerSubscriptionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status=%d body=%s", ErrProviderUnavailable, resp.StatusCode, string(body))
	}
	return nil
}
