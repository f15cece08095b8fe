package external

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	"jobtrail/internal/types"
)

// stripeAPIBase is the default Stripe API base URL. Overridable in tests.
const stripeAPIBase = "https://api.stripe.com"

// BillingPeriods resolves when a paid user's current billing period ends.
// The quota engine aligns reset dates to it so usage windows track invoices
// rather than an arbitrary 30-day clock.
type BillingPeriods interface {
	// CurrentPeriodEnd returns the end of the subscription's current billing
	// period, or nil when the subscription id is empty (free tier).
	CurrentPeriodEnd(ctx context.Context, subscriptionID string) (*time.Time, error)
}

// StripeClient implements BillingPeriods against the Stripe REST API.
type StripeClient struct {
	base      *BaseClient
	baseURL   string
	secretKey types.SecretString
}

// NewStripeClient builds a Stripe client with the standard resilience stack.
func NewStripeClient(httpClient *http.Client, secretKey types.SecretString) *StripeClient {
	return &StripeClient{
		base:      NewBaseClient(httpClient, "stripe", DefaultRetryPolicy()),
		baseURL:   stripeAPIBase,
		secretKey: secretKey,
	}
}

// stripeSubscription is the slice of Stripe's subscription object this
// service reads. Decoding locally keeps the wire contract explicit.
type stripeSubscription struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	CurrentPeriodEnd int64  `json:"current_period_end"`
}

// CurrentPeriodEnd fetches the subscription and returns its period end in
// UTC. An empty subscription id short-circuits to nil so free-tier callers
// never touch the network.
func (s *StripeClient) CurrentPeriodEnd(ctx context.Context, subscriptionID string) (*time.Time, error) {
	if subscriptionID == "" {
		return nil, nil
	}

	url := fmt.Sprintf("%s/v1/subscriptions/%s", s.baseURL, subscriptionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected,
			"building Stripe subscription request", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey.Unmask())
	req.Header.Set("Stripe-Version", stripe.APIVersion)

	resp, err := s.base.Do(req)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamStripe,
			"fetching Stripe subscription", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewAppError(types.ErrCodeUpstreamStripe,
			fmt.Sprintf("Stripe returned %d for subscription %s", resp.StatusCode, subscriptionID), nil)
	}

	var sub stripeSubscription
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamStripe,
			"decoding Stripe subscription response", err)
	}
	if sub.CurrentPeriodEnd == 0 {
		return nil, nil
	}

	end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	return &end, nil
}
