package external

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"jobtrail/internal/types"
)

// ContactFinder looks up a likely work email for a person at a company
// domain. Each successful lookup consumes one email_lookup quota unit.
type ContactFinder interface {
	FindEmail(ctx context.Context, domain, firstName, lastName string) (*types.ContactMatch, error)
}

// HunterClient implements ContactFinder against the Hunter email-finder API.
type HunterClient struct {
	base    *BaseClient
	baseURL string
	apiKey  types.SecretString
}

// NewHunterClient builds a Hunter client with the standard resilience stack.
func NewHunterClient(httpClient *http.Client, baseURL string, apiKey types.SecretString) *HunterClient {
	return &HunterClient{
		base:    NewBaseClient(httpClient, "hunter", DefaultRetryPolicy()),
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// hunterFinderResponse is the slice of Hunter's email-finder payload this
// service reads.
type hunterFinderResponse struct {
	Data struct {
		Email string `json:"email"`
		Score int    `json:"score"`
	} `json:"data"`
}

// FindEmail queries the email-finder endpoint. A response without an email
// maps to not_found_contact so the handler can refund the consumed quota.
func (h *HunterClient) FindEmail(ctx context.Context, domain, firstName, lastName string) (*types.ContactMatch, error) {
	q := url.Values{}
	q.Set("domain", domain)
	q.Set("first_name", firstName)
	q.Set("last_name", lastName)
	q.Set("api_key", h.apiKey.Unmask())

	endpoint := fmt.Sprintf("%s/v2/email-finder?%s", h.baseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected,
			"building Hunter email-finder request", err)
	}

	resp, err := h.base.Do(req)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamHunter,
			"querying Hunter email finder", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, types.NewAppError(types.ErrCodeNotFoundContact,
			fmt.Sprintf("no contact found at %s", domain), nil)
	case resp.StatusCode != http.StatusOK:
		return nil, types.NewAppError(types.ErrCodeUpstreamHunter,
			fmt.Sprintf("Hunter returned %d", resp.StatusCode), nil)
	}

	var payload hunterFinderResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamHunter,
			"decoding Hunter response", err)
	}
	if payload.Data.Email == "" {
		return nil, types.NewAppError(types.ErrCodeNotFoundContact,
			fmt.Sprintf("no contact found at %s", domain), nil)
	}

	return &types.ContactMatch{
		Email:      payload.Data.Email,
		Confidence: payload.Data.Score,
	}, nil
}
