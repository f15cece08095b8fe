package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"jobtrail/internal/core"
	"jobtrail/internal/types"
)

// mockCatalogAdmin implements CatalogAdmin for testing.
type mockCatalogAdmin struct {
	loadFn    func(ctx context.Context) (types.TierCatalog, error)
	replaceFn func(ctx context.Context, cat types.TierCatalog, updatedBy string) (types.TierCatalog, error)
}

func (m *mockCatalogAdmin) Load(ctx context.Context) (types.TierCatalog, error) {
	if m.loadFn != nil {
		return m.loadFn(ctx)
	}
	return types.TierCatalog{
		Tiers: map[types.Tier]types.TierLimits{
			types.TierFree:  {Jobs: 50, CoverLetters: 10, ResumeCredits: 10, EmailLookups: 2},
			types.TierPro:   {Jobs: types.Unlimited, CoverLetters: 25, ResumeCredits: 50, EmailLookups: 50},
			types.TierPower: {Jobs: types.Unlimited, CoverLetters: types.Unlimited, ResumeCredits: types.Unlimited, EmailLookups: 100},
		},
		UpdatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}, nil
}

func (m *mockCatalogAdmin) Replace(ctx context.Context, cat types.TierCatalog, updatedBy string) (types.TierCatalog, error) {
	if m.replaceFn != nil {
		return m.replaceFn(ctx, cat, updatedBy)
	}
	cat.UpdatedAt = time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	return cat, nil
}

// mockInvalidator implements CacheInvalidator for testing.
type mockInvalidator struct {
	calls int
}

func (m *mockInvalidator) Invalidate() { m.calls++ }

var (
	_ CatalogAdmin     = (*mockCatalogAdmin)(nil)
	_ CacheInvalidator = (*mockInvalidator)(nil)
)

func newTestAdminHandler(cat CatalogAdmin, cache CacheInvalidator) *AdminHandler {
	return NewAdminHandler(cat, cache, core.NewValidator(), nil, testLogger())
}

func validTierLimitsRequest() TierLimitsRequest {
	return TierLimitsRequest{
		Tiers: map[string]TierLimitsEntry{
			"free":  {Jobs: 50, CoverLetters: 10, ResumeCredits: 10, EmailLookups: 2},
			"pro":   {Jobs: -1, CoverLetters: 25, ResumeCredits: 50, EmailLookups: 50},
			"power": {Jobs: -1, CoverLetters: -1, ResumeCredits: -1, EmailLookups: 100},
		},
	}
}

func TestGetTierLimits(t *testing.T) {
	h := newTestAdminHandler(&mockCatalogAdmin{}, &mockInvalidator{})

	rr := httptest.NewRecorder()
	h.GetTierLimits(rr, makeRequest("GET", "/v1/admin/tier-limits", nil,
		contextWithActor("admin_1", types.RoleAdmin)))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Data types.TierCatalog `json:"data"`
	}
	parseJSONResponse(t, rr, &resp)
	if resp.Data.Tiers[types.TierFree].CoverLetters != 10 {
		t.Errorf("unexpected free tier cover letter limit %d", resp.Data.Tiers[types.TierFree].CoverLetters)
	}
}

func TestPutTierLimits_ReplacesAndInvalidatesCache(t *testing.T) {
	var capturedBy string
	var capturedCat types.TierCatalog
	admin := &mockCatalogAdmin{
		replaceFn: func(ctx context.Context, cat types.TierCatalog, updatedBy string) (types.TierCatalog, error) {
			capturedBy = updatedBy
			capturedCat = cat
			return cat, nil
		},
	}
	cache := &mockInvalidator{}
	h := newTestAdminHandler(admin, cache)

	req := makeRequest("PUT", "/v1/admin/tier-limits", validTierLimitsRequest(),
		contextWithActor("admin_1", types.RoleAdmin))
	rr := httptest.NewRecorder()

	h.PutTierLimits(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if capturedBy != "admin_1" {
		t.Errorf("expected updated_by admin_1, got %q", capturedBy)
	}
	if capturedCat.Tiers[types.TierPro].CoverLetters != 25 {
		t.Errorf("unexpected pro cover letter limit %d", capturedCat.Tiers[types.TierPro].CoverLetters)
	}
	if cache.calls != 1 {
		t.Errorf("expected one cache invalidation, got %d", cache.calls)
	}
}

func TestPutTierLimits_RejectsUnknownTier(t *testing.T) {
	cache := &mockInvalidator{}
	h := newTestAdminHandler(&mockCatalogAdmin{}, cache)

	body := validTierLimitsRequest()
	body.Tiers["platinum"] = TierLimitsEntry{Jobs: 1, CoverLetters: 1, ResumeCredits: 1, EmailLookups: 1}
	req := makeRequest("PUT", "/v1/admin/tier-limits", body,
		contextWithActor("admin_1", types.RoleAdmin))
	rr := httptest.NewRecorder()

	h.PutTierLimits(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeErrorResponse(t, rr)
	if resp.Error.Code != string(types.ErrCodeValidationInvalidTier) {
		t.Errorf("expected validation_invalid_tier, got %q", resp.Error.Code)
	}
	if cache.calls != 0 {
		t.Errorf("cache must not be invalidated on rejected payloads, got %d", cache.calls)
	}
}

func TestPutTierLimits_RejectsLimitBelowSentinel(t *testing.T) {
	h := newTestAdminHandler(&mockCatalogAdmin{}, &mockInvalidator{})

	body := validTierLimitsRequest()
	body.Tiers["free"] = TierLimitsEntry{Jobs: -2, CoverLetters: 10, ResumeCredits: 10, EmailLookups: 2}
	req := makeRequest("PUT", "/v1/admin/tier-limits", body,
		contextWithActor("admin_1", types.RoleAdmin))
	rr := httptest.NewRecorder()

	h.PutTierLimits(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestPutTierLimits_PropagatesStoreError(t *testing.T) {
	admin := &mockCatalogAdmin{
		replaceFn: func(ctx context.Context, cat types.TierCatalog, updatedBy string) (types.TierCatalog, error) {
			return types.TierCatalog{}, types.NewAppError(types.ErrCodeInternalDB, "replace failed", nil)
		},
	}
	cache := &mockInvalidator{}
	h := newTestAdminHandler(admin, cache)

	req := makeRequest("PUT", "/v1/admin/tier-limits", validTierLimitsRequest(),
		contextWithActor("admin_1", types.RoleAdmin))
	rr := httptest.NewRecorder()

	h.PutTierLimits(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d: %s", rr.Code, rr.Body.String())
	}
	if cache.calls != 0 {
		t.Errorf("cache must not be invalidated when the write fails, got %d", cache.calls)
	}
}
