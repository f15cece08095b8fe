package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"jobtrail/internal/core"
	"jobtrail/internal/types"
)

// mockJobRecorder implements JobRecorder for testing.
type mockJobRecorder struct {
	createFn func(ctx context.Context, userID, company, title string) (string, error)
	creates  int
}

func (m *mockJobRecorder) Create(ctx context.Context, userID, company, title string) (string, error) {
	m.creates++
	if m.createFn != nil {
		return m.createFn(ctx, userID, company, title)
	}
	return "job_abc123", nil
}

var _ JobRecorder = (*mockJobRecorder)(nil)

func newTestJobsHandler(slots SlotChecker, jobs JobRecorder) *JobsHandler {
	return NewJobsHandler(slots, jobs, core.NewValidator(), testLogger())
}

func TestCreateJob_Success(t *testing.T) {
	var capturedCompany string
	jobs := &mockJobRecorder{
		createFn: func(ctx context.Context, userID, company, title string) (string, error) {
			capturedCompany = company
			return "job_abc123", nil
		},
	}
	h := newTestJobsHandler(&mockEnforcer{}, jobs)

	req := makeRequest("POST", "/v1/jobs",
		CreateJobRequest{Company: "Acme Corp", Title: "Staff Engineer"},
		contextWithActor("user_1", types.RoleUser))
	rr := httptest.NewRecorder()

	h.CreateJob(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if capturedCompany != "Acme Corp" {
		t.Errorf("expected company passed through, got %q", capturedCompany)
	}

	var resp struct {
		Data CreateJobResponse `json:"data"`
	}
	parseJSONResponse(t, rr, &resp)
	if resp.Data.ID != "job_abc123" {
		t.Errorf("expected job id job_abc123, got %q", resp.Data.ID)
	}
}

func TestCreateJob_SlotLimitReached(t *testing.T) {
	slots := &mockEnforcer{
		checkJobSlotFn: func(ctx context.Context, userID string) (types.ConsumeResult, error) {
			return types.ConsumeResult{Allowed: false, Action: "job_slot", Used: 50, Limit: 50}, nil
		},
	}
	jobs := &mockJobRecorder{}
	h := newTestJobsHandler(slots, jobs)

	req := makeRequest("POST", "/v1/jobs",
		CreateJobRequest{Company: "Acme Corp", Title: "Staff Engineer"},
		contextWithActor("user_1", types.RoleUser))
	rr := httptest.NewRecorder()

	h.CreateJob(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d: %s", rr.Code, rr.Body.String())
	}
	if jobs.creates != 0 {
		t.Errorf("job must not be created past the slot limit, got %d creates", jobs.creates)
	}

	resp := decodeErrorResponse(t, rr)
	if resp.Error.Code != string(types.ErrCodeLimitJobSlots) {
		t.Errorf("expected limit_job_slots_exceeded, got %q", resp.Error.Code)
	}
	if resp.Error.Details["limit"] != float64(50) {
		t.Errorf("expected limit detail 50, got %v", resp.Error.Details["limit"])
	}
}

func TestCreateJob_FailsClosedOnCheckError(t *testing.T) {
	slots := &mockEnforcer{
		checkJobSlotFn: func(ctx context.Context, userID string) (types.ConsumeResult, error) {
			return types.ConsumeResult{}, types.NewAppError(types.ErrCodeInternalDB, "count query failed", nil)
		},
	}
	jobs := &mockJobRecorder{}
	h := newTestJobsHandler(slots, jobs)

	req := makeRequest("POST", "/v1/jobs",
		CreateJobRequest{Company: "Acme Corp", Title: "Staff Engineer"},
		contextWithActor("user_1", types.RoleUser))
	rr := httptest.NewRecorder()

	h.CreateJob(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d: %s", rr.Code, rr.Body.String())
	}
	if jobs.creates != 0 {
		t.Errorf("job must not be created when the slot check fails, got %d creates", jobs.creates)
	}
}

func TestCreateJob_RejectsMissingFields(t *testing.T) {
	h := newTestJobsHandler(&mockEnforcer{}, &mockJobRecorder{})

	req := makeRequest("POST", "/v1/jobs",
		CreateJobRequest{Company: "", Title: ""},
		contextWithActor("user_1", types.RoleUser))
	rr := httptest.NewRecorder()

	h.CreateJob(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
	}
}
