package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"jobtrail/internal/core"
	"jobtrail/internal/types"
)

// SlotChecker decides whether a user may occupy another job slot.
// Implemented by quota.Engine.
type SlotChecker interface {
	CheckJobSlot(ctx context.Context, userID string) (types.ConsumeResult, error)
}

// JobRecorder persists new job applications. Implemented by db.JobRepo.
type JobRecorder interface {
	Create(ctx context.Context, userID, company, title string) (string, error)
}

// CreateJobRequest is the body for creating a job application.
type CreateJobRequest struct {
	Company string `json:"company" validate:"required,max=200"`
	Title   string `json:"title" validate:"required,max=200"`
}

// CreateJobResponse returns the id of the newly tracked application.
type CreateJobResponse struct {
	ID string `json:"id"`
}

// JobsHandler serves the job application endpoints that interact with slot
// limits. Job slots are counted live from the database, never from a stored
// counter, so archiving or deleting a job frees its slot immediately.
type JobsHandler struct {
	slots     SlotChecker
	jobs      JobRecorder
	validator *core.Validator
	logger    *slog.Logger
}

// NewJobsHandler creates a JobsHandler.
func NewJobsHandler(slots SlotChecker, jobs JobRecorder, validator *core.Validator, logger *slog.Logger) *JobsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobsHandler{
		slots:     slots,
		jobs:      jobs,
		validator: validator,
		logger:    logger,
	}
}

// RegisterRoutes mounts the job endpoints.
func (h *JobsHandler) RegisterRoutes(r chi.Router) {
	r.Post("/jobs", h.CreateJob)
}

// CreateJob handles POST /v1/jobs: check slot availability against the
// caller's tier, then insert. The check and insert are not transactional; a
// concurrent burst can briefly exceed the cap by a slot, which the next
// check absorbs.
func (h *JobsHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "no authenticated actor", nil))
		return
	}

	var req CreateJobRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	result, err := h.slots.CheckJobSlot(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if !result.Allowed {
		core.Error(w, r, types.NewAppErrorWithDetails(
			types.ErrCodeLimitJobSlots,
			fmt.Sprintf("job slot limit reached: %d of %d in use", result.Used, result.Limit),
			nil,
			map[string]any{
				"used":  result.Used,
				"limit": result.Limit,
			},
		))
		return
	}

	id, err := h.jobs.Create(r.Context(), actor.ID, req.Company, req.Title)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: CreateJobResponse{ID: id}})
}
