package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"jobtrail/internal/core"
	"jobtrail/internal/types"
)

// QuotaEnforcer gates metered actions. Implemented by quota.Engine.
type QuotaEnforcer interface {
	TryConsume(ctx context.Context, userID string, action types.MeteredAction, amount int) (types.ConsumeResult, error)
	Refund(ctx context.Context, userID string, action types.MeteredAction, amount int) error
}

// ContactFinder resolves a work email for a contact at a company domain.
// Implemented by external.HunterClient.
type ContactFinder interface {
	FindEmail(ctx context.Context, domain, firstName, lastName string) (*types.ContactMatch, error)
}

// ConsumeRequest is the body for the service-to-service quota gate. Sibling
// services that run the metered work themselves call consume before and
// refund after a failed attempt.
type ConsumeRequest struct {
	Action string `json:"action" validate:"required"`
	Amount int    `json:"amount" validate:"gte=1,lte=100"`
}

// RefundRequest is the body for returning units after downstream failure.
type RefundRequest struct {
	Action string `json:"action" validate:"required"`
	Amount int    `json:"amount" validate:"gte=1,lte=100"`
}

// EmailLookupRequest is the body for the contact email lookup endpoint.
type EmailLookupRequest struct {
	Domain    string `json:"domain" validate:"required,fqdn"`
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
}

// ActionsHandler serves the metered-action endpoints: the generic quota gate
// and the email lookup flow it fully owns.
type ActionsHandler struct {
	enforcer  QuotaEnforcer
	contacts  ContactFinder
	validator *core.Validator
	logger    *slog.Logger
}

// NewActionsHandler creates an ActionsHandler. contacts may be nil when the
// lookup provider is not configured; the endpoint then reports upstream
// unavailability without consuming quota.
func NewActionsHandler(enforcer QuotaEnforcer, contacts ContactFinder, validator *core.Validator, logger *slog.Logger) *ActionsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActionsHandler{
		enforcer:  enforcer,
		contacts:  contacts,
		validator: validator,
		logger:    logger,
	}
}

// RegisterRoutes mounts the metered-action endpoints.
func (h *ActionsHandler) RegisterRoutes(r chi.Router) {
	r.Post("/quota/consume", h.Consume)
	r.Post("/quota/refund", h.Refund)
	r.Post("/contacts/email-lookup", h.EmailLookup)
}

// Consume handles POST /v1/quota/consume: atomically reserve units for a
// metered action. A denial is a 403 with upgrade details, not a 5xx.
func (h *ActionsHandler) Consume(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "no authenticated actor", nil))
		return
	}

	var req ConsumeRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	result, err := h.enforcer.TryConsume(r.Context(), actor.ID, types.MeteredAction(req.Action), req.Amount)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if !result.Allowed {
		core.Error(w, r, result.DeniedError())
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: result})
}

// Refund handles POST /v1/quota/refund: return units reserved for work that
// subsequently failed. Refunding more than was consumed is a silent no-op.
func (h *ActionsHandler) Refund(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "no authenticated actor", nil))
		return
	}

	var req RefundRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.enforcer.Refund(r.Context(), actor.ID, types.MeteredAction(req.Action), req.Amount); err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EmailLookup handles POST /v1/contacts/email-lookup: consume one lookup
// unit, then resolve the contact's email. If the provider fails or finds
// nothing, the unit is refunded so the user only pays for results.
func (h *ActionsHandler) EmailLookup(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "no authenticated actor", nil))
		return
	}

	var req EmailLookupRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	if h.contacts == nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeUpstreamHunter, "contact lookup is not configured", nil))
		return
	}

	result, err := h.enforcer.TryConsume(r.Context(), actor.ID, types.ActionEmailLookup, 1)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if !result.Allowed {
		core.Error(w, r, result.DeniedError())
		return
	}

	match, err := h.contacts.FindEmail(r.Context(), req.Domain, req.FirstName, req.LastName)
	if err != nil {
		h.refundLookup(r.Context(), actor.ID, err)
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: match})
}

// refundLookup returns the lookup unit after a failed provider call. The
// refund itself is best effort: the provider error is what the caller sees.
func (h *ActionsHandler) refundLookup(ctx context.Context, userID string, cause error) {
	if err := h.enforcer.Refund(ctx, userID, types.ActionEmailLookup, 1); err != nil {
		var appErr *types.AppError
		causeCode := ""
		if errors.As(cause, &appErr) {
			causeCode = string(appErr.Code)
		}
		h.logger.ErrorContext(ctx, "failed to refund email lookup unit",
			slog.String("user_id", userID),
			slog.String("cause_code", causeCode),
			slog.Any("error", err),
		)
	}
}
