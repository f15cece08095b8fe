package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"jobtrail/internal/core"
	"jobtrail/internal/types"
)

// CatalogAdmin reads and replaces the authoritative tier-limits document.
// Implemented by catalog.Store.
type CatalogAdmin interface {
	Load(ctx context.Context) (types.TierCatalog, error)
	Replace(ctx context.Context, cat types.TierCatalog, updatedBy string) (types.TierCatalog, error)
}

// CacheInvalidator drops the in-process catalog cache after a write.
// Implemented by catalog.CachedSource.
type CacheInvalidator interface {
	Invalidate()
}

// TierLimitsRequest is the body for replacing the tier catalog. Every known
// tier must be present; a limit of -1 means unlimited and 0 means the tier
// grants nothing for that resource.
type TierLimitsRequest struct {
	Tiers map[string]TierLimitsEntry `json:"tiers" validate:"required"`
}

// TierLimitsEntry mirrors types.TierLimits for the admin payload.
type TierLimitsEntry struct {
	Jobs          int `json:"jobs" validate:"quota_limit"`
	CoverLetters  int `json:"cover_letters" validate:"quota_limit"`
	ResumeCredits int `json:"resume_credits" validate:"quota_limit"`
	EmailLookups  int `json:"email_lookups" validate:"quota_limit"`
}

// AdminHandler serves the operator endpoints for the tier catalog.
type AdminHandler struct {
	catalog      CatalogAdmin
	cache        CacheInvalidator
	validator    *core.Validator
	logger       *slog.Logger
	requireAdmin func(http.Handler) http.Handler
}

// NewAdminHandler creates an AdminHandler. requireAdmin is the role
// middleware applied to every route in this group.
func NewAdminHandler(catalog CatalogAdmin, cache CacheInvalidator, validator *core.Validator, requireAdmin func(http.Handler) http.Handler, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{
		catalog:      catalog,
		cache:        cache,
		validator:    validator,
		logger:       logger,
		requireAdmin: requireAdmin,
	}
}

// RegisterRoutes mounts the admin endpoints behind the admin role check.
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		if h.requireAdmin != nil {
			r.Use(h.requireAdmin)
		}
		r.Get("/admin/tier-limits", h.GetTierLimits)
		r.Put("/admin/tier-limits", h.PutTierLimits)
	})
}

// GetTierLimits handles GET /v1/admin/tier-limits: the stored catalog,
// bypassing the read cache so operators see exactly what is persisted.
func (h *AdminHandler) GetTierLimits(w http.ResponseWriter, r *http.Request) {
	cat, err := h.catalog.Load(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: cat})
}

// PutTierLimits handles PUT /v1/admin/tier-limits: replace the catalog
// document wholesale and invalidate the read cache. Changes apply to the
// next quota decision; existing ledgers are untouched.
func (h *AdminHandler) PutTierLimits(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "no authenticated actor", nil))
		return
	}

	var req TierLimitsRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}
	for _, entry := range req.Tiers {
		if err := h.validator.ValidateStruct(entry); err != nil {
			core.Error(w, r, err)
			return
		}
	}

	cat := types.TierCatalog{Tiers: make(map[types.Tier]types.TierLimits, len(req.Tiers))}
	for name, entry := range req.Tiers {
		tier := types.Tier(name)
		if !tier.Valid() {
			core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidTier,
				"unknown tier in catalog payload", nil, map[string]any{"tier": name}))
			return
		}
		cat.Tiers[tier] = types.TierLimits{
			Jobs:          entry.Jobs,
			CoverLetters:  entry.CoverLetters,
			ResumeCredits: entry.ResumeCredits,
			EmailLookups:  entry.EmailLookups,
		}
	}

	stored, err := h.catalog.Replace(r.Context(), cat, actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if h.cache != nil {
		h.cache.Invalidate()
	}

	h.logger.InfoContext(r.Context(), "tier catalog replaced",
		slog.String("updated_by", actor.ID),
	)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: stored})
}
