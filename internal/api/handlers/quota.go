// Package handlers contains the HTTP handler implementations for the
// jobtrail quota API. Each handler defines the service contract it needs
// locally and receives implementations via its constructor.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"jobtrail/internal/core"
	"jobtrail/internal/types"
)

// QuotaReader serves the read paths. Implemented by quota.QueryService.
type QuotaReader interface {
	Summary(ctx context.Context, userID string) (*types.QuotaSummary, error)
	Notifications(ctx context.Context, userID string) ([]types.QuotaNotification, error)
}

// QuotaHandler serves the usage summary and notification endpoints.
type QuotaHandler struct {
	reader QuotaReader
	logger *slog.Logger
}

// NewQuotaHandler creates a QuotaHandler.
func NewQuotaHandler(reader QuotaReader, logger *slog.Logger) *QuotaHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &QuotaHandler{reader: reader, logger: logger}
}

// RegisterRoutes mounts the quota read endpoints.
func (h *QuotaHandler) RegisterRoutes(r chi.Router) {
	r.Get("/quota", h.GetSummary)
	r.Get("/quota/notifications", h.GetNotifications)
}

// GetSummary handles GET /v1/quota: the caller's usage against their tier
// limits, with the period reset date.
func (h *QuotaHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "no authenticated actor", nil))
		return
	}

	sum, err := h.reader.Summary(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: sum})
}

// GetNotifications handles GET /v1/quota/notifications: the freshly derived
// threshold notification list for the current period.
func (h *QuotaHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "no authenticated actor", nil))
		return
	}

	notifs, err := h.reader.Notifications(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: notifs})
}
