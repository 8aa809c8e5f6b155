package audit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stafflane/stafflane/internal/accounts"
	"github.com/stafflane/stafflane/internal/platform/httpx"
	"github.com/stafflane/stafflane/internal/shared"
)

// PermissionChecker answers point permission queries for handler gates.
type PermissionChecker interface {
	HasPermission(ctx context.Context, actor *accounts.User, key string) bool
}

// Handler wires HTTP endpoints for change-log reporting.
type Handler struct {
	logger  *slog.Logger
	service *Service
	checker PermissionChecker
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, checker PermissionChecker) *Handler {
	return &Handler{logger: logger, service: service, checker: checker}
}

// MountRoutes registers audit routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/audit/users/{id}", h.userTimeline)
	r.Get("/audit/users/{id}/latest", h.userLatest)
	r.Get("/audit/roles/{name}", h.roleTimeline)
	r.Get("/audit/roles/{name}/latest", h.roleLatest)
}

func (h *Handler) userTimeline(w http.ResponseWriter, r *http.Request) {
	h.timeline(w, r, EntityUser, chi.URLParam(r, "id"))
}

func (h *Handler) roleTimeline(w http.ResponseWriter, r *http.Request) {
	h.timeline(w, r, EntityRole, chi.URLParam(r, "name"))
}

func (h *Handler) userLatest(w http.ResponseWriter, r *http.Request) {
	h.latest(w, r, EntityUser, chi.URLParam(r, "id"))
}

func (h *Handler) roleLatest(w http.ResponseWriter, r *http.Request) {
	h.latest(w, r, EntityRole, chi.URLParam(r, "name"))
}

func (h *Handler) requireViewer(r *http.Request) error {
	requestor := accounts.ActorFromContext(r.Context())
	if requestor == nil {
		return httpx.ErrUnauthorized
	}
	if !h.checker.HasPermission(r.Context(), requestor, shared.PermSeePermissionsLog) {
		return httpx.ErrForbidden
	}
	return nil
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request, kind EntityKind, entityID string) {
	if err := h.requireViewer(r); err != nil {
		httpx.RespondError(w, err)
		return
	}

	filters := parseFilters(r)
	filters.EntityID = entityID

	result, err := h.service.Timeline(r.Context(), kind, filters)
	if err != nil {
		h.logger.Error("audit timeline", slog.String("entity", entityID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) latest(w http.ResponseWriter, r *http.Request, kind EntityKind, entityID string) {
	if err := h.requireViewer(r); err != nil {
		httpx.RespondError(w, err)
		return
	}

	entry, err := h.service.Latest(r.Context(), kind, entityID)
	if err != nil {
		h.logger.Error("audit latest", slog.String("entity", entityID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if entry == nil {
		httpx.RespondError(w, fmt.Errorf("audit: no entries for %s: %w", entityID, httpx.ErrNotFound))
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func parseFilters(r *http.Request) TimelineFilters {
	query := r.URL.Query()
	var filters TimelineFilters
	filters.Page, _ = strconv.Atoi(query.Get("page"))
	filters.PageSize, _ = strconv.Atoi(query.Get("pageSize"))
	filters.RequestorID, _ = strconv.ParseInt(query.Get("requestor"), 10, 64)
	if raw := query.Get("from"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filters.From = t
		}
	}
	if raw := query.Get("to"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filters.To = t
		}
	}
	return filters
}
