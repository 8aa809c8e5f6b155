package permissions

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stafflane/stafflane/internal/accounts"
	"github.com/stafflane/stafflane/internal/platform/httpx"
	"github.com/stafflane/stafflane/internal/shared"
)

// Handler wires HTTP endpoints for permission reads and mutations.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	resolver *Resolver
	validate *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, resolver *Resolver) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		resolver: resolver,
		validate: validator.New(),
	}
}

// MountRoutes registers permission routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/users/{id}/permissions", h.getUserPermissions)
	r.Put("/users/{id}/permissions", h.updateUserPermissions)
	r.Put("/roles/{name}/permissions", h.updateRolePermissions)
	r.Post("/roles/{name}/presets/{presetID}/apply", h.applyPreset)
}

type userPermissionsResponse struct {
	UserID    int64    `json:"userId"`
	Effective []string `json:"effective"`
}

func (h *Handler) getUserPermissions(w http.ResponseWriter, r *http.Request) {
	requestor := accounts.ActorFromContext(r.Context())
	if requestor == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if requestor.ID != id && !h.resolver.HasPermission(r.Context(), requestor, shared.PermSeeUsersManagement) {
		httpx.RespondError(w, httpx.ErrForbidden)
		return
	}

	effective, err := h.resolver.EffectivePermissionsByID(r.Context(), id)
	if err != nil {
		h.logError(r, "get user permissions", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, userPermissionsResponse{UserID: id, Effective: effective})
}

func (h *Handler) updateUserPermissions(w http.ResponseWriter, r *http.Request) {
	requestor := accounts.ActorFromContext(r.Context())
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	var patch OverridePatch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		httpx.RespondError(w, fmt.Errorf("decode patch: %w", httpx.ErrValidation))
		return
	}

	updated, err := h.service.UpdateUserPermissions(r.Context(), requestor, id, patch)
	if err != nil {
		h.logError(r, "update user permissions", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

type rolePermissionsRequest struct {
	Permissions []string `json:"permissions" validate:"required,dive,required"`
}

func (h *Handler) updateRolePermissions(w http.ResponseWriter, r *http.Request) {
	requestor := accounts.ActorFromContext(r.Context())
	roleName := chi.URLParam(r, "name")

	var req rolePermissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("decode request: %w", httpx.ErrValidation))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("invalid request: %w", httpx.ErrValidation))
		return
	}

	updated, err := h.service.UpdateRolePermissions(r.Context(), requestor, roleName, req.Permissions)
	if err != nil {
		h.logError(r, "update role permissions", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) applyPreset(w http.ResponseWriter, r *http.Request) {
	requestor := accounts.ActorFromContext(r.Context())
	roleName := chi.URLParam(r, "name")
	presetID, err := parseID(chi.URLParam(r, "presetID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	updated, err := h.service.ApplyPreset(r.Context(), requestor, roleName, presetID)
	if err != nil {
		h.logError(r, "apply preset", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) logError(r *http.Request, op string, err error) {
	if httpx.StatusOf(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("malformed identifier %q: %w", raw, httpx.ErrValidation)
	}
	return id, nil
}
