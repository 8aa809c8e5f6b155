package roles

import (
	"context"
	"errors"
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

// PermissionChecker answers point permission queries for handler gates.
type PermissionChecker interface {
	HasPermission(ctx context.Context, actor *accounts.User, key string) bool
}

// Handler wires HTTP endpoints for role and preset administration.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	checker  PermissionChecker
	validate *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, checker PermissionChecker) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		checker:  checker,
		validate: validator.New(),
	}
}

// MountRoutes registers role routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/roles", h.listRoles)
	r.Post("/roles", h.createRole)
	r.Get("/roles/{name}", h.getRole)
	r.Delete("/roles/{name}", h.deleteRole)

	r.Get("/roles/{name}/presets", h.listPresets)
	r.Post("/roles/{name}/presets", h.createPreset)
	r.Put("/presets/{id}", h.updatePreset)
	r.Delete("/presets/{id}", h.deletePreset)
}

func (h *Handler) require(r *http.Request, key string) (*accounts.User, error) {
	requestor := accounts.ActorFromContext(r.Context())
	if requestor == nil {
		return nil, httpx.ErrUnauthorized
	}
	if !h.checker.HasPermission(r.Context(), requestor, key) {
		return nil, httpx.ErrForbidden
	}
	return requestor, nil
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	if _, err := h.require(r, shared.PermSeeRolesManagement); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.logError("list roles", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	if _, err := h.require(r, shared.PermSeeRolesManagement); err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.GetRole(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.logError("get role", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

type createRoleRequest struct {
	RoleName    string   `json:"roleName" validate:"required,min=2"`
	Permissions []string `json:"permissions" validate:"omitempty,dive,required"`
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	if _, err := h.require(r, shared.PermPostRole); err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req createRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("decode request: %w", httpx.ErrValidation))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("invalid request: %w", httpx.ErrValidation))
		return
	}
	role, err := h.service.CreateRole(r.Context(), req.RoleName, req.Permissions)
	if err != nil {
		h.logError("create role", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	if _, err := h.require(r, shared.PermDeleteRole); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteRole(r.Context(), chi.URLParam(r, "name")); err != nil {
		h.logError("delete role", err)
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listPresets(w http.ResponseWriter, r *http.Request) {
	if _, err := h.require(r, shared.PermSeeRolesManagement); err != nil {
		httpx.RespondError(w, err)
		return
	}
	presets, err := h.service.ListPresets(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.logError("list presets", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, presets)
}

type presetRequest struct {
	PresetName  string   `json:"presetName" validate:"required,min=2"`
	Permissions []string `json:"permissions" validate:"omitempty,dive,required"`
}

func (h *Handler) createPreset(w http.ResponseWriter, r *http.Request) {
	if _, err := h.require(r, shared.PermPutRole); err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req presetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("decode request: %w", httpx.ErrValidation))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("invalid request: %w", httpx.ErrValidation))
		return
	}
	preset, err := h.service.CreatePreset(r.Context(), chi.URLParam(r, "name"), req.PresetName, req.Permissions)
	if err != nil {
		h.logError("create preset", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, preset)
}

func (h *Handler) updatePreset(w http.ResponseWriter, r *http.Request) {
	if _, err := h.require(r, shared.PermPutRole); err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := parsePresetID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req presetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("decode request: %w", httpx.ErrValidation))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("invalid request: %w", httpx.ErrValidation))
		return
	}
	preset, err := h.service.UpdatePreset(r.Context(), id, req.PresetName, req.Permissions)
	if err != nil {
		h.logError("update preset", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, preset)
}

func (h *Handler) deletePreset(w http.ResponseWriter, r *http.Request) {
	if _, err := h.require(r, shared.PermPutRole); err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := parsePresetID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeletePreset(r.Context(), id); err != nil {
		h.logError("delete preset", err)
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) logError(op string, err error) {
	if !errors.Is(err, httpx.ErrNotFound) && !errors.Is(err, httpx.ErrValidation) && !errors.Is(err, httpx.ErrDuplicate) {
		h.logger.Error(op, slog.Any("error", err))
	}
}

func parsePresetID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("malformed preset id %q: %w", raw, httpx.ErrValidation)
	}
	return id, nil
}
