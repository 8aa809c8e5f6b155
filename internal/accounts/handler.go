package accounts

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stafflane/stafflane/internal/platform/httpx"
	"github.com/stafflane/stafflane/internal/shared"
)

// PermissionChecker answers point permission queries for handler gates.
type PermissionChecker interface {
	HasPermission(ctx context.Context, actor *User, key string) bool
}

// Handler wires HTTP endpoints for actor profile reads.
type Handler struct {
	logger  *slog.Logger
	service *Service
	checker PermissionChecker
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, checker PermissionChecker) *Handler {
	return &Handler{logger: logger, service: service, checker: checker}
}

// MountRoutes registers account routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/users", h.listUsers)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	requestor := ActorFromContext(r.Context())
	if requestor == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	if !h.checker.HasPermission(r.Context(), requestor, shared.PermSeeUsersManagement) {
		httpx.RespondError(w, httpx.ErrForbidden)
		return
	}

	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, users)
}
