package rbac

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/taskforge/taskforge/internal/platform/httpx"
)

// Handler serves the role/permission management API.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	coordinator *Coordinator
	resolver    *Resolver
	gate        Gate
	validator   *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, coordinator *Coordinator, resolver *Resolver, gate Gate) *Handler {
	return &Handler{
		logger:      logger,
		service:     service,
		coordinator: coordinator,
		resolver:    resolver,
		gate:        gate,
		validator:   validator.New(),
	}
}

// MountRoutes registers role and permission routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/roles", func(r chi.Router) {
		r.With(h.gate.RequirePermission(PermRoleView)).Get("/", h.listRoles)
		r.With(h.gate.RequirePermission(PermRoleManage)).Post("/", h.createRole)
		r.With(h.gate.RequirePermission(PermRoleView)).Get("/{id}", h.getRole)
		r.With(h.gate.RequirePermission(PermRoleManage)).Put("/{id}", h.updateRole)
		r.With(h.gate.RequirePermission(PermRoleManage)).Delete("/{id}", h.deleteRole)
		r.With(h.gate.RequirePermission(PermRoleView)).Get("/{id}/permissions", h.rolePermissions)
		r.With(h.gate.RequirePermission(PermRoleManage)).Put("/{id}/permissions", h.assignRolePermissions)
	})
	r.Route("/permissions", func(r chi.Router) {
		r.With(h.gate.RequirePermission(PermPermissionView)).Get("/", h.listPermissions)
		r.With(h.gate.RequirePermission(PermPermissionManage)).Post("/", h.createPermission)
		r.With(h.gate.RequirePermission(PermPermissionManage)).Delete("/{id}", h.deletePermission)
	})
}

// MountUserRoutes registers the user-scoped RBAC routes under /users.
func (h *Handler) MountUserRoutes(r chi.Router) {
	r.With(h.gate.RequirePermission(PermUserView)).Get("/{id}/roles", h.userRoles)
	r.With(h.gate.RequirePermission(PermUserAssignRole)).Put("/{id}/roles", h.assignUserRoles)
	r.With(h.gate.RequirePermission(PermUserView)).Get("/{id}/permissions", h.userPermissions)
}

type roleForm struct {
	Name        string `json:"name" validate:"required,max=120"`
	Description string `json:"description" validate:"max=500"`
}

type permissionForm struct {
	Key         string `json:"key" validate:"required,max=120"`
	Name        string `json:"name" validate:"required,max=120"`
	Module      string `json:"module" validate:"required,max=60"`
	Description string `json:"description" validate:"max=500"`
}

// idListForm deliberately has no required tag: an empty list is a valid
// request that clears every assignment.
type idListForm struct {
	IDs []int64 `json:"ids"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.fail(w, "list roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		h.fail(w, "get role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var form roleForm
	if !h.decode(w, r, &form) {
		return
	}
	role, err := h.coordinator.CreateRole(r.Context(), form.Name, form.Description)
	if err != nil {
		h.fail(w, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var form roleForm
	if !h.decode(w, r, &form) {
		return
	}
	role, err := h.coordinator.UpdateRole(r.Context(), id, form.Name, form.Description)
	if err != nil {
		h.fail(w, "update role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.coordinator.DeleteRole(r.Context(), id); err != nil {
		h.fail(w, "delete role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) rolePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	perms, err := h.service.RolePermissions(r.Context(), id)
	if err != nil {
		h.fail(w, "role permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (h *Handler) assignRolePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var form idListForm
	if !h.decode(w, r, &form) {
		return
	}
	if err := h.coordinator.AssignRolePermissions(r.Context(), id, form.IDs); err != nil {
		h.fail(w, "assign role permissions", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.fail(w, "list permissions", err)
		return
	}
	// Group by module for the management UI.
	grouped := map[string][]Permission{}
	for _, p := range perms {
		grouped[p.Module] = append(grouped[p.Module], p)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": grouped})
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	var form permissionForm
	if !h.decode(w, r, &form) {
		return
	}
	perm, err := h.coordinator.CreatePermission(r.Context(), form.Key, form.Name, form.Module, form.Description)
	if err != nil {
		h.fail(w, "create permission", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, perm)
}

func (h *Handler) deletePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.coordinator.DeletePermission(r.Context(), id); err != nil {
		h.fail(w, "delete permission", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) userRoles(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	roles, err := h.service.UserRoles(r.Context(), id)
	if err != nil {
		h.fail(w, "user roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) assignUserRoles(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var form idListForm
	if !h.decode(w, r, &form) {
		return
	}
	if err := h.coordinator.AssignUserRoles(r.Context(), id, form.IDs); err != nil {
		h.fail(w, "assign user roles", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) userPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	keys, err := h.resolver.Resolve(r.Context(), id)
	if err != nil {
		h.fail(w, "resolve permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": keys})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, form any) bool {
	if err := httpx.DecodeJSON(r, form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return false
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return 0, false
	}
	return id, true
}
