package users

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/taskforge/taskforge/internal/platform/httpx"
	"github.com/taskforge/taskforge/internal/rbac"
	"github.com/taskforge/taskforge/internal/shared"
)

// PasswordHasher hashes plaintext passwords for storage.
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// Handler serves the user directory and account management API.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	coordinator *rbac.Coordinator
	hasher      PasswordHasher
	gate        rbac.Gate
	validator   *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, coordinator *rbac.Coordinator, hasher PasswordHasher, gate rbac.Gate) *Handler {
	return &Handler{
		logger:      logger,
		service:     service,
		coordinator: coordinator,
		hasher:      hasher,
		gate:        gate,
		validator:   validator.New(),
	}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.gate.RequirePermission(rbac.PermUserView)).Get("/", h.list)
	r.With(h.gate.RequirePermission(rbac.PermUserView)).Get("/{id}", h.get)
	r.With(h.gate.RequirePermission(rbac.PermUserCreate)).Post("/", h.create)
	r.With(h.gate.RequirePermission(rbac.PermUserUpdate)).Patch("/{id}", h.update)
	r.With(h.gate.RequirePermission(rbac.PermUserDelete)).Delete("/{id}", h.delete)
}

type createForm struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,max=120"`
	Password string `json:"password" validate:"required,min=8"`
	IsActive *bool  `json:"is_active"`
}

// updateForm carries a partial update: absent fields stay unchanged, present
// empty values clear.
type updateForm struct {
	Email    *string `json:"email" validate:"omitempty,email"`
	Name     *string `json:"name"`
	Password *string `json:"password" validate:"omitempty,min=8"`
	IsActive *bool   `json:"is_active"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	items, total, err := h.service.List(r.Context(), page, pageSize)
	if err != nil {
		h.fail(w, "list users", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"users":      items,
		"pagination": shared.NewPagination(page, pageSize, total),
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	user, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"id":         user.ID,
		"email":      user.Email,
		"name":       user.Name,
		"is_active":  user.IsActive,
		"created_at": user.CreatedAt,
		"updated_at": user.UpdatedAt,
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var form createForm
	if !h.decode(w, r, &form) {
		return
	}
	hash, err := h.hasher.Hash(form.Password)
	if err != nil {
		h.fail(w, "hash password", err)
		return
	}
	active := true
	if form.IsActive != nil {
		active = *form.IsActive
	}
	id, err := h.coordinator.CreateUser(r.Context(), rbac.CreateUserParams{
		Email:        form.Email,
		Name:         form.Name,
		PasswordHash: hash,
		IsActive:     active,
	})
	if err != nil {
		h.fail(w, "create user", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var form updateForm
	if !h.decode(w, r, &form) {
		return
	}
	params := rbac.UpdateUserParams{
		Email:    form.Email,
		Name:     form.Name,
		IsActive: form.IsActive,
	}
	if form.Password != nil {
		hash, err := h.hasher.Hash(*form.Password)
		if err != nil {
			h.fail(w, "hash password", err)
			return
		}
		params.PasswordHash = &hash
	}
	if err := h.coordinator.UpdateUser(r.Context(), id, params); err != nil {
		h.fail(w, "update user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	if err := h.coordinator.DeleteUser(r.Context(), id, principal.UserID); err != nil {
		h.fail(w, "delete user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
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

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return 0, false
	}
	return id, true
}
