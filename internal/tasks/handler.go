package tasks

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/taskforge/taskforge/internal/platform/httpx"
	"github.com/taskforge/taskforge/internal/rbac"
	"github.com/taskforge/taskforge/internal/shared"
)

// Task permission keys.
const (
	PermTaskView   = "task:view"
	PermTaskCreate = "task:create"
	PermTaskUpdate = "task:update"
	PermTaskDelete = "task:delete"
)

// Handler serves the task API.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	gate      rbac.Gate
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, gate rbac.Gate) *Handler {
	return &Handler{logger: logger, service: service, gate: gate, validator: validator.New()}
}

// MountRoutes registers task routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.gate.RequirePermission(PermTaskView)).Get("/", h.list)
	r.With(h.gate.RequirePermission(PermTaskView)).Get("/{id}", h.get)
	r.With(h.gate.RequirePermission(PermTaskCreate)).Post("/", h.create)
	r.With(h.gate.RequirePermission(PermTaskUpdate)).Put("/{id}", h.update)
	r.With(h.gate.RequirePermission(PermTaskDelete)).Delete("/{id}", h.delete)
}

type taskForm struct {
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description" validate:"max=2000"`
	Status      string     `json:"status"`
	Deadline    *time.Time `json:"deadline"`
	AssigneeID  *int64     `json:"assignee_id"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	filters := ListFilters{
		Page:     page,
		PageSize: pageSize,
		Status:   Status(r.URL.Query().Get("status")),
		Search:   r.URL.Query().Get("search"),
	}
	if raw := r.URL.Query().Get("assignee_id"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filters.AssigneeID = &parsed
		}
	}

	items, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.fail(w, "list tasks", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"tasks":      items,
		"pagination": shared.NewPagination(page, pageSize, total),
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	task, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get task", err)
		return
	}
	httpx.JSON(w, http.StatusOK, task)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var form taskForm
	if !h.decode(w, r, &form) {
		return
	}
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	task := Task{
		Title:       form.Title,
		Description: form.Description,
		Status:      Status(form.Status),
		Deadline:    form.Deadline,
		CreatedBy:   &principal.UserID,
		AssigneeID:  form.AssigneeID,
	}
	created, err := h.service.Create(r.Context(), task)
	if err != nil {
		h.fail(w, "create task", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var form taskForm
	if !h.decode(w, r, &form) {
		return
	}
	task := Task{
		Title:       form.Title,
		Description: form.Description,
		Status:      Status(form.Status),
		Deadline:    form.Deadline,
		AssigneeID:  form.AssigneeID,
	}
	if task.Status == "" {
		task.Status = StatusOpen
	}
	if err := h.service.Update(r.Context(), id, task); err != nil {
		h.fail(w, "update task", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, "delete task", err)
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
