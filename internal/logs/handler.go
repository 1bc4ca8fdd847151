package logs

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

// Log permission keys.
const (
	PermLogView   = "log:view"
	PermLogCreate = "log:create"
	PermLogDelete = "log:delete"
)

// Handler serves the work log API.
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

// MountRoutes registers log routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.gate.RequirePermission(PermLogView)).Get("/{id}", h.get)
	r.With(h.gate.RequirePermission(PermLogView)).Get("/task/{taskID}", h.listByTask)
	r.With(h.gate.RequirePermission(PermLogCreate)).Post("/", h.create)
	r.With(h.gate.RequirePermission(PermLogDelete)).Delete("/{id}", h.delete)
}

type logForm struct {
	TaskID int64  `json:"task_id" validate:"required,gt=0"`
	Body   string `json:"body" validate:"required,max=5000"`
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	entry, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get log", err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) listByTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := strconv.ParseInt(chi.URLParam(r, "taskID"), 10, 64)
	if err != nil || taskID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid task id")
		return
	}
	entries, err := h.service.ListByTask(r.Context(), taskID)
	if err != nil {
		h.fail(w, "list logs", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"logs": entries})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var form logForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	entry, err := h.service.Create(r.Context(), Log{
		TaskID:   form.TaskID,
		AuthorID: principal.UserID,
		Body:     form.Body,
	})
	if err != nil {
		h.fail(w, "create log", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, "delete log", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}
