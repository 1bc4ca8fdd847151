package dashboard

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taskforge/taskforge/internal/platform/httpx"
	"github.com/taskforge/taskforge/internal/shared"
)

// ReseedEnqueuer hands a reseed off to the background worker.
type ReseedEnqueuer func(ctx context.Context, userID int64, kind string) error

// Handler serves the personal dashboard API.
type Handler struct {
	logger   *slog.Logger
	seeder   *Seeder
	enqueuer ReseedEnqueuer
}

// NewHandler builds Handler instance. enqueuer may be nil, in which case
// async reseeds are unavailable and every reseed runs in-band.
func NewHandler(logger *slog.Logger, seeder *Seeder, enqueuer ReseedEnqueuer) *Handler {
	return &Handler{logger: logger, seeder: seeder, enqueuer: enqueuer}
}

// MountRoutes registers dashboard routes. The dashboard is personal: it
// always operates on the authenticated principal, so no permission gate
// applies beyond authentication itself.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{kind}", h.show)
	r.Post("/{kind}/reseed", h.reseed)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	principal, kind, ok := h.params(w, r)
	if !ok {
		return
	}
	ids, err := h.seeder.EnsureSeeded(r.Context(), principal.UserID, kind)
	if err != nil {
		h.logger.Error("ensure dashboard seed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"kind": kind, "pinned": ids})
}

func (h *Handler) reseed(w http.ResponseWriter, r *http.Request) {
	principal, kind, ok := h.params(w, r)
	if !ok {
		return
	}
	if h.enqueuer != nil && r.URL.Query().Get("async") == "true" {
		if err := h.enqueuer(r.Context(), principal.UserID, string(kind)); err != nil {
			h.logger.Error("enqueue dashboard reseed", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}
	ids, err := h.seeder.Reseed(r.Context(), principal.UserID, kind)
	if err != nil {
		h.logger.Error("reseed dashboard", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"kind": kind, "pinned": ids})
}

func (h *Handler) params(w http.ResponseWriter, r *http.Request) (*shared.Principal, Kind, bool) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return nil, "", false
	}
	kind, err := ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httpx.RespondError(w, err)
		return nil, "", false
	}
	return principal, kind, true
}
