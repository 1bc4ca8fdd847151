package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/taskforge/taskforge/internal/platform/httpx"
	"github.com/taskforge/taskforge/internal/shared"
)

// Middleware loads the principal for a bearer token into the request context.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// RequirePrincipal rejects requests without a valid bearer token.
func (m Middleware) RequirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			httpx.RespondError(w, shared.ErrUnauthorized)
			return
		}
		principal, err := m.Service.LookupToken(r.Context(), token)
		if err != nil {
			if m.Logger != nil && !errors.Is(err, shared.ErrUnauthorized) {
				m.Logger.Warn("token lookup", slog.Any("error", err))
			}
			httpx.RespondError(w, shared.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
