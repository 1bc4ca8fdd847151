package httpx

import (
	"errors"
	"net/http"

	"github.com/taskforge/taskforge/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
//
// Authorization failures and internal errors deliberately carry no detail:
// clients never learn which permission was missing or which statement failed.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", "insufficient permission")
	case errors.Is(err, shared.ErrUnauthorized), errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "")
	case errors.Is(err, shared.ErrStoreTimeout):
		Problem(w, http.StatusServiceUnavailable, "Store Timeout", "storage temporarily unavailable")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
