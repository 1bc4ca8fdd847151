package rbac

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taskforge/taskforge/internal/shared"
)

type stubChecker struct {
	granted []string
	err     error
}

func (s stubChecker) Resolve(context.Context, int64) ([]string, error) {
	return s.granted, s.err
}

func gateRequest(t *testing.T, gate Gate, perm string, principal *shared.Principal) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	called := false
	handler := gate.RequirePermission(perm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if principal != nil {
		req = req.WithContext(shared.ContextWithPrincipal(req.Context(), principal))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, called
}

func TestGateAllowsGrantedPermission(t *testing.T) {
	gate := Gate{Resolver: stubChecker{granted: []string{PermUserView, PermUserCreate}}}

	rec, called := gateRequest(t, gate, PermUserCreate, &shared.Principal{UserID: 7})

	require.True(t, called)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestGateDeniesMissingPermission(t *testing.T) {
	gate := Gate{Resolver: stubChecker{granted: []string{PermUserView}}}

	rec, called := gateRequest(t, gate, PermUserDelete, &shared.Principal{UserID: 7})

	require.False(t, called)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "insufficient permission")
	require.NotContains(t, rec.Body.String(), PermUserDelete, "the denial must not reveal the required permission")
}

func TestGateRejectsAnonymousRequest(t *testing.T) {
	gate := Gate{Resolver: stubChecker{granted: []string{PermUserView}}}

	rec, called := gateRequest(t, gate, PermUserView, nil)

	require.False(t, called)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGateResolverErrorIsNotADenial(t *testing.T) {
	gate := Gate{Resolver: stubChecker{err: errors.New("redis gone")}}

	rec, called := gateRequest(t, gate, PermUserView, &shared.Principal{UserID: 7})

	require.False(t, called)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGateResolverTimeoutMapsToServiceUnavailable(t *testing.T) {
	gate := Gate{Resolver: stubChecker{err: shared.ErrStoreTimeout}}

	rec, called := gateRequest(t, gate, PermUserView, &shared.Principal{UserID: 7})

	require.False(t, called)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGateEmptyGrantSetDeniesEverything(t *testing.T) {
	gate := Gate{Resolver: stubChecker{granted: []string{}}}

	rec, called := gateRequest(t, gate, PermUserView, &shared.Principal{UserID: 7})

	require.False(t, called)
	require.Equal(t, http.StatusForbidden, rec.Code)
}
