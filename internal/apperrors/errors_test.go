package apperrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestError_IsMatchesByKind(t *testing.T) {
	err := New(KindConflict, "orgs.AddStaffs", "user %s already belongs to an organization", "u1")
	wrapped := fmt.Errorf("outer: %w", err)

	require.ErrorIs(t, wrapped, ErrConflict)
	require.NotErrorIs(t, wrapped, ErrNotFound)
	require.Equal(t, KindConflict, KindOf(wrapped))
	require.Contains(t, err.Error(), "orgs.AddStaffs")
}

func TestTransient_WrapsOnlyUnclassified(t *testing.T) {
	cause := errors.New("connection reset")
	err := Transient("orgs.RemoveMember", cause)
	require.ErrorIs(t, err, ErrTransient)
	require.ErrorIs(t, err, cause)
	require.True(t, Retryable(err))

	typed := New(KindNotFound, "orgs.Get", "organization not found")
	require.Same(t, typed, Transient("orgs.Get", typed))
	require.False(t, Retryable(typed))

	require.NoError(t, Transient("noop", nil))
}

func TestKindOf_Unclassified(t *testing.T) {
	require.Equal(t, KindTransient, KindOf(errors.New("boom")))
	require.Equal(t, Kind(""), KindOf(nil))
}

func TestWriteAppError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{New(KindUnauthorized, "op", "insufficient permissions"), http.StatusForbidden, "unauthorized"},
		{New(KindInvalidTarget, "op", "cannot target owner"), http.StatusUnprocessableEntity, "invalid_target"},
		{New(KindConflict, "op", "already a member"), http.StatusConflict, "conflict"},
		{New(KindAlreadyResolved, "op", "already resolved"), http.StatusConflict, "already_resolved"},
		{New(KindNotFound, "op", "organization not found"), http.StatusNotFound, "not_found"},
		{New(KindInvalid, "op", "bad role"), http.StatusBadRequest, "invalid_argument"},
		{errors.New("db down"), http.StatusServiceUnavailable, "transient"},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		WriteAppError(rec, req, tc.err)

		require.Equal(t, tc.status, rec.Code)
		var env ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		require.Equal(t, tc.code, env.Error.Code)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, seen)
	require.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "not-a-uuid")
	h.ServeHTTP(rec, req)
	require.NotEqual(t, "not-a-uuid", seen)
}
