package directory

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandleSearch(t *testing.T) {
	backend := &fakeBackend{rows: candidates(3)}
	h := HandleSearch(NewService(backend))

	req := httptest.NewRequest(http.MethodGet, "/directory/candidates?term=play&limit=2&has_org=false", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data CandidatePage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data.Candidates, 2)
	require.True(t, body.Data.HasMore)
	require.NotNil(t, backend.last.HasOrg)
	require.False(t, *backend.last.HasOrg)
}

func TestHandleSearch_BadParams(t *testing.T) {
	h := HandleSearch(NewService(&fakeBackend{}))

	for _, query := range []string{"?term=a&page=x", "?term=a&limit=x", "?term=a&has_org=maybe", "?term=a&cursor=%21"} {
		req := httptest.NewRequest(http.MethodGet, "/directory/candidates"+query, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

func TestHandleSearch_MembershipFilter(t *testing.T) {
	backend := &fakeBackend{rows: candidates(1)}
	h := HandleSearch(NewService(backend))

	serve := func(query string) {
		req := httptest.NewRequest(http.MethodGet, "/directory/candidates?term=play"+query, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, query)
	}

	serve("")
	require.NotNil(t, backend.last.HasOrg)
	require.False(t, *backend.last.HasOrg)

	serve("&has_org=any")
	require.Nil(t, backend.last.HasOrg)

	serve("&has_org=true")
	require.NotNil(t, backend.last.HasOrg)
	require.True(t, *backend.last.HasOrg)
}

func TestHandleSearch_PageOutOfRange(t *testing.T) {
	h := HandleSearch(NewService(&fakeBackend{}))

	req := httptest.NewRequest(http.MethodGet, "/directory/candidates?term=a&page=288230376151711745", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
