package orgs

import (
	"encoding/json"
	"net/http"

	"github.com/arenahq/orgcore/internal/access"
	"github.com/arenahq/orgcore/internal/apperrors"
	"github.com/arenahq/orgcore/internal/auth"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxBodyBytes = 64 << 10

func urlID(w http.ResponseWriter, r *http.Request, param, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		apperrors.WriteBadRequest(w, r, "Invalid "+label+" ID")
		return uuid.Nil, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		apperrors.WriteBadRequest(w, r, "Invalid request body")
		return false
	}
	return true
}

// CreateRequest is the body of POST /api/v1/orgs
type CreateRequest struct {
	Name  string `json:"name"`
	About string `json:"about"`
}

// HandleCreate handles POST /api/v1/orgs
func HandleCreate(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateRequest
		if !decodeBody(w, r, &req) {
			return
		}

		org, err := m.CreateOrganization(r.Context(), auth.GetUserID(r.Context()), req.Name, req.About)
		if err != nil {
			apperrors.WriteAppError(w, r, err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{"org": org})
	}
}

// HandleGet handles GET /api/v1/orgs/{org_id}
func HandleGet(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := urlID(w, r, "org_id", "organization")
		if !ok {
			return
		}

		org, err := m.GetOrganization(r.Context(), auth.GetUserID(r.Context()), orgID)
		if err != nil {
			apperrors.WriteAppError(w, r, err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"org": org})
	}
}

// HandleUpdate handles PATCH /api/v1/orgs/{org_id}
func HandleUpdate(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := urlID(w, r, "org_id", "organization")
		if !ok {
			return
		}

		var patch OrgPatch
		if !decodeBody(w, r, &patch) {
			return
		}
		if patch.DefaultJoinRole != nil {
			role, err := access.ParseRole(string(*patch.DefaultJoinRole))
			if err != nil {
				apperrors.WriteBadRequest(w, r, "Invalid default join role")
				return
			}
			patch.DefaultJoinRole = &role
		}

		org, err := m.UpdateOrganization(r.Context(), auth.GetUserID(r.Context()), orgID, patch)
		if err != nil {
			apperrors.WriteAppError(w, r, err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"org": org})
	}
}

// HandleDelete handles DELETE /api/v1/orgs/{org_id}
func HandleDelete(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := urlID(w, r, "org_id", "organization")
		if !ok {
			return
		}

		if err := m.DeleteOrganization(r.Context(), auth.GetUserID(r.Context()), orgID); err != nil {
			apperrors.WriteAppError(w, r, err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"deleted": true})
	}
}

// HandleAnalytics handles GET /api/v1/orgs/{org_id}/analytics
func HandleAnalytics(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := urlID(w, r, "org_id", "organization")
		if !ok {
			return
		}

		stats, err := m.Analytics(r.Context(), auth.GetUserID(r.Context()), orgID)
		if err != nil {
			apperrors.WriteAppError(w, r, err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"analytics": stats})
	}
}
