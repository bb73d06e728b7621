package orgs

import (
	"net/http"

	"github.com/arenahq/orgcore/internal/apperrors"
	"github.com/arenahq/orgcore/internal/auth"
)

type CreateJoinRequestRequest struct {
	Message string `json:"message"`
}

// HandleCreateJoinRequest handles POST /api/v1/orgs/{org_id}/join-requests
func HandleCreateJoinRequest(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := urlID(w, r, "org_id", "organization")
		if !ok {
			return
		}

		var req CreateJoinRequestRequest
		if r.ContentLength != 0 && !decodeBody(w, r, &req) {
			return
		}

		jr, err := m.CreateJoinRequest(r.Context(), auth.GetUserID(r.Context()), orgID, req.Message)
		if err != nil {
			apperrors.WriteAppError(w, r, err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{"join_request": jr})
	}
}

// HandleListJoinRequests handles GET /api/v1/orgs/{org_id}/join-requests
func HandleListJoinRequests(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := urlID(w, r, "org_id", "organization")
		if !ok {
			return
		}

		requests, err := m.ListJoinRequests(r.Context(), auth.GetUserID(r.Context()), orgID)
		if err != nil {
			apperrors.WriteAppError(w, r, err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"join_requests": requests})
	}
}

// HandleManageJoinRequest handles POST /api/v1/orgs/{org_id}/join-requests/{request_id}/{accept|reject}
func HandleManageJoinRequest(m *Manager, decision JoinRequestDecision) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := urlID(w, r, "org_id", "organization")
		if !ok {
			return
		}
		requestID, ok := urlID(w, r, "request_id", "join request")
		if !ok {
			return
		}

		jr, err := m.ManageJoinRequest(r.Context(), auth.GetUserID(r.Context()), orgID, requestID, decision)
		if err != nil {
			apperrors.WriteAppError(w, r, err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"join_request": jr})
	}
}
