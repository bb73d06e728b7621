package orgs

import (
	"net/http"

	"github.com/arenahq/orgcore/internal/access"
	"github.com/arenahq/orgcore/internal/apperrors"
	"github.com/arenahq/orgcore/internal/auth"
	"github.com/google/uuid"
)

type CreateInvitationRequest struct {
	UserID  uuid.UUID `json:"user_id"`
	Role    string    `json:"role"`
	Message string    `json:"message"`
}

// HandleCreateInvitation handles POST /api/v1/orgs/{org_id}/invitations
func HandleCreateInvitation(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := urlID(w, r, "org_id", "organization")
		if !ok {
			return
		}

		var req CreateInvitationRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.UserID == uuid.Nil {
			apperrors.WriteBadRequest(w, r, "user_id is required")
			return
		}
		role, err := access.ParseRole(req.Role)
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid role")
			return
		}

		inv, err := m.CreateInvitation(r.Context(), auth.GetUserID(r.Context()), orgID, req.UserID, role, req.Message)
		if err != nil {
			apperrors.WriteAppError(w, r, err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{"invitation": inv})
	}
}

// HandleListInvitations handles GET /api/v1/orgs/{org_id}/invitations
func HandleListInvitations(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := urlID(w, r, "org_id", "organization")
		if !ok {
			return
		}

		invites, err := m.ListInvitations(r.Context(), auth.GetUserID(r.Context()), orgID)
		if err != nil {
			apperrors.WriteAppError(w, r, err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"invitations": invites})
	}
}

// HandleCancelInvitation handles DELETE /api/v1/orgs/{org_id}/invitations/{invitation_id}
func HandleCancelInvitation(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := urlID(w, r, "org_id", "organization")
		if !ok {
			return
		}
		invitationID, ok := urlID(w, r, "invitation_id", "invitation")
		if !ok {
			return
		}

		if err := m.CancelInvitation(r.Context(), auth.GetUserID(r.Context()), orgID, invitationID); err != nil {
			apperrors.WriteAppError(w, r, err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"cancelled": true})
	}
}

// HandleManageInvitation handles POST /api/v1/invitations/{invitation_id}/{accept|decline}
func HandleManageInvitation(m *Manager, decision InvitationDecision) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invitationID, ok := urlID(w, r, "invitation_id", "invitation")
		if !ok {
			return
		}

		inv, err := m.ManageInvitation(r.Context(), auth.GetUserID(r.Context()), invitationID, decision)
		if err != nil {
			apperrors.WriteAppError(w, r, err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"invitation": inv})
	}
}
