package orgs

import (
	"net/http"

	"github.com/arenahq/orgcore/internal/access"
	"github.com/arenahq/orgcore/internal/apperrors"
	"github.com/arenahq/orgcore/internal/auth"
	"github.com/google/uuid"
)

type AddStaffsRequest struct {
	UserIDs []uuid.UUID `json:"user_ids"`
}

type UpdateMemberRoleRequest struct {
	Role string `json:"role"`
}

type TransferOwnershipRequest struct {
	NewOwnerID uuid.UUID `json:"new_owner_id"`
}

// HandleListMembers handles GET /api/v1/orgs/{org_id}/members
func HandleListMembers(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := urlID(w, r, "org_id", "organization")
		if !ok {
			return
		}

		members, err := m.ListMembers(r.Context(), auth.GetUserID(r.Context()), orgID)
		if err != nil {
			apperrors.WriteAppError(w, r, err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"members": members})
	}
}

// HandleAddStaffs handles POST /api/v1/orgs/{org_id}/members
func HandleAddStaffs(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := urlID(w, r, "org_id", "organization")
		if !ok {
			return
		}

		var req AddStaffsRequest
		if !decodeBody(w, r, &req) {
			return
		}

		added, err := m.AddStaffs(r.Context(), auth.GetUserID(r.Context()), orgID, req.UserIDs)
		if err != nil {
			apperrors.WriteAppError(w, r, err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{"members": added})
	}
}

// HandleUpdateMemberRole handles PUT /api/v1/orgs/{org_id}/members/{user_id}
func HandleUpdateMemberRole(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := urlID(w, r, "org_id", "organization")
		if !ok {
			return
		}
		memberID, ok := urlID(w, r, "user_id", "user")
		if !ok {
			return
		}

		var req UpdateMemberRoleRequest
		if !decodeBody(w, r, &req) {
			return
		}
		role, err := access.ParseRole(req.Role)
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid role")
			return
		}

		member, err := m.UpdateRole(r.Context(), auth.GetUserID(r.Context()), orgID, memberID, role)
		if err != nil {
			apperrors.WriteAppError(w, r, err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"member": member})
	}
}

// HandleRemoveMember handles DELETE /api/v1/orgs/{org_id}/members/{user_id}
func HandleRemoveMember(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := urlID(w, r, "org_id", "organization")
		if !ok {
			return
		}
		memberID, ok := urlID(w, r, "user_id", "user")
		if !ok {
			return
		}

		if err := m.RemoveMember(r.Context(), auth.GetUserID(r.Context()), orgID, memberID); err != nil {
			apperrors.WriteAppError(w, r, err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"removed": true})
	}
}

// HandleLeave handles POST /api/v1/orgs/{org_id}/leave
func HandleLeave(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := urlID(w, r, "org_id", "organization")
		if !ok {
			return
		}

		if err := m.LeaveOrganization(r.Context(), auth.GetUserID(r.Context()), orgID); err != nil {
			apperrors.WriteAppError(w, r, err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"left": true})
	}
}

// HandleTransferOwnership handles POST /api/v1/orgs/{org_id}/transfer
func HandleTransferOwnership(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := urlID(w, r, "org_id", "organization")
		if !ok {
			return
		}

		var req TransferOwnershipRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.NewOwnerID == uuid.Nil {
			apperrors.WriteBadRequest(w, r, "new_owner_id is required")
			return
		}

		org, err := m.TransferOwnership(r.Context(), auth.GetUserID(r.Context()), orgID, req.NewOwnerID)
		if err != nil {
			apperrors.WriteAppError(w, r, err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"org": org})
	}
}
