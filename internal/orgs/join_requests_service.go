package orgs

import (
	"context"
	"errors"

	"github.com/arenahq/orgcore/internal/access"
	"github.com/arenahq/orgcore/internal/apperrors"
	"github.com/google/uuid"
)

// CreateJoinRequest records the actor's request to join a hiring
// organization.
func (m *Manager) CreateJoinRequest(ctx context.Context, actorID, orgID uuid.UUID, message string) (*JoinRequest, error) {
	const op = "orgs.CreateJoinRequest"

	message, err := normalizeMessage(message, maxMessageLength)
	if err != nil {
		return nil, apperrors.New(apperrors.KindInvalid, op, "message: %s", err.Error())
	}

	var req *JoinRequest
	err = m.mutate(ctx, op, orgID, func(ctx context.Context, tx Tx) error {
		org, err := m.loadOrg(ctx, tx, op, orgID)
		if err != nil {
			return err
		}
		if err := m.requireUser(ctx, tx, op, actorID); err != nil {
			return err
		}
		if err := m.requireNoMembership(ctx, tx, op, actorID); err != nil {
			return err
		}
		if !org.Hiring {
			return apperrors.New(apperrors.KindConflict, op, "organization is not accepting join requests")
		}
		pending, err := tx.HasPendingJoinRequest(ctx, orgID, actorID)
		if err != nil {
			return err
		}
		if pending {
			return apperrors.New(apperrors.KindConflict, op, "a join request is already pending")
		}

		req = &JoinRequest{
			ID:        m.newID(),
			OrgID:     orgID,
			UserID:    actorID,
			Message:   message,
			Status:    JoinRequestPending,
			CreatedAt: m.now(),
		}
		if err := tx.InsertJoinRequest(ctx, req); err != nil {
			return err
		}
		return m.touch(ctx, tx, org)
	})
	if err != nil {
		return nil, err
	}

	m.emit(ctx, []Event{m.event(EventJoinRequestCreated, orgID, actorID, actorID, map[string]any{
		"request_id": req.ID.String(),
	})})
	return req, nil
}

// ManageJoinRequest accepts or rejects a pending request. Accepting
// re-validates that the organization is hiring and that the requester is
// still unaffiliated, then adds them with the organization's default join
// role.
func (m *Manager) ManageJoinRequest(ctx context.Context, actorID, orgID, requestID uuid.UUID, decision JoinRequestDecision) (*JoinRequest, error) {
	const op = "orgs.ManageJoinRequest"

	if decision != JoinRequestAccept && decision != JoinRequestReject {
		return nil, apperrors.New(apperrors.KindInvalid, op, "decision must be accept or reject")
	}

	var req *JoinRequest
	var role access.Role
	err := m.mutate(ctx, op, orgID, func(ctx context.Context, tx Tx) error {
		org, err := m.loadOrg(ctx, tx, op, orgID)
		if err != nil {
			return err
		}
		if err := m.authorize(op, org.RoleOf(actorID), access.ActionManageJoinRequest); err != nil {
			return err
		}

		req, err = tx.GetJoinRequest(ctx, requestID)
		if errors.Is(err, ErrRecordNotFound) || (err == nil && req.OrgID != orgID) {
			return apperrors.New(apperrors.KindInvalidTarget, op, "join request not found")
		}
		if err != nil {
			return err
		}
		if req.Status != JoinRequestPending {
			return apperrors.New(apperrors.KindAlreadyResolved, op, "join request is already %s", req.Status)
		}

		now := m.now()
		if decision == JoinRequestReject {
			if err := tx.ResolveJoinRequest(ctx, req.ID, JoinRequestRejected, actorID, now); err != nil {
				return err
			}
			req.Status = JoinRequestRejected
			req.ResolvedAt = &now
			req.ResolvedBy = &actorID
			return m.touch(ctx, tx, org)
		}

		if !org.Hiring {
			return apperrors.New(apperrors.KindConflict, op, "organization is not accepting join requests")
		}
		if err := m.requireNoMembership(ctx, tx, op, req.UserID); err != nil {
			return err
		}
		role = org.DefaultJoinRole
		if role != access.RoleStaff && role != access.RolePlayer {
			role = access.RolePlayer
		}
		member := Member{UserID: req.UserID, Role: role, JoinedAt: now}
		if err := tx.InsertMember(ctx, orgID, member); err != nil {
			return err
		}
		if err := tx.ResolveJoinRequest(ctx, req.ID, JoinRequestAccepted, actorID, now); err != nil {
			return err
		}
		req.Status = JoinRequestAccepted
		req.ResolvedAt = &now
		req.ResolvedBy = &actorID
		org.Members = append(org.Members, member)
		return m.touch(ctx, tx, org)
	})
	if err != nil {
		return nil, err
	}

	if decision == JoinRequestReject {
		m.emit(ctx, []Event{m.event(EventJoinRequestRejected, orgID, actorID, req.UserID, map[string]any{
			"request_id": req.ID.String(),
		})})
	} else {
		m.emit(ctx, []Event{m.event(EventJoinRequestAccepted, orgID, actorID, req.UserID, map[string]any{
			"request_id": req.ID.String(),
			"role":       string(role),
		})})
	}
	return req, nil
}

// ListJoinRequests returns the organization's pending join requests.
func (m *Manager) ListJoinRequests(ctx context.Context, actorID, orgID uuid.UUID) ([]JoinRequest, error) {
	const op = "orgs.ListJoinRequests"

	var out []JoinRequest
	err := m.read(ctx, op, func(ctx context.Context, tx Tx) error {
		org, err := m.loadOrg(ctx, tx, op, orgID)
		if err != nil {
			return err
		}
		if err := m.authorize(op, org.RoleOf(actorID), access.ActionManageJoinRequest); err != nil {
			return err
		}
		out, err = tx.ListJoinRequests(ctx, orgID, JoinRequestPending)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
