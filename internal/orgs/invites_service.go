package orgs

import (
	"context"
	"errors"

	"github.com/arenahq/orgcore/internal/access"
	"github.com/arenahq/orgcore/internal/apperrors"
	"github.com/google/uuid"
)

func (m *Manager) loadInvitation(ctx context.Context, tx Tx, op string, invitationID uuid.UUID) (*Invitation, error) {
	inv, err := tx.GetInvitation(ctx, invitationID)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, apperrors.New(apperrors.KindInvalidTarget, op, "invitation not found")
	}
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// CreateInvitation offers userID membership with role. The user must exist,
// must not belong to any organization and must not already hold a pending
// invitation from this one.
func (m *Manager) CreateInvitation(ctx context.Context, actorID, orgID, userID uuid.UUID, role access.Role, message string) (*Invitation, error) {
	const op = "orgs.CreateInvitation"

	if !role.IsValid() {
		return nil, apperrors.New(apperrors.KindInvalid, op, "unknown role %q", string(role))
	}
	message, err := normalizeMessage(message, maxMessageLength)
	if err != nil {
		return nil, apperrors.New(apperrors.KindInvalid, op, "message: %s", err.Error())
	}

	var inv *Invitation
	err = m.mutate(ctx, op, orgID, func(ctx context.Context, tx Tx) error {
		org, err := m.loadOrg(ctx, tx, op, orgID)
		if err != nil {
			return err
		}
		actorRole := org.RoleOf(actorID)
		if err := m.authorize(op, actorRole, access.ActionInviteMember); err != nil {
			return err
		}
		if role == access.RoleOwner {
			return apperrors.New(apperrors.KindInvalidTarget, op, "cannot invite a user as owner")
		}
		if err := m.check(op, access.Request{
			ActorID:   actorID,
			ActorRole: actorRole,
			Action:    access.ActionInviteMember,
			GrantRole: role,
		}); err != nil {
			return err
		}

		if err := m.requireUser(ctx, tx, op, userID); err != nil {
			return err
		}
		if err := m.requireNoMembership(ctx, tx, op, userID); err != nil {
			return err
		}
		pending, err := tx.HasPendingInvitation(ctx, orgID, userID)
		if err != nil {
			return err
		}
		if pending {
			return apperrors.New(apperrors.KindConflict, op, "user already has a pending invitation")
		}

		inv = &Invitation{
			ID:        m.newID(),
			OrgID:     orgID,
			UserID:    userID,
			Role:      role,
			InviterID: actorID,
			Message:   message,
			Status:    InvitationPending,
			CreatedAt: m.now(),
		}
		if err := tx.InsertInvitation(ctx, inv); err != nil {
			return err
		}
		return m.touch(ctx, tx, org)
	})
	if err != nil {
		return nil, err
	}

	m.emit(ctx, []Event{m.event(EventInviteCreated, orgID, actorID, userID, map[string]any{
		"invitation_id": inv.ID.String(),
		"role":          string(role),
	})})
	return inv, nil
}

// ManageInvitation lets the invited user accept or decline.
func (m *Manager) ManageInvitation(ctx context.Context, actorID, invitationID uuid.UUID, decision InvitationDecision) (*Invitation, error) {
	const op = "orgs.ManageInvitation"

	if decision != InvitationAccept && decision != InvitationDecline {
		return nil, apperrors.New(apperrors.KindInvalid, op, "decision must be accept or decline")
	}

	var orgID uuid.UUID
	err := m.read(ctx, op, func(ctx context.Context, tx Tx) error {
		inv, err := m.loadInvitation(ctx, tx, op, invitationID)
		if err != nil {
			return err
		}
		orgID = inv.OrgID
		return nil
	})
	if err != nil {
		return nil, err
	}

	var inv *Invitation
	err = m.mutate(ctx, op, orgID, func(ctx context.Context, tx Tx) error {
		var err error
		inv, err = m.loadInvitation(ctx, tx, op, invitationID)
		if err != nil {
			return err
		}
		if inv.UserID != actorID {
			return apperrors.New(apperrors.KindUnauthorized, op, "invitation belongs to another user")
		}
		if inv.Status != InvitationPending {
			return apperrors.New(apperrors.KindAlreadyResolved, op, "invitation is already %s", inv.Status)
		}
		org, err := m.loadOrg(ctx, tx, op, inv.OrgID)
		if err != nil {
			return err
		}

		now := m.now()
		if decision == InvitationDecline {
			inv.Status = InvitationDeclined
			inv.ResolvedAt = &now
			return tx.ResolveInvitation(ctx, inv.ID, InvitationDeclined, now)
		}

		if err := m.requireNoMembership(ctx, tx, op, actorID); err != nil {
			return err
		}
		member := Member{UserID: actorID, Role: inv.Role, JoinedAt: now}
		if err := tx.InsertMember(ctx, org.ID, member); err != nil {
			return err
		}
		if err := tx.ResolveInvitation(ctx, inv.ID, InvitationAccepted, now); err != nil {
			return err
		}
		inv.Status = InvitationAccepted
		inv.ResolvedAt = &now
		org.Members = append(org.Members, member)
		return m.touch(ctx, tx, org)
	})
	if err != nil {
		return nil, err
	}

	eventType := EventInviteAccepted
	if decision == InvitationDecline {
		eventType = EventInviteDeclined
	}
	m.emit(ctx, []Event{m.event(eventType, inv.OrgID, actorID, actorID, map[string]any{
		"invitation_id": inv.ID.String(),
		"role":          string(inv.Role),
	})})
	return inv, nil
}

// CancelInvitation withdraws a pending invitation. The original inviter or
// anyone allowed to invite may cancel.
func (m *Manager) CancelInvitation(ctx context.Context, actorID, orgID, invitationID uuid.UUID) error {
	const op = "orgs.CancelInvitation"

	var inv *Invitation
	err := m.mutate(ctx, op, orgID, func(ctx context.Context, tx Tx) error {
		org, err := m.loadOrg(ctx, tx, op, orgID)
		if err != nil {
			return err
		}
		inv, err = m.loadInvitation(ctx, tx, op, invitationID)
		if err != nil {
			return err
		}
		if inv.OrgID != orgID {
			return apperrors.New(apperrors.KindInvalidTarget, op, "invitation not found")
		}
		if inv.InviterID != actorID {
			if err := m.authorize(op, org.RoleOf(actorID), access.ActionInviteMember); err != nil {
				return err
			}
		}
		if inv.Status != InvitationPending {
			return apperrors.New(apperrors.KindAlreadyResolved, op, "invitation is already %s", inv.Status)
		}

		if err := tx.ResolveInvitation(ctx, inv.ID, InvitationCancelled, m.now()); err != nil {
			return err
		}
		return m.touch(ctx, tx, org)
	})
	if err != nil {
		return err
	}

	m.emit(ctx, []Event{m.event(EventInviteCancelled, orgID, actorID, inv.UserID, map[string]any{
		"invitation_id": inv.ID.String(),
	})})
	return nil
}

// ListInvitations returns the organization's pending invitations.
func (m *Manager) ListInvitations(ctx context.Context, actorID, orgID uuid.UUID) ([]Invitation, error) {
	const op = "orgs.ListInvitations"

	var out []Invitation
	err := m.read(ctx, op, func(ctx context.Context, tx Tx) error {
		org, err := m.loadOrg(ctx, tx, op, orgID)
		if err != nil {
			return err
		}
		if err := m.authorize(op, org.RoleOf(actorID), access.ActionInviteMember); err != nil {
			return err
		}
		out, err = tx.ListInvitations(ctx, orgID, InvitationPending)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
