package orgs

import (
	"context"
	"fmt"

	"github.com/arenahq/orgcore/internal/access"
	"github.com/arenahq/orgcore/internal/apperrors"
	"github.com/google/uuid"
)

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func (o *Organization) setRole(userID uuid.UUID, role access.Role) {
	for i := range o.Members {
		if o.Members[i].UserID == userID {
			o.Members[i].Role = role
			return
		}
	}
}

func (o *Organization) dropMember(userID uuid.UUID) {
	for i := range o.Members {
		if o.Members[i].UserID == userID {
			o.Members = append(o.Members[:i], o.Members[i+1:]...)
			return
		}
	}
}

// AddStaffs adds every user in userIDs as STAFF. The batch is applied as a
// whole: one unknown or already affiliated user rejects all of it.
func (m *Manager) AddStaffs(ctx context.Context, actorID, orgID uuid.UUID, userIDs []uuid.UUID) ([]Member, error) {
	const op = "orgs.AddStaffs"

	userIDs = dedupeIDs(userIDs)
	if len(userIDs) == 0 {
		return nil, apperrors.New(apperrors.KindInvalid, op, "at least one user id is required")
	}
	if len(userIDs) > maxBatchSize {
		return nil, apperrors.New(apperrors.KindInvalid, op, "at most %d users may be added at once", maxBatchSize)
	}

	var added []Member
	err := m.mutate(ctx, op, orgID, func(ctx context.Context, tx Tx) error {
		added = nil
		org, err := m.loadOrg(ctx, tx, op, orgID)
		if err != nil {
			return err
		}
		actorRole := org.RoleOf(actorID)
		if err := m.check(op, access.Request{
			ActorID:   actorID,
			ActorRole: actorRole,
			Action:    access.ActionInviteMember,
			GrantRole: access.RoleStaff,
		}); err != nil {
			return err
		}

		for _, userID := range userIDs {
			if err := m.requireUser(ctx, tx, op, userID); err != nil {
				return err
			}
			if err := m.requireNoMembership(ctx, tx, op, userID); err != nil {
				return err
			}
		}

		now := m.now()
		for _, userID := range userIDs {
			member := Member{UserID: userID, Role: access.RoleStaff, JoinedAt: now}
			if err := tx.InsertMember(ctx, orgID, member); err != nil {
				return err
			}
			org.Members = append(org.Members, member)
			added = append(added, member)
		}
		return m.touch(ctx, tx, org)
	})
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(added))
	for _, member := range added {
		events = append(events, m.event(EventStaffAdded, orgID, actorID, member.UserID, map[string]any{"role": string(member.Role)}))
	}
	m.emit(ctx, events)
	return added, nil
}

// RemoveMember removes memberID from the organization. Invitation and join
// request history is left untouched.
func (m *Manager) RemoveMember(ctx context.Context, actorID, orgID, memberID uuid.UUID) error {
	const op = "orgs.RemoveMember"

	var removed Member
	err := m.mutate(ctx, op, orgID, func(ctx context.Context, tx Tx) error {
		org, err := m.loadOrg(ctx, tx, op, orgID)
		if err != nil {
			return err
		}
		actorRole := org.RoleOf(actorID)
		if err := m.authorize(op, actorRole, access.ActionRemoveMember); err != nil {
			return err
		}

		target, ok := org.Member(memberID)
		if !ok {
			return apperrors.New(apperrors.KindInvalidTarget, op, "user is not a member of this organization")
		}
		if err := m.check(op, access.Request{
			ActorID:    actorID,
			ActorRole:  actorRole,
			Action:     access.ActionRemoveMember,
			TargetID:   memberID,
			TargetRole: target.Role,
		}); err != nil {
			return err
		}

		if err := tx.DeleteMember(ctx, orgID, memberID); err != nil {
			return err
		}
		org.dropMember(memberID)
		removed = target
		return m.touch(ctx, tx, org)
	})
	if err != nil {
		return err
	}

	m.emit(ctx, []Event{m.event(EventMemberRemoved, orgID, actorID, memberID, map[string]any{"role": string(removed.Role)})})
	return nil
}

// UpdateRole changes memberID's role. OWNER can only be reached through
// TransferOwnership. The member keeps their join time.
func (m *Manager) UpdateRole(ctx context.Context, actorID, orgID, memberID uuid.UUID, newRole access.Role) (*Member, error) {
	const op = "orgs.UpdateRole"

	if !newRole.IsValid() {
		return nil, apperrors.New(apperrors.KindInvalid, op, "unknown role %q", string(newRole))
	}

	var updated Member
	var previous access.Role
	err := m.mutate(ctx, op, orgID, func(ctx context.Context, tx Tx) error {
		org, err := m.loadOrg(ctx, tx, op, orgID)
		if err != nil {
			return err
		}
		actorRole := org.RoleOf(actorID)
		if err := m.authorize(op, actorRole, access.ActionUpdateRole); err != nil {
			return err
		}
		if newRole == access.RoleOwner {
			return apperrors.New(apperrors.KindInvalidTarget, op, "ownership can only be transferred")
		}

		target, ok := org.Member(memberID)
		if !ok {
			return apperrors.New(apperrors.KindInvalidTarget, op, "user is not a member of this organization")
		}
		if err := m.check(op, access.Request{
			ActorID:    actorID,
			ActorRole:  actorRole,
			Action:     access.ActionUpdateRole,
			TargetID:   memberID,
			TargetRole: target.Role,
			GrantRole:  newRole,
		}); err != nil {
			return err
		}

		previous = target.Role
		updated = target
		if target.Role == newRole {
			return nil
		}
		if err := tx.UpdateMemberRole(ctx, orgID, memberID, newRole); err != nil {
			return err
		}
		org.setRole(memberID, newRole)
		updated.Role = newRole
		return m.touch(ctx, tx, org)
	})
	if err != nil {
		return nil, err
	}

	if previous != newRole {
		m.emit(ctx, []Event{m.event(EventMemberRoleUpdated, orgID, actorID, memberID, map[string]any{
			"from": string(previous),
			"to":   string(newRole),
		})})
	}
	return &updated, nil
}

// TransferOwnership hands OWNER to newOwnerID and demotes the current owner
// to MANAGER in the same transaction.
func (m *Manager) TransferOwnership(ctx context.Context, actorID, orgID, newOwnerID uuid.UUID) (*Organization, error) {
	const op = "orgs.TransferOwnership"

	var snapshot *Organization
	err := m.mutate(ctx, op, orgID, func(ctx context.Context, tx Tx) error {
		org, err := m.loadOrg(ctx, tx, op, orgID)
		if err != nil {
			return err
		}
		actorRole := org.RoleOf(actorID)
		if err := m.authorize(op, actorRole, access.ActionTransferOwnership); err != nil {
			return err
		}

		target, ok := org.Member(newOwnerID)
		if !ok && newOwnerID != actorID {
			return apperrors.New(apperrors.KindInvalidTarget, op, "new owner must be a current member")
		}
		if err := m.check(op, access.Request{
			ActorID:    actorID,
			ActorRole:  actorRole,
			Action:     access.ActionTransferOwnership,
			TargetID:   newOwnerID,
			TargetRole: target.Role,
		}); err != nil {
			return err
		}

		if err := tx.UpdateMemberRole(ctx, orgID, actorID, access.RoleManager); err != nil {
			return err
		}
		if err := tx.UpdateMemberRole(ctx, orgID, newOwnerID, access.RoleOwner); err != nil {
			return err
		}
		org.setRole(actorID, access.RoleManager)
		org.setRole(newOwnerID, access.RoleOwner)
		org.OwnerID = newOwnerID
		if err := org.CheckInvariants(); err != nil {
			return fmt.Errorf("ownership transfer left organization inconsistent: %w", err)
		}
		if err := m.touch(ctx, tx, org); err != nil {
			return err
		}
		snapshot = org
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.emit(ctx, []Event{m.event(EventOwnershipTransferred, orgID, actorID, newOwnerID, map[string]any{
		"previous_owner": actorID.String(),
	})})
	return snapshot, nil
}

// LeaveOrganization removes the actor's own membership. The owner has to
// transfer ownership first.
func (m *Manager) LeaveOrganization(ctx context.Context, actorID, orgID uuid.UUID) error {
	const op = "orgs.LeaveOrganization"

	var role access.Role
	err := m.mutate(ctx, op, orgID, func(ctx context.Context, tx Tx) error {
		org, err := m.loadOrg(ctx, tx, op, orgID)
		if err != nil {
			return err
		}
		role = org.RoleOf(actorID)
		switch role {
		case access.RoleNone:
			return apperrors.New(apperrors.KindUnauthorized, op, "not a member of this organization")
		case access.RoleOwner:
			return apperrors.New(apperrors.KindInvalidTarget, op, "the owner must transfer ownership before leaving")
		}

		if err := tx.DeleteMember(ctx, orgID, actorID); err != nil {
			return err
		}
		org.dropMember(actorID)
		return m.touch(ctx, tx, org)
	})
	if err != nil {
		return err
	}

	m.emit(ctx, []Event{m.event(EventMemberLeft, orgID, actorID, actorID, map[string]any{"role": string(role)})})
	return nil
}
