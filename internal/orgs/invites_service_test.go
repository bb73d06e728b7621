package orgs

import (
	"testing"

	"github.com/arenahq/orgcore/internal/access"
	"github.com/arenahq/orgcore/internal/apperrors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCreateInvitation(t *testing.T) {
	f := newFixture(t)
	orgID, owner := f.org("Liquid")
	manager := f.member(orgID, owner, "mgr", access.RoleManager)
	player := f.member(orgID, owner, "player", access.RolePlayer)
	otherOrg, otherOwner := f.org("Fnatic")
	affiliated := f.member(otherOrg, otherOwner, "affiliated", access.RoleStaff)
	invitee := f.user("invitee")

	cases := []struct {
		name  string
		actor uuid.UUID
		user  uuid.UUID
		role  access.Role
		want  error
	}{
		{"player cannot invite", player, invitee, access.RoleStaff, apperrors.ErrUnauthorized},
		{"owner role is never offered", owner, invitee, access.RoleOwner, apperrors.ErrInvalidTarget},
		{"manager grants only below itself", manager, invitee, access.RoleManager, apperrors.ErrUnauthorized},
		{"unknown user", owner, uuid.New(), access.RoleStaff, apperrors.ErrNotFound},
		{"user in another org", owner, affiliated, access.RoleStaff, apperrors.ErrConflict},
		{"existing member", owner, player, access.RoleStaff, apperrors.ErrConflict},
		{"invalid role", owner, invitee, access.Role("COACH"), apperrors.ErrInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.m.CreateInvitation(f.ctx, tc.actor, orgID, tc.user, tc.role, "")
			require.ErrorIs(t, err, tc.want)
		})
	}

	inv, err := f.m.CreateInvitation(f.ctx, manager, orgID, invitee, access.RolePlayer, " welcome ")
	require.NoError(t, err)
	require.Equal(t, InvitationPending, inv.Status)
	require.Equal(t, manager, inv.InviterID)
	require.Equal(t, "welcome", inv.Message)
	require.Equal(t, EventInviteCreated, f.events.last().Type)

	_, err = f.m.CreateInvitation(f.ctx, owner, orgID, invitee, access.RoleStaff, "")
	require.ErrorIs(t, err, apperrors.ErrConflict, "one pending invitation per user")

	list, err := f.m.ListInvitations(f.ctx, manager, orgID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, inv.ID, list[0].ID)

	_, err = f.m.ListInvitations(f.ctx, player, orgID)
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestManageInvitation_AcceptRoundTrip(t *testing.T) {
	f := newFixture(t)
	orgID, owner := f.org("Liquid")
	invitee := f.user("invitee")

	inv, err := f.m.CreateInvitation(f.ctx, owner, orgID, invitee, access.RoleManager, "")
	require.NoError(t, err)

	_, err = f.m.ManageInvitation(f.ctx, owner, inv.ID, InvitationAccept)
	require.ErrorIs(t, err, apperrors.ErrUnauthorized, "only the invited user may answer")

	accepted, err := f.m.ManageInvitation(f.ctx, invitee, inv.ID, InvitationAccept)
	require.NoError(t, err)
	require.Equal(t, InvitationAccepted, accepted.Status)
	require.NotNil(t, accepted.ResolvedAt)
	require.Equal(t, access.RoleManager, f.snapshot(orgID).RoleOf(invitee))
	require.Equal(t, EventInviteAccepted, f.events.last().Type)

	_, err = f.m.ManageInvitation(f.ctx, invitee, inv.ID, InvitationDecline)
	require.ErrorIs(t, err, apperrors.ErrAlreadyResolved)

	_, err = f.m.ManageInvitation(f.ctx, invitee, uuid.New(), InvitationAccept)
	require.ErrorIs(t, err, apperrors.ErrInvalidTarget)

	_, err = f.m.ManageInvitation(f.ctx, invitee, inv.ID, InvitationDecision("maybe"))
	require.ErrorIs(t, err, apperrors.ErrInvalid)
}

func TestManageInvitation_Decline(t *testing.T) {
	f := newFixture(t)
	orgID, owner := f.org("Liquid")
	invitee := f.user("invitee")
	inv, err := f.m.CreateInvitation(f.ctx, owner, orgID, invitee, access.RoleStaff, "")
	require.NoError(t, err)

	declined, err := f.m.ManageInvitation(f.ctx, invitee, inv.ID, InvitationDecline)
	require.NoError(t, err)
	require.Equal(t, InvitationDeclined, declined.Status)
	require.Nil(t, f.membership(invitee))
	require.Equal(t, EventInviteDeclined, f.events.last().Type)

	_, err = f.m.CreateInvitation(f.ctx, owner, orgID, invitee, access.RoleStaff, "")
	require.NoError(t, err, "a declined invitation no longer blocks a new one")
}

func TestManageInvitation_AcceptAfterJoiningElsewhere(t *testing.T) {
	f := newFixture(t)
	orgA, ownerA := f.org("Liquid")
	orgB, ownerB := f.org("Fnatic")
	invitee := f.user("invitee")

	invA, err := f.m.CreateInvitation(f.ctx, ownerA, orgA, invitee, access.RoleStaff, "")
	require.NoError(t, err)
	invB, err := f.m.CreateInvitation(f.ctx, ownerB, orgB, invitee, access.RoleStaff, "")
	require.NoError(t, err)

	_, err = f.m.ManageInvitation(f.ctx, invitee, invA.ID, InvitationAccept)
	require.NoError(t, err)

	_, err = f.m.ManageInvitation(f.ctx, invitee, invB.ID, InvitationAccept)
	require.ErrorIs(t, err, apperrors.ErrConflict)

	pending, err := f.m.ListInvitations(f.ctx, ownerB, orgB)
	require.NoError(t, err)
	require.Len(t, pending, 1, "a failed accept leaves the invitation pending")
	require.Equal(t, orgA, f.membership(invitee).OrgID)
}

func TestCancelInvitation(t *testing.T) {
	f := newFixture(t)
	orgID, owner := f.org("Liquid")
	manager := f.member(orgID, owner, "mgr", access.RoleManager)
	staff := f.member(orgID, owner, "staff", access.RoleStaff)
	otherOrg, otherOwner := f.org("Fnatic")

	inv, err := f.m.CreateInvitation(f.ctx, manager, orgID, f.user("invitee"), access.RoleStaff, "")
	require.NoError(t, err)
	foreign, err := f.m.CreateInvitation(f.ctx, otherOwner, otherOrg, f.user("other"), access.RoleStaff, "")
	require.NoError(t, err)

	require.ErrorIs(t, f.m.CancelInvitation(f.ctx, staff, orgID, inv.ID), apperrors.ErrUnauthorized)
	require.ErrorIs(t, f.m.CancelInvitation(f.ctx, owner, orgID, uuid.New()), apperrors.ErrInvalidTarget)
	require.ErrorIs(t, f.m.CancelInvitation(f.ctx, owner, orgID, foreign.ID), apperrors.ErrInvalidTarget)

	require.NoError(t, f.m.CancelInvitation(f.ctx, manager, orgID, inv.ID))
	require.Equal(t, EventInviteCancelled, f.events.last().Type)
	require.ErrorIs(t, f.m.CancelInvitation(f.ctx, manager, orgID, inv.ID), apperrors.ErrAlreadyResolved)
	require.ErrorIs(t, f.m.CancelInvitation(f.ctx, owner, orgID, inv.ID), apperrors.ErrAlreadyResolved)

	inv2, err := f.m.CreateInvitation(f.ctx, owner, orgID, f.user("invitee2"), access.RoleStaff, "")
	require.NoError(t, err)
	require.NoError(t, f.m.CancelInvitation(f.ctx, manager, orgID, inv2.ID), "any inviter-role holder may cancel")
}
