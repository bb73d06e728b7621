package orgs

import (
	"fmt"
	"sync"
	"testing"

	"github.com/arenahq/orgcore/internal/access"
	"github.com/arenahq/orgcore/internal/apperrors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestConcurrentAccepts_UserJoinsExactlyOneOrganization(t *testing.T) {
	f := newFixture(t)
	invitee := f.user("invitee")

	const orgCount = 8
	invitations := make([]uuid.UUID, orgCount)
	for i := range invitations {
		orgID, owner := f.org(fmt.Sprintf("Org %d", i))
		inv, err := f.m.CreateInvitation(f.ctx, owner, orgID, invitee, access.RoleStaff, "")
		require.NoError(t, err)
		invitations[i] = inv.ID
	}

	var wg sync.WaitGroup
	errs := make(chan error, orgCount)
	for _, id := range invitations {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, err := f.m.ManageInvitation(f.ctx, invitee, id, InvitationAccept)
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)

	var ok, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case apperrors.KindOf(err) == apperrors.KindConflict:
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, orgCount-1, conflicts)
	require.NotNil(t, f.membership(invitee))
}

func TestConcurrentMutations_KeepSingleOwner(t *testing.T) {
	f := newFixture(t)
	orgID, owner := f.org("Liquid")

	const n = 12
	coOwners := make([]uuid.UUID, n)
	for i := range coOwners {
		coOwners[i] = f.member(orgID, owner, fmt.Sprintf("co%d", i), access.RoleCoOwner)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2*n)
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func(target uuid.UUID) {
			defer wg.Done()
			_, err := f.m.TransferOwnership(f.ctx, owner, orgID, target)
			errs <- err
		}(coOwners[i])
		go func() {
			defer wg.Done()
			_, err := f.m.AddStaffs(f.ctx, owner, orgID, []uuid.UUID{f.user("late")})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			require.ErrorIs(t, err, apperrors.ErrUnauthorized)
		}
	}
	org := f.snapshot(orgID)
	owners := 0
	for _, m := range org.Members {
		if m.Role == access.RoleOwner {
			owners++
		}
	}
	require.Equal(t, 1, owners)
	require.NotEqual(t, owner, org.OwnerID, "exactly one transfer succeeded")
	require.Equal(t, access.RoleManager, org.RoleOf(owner))
}
