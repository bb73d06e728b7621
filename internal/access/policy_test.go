package access

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy_EveryActionHasRoles(t *testing.T) {
	table := DefaultPolicy()

	actions := table.Actions()
	require.NotEmpty(t, actions)
	for _, action := range actions {
		rule, ok := table.Rule(action)
		require.True(t, ok)
		require.NotEmpty(t, rule.Roles, "action %s has no roles", action)
		require.True(t, rule.Scope.IsValid())
	}
}

func TestNewPolicyTable_RejectsEmptyRoleSet(t *testing.T) {
	_, err := NewPolicyTable(map[Action]Rule{
		ActionDeleteOrg: {Scope: ScopeOrg},
	})
	require.ErrorIs(t, err, ErrEmptyRoleSet)
}

func TestNewPolicyTable_RejectsUnknownRoleAndScope(t *testing.T) {
	_, err := NewPolicyTable(map[Action]Rule{
		ActionDeleteOrg: {Scope: ScopeOrg, Roles: []Role{"ADMIN"}},
	})
	require.ErrorIs(t, err, ErrInvalidRole)

	_, err = NewPolicyTable(map[Action]Rule{
		ActionDeleteOrg: {Scope: "league", Roles: []Role{RoleOwner}},
	})
	require.ErrorIs(t, err, ErrInvalidScope)
}

func TestPolicyTable_RuleReturnsCopy(t *testing.T) {
	table := DefaultPolicy()

	rule, ok := table.Rule(ActionTransferOwnership)
	require.True(t, ok)
	rule.Roles[0] = RolePlayer

	again, _ := table.Rule(ActionTransferOwnership)
	require.Equal(t, []Role{RoleOwner}, again.Roles)
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole(" co_owner ")
	require.NoError(t, err)
	require.Equal(t, RoleCoOwner, role)

	_, err = ParseRole("admin")
	require.ErrorIs(t, err, ErrUnknownRole)

	_, err = ParseRole("")
	require.ErrorIs(t, err, ErrUnknownRole)
}

func TestRole_Rank(t *testing.T) {
	for i := 0; i < len(Roles)-1; i++ {
		require.True(t, Roles[i].Outranks(Roles[i+1]), "%s should outrank %s", Roles[i], Roles[i+1])
	}
	require.True(t, RolePlayer.Outranks(RoleNone))
}
