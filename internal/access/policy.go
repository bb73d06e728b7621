package access

import (
	"errors"
	"fmt"
	"sort"
)

// Scope distinguishes policy domains.
type Scope string

const (
	ScopeOrg  Scope = "org"
	ScopeTeam Scope = "team"
)

func (s Scope) IsValid() bool {
	return s == ScopeOrg || s == ScopeTeam
}

// Action is a named operation that requires authorization.
type Action string

const (
	ActionViewMembers       Action = "org.view_members"
	ActionInviteMember      Action = "org.invite_member"
	ActionManageJoinRequest Action = "org.manage_join_request"
	ActionRemoveMember      Action = "org.remove_member"
	ActionUpdateRole        Action = "org.update_role"
	ActionViewAnalytics     Action = "org.view_analytics"
	ActionUpdateOrg         Action = "org.update"
	ActionDeleteOrg         Action = "org.delete"
	ActionTransferOwnership Action = "org.transfer_ownership"

	ActionManageRoster Action = "team.manage_roster"
	ActionUpdateTeam   Action = "team.update"
	ActionDeleteTeam   Action = "team.delete"
)

var (
	ErrEmptyRoleSet = errors.New("action has no allowed roles")
	ErrInvalidScope = errors.New("action has an invalid scope")
	ErrInvalidRole  = errors.New("action allows an invalid role")
)

// Rule is the policy record for a single action.
type Rule struct {
	Scope Scope
	Roles []Role
}

// Allows reports whether role appears in the rule.
func (r Rule) Allows(role Role) bool {
	for _, allowed := range r.Roles {
		if allowed == role {
			return true
		}
	}
	return false
}

// PolicyTable maps each Action to its Rule. It is immutable once built.
type PolicyTable struct {
	rules map[Action]Rule
}

// NewPolicyTable validates and freezes rules. Every action must name a valid
// scope and at least one valid role.
func NewPolicyTable(rules map[Action]Rule) (*PolicyTable, error) {
	frozen := make(map[Action]Rule, len(rules))
	for action, rule := range rules {
		if !rule.Scope.IsValid() {
			return nil, fmt.Errorf("%s: %w", action, ErrInvalidScope)
		}
		if len(rule.Roles) == 0 {
			return nil, fmt.Errorf("%s: %w", action, ErrEmptyRoleSet)
		}
		roles := make([]Role, 0, len(rule.Roles))
		for _, role := range rule.Roles {
			if !role.IsValid() {
				return nil, fmt.Errorf("%s: %w: %q", action, ErrInvalidRole, role)
			}
			roles = append(roles, role)
		}
		frozen[action] = Rule{Scope: rule.Scope, Roles: roles}
	}
	return &PolicyTable{rules: frozen}, nil
}

// Rule returns a copy of the rule for action.
func (t *PolicyTable) Rule(action Action) (Rule, bool) {
	rule, ok := t.rules[action]
	if !ok {
		return Rule{}, false
	}
	roles := make([]Role, len(rule.Roles))
	copy(roles, rule.Roles)
	return Rule{Scope: rule.Scope, Roles: roles}, true
}

// Actions returns every action in the table in lexical order.
func (t *PolicyTable) Actions() []Action {
	out := make([]Action, 0, len(t.rules))
	for action := range t.rules {
		out = append(out, action)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DefaultRules is the shipped policy. Changing it is a deployment event.
func DefaultRules() map[Action]Rule {
	all := []Role{RoleOwner, RoleCoOwner, RoleManager, RoleStaff, RolePlayer}
	leads := []Role{RoleOwner, RoleCoOwner, RoleManager}
	owners := []Role{RoleOwner, RoleCoOwner}
	ownerOnly := []Role{RoleOwner}

	return map[Action]Rule{
		ActionViewMembers:       {Scope: ScopeOrg, Roles: all},
		ActionInviteMember:      {Scope: ScopeOrg, Roles: leads},
		ActionManageJoinRequest: {Scope: ScopeOrg, Roles: leads},
		ActionViewAnalytics:     {Scope: ScopeOrg, Roles: leads},
		ActionRemoveMember:      {Scope: ScopeOrg, Roles: owners},
		ActionUpdateRole:        {Scope: ScopeOrg, Roles: owners},
		ActionUpdateOrg:         {Scope: ScopeOrg, Roles: owners},
		ActionDeleteOrg:         {Scope: ScopeOrg, Roles: ownerOnly},
		ActionTransferOwnership: {Scope: ScopeOrg, Roles: ownerOnly},

		ActionManageRoster: {Scope: ScopeTeam, Roles: leads},
		ActionUpdateTeam:   {Scope: ScopeTeam, Roles: owners},
		ActionDeleteTeam:   {Scope: ScopeTeam, Roles: ownerOnly},
	}
}

// DefaultPolicy builds the shipped policy table.
func DefaultPolicy() *PolicyTable {
	table, err := NewPolicyTable(DefaultRules())
	if err != nil {
		panic(fmt.Sprintf("access: default policy is invalid: %v", err))
	}
	return table
}
