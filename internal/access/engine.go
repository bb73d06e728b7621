package access

import (
	_ "embed"
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

//go:embed model.conf
var modelText string

// Reason explains why a Decision denied a request.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonUnknownAction Reason = "unknown_action"
	ReasonScopeMismatch Reason = "scope_mismatch"
	ReasonRole          Reason = "role"
	ReasonSelfTarget    Reason = "self_target"
	ReasonOwnerTarget   Reason = "owner_target"
	ReasonHierarchy     Reason = "hierarchy"
)

// Decision is the outcome of Engine.Check.
type Decision struct {
	Allowed bool
	Reason  Reason
}

// TargetDenied reports whether the denial came from the target rather than
// from the actor's role.
func (d Decision) TargetDenied() bool {
	return d.Reason == ReasonSelfTarget || d.Reason == ReasonOwnerTarget
}

// Request describes an actor attempting an action, optionally against a
// member target and optionally assigning a role.
type Request struct {
	ActorID   uuid.UUID
	ActorRole Role
	Action    Action
	Scope     Scope

	TargetID   uuid.UUID
	TargetRole Role

	GrantRole Role
}

type decisionKey struct {
	role   Role
	action Action
}

// Engine evaluates requests against an immutable PolicyTable. It has no side
// effects and is safe for concurrent use.
type Engine struct {
	table     *PolicyTable
	decisions map[decisionKey]bool
}

// NewEngine seeds a casbin enforcer from the table and precomputes every
// (role, action) decision.
func NewEngine(table *PolicyTable) (*Engine, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy model: %w", err)
	}
	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create enforcer: %w", err)
	}

	for _, action := range table.Actions() {
		rule, _ := table.Rule(action)
		for _, role := range rule.Roles {
			if _, err := enforcer.AddPolicy(string(role), string(rule.Scope), string(action)); err != nil {
				return nil, fmt.Errorf("failed to seed policy %s/%s: %w", action, role, err)
			}
		}
	}

	decisions := make(map[decisionKey]bool)
	for _, action := range table.Actions() {
		rule, _ := table.Rule(action)
		for _, role := range Roles {
			allowed, err := enforcer.Enforce(string(role), string(rule.Scope), string(action))
			if err != nil {
				return nil, fmt.Errorf("failed to evaluate %s/%s: %w", action, role, err)
			}
			decisions[decisionKey{role: role, action: action}] = allowed
		}
	}

	return &Engine{table: table, decisions: decisions}, nil
}

// MustNewEngine is NewEngine for tables known to be valid.
func MustNewEngine(table *PolicyTable) *Engine {
	e, err := NewEngine(table)
	if err != nil {
		panic(err)
	}
	return e
}

// Table returns the policy table the engine evaluates.
func (e *Engine) Table() *PolicyTable {
	return e.table
}

// Authorize answers whether role may perform action within scope. Unknown
// actions and scope mismatches fail closed.
func (e *Engine) Authorize(role Role, action Action, scope Scope) bool {
	return e.authorize(role, action, scope) == ReasonNone
}

func (e *Engine) authorize(role Role, action Action, scope Scope) Reason {
	rule, ok := e.table.Rule(action)
	if !ok {
		log.Error().
			Str("action", string(action)).
			Str("scope", string(scope)).
			Msg("RBAC: action missing from policy table")
		return ReasonUnknownAction
	}
	if rule.Scope != scope {
		log.Warn().
			Str("action", string(action)).
			Str("scope", string(scope)).
			Str("action_scope", string(rule.Scope)).
			Msg("RBAC: scope mismatch")
		return ReasonScopeMismatch
	}
	if !e.decisions[decisionKey{role: role, action: action}] {
		return ReasonRole
	}
	return ReasonNone
}

// Check applies the table lookup and then the target rules: no self-removal
// or self-transfer, the owner is never removed or re-roled, and non-owners
// only act on and grant roles below their own.
func (e *Engine) Check(req Request) Decision {
	if reason := e.authorize(req.ActorRole, req.Action, req.Scope); reason != ReasonNone {
		return deny(req, reason)
	}

	hasTarget := req.TargetID != uuid.Nil

	switch req.Action {
	case ActionRemoveMember, ActionTransferOwnership:
		if hasTarget && req.TargetID == req.ActorID {
			return deny(req, ReasonSelfTarget)
		}
	}

	switch req.Action {
	case ActionRemoveMember, ActionUpdateRole:
		if hasTarget && req.TargetRole == RoleOwner {
			return deny(req, ReasonOwnerTarget)
		}
		if hasTarget && req.ActorRole != RoleOwner && !req.ActorRole.Outranks(req.TargetRole) {
			return deny(req, ReasonHierarchy)
		}
	}

	switch req.Action {
	case ActionUpdateRole, ActionInviteMember:
		if req.GrantRole != RoleNone && req.ActorRole != RoleOwner && !req.ActorRole.Outranks(req.GrantRole) {
			return deny(req, ReasonHierarchy)
		}
	}

	return Decision{Allowed: true}
}

func deny(req Request, reason Reason) Decision {
	log.Debug().
		Str("actor_id", req.ActorID.String()).
		Str("actor_role", req.ActorRole.String()).
		Str("action", string(req.Action)).
		Str("reason", string(reason)).
		Msg("RBAC: request denied")
	return Decision{Allowed: false, Reason: reason}
}
