package orgs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arenahq/orgcore/internal/access"
	"github.com/arenahq/orgcore/internal/apperrors"
	"github.com/arenahq/orgcore/internal/orglock"
	"github.com/google/uuid"
)

// Manager is the only writer of organization membership. Every mutation
// takes the organization lock, re-reads state inside a store transaction,
// authorizes against that state, and then applies all of its writes or none.
type Manager struct {
	store    Store
	engine   *access.Engine
	locker   orglock.Locker
	notifier Notifier
	now      func() time.Time
	newID    func() uuid.UUID
}

// Option configures a Manager.
type Option func(*Manager)

// WithLocker replaces the in-process organization locker.
func WithLocker(l orglock.Locker) Option {
	return func(m *Manager) { m.locker = l }
}

// WithNotifier sets the domain event consumer.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager over store using engine for authorization.
func NewManager(store Store, engine *access.Engine, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		engine:   engine,
		locker:   orglock.NewLocal(),
		notifier: nopNotifier{},
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.New,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// mutate runs fn under the organization lock inside one transaction.
func (m *Manager) mutate(ctx context.Context, op string, orgID uuid.UUID, fn func(ctx context.Context, tx Tx) error) error {
	err := m.locker.WithLock(ctx, orgID, func(ctx context.Context) error {
		return m.store.InTx(ctx, fn)
	})
	return classify(op, err)
}

// read runs fn inside a transaction without taking the organization lock.
func (m *Manager) read(ctx context.Context, op string, fn func(ctx context.Context, tx Tx) error) error {
	return classify(op, m.store.InTx(ctx, fn))
}

func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, orglock.ErrBusy):
		return &apperrors.Error{Kind: apperrors.KindTransient, Op: op, Message: "organization is busy, retry later", Err: err}
	case errors.Is(err, ErrVersionConflict):
		return &apperrors.Error{Kind: apperrors.KindTransient, Op: op, Message: "organization changed, retry", Err: err}
	case errors.Is(err, ErrPendingExists):
		return &apperrors.Error{Kind: apperrors.KindConflict, Op: op, Message: "a pending record already exists", Err: err}
	case errors.Is(err, ErrAlreadyMember):
		return &apperrors.Error{Kind: apperrors.KindConflict, Op: op, Message: "user already belongs to an organization", Err: err}
	}
	return apperrors.Transient(op, err)
}

func (m *Manager) loadOrg(ctx context.Context, tx Tx, op string, orgID uuid.UUID) (*Organization, error) {
	org, err := tx.GetOrganization(ctx, orgID)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, apperrors.New(apperrors.KindNotFound, op, "organization not found")
	}
	if err != nil {
		return nil, err
	}
	return org, nil
}

// touch bumps the organization version after a mutation.
func (m *Manager) touch(ctx context.Context, tx Tx, org *Organization) error {
	expected := org.Version
	org.Version++
	org.UpdatedAt = m.now()
	return tx.UpdateOrganization(ctx, org, expected)
}

// authorize checks only the table rule for action.
func (m *Manager) authorize(op string, role access.Role, action access.Action) error {
	if !m.engine.Authorize(role, action, access.ScopeOrg) {
		return apperrors.New(apperrors.KindUnauthorized, op, "insufficient permissions")
	}
	return nil
}

// check applies the table rule and the target rules.
func (m *Manager) check(op string, req access.Request) error {
	req.Scope = access.ScopeOrg
	d := m.engine.Check(req)
	if d.Allowed {
		return nil
	}
	switch d.Reason {
	case access.ReasonSelfTarget:
		return apperrors.New(apperrors.KindInvalidTarget, op, "cannot target yourself")
	case access.ReasonOwnerTarget:
		return apperrors.New(apperrors.KindInvalidTarget, op, "the owner must transfer ownership first")
	}
	return apperrors.New(apperrors.KindUnauthorized, op, "insufficient permissions")
}

func (m *Manager) requireNoMembership(ctx context.Context, tx Tx, op string, userID uuid.UUID) error {
	membership, err := tx.MembershipOf(ctx, userID)
	if errors.Is(err, ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return &apperrors.Error{
		Kind:    apperrors.KindConflict,
		Op:      op,
		Message: "user already belongs to an organization",
		Err:     errors.New("member of " + membership.OrgID.String()),
	}
}

func (m *Manager) requireUser(ctx context.Context, tx Tx, op string, userID uuid.UUID) error {
	ok, err := tx.UserExists(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.New(apperrors.KindNotFound, op, "user %s not found", userID)
	}
	return nil
}

func (m *Manager) event(t EventType, org uuid.UUID, actor, subject uuid.UUID, meta map[string]any) Event {
	return Event{Type: t, OrgID: org, ActorID: actor, SubjectID: subject, Meta: meta, OccurredAt: m.now()}
}

// CreateOrganization creates an organization owned by actor. The actor must
// not already belong to one.
func (m *Manager) CreateOrganization(ctx context.Context, actorID uuid.UUID, name, about string) (*Organization, error) {
	const op = "orgs.CreateOrganization"

	name, err := normalizeName(name)
	if err != nil {
		return nil, apperrors.New(apperrors.KindInvalid, op, "%s", err.Error())
	}
	about, err = normalizeMessage(about, maxAboutLength)
	if err != nil {
		return nil, apperrors.New(apperrors.KindInvalid, op, "about: %s", err.Error())
	}

	now := m.now()
	org := &Organization{
		ID:              m.newID(),
		Name:            name,
		OwnerID:         actorID,
		Members:         []Member{{UserID: actorID, Role: access.RoleOwner, JoinedAt: now}},
		DefaultJoinRole: access.RolePlayer,
		About:           about,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = m.mutate(ctx, op, org.ID, func(ctx context.Context, tx Tx) error {
		if err := m.requireUser(ctx, tx, op, actorID); err != nil {
			return err
		}
		if err := m.requireNoMembership(ctx, tx, op, actorID); err != nil {
			return err
		}
		return tx.InsertOrganization(ctx, org)
	})
	if err != nil {
		return nil, err
	}

	m.emit(ctx, []Event{m.event(EventOrgCreated, org.ID, actorID, actorID, map[string]any{"name": org.Name})})
	return org.Clone(), nil
}

// GetOrganization returns a snapshot visible to members.
func (m *Manager) GetOrganization(ctx context.Context, actorID, orgID uuid.UUID) (*Organization, error) {
	const op = "orgs.GetOrganization"

	var org *Organization
	err := m.read(ctx, op, func(ctx context.Context, tx Tx) error {
		var err error
		org, err = m.loadOrg(ctx, tx, op, orgID)
		if err != nil {
			return err
		}
		return m.authorize(op, org.RoleOf(actorID), access.ActionViewMembers)
	})
	if err != nil {
		return nil, err
	}
	return org, nil
}

// ListMembers returns the organization's members in join order.
func (m *Manager) ListMembers(ctx context.Context, actorID, orgID uuid.UUID) ([]Member, error) {
	org, err := m.GetOrganization(ctx, actorID, orgID)
	if err != nil {
		return nil, err
	}
	return org.Members, nil
}

// UpdateOrganization applies patch to the organization settings.
func (m *Manager) UpdateOrganization(ctx context.Context, actorID, orgID uuid.UUID, patch OrgPatch) (*Organization, error) {
	const op = "orgs.UpdateOrganization"

	if patch.Name != nil {
		name, err := normalizeName(*patch.Name)
		if err != nil {
			return nil, apperrors.New(apperrors.KindInvalid, op, "%s", err.Error())
		}
		patch.Name = &name
	}
	if patch.About != nil {
		about, err := normalizeMessage(*patch.About, maxAboutLength)
		if err != nil {
			return nil, apperrors.New(apperrors.KindInvalid, op, "about: %s", err.Error())
		}
		patch.About = &about
	}
	if patch.DefaultJoinRole != nil {
		switch *patch.DefaultJoinRole {
		case access.RoleStaff, access.RolePlayer:
		default:
			return nil, apperrors.New(apperrors.KindInvalid, op, "default join role must be STAFF or PLAYER")
		}
	}

	var snapshot *Organization
	var changed []string
	err := m.mutate(ctx, op, orgID, func(ctx context.Context, tx Tx) error {
		org, err := m.loadOrg(ctx, tx, op, orgID)
		if err != nil {
			return err
		}
		if err := m.authorize(op, org.RoleOf(actorID), access.ActionUpdateOrg); err != nil {
			return err
		}

		if patch.Name != nil && *patch.Name != org.Name {
			org.Name = *patch.Name
			changed = append(changed, "name")
		}
		if patch.About != nil && *patch.About != org.About {
			org.About = *patch.About
			changed = append(changed, "about")
		}
		if patch.Hiring != nil && *patch.Hiring != org.Hiring {
			org.Hiring = *patch.Hiring
			changed = append(changed, "hiring")
		}
		if patch.DefaultJoinRole != nil && *patch.DefaultJoinRole != org.DefaultJoinRole {
			org.DefaultJoinRole = *patch.DefaultJoinRole
			changed = append(changed, "default_join_role")
		}
		if len(changed) > 0 {
			if err := m.touch(ctx, tx, org); err != nil {
				return err
			}
		}
		snapshot = org
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(changed) > 0 {
		m.emit(ctx, []Event{m.event(EventOrgUpdated, orgID, actorID, uuid.Nil, map[string]any{"fields": changed})})
	}
	return snapshot, nil
}

// DeleteOrganization closes pending invitations and join requests, releases
// every member, and removes the organization.
func (m *Manager) DeleteOrganization(ctx context.Context, actorID, orgID uuid.UUID) error {
	const op = "orgs.DeleteOrganization"

	var released int
	err := m.mutate(ctx, op, orgID, func(ctx context.Context, tx Tx) error {
		org, err := m.loadOrg(ctx, tx, op, orgID)
		if err != nil {
			return err
		}
		if err := m.authorize(op, org.RoleOf(actorID), access.ActionDeleteOrg); err != nil {
			return err
		}

		now := m.now()
		invites, err := tx.ListInvitations(ctx, orgID, InvitationPending)
		if err != nil {
			return err
		}
		for _, inv := range invites {
			if err := tx.ResolveInvitation(ctx, inv.ID, InvitationCancelled, now); err != nil {
				return err
			}
		}
		requests, err := tx.ListJoinRequests(ctx, orgID, JoinRequestPending)
		if err != nil {
			return err
		}
		for _, req := range requests {
			if err := tx.ResolveJoinRequest(ctx, req.ID, JoinRequestRejected, actorID, now); err != nil {
				return err
			}
		}
		released = len(org.Members)
		return tx.DeleteOrganization(ctx, orgID, now)
	})
	if err != nil {
		return err
	}

	m.emit(ctx, []Event{m.event(EventOrgDeleted, orgID, actorID, uuid.Nil, map[string]any{"released_members": released})})
	return nil
}

// Analytics summarizes roster and pending pipeline counts.
func (m *Manager) Analytics(ctx context.Context, actorID, orgID uuid.UUID) (*Analytics, error) {
	const op = "orgs.Analytics"

	var out *Analytics
	err := m.read(ctx, op, func(ctx context.Context, tx Tx) error {
		org, err := m.loadOrg(ctx, tx, op, orgID)
		if err != nil {
			return err
		}
		if err := m.authorize(op, org.RoleOf(actorID), access.ActionViewAnalytics); err != nil {
			return err
		}

		byRole := make(map[access.Role]int, len(access.Roles))
		for _, role := range access.Roles {
			byRole[role] = 0
		}
		for _, member := range org.Members {
			byRole[member.Role]++
		}
		invites, err := tx.ListInvitations(ctx, orgID, InvitationPending)
		if err != nil {
			return err
		}
		requests, err := tx.ListJoinRequests(ctx, orgID, JoinRequestPending)
		if err != nil {
			return err
		}

		out = &Analytics{
			OrgID:               orgID,
			MemberCount:         len(org.Members),
			MembersByRole:       byRole,
			PendingInvitations:  len(invites),
			PendingJoinRequests: len(requests),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CanViewAudit authorizes reading an organization's audit trail.
func (m *Manager) CanViewAudit(ctx context.Context, actorID, orgID uuid.UUID) error {
	const op = "orgs.CanViewAudit"

	return m.read(ctx, op, func(ctx context.Context, tx Tx) error {
		org, err := m.loadOrg(ctx, tx, op, orgID)
		if err != nil {
			return err
		}
		return m.authorize(op, org.RoleOf(actorID), access.ActionViewAnalytics)
	})
}

// InvariantViolation reports an organization whose member set is
// inconsistent.
type InvariantViolation struct {
	OrgID uuid.UUID
	Err   error
}

// VerifyInvariants checks every organization's ownership and membership
// invariants.
func (m *Manager) VerifyInvariants(ctx context.Context) ([]InvariantViolation, error) {
	const op = "orgs.VerifyInvariants"

	var violations []InvariantViolation
	err := m.read(ctx, op, func(ctx context.Context, tx Tx) error {
		ids, err := tx.ListOrganizationIDs(ctx)
		if err != nil {
			return err
		}
		seen := make(map[uuid.UUID]uuid.UUID)
		for _, id := range ids {
			org, err := tx.GetOrganization(ctx, id)
			if err != nil {
				return err
			}
			if err := org.CheckInvariants(); err != nil {
				violations = append(violations, InvariantViolation{OrgID: id, Err: err})
			}
			for _, member := range org.Members {
				if other, ok := seen[member.UserID]; ok {
					violations = append(violations, InvariantViolation{
						OrgID: id,
						Err:   fmt.Errorf("%w: %s also in %s", ErrDuplicateUser, member.UserID, other),
					})
					continue
				}
				seen[member.UserID] = id
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return violations, nil
}
