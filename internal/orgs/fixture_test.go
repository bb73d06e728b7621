package orgs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/arenahq/orgcore/internal/access"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) Notify(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *eventRecorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func (r *eventRecorder) last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func (r *eventRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  *MemoryStore
	events *eventRecorder
	m      *Manager

	clockMu sync.Mutex
	now     time.Time
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		t:      t,
		ctx:    context.Background(),
		store:  NewMemoryStore(),
		events: &eventRecorder{},
		now:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	base := []Option{WithNotifier(f.events), WithClock(f.tick)}
	f.m = NewManager(f.store, access.MustNewEngine(access.DefaultPolicy()), append(base, opts...)...)
	return f
}

func (f *fixture) tick() time.Time {
	f.clockMu.Lock()
	defer f.clockMu.Unlock()
	f.now = f.now.Add(time.Second)
	return f.now
}

func (f *fixture) user(name string) uuid.UUID {
	id := uuid.New()
	f.store.AddUser(User{ID: id, Username: name, DisplayName: name})
	return id
}

// org creates an organization owned by a new user.
func (f *fixture) org(name string) (orgID, ownerID uuid.UUID) {
	f.t.Helper()
	ownerID = f.user(name + "-owner")
	org, err := f.m.CreateOrganization(f.ctx, ownerID, name, "")
	require.NoError(f.t, err)
	return org.ID, ownerID
}

// member adds a new user to orgID with role, acting as the owner.
func (f *fixture) member(orgID, ownerID uuid.UUID, name string, role access.Role) uuid.UUID {
	f.t.Helper()
	id := f.user(name)
	_, err := f.m.AddStaffs(f.ctx, ownerID, orgID, []uuid.UUID{id})
	require.NoError(f.t, err)
	if role != access.RoleStaff {
		_, err = f.m.UpdateRole(f.ctx, ownerID, orgID, id, role)
		require.NoError(f.t, err)
	}
	return id
}

func (f *fixture) snapshot(orgID uuid.UUID) *Organization {
	f.t.Helper()
	var org *Organization
	require.NoError(f.t, f.store.InTx(f.ctx, func(ctx context.Context, tx Tx) error {
		var err error
		org, err = tx.GetOrganization(ctx, orgID)
		return err
	}))
	require.NoError(f.t, org.CheckInvariants())
	return org
}

func (f *fixture) membership(userID uuid.UUID) *Membership {
	f.t.Helper()
	var out *Membership
	require.NoError(f.t, f.store.InTx(f.ctx, func(ctx context.Context, tx Tx) error {
		m, err := tx.MembershipOf(ctx, userID)
		if err == ErrRecordNotFound {
			return nil
		}
		out = m
		return err
	}))
	return out
}
