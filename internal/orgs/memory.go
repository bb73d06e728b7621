package orgs

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/arenahq/orgcore/internal/access"
	"github.com/arenahq/orgcore/internal/directory"
	"github.com/google/uuid"
)

// MemoryStore keeps everything in process. Transactions are serialized and
// run against a copy that replaces the live state only when fn succeeds.
type MemoryStore struct {
	mu    sync.Mutex
	state *memoryState
}

type memoryState struct {
	users        map[uuid.UUID]User
	orgs         map[uuid.UUID]*Organization
	memberOf     map[uuid.UUID]uuid.UUID
	invitations  map[uuid.UUID]*Invitation
	joinRequests map[uuid.UUID]*JoinRequest
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memoryState{
		users:        make(map[uuid.UUID]User),
		orgs:         make(map[uuid.UUID]*Organization),
		memberOf:     make(map[uuid.UUID]uuid.UUID),
		invitations:  make(map[uuid.UUID]*Invitation),
		joinRequests: make(map[uuid.UUID]*JoinRequest),
	}}
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		users:        make(map[uuid.UUID]User, len(s.users)),
		orgs:         make(map[uuid.UUID]*Organization, len(s.orgs)),
		memberOf:     make(map[uuid.UUID]uuid.UUID, len(s.memberOf)),
		invitations:  make(map[uuid.UUID]*Invitation, len(s.invitations)),
		joinRequests: make(map[uuid.UUID]*JoinRequest, len(s.joinRequests)),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.orgs {
		c.orgs[k] = v.Clone()
	}
	for k, v := range s.memberOf {
		c.memberOf[k] = v
	}
	for k, v := range s.invitations {
		inv := *v
		c.invitations[k] = &inv
	}
	for k, v := range s.joinRequests {
		req := *v
		c.joinRequests[k] = &req
	}
	return c
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.state.clone()
	if err := fn(ctx, &memoryTx{state: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// UpsertUser inserts or refreshes a user record.
func (s *MemoryStore) UpsertUser(_ context.Context, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.users[user.ID] = user
	return nil
}

// AddUser is UpsertUser for fixtures.
func (s *MemoryStore) AddUser(user User) {
	_ = s.UpsertUser(context.Background(), user)
}

// SearchCandidates implements directory.Backend.
func (s *MemoryStore) SearchCandidates(_ context.Context, filter directory.Filter) ([]directory.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matches []directory.Candidate
	for _, u := range s.state.users {
		if !strings.HasPrefix(strings.ToLower(u.Username), filter.Term) &&
			!strings.HasPrefix(strings.ToLower(u.DisplayName), filter.Term) {
			continue
		}
		_, hasOrg := s.state.memberOf[u.ID]
		if filter.HasOrg != nil && *filter.HasOrg != hasOrg {
			continue
		}
		matches = append(matches, directory.Candidate{
			UserID:      u.ID,
			Username:    u.Username,
			DisplayName: u.DisplayName,
			AvatarURL:   u.AvatarURL,
			HasOrg:      hasOrg,
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Username != matches[j].Username {
			return matches[i].Username < matches[j].Username
		}
		return matches[i].UserID.String() < matches[j].UserID.String()
	})

	if filter.Offset < 0 || filter.Offset >= len(matches) {
		return []directory.Candidate{}, nil
	}
	end := len(matches)
	if filter.Limit > 0 && filter.Offset+filter.Limit < end {
		end = filter.Offset + filter.Limit
	}
	return matches[filter.Offset:end], nil
}

type memoryTx struct {
	state *memoryState
}

func (t *memoryTx) GetOrganization(_ context.Context, orgID uuid.UUID) (*Organization, error) {
	org, ok := t.state.orgs[orgID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	c := org.Clone()
	SortMembers(c.Members)
	return c, nil
}

func (t *memoryTx) ListOrganizationIDs(_ context.Context) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(t.state.orgs))
	for id := range t.state.orgs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func (t *memoryTx) InsertOrganization(_ context.Context, org *Organization) error {
	for _, m := range org.Members {
		if _, ok := t.state.memberOf[m.UserID]; ok {
			return ErrAlreadyMember
		}
	}
	t.state.orgs[org.ID] = org.Clone()
	for _, m := range org.Members {
		t.state.memberOf[m.UserID] = org.ID
	}
	return nil
}

func (t *memoryTx) UpdateOrganization(_ context.Context, org *Organization, expectedVersion int64) error {
	stored, ok := t.state.orgs[org.ID]
	if !ok {
		return ErrRecordNotFound
	}
	if stored.Version != expectedVersion {
		return ErrVersionConflict
	}
	stored.Name = org.Name
	stored.OwnerID = org.OwnerID
	stored.Verified = org.Verified
	stored.Hiring = org.Hiring
	stored.DefaultJoinRole = org.DefaultJoinRole
	stored.About = org.About
	stored.Version = org.Version
	stored.UpdatedAt = org.UpdatedAt
	return nil
}

func (t *memoryTx) DeleteOrganization(_ context.Context, orgID uuid.UUID, _ time.Time) error {
	org, ok := t.state.orgs[orgID]
	if !ok {
		return ErrRecordNotFound
	}
	for _, m := range org.Members {
		delete(t.state.memberOf, m.UserID)
	}
	delete(t.state.orgs, orgID)
	return nil
}

func (t *memoryTx) UserExists(_ context.Context, userID uuid.UUID) (bool, error) {
	_, ok := t.state.users[userID]
	return ok, nil
}

func (t *memoryTx) MembershipOf(_ context.Context, userID uuid.UUID) (*Membership, error) {
	orgID, ok := t.state.memberOf[userID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	member, ok := t.state.orgs[orgID].Member(userID)
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &Membership{OrgID: orgID, Member: member}, nil
}

func (t *memoryTx) InsertMember(_ context.Context, orgID uuid.UUID, m Member) error {
	org, ok := t.state.orgs[orgID]
	if !ok {
		return ErrRecordNotFound
	}
	if _, taken := t.state.memberOf[m.UserID]; taken {
		return ErrAlreadyMember
	}
	org.Members = append(org.Members, m)
	t.state.memberOf[m.UserID] = orgID
	return nil
}

func (t *memoryTx) UpdateMemberRole(_ context.Context, orgID, userID uuid.UUID, role access.Role) error {
	org, ok := t.state.orgs[orgID]
	if !ok {
		return ErrRecordNotFound
	}
	if _, ok := org.Member(userID); !ok {
		return ErrRecordNotFound
	}
	org.setRole(userID, role)
	return nil
}

func (t *memoryTx) DeleteMember(_ context.Context, orgID, userID uuid.UUID) error {
	org, ok := t.state.orgs[orgID]
	if !ok {
		return ErrRecordNotFound
	}
	if _, ok := org.Member(userID); !ok {
		return ErrRecordNotFound
	}
	org.dropMember(userID)
	delete(t.state.memberOf, userID)
	return nil
}

func (t *memoryTx) GetInvitation(_ context.Context, id uuid.UUID) (*Invitation, error) {
	inv, ok := t.state.invitations[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	c := *inv
	return &c, nil
}

func (t *memoryTx) HasPendingInvitation(_ context.Context, orgID, userID uuid.UUID) (bool, error) {
	for _, inv := range t.state.invitations {
		if inv.OrgID == orgID && inv.UserID == userID && inv.Status == InvitationPending {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) InsertInvitation(_ context.Context, inv *Invitation) error {
	c := *inv
	t.state.invitations[inv.ID] = &c
	return nil
}

func (t *memoryTx) ResolveInvitation(_ context.Context, id uuid.UUID, status InvitationStatus, at time.Time) error {
	inv, ok := t.state.invitations[id]
	if !ok {
		return ErrRecordNotFound
	}
	inv.Status = status
	inv.ResolvedAt = &at
	return nil
}

func (t *memoryTx) ListInvitations(_ context.Context, orgID uuid.UUID, status InvitationStatus) ([]Invitation, error) {
	out := []Invitation{}
	for _, inv := range t.state.invitations {
		if inv.OrgID == orgID && inv.Status == status {
			out = append(out, *inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *memoryTx) GetJoinRequest(_ context.Context, id uuid.UUID) (*JoinRequest, error) {
	req, ok := t.state.joinRequests[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	c := *req
	return &c, nil
}

func (t *memoryTx) HasPendingJoinRequest(_ context.Context, orgID, userID uuid.UUID) (bool, error) {
	for _, req := range t.state.joinRequests {
		if req.OrgID == orgID && req.UserID == userID && req.Status == JoinRequestPending {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) InsertJoinRequest(_ context.Context, req *JoinRequest) error {
	c := *req
	t.state.joinRequests[req.ID] = &c
	return nil
}

func (t *memoryTx) ResolveJoinRequest(_ context.Context, id uuid.UUID, status JoinRequestStatus, by uuid.UUID, at time.Time) error {
	req, ok := t.state.joinRequests[id]
	if !ok {
		return ErrRecordNotFound
	}
	req.Status = status
	req.ResolvedAt = &at
	req.ResolvedBy = &by
	return nil
}

func (t *memoryTx) ListJoinRequests(_ context.Context, orgID uuid.UUID, status JoinRequestStatus) ([]JoinRequest, error) {
	out := []JoinRequest{}
	for _, req := range t.state.joinRequests {
		if req.OrgID == orgID && req.Status == status {
			out = append(out, *req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

var (
	_ Store             = (*MemoryStore)(nil)
	_ UserDirectory     = (*MemoryStore)(nil)
	_ directory.Backend = (*MemoryStore)(nil)
)
