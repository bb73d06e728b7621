package orgs

import (
	"context"
	"errors"
	"time"

	"github.com/arenahq/orgcore/internal/access"
	"github.com/google/uuid"
)

var (
	// ErrRecordNotFound is returned by Tx lookups that match nothing.
	ErrRecordNotFound = errors.New("record not found")

	// ErrAlreadyMember is returned when an insert would give a user a
	// second membership.
	ErrAlreadyMember = errors.New("user already belongs to an organization")

	// ErrVersionConflict is returned when an organization changed since it
	// was read.
	ErrVersionConflict = errors.New("organization was modified concurrently")

	// ErrPendingExists is returned when an insert would create a second
	// pending invitation or join request for the same user and organization.
	ErrPendingExists = errors.New("a pending record already exists")
)

// Store is the persistence collaborator. InTx runs fn atomically: when fn
// returns an error nothing it wrote is kept, and that error is returned as is.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// UserDirectory mirrors identity records into the store so that membership
// checks and candidate search can see them.
type UserDirectory interface {
	UpsertUser(ctx context.Context, user User) error
}

// Tx is the set of reads and writes available inside a transaction.
// GetOrganization locks the organization for the rest of the transaction.
// DeleteOrganization removes every member along with the organization.
type Tx interface {
	GetOrganization(ctx context.Context, orgID uuid.UUID) (*Organization, error)
	ListOrganizationIDs(ctx context.Context) ([]uuid.UUID, error)
	InsertOrganization(ctx context.Context, org *Organization) error
	UpdateOrganization(ctx context.Context, org *Organization, expectedVersion int64) error
	DeleteOrganization(ctx context.Context, orgID uuid.UUID, at time.Time) error

	UserExists(ctx context.Context, userID uuid.UUID) (bool, error)
	MembershipOf(ctx context.Context, userID uuid.UUID) (*Membership, error)
	InsertMember(ctx context.Context, orgID uuid.UUID, m Member) error
	UpdateMemberRole(ctx context.Context, orgID, userID uuid.UUID, role access.Role) error
	DeleteMember(ctx context.Context, orgID, userID uuid.UUID) error

	GetInvitation(ctx context.Context, id uuid.UUID) (*Invitation, error)
	HasPendingInvitation(ctx context.Context, orgID, userID uuid.UUID) (bool, error)
	InsertInvitation(ctx context.Context, inv *Invitation) error
	ResolveInvitation(ctx context.Context, id uuid.UUID, status InvitationStatus, at time.Time) error
	ListInvitations(ctx context.Context, orgID uuid.UUID, status InvitationStatus) ([]Invitation, error)

	GetJoinRequest(ctx context.Context, id uuid.UUID) (*JoinRequest, error)
	HasPendingJoinRequest(ctx context.Context, orgID, userID uuid.UUID) (bool, error)
	InsertJoinRequest(ctx context.Context, req *JoinRequest) error
	ResolveJoinRequest(ctx context.Context, id uuid.UUID, status JoinRequestStatus, by uuid.UUID, at time.Time) error
	ListJoinRequests(ctx context.Context, orgID uuid.UUID, status JoinRequestStatus) ([]JoinRequest, error)
}
