package orgs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/arenahq/orgcore/internal/access"
	"github.com/google/uuid"
)

// Organization is the aggregate owning a member set.
type Organization struct {
	ID              uuid.UUID   `json:"id"`
	Name            string      `json:"name"`
	OwnerID         uuid.UUID   `json:"owner_id"`
	Members         []Member    `json:"members"`
	Verified        bool        `json:"verified"`
	Hiring          bool        `json:"hiring"`
	DefaultJoinRole access.Role `json:"default_join_role"`
	About           string      `json:"about"`
	Version         int64       `json:"version"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Member is a user's membership in an organization.
type Member struct {
	UserID   uuid.UUID   `json:"user_id"`
	Role     access.Role `json:"role"`
	JoinedAt time.Time   `json:"joined_at"`
}

// Membership locates a user's single organization.
type Membership struct {
	OrgID uuid.UUID
	Member
}

// User is the directory record the core needs about a platform user.
type User struct {
	ID          uuid.UUID
	Username    string
	DisplayName string
	AvatarURL   string
}

// RoleOf returns the role userID holds, or access.RoleNone.
func (o *Organization) RoleOf(userID uuid.UUID) access.Role {
	m, ok := o.Member(userID)
	if !ok {
		return access.RoleNone
	}
	return m.Role
}

// Member looks up a member by user id.
func (o *Organization) Member(userID uuid.UUID) (Member, bool) {
	for _, m := range o.Members {
		if m.UserID == userID {
			return m, true
		}
	}
	return Member{}, false
}

// Clone returns a deep copy.
func (o *Organization) Clone() *Organization {
	c := *o
	c.Members = make([]Member, len(o.Members))
	copy(c.Members, o.Members)
	return &c
}

// SortMembers orders members by join time, then user id.
func SortMembers(members []Member) {
	sort.SliceStable(members, func(i, j int) bool {
		if !members[i].JoinedAt.Equal(members[j].JoinedAt) {
			return members[i].JoinedAt.Before(members[j].JoinedAt)
		}
		return members[i].UserID.String() < members[j].UserID.String()
	})
}

var (
	ErrNoOwner        = errors.New("organization has no owner member")
	ErrMultipleOwners = errors.New("organization has more than one owner member")
	ErrOwnerMismatch  = errors.New("owner member does not match owner id")
	ErrDuplicateUser  = errors.New("user appears twice in member set")
)

// CheckInvariants verifies that exactly one member is OWNER, that it matches
// OwnerID, and that members are unique.
func (o *Organization) CheckInvariants() error {
	seen := make(map[uuid.UUID]bool, len(o.Members))
	var owners []uuid.UUID
	for _, m := range o.Members {
		if seen[m.UserID] {
			return fmt.Errorf("%w: %s", ErrDuplicateUser, m.UserID)
		}
		seen[m.UserID] = true
		if m.Role == access.RoleOwner {
			owners = append(owners, m.UserID)
		}
	}
	switch {
	case len(owners) == 0:
		return ErrNoOwner
	case len(owners) > 1:
		return ErrMultipleOwners
	case owners[0] != o.OwnerID:
		return ErrOwnerMismatch
	}
	return nil
}

// InvitationStatus is the lifecycle state of an Invitation.
type InvitationStatus string

const (
	InvitationPending   InvitationStatus = "PENDING"
	InvitationAccepted  InvitationStatus = "ACCEPTED"
	InvitationDeclined  InvitationStatus = "DECLINED"
	InvitationCancelled InvitationStatus = "CANCELLED"
)

// Invitation is an organization-initiated offer of membership.
type Invitation struct {
	ID         uuid.UUID        `json:"id"`
	OrgID      uuid.UUID        `json:"org_id"`
	UserID     uuid.UUID        `json:"user_id"`
	Role       access.Role      `json:"role"`
	InviterID  uuid.UUID        `json:"inviter_id"`
	Message    string           `json:"message,omitempty"`
	Status     InvitationStatus `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
	ResolvedAt *time.Time       `json:"resolved_at,omitempty"`
}

// InvitationDecision is the invited user's answer.
type InvitationDecision string

const (
	InvitationAccept  InvitationDecision = "accept"
	InvitationDecline InvitationDecision = "decline"
)

// JoinRequestStatus is the lifecycle state of a JoinRequest.
type JoinRequestStatus string

const (
	JoinRequestPending  JoinRequestStatus = "PENDING"
	JoinRequestAccepted JoinRequestStatus = "ACCEPTED"
	JoinRequestRejected JoinRequestStatus = "REJECTED"
)

// JoinRequest is a user-initiated request to join an organization.
type JoinRequest struct {
	ID         uuid.UUID         `json:"id"`
	OrgID      uuid.UUID         `json:"org_id"`
	UserID     uuid.UUID         `json:"user_id"`
	Message    string            `json:"message,omitempty"`
	Status     JoinRequestStatus `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
	ResolvedAt *time.Time        `json:"resolved_at,omitempty"`
	ResolvedBy *uuid.UUID        `json:"resolved_by,omitempty"`
}

// JoinRequestDecision is a staff answer to a join request.
type JoinRequestDecision string

const (
	JoinRequestAccept JoinRequestDecision = "accept"
	JoinRequestReject JoinRequestDecision = "reject"
)

// OrgPatch lists the settings UpdateOrganization may change. Nil fields are
// left alone.
type OrgPatch struct {
	Name            *string      `json:"name,omitempty"`
	About           *string      `json:"about,omitempty"`
	Hiring          *bool        `json:"hiring,omitempty"`
	DefaultJoinRole *access.Role `json:"default_join_role,omitempty"`
}

// Analytics summarizes an organization's roster and pipeline.
type Analytics struct {
	OrgID               uuid.UUID           `json:"org_id"`
	MemberCount         int                 `json:"member_count"`
	MembersByRole       map[access.Role]int `json:"members_by_role"`
	PendingInvitations  int                 `json:"pending_invitations"`
	PendingJoinRequests int                 `json:"pending_join_requests"`
}

const (
	maxNameLength    = 64
	minNameLength    = 2
	maxMessageLength = 500
	maxAboutLength   = 2000
	maxBatchSize     = 50
)

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if len(name) < minNameLength {
		return "", fmt.Errorf("name must be at least %d characters", minNameLength)
	}
	if len(name) > maxNameLength {
		return "", fmt.Errorf("name must be at most %d characters", maxNameLength)
	}
	return name, nil
}

func normalizeMessage(message string, limit int) (string, error) {
	message = strings.TrimSpace(message)
	if len(message) > limit {
		return "", fmt.Errorf("text must be at most %d characters", limit)
	}
	return message, nil
}
