package orgs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EventType names a domain event.
type EventType string

const (
	EventOrgCreated           EventType = "org.created"
	EventOrgUpdated           EventType = "org.updated"
	EventOrgDeleted           EventType = "org.deleted"
	EventInviteCreated        EventType = "org.invite_created"
	EventInviteAccepted       EventType = "org.invite_accepted"
	EventInviteDeclined       EventType = "org.invite_declined"
	EventInviteCancelled      EventType = "org.invite_cancelled"
	EventJoinRequestCreated   EventType = "org.join_request_created"
	EventJoinRequestAccepted  EventType = "org.join_request_accepted"
	EventJoinRequestRejected  EventType = "org.join_request_rejected"
	EventStaffAdded           EventType = "org.staff_added"
	EventMemberRemoved        EventType = "org.member_removed"
	EventMemberLeft           EventType = "org.member_left"
	EventMemberRoleUpdated    EventType = "org.member_role_updated"
	EventOwnershipTransferred EventType = "org.ownership_transferred"
)

// Event is emitted after a mutation commits.
type Event struct {
	Type       EventType
	OrgID      uuid.UUID
	ActorID    uuid.UUID
	SubjectID  uuid.UUID
	Meta       map[string]any
	OccurredAt time.Time
}

// Notifier consumes domain events. Delivery is the notifier's concern.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, event Event) error

func (f NotifierFunc) Notify(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Notifiers fans an event out to each notifier in order.
type Notifiers []Notifier

func (n Notifiers) Notify(ctx context.Context, event Event) error {
	var firstErr error
	for _, notifier := range n {
		if err := notifier.Notify(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Event) error { return nil }

func (m *Manager) emit(ctx context.Context, events []Event) {
	for _, event := range events {
		if err := m.notifier.Notify(ctx, event); err != nil {
			log.Error().
				Err(err).
				Str("event", string(event.Type)).
				Str("org_id", event.OrgID.String()).
				Msg("Failed to publish domain event")
		}
	}
}
