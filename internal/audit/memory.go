package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/arenahq/orgcore/internal/orgs"
	"github.com/google/uuid"
)

// MemoryLog keeps the trail in process for the memory store mode.
type MemoryLog struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (l *MemoryLog) Notify(_ context.Context, event orgs.Event) error {
	meta := make(map[string]any, len(event.Meta))
	for k, v := range event.Meta {
		meta[k] = v
	}

	l.mu.Lock()
	l.entries = append(l.entries, Entry{
		ID:          uuid.New(),
		OrgID:       event.OrgID,
		ActorUserID: fromNullUUID(toNullUUID(event.ActorID)),
		SubjectID:   fromNullUUID(toNullUUID(event.SubjectID)),
		Action:      string(event.Type),
		Meta:        meta,
		CreatedAt:   event.OccurredAt,
	})
	l.mu.Unlock()

	logged(event)
	return nil
}

func (l *MemoryLog) ListByOrg(_ context.Context, params ListParams) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := []Entry{}
	for i := len(l.entries) - 1; i >= 0; i-- {
		e := l.entries[i]
		if e.OrgID != params.OrgID {
			continue
		}
		if params.Before != nil && !e.CreatedAt.Before(*params.Before) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > params.limit() {
		out = out[:params.limit()]
	}
	return out, nil
}

// Prune drops entries older than cutoff.
func (l *MemoryLog) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.entries[:0]
	var removed int64
	for _, e := range l.entries {
		if e.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	l.entries = kept
	return removed, nil
}
