// Package orglock serializes mutations of a single organization.
package orglock

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrBusy is returned when the organization stays locked past the wait budget.
var ErrBusy = errors.New("organization is locked by another operation")

// Locker runs fn while holding the lock for orgID.
type Locker interface {
	WithLock(ctx context.Context, orgID uuid.UUID, fn func(ctx context.Context) error) error
}

type localEntry struct {
	sem  chan struct{}
	refs int
}

// Local is an in-process keyed mutex. It is enough for a single replica and
// for tests.
type Local struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*localEntry
}

func NewLocal() *Local {
	return &Local{locks: make(map[uuid.UUID]*localEntry)}
}

func (l *Local) WithLock(ctx context.Context, orgID uuid.UUID, fn func(ctx context.Context) error) error {
	entry := l.acquireEntry(orgID)
	defer l.releaseEntry(orgID)

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-entry.sem }()

	return fn(ctx)
}

func (l *Local) acquireEntry(orgID uuid.UUID) *localEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.locks[orgID]
	if !ok {
		entry = &localEntry{sem: make(chan struct{}, 1)}
		l.locks[orgID] = entry
	}
	entry.refs++
	return entry
}

func (l *Local) releaseEntry(orgID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := l.locks[orgID]
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, orgID)
	}
}
