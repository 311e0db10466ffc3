package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// LeaseTable is an in-process stand-in for a shared lease store. Several
// Leasers over one table behave like instances sharing a Redis.
type LeaseTable struct {
	clock clockwork.Clock
	ttl   time.Duration

	mu     sync.Mutex
	leases map[string]heldLease
}

type heldLease struct {
	owner     string
	expiresAt time.Time
}

func NewLeaseTable(ttl time.Duration, clock clockwork.Clock) *LeaseTable {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &LeaseTable{clock: clock, ttl: ttl, leases: make(map[string]heldLease)}
}

// Leaser returns the view of the table owned by owner.
func (t *LeaseTable) Leaser(owner string) *Leaser {
	return &Leaser{table: t, owner: owner}
}

// Owner reports who holds roomID's lease, if anyone.
func (t *LeaseTable) Owner(roomID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.live(roomID)
	return l.owner, ok
}

func (t *LeaseTable) live(roomID string) (heldLease, bool) {
	l, ok := t.leases[roomID]
	if !ok || !t.clock.Now().Before(l.expiresAt) {
		return heldLease{}, false
	}
	return l, true
}

type Leaser struct {
	table *LeaseTable
	owner string
}

func (l *Leaser) Acquire(_ context.Context, roomID string) (bool, error) {
	t := l.table
	t.mu.Lock()
	defer t.mu.Unlock()
	if held, ok := t.live(roomID); ok && held.owner != l.owner {
		return false, nil
	}
	t.leases[roomID] = heldLease{owner: l.owner, expiresAt: t.clock.Now().Add(t.ttl)}
	return true, nil
}

func (l *Leaser) Renew(_ context.Context, roomID string) (bool, error) {
	t := l.table
	t.mu.Lock()
	defer t.mu.Unlock()
	if held, ok := t.live(roomID); !ok || held.owner != l.owner {
		return false, nil
	}
	t.leases[roomID] = heldLease{owner: l.owner, expiresAt: t.clock.Now().Add(t.ttl)}
	return true, nil
}

func (l *Leaser) Release(_ context.Context, roomID string) error {
	t := l.table
	t.mu.Lock()
	defer t.mu.Unlock()
	if held, ok := t.leases[roomID]; ok && held.owner == l.owner {
		delete(t.leases, roomID)
	}
	return nil
}
