package memory

import (
	"context"
	"sync"

	"battle-quiz-service/internal/domain"
)

// Broadcaster fans room events out to in-process subscribers.
// A subscriber that cannot keep up is dropped (its channel is closed) instead
// of silently missing events; it is expected to resync from a room snapshot.
type Broadcaster struct {
	buffer int

	mu    sync.Mutex
	rooms map[string]map[chan domain.Event]struct{}
}

func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broadcaster{
		buffer: buffer,
		rooms:  make(map[string]map[chan domain.Event]struct{}),
	}
}

func (b *Broadcaster) Publish(_ context.Context, roomID string, event domain.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.rooms[roomID] {
		select {
		case ch <- event:
		default:
			b.dropLocked(roomID, ch)
		}
	}
	return nil
}

// Subscribe returns a channel that receives the room's events in commit order.
// The caller must invoke the returned cancel function to avoid leaks.
func (b *Broadcaster) Subscribe(_ context.Context, roomID string) (<-chan domain.Event, func(), error) {
	ch := make(chan domain.Event, b.buffer)

	b.mu.Lock()
	subs, ok := b.rooms[roomID]
	if !ok {
		subs = make(map[chan domain.Event]struct{})
		b.rooms[roomID] = subs
	}
	subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		b.dropLocked(roomID, ch)
		b.mu.Unlock()
	}
	return ch, cancel, nil
}

func (b *Broadcaster) dropLocked(roomID string, ch chan domain.Event) {
	subs := b.rooms[roomID]
	if _, ok := subs[ch]; !ok {
		return
	}
	delete(subs, ch)
	close(ch)
	if len(subs) == 0 {
		delete(b.rooms, roomID)
	}
}
