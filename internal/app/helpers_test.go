package app_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"battle-quiz-service/internal/app"
	"battle-quiz-service/internal/domain"
	"battle-quiz-service/internal/infra/memory"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
}

type harness struct {
	t      *testing.T
	ctx    context.Context
	svc    *app.BattleService
	store  app.Store
	events *memory.Broadcaster
	clock  fakeClock
	logs   *test.Hook
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithStore(t, memory.NewStore())
}

func newHarnessWithStore(t *testing.T, store app.Store) *harness {
	t.Helper()
	logger, hook := test.NewNullLogger()
	clock := clockwork.NewFakeClock()
	events := memory.NewBroadcaster(256)
	svc := app.NewBattleService(store, events,
		app.WithClock(clock),
		app.WithLogger(logger),
		app.WithRetryPolicy(testRetryPolicy()),
	)
	t.Cleanup(svc.Close)
	return &harness{t: t, ctx: context.Background(), svc: svc, store: store, events: events, clock: clock, logs: hook}
}

func testRetryPolicy() app.RetryPolicy {
	return app.RetryPolicy{
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		MaxElapsedTime:  2 * time.Second,
	}
}

func questions(n int) []domain.Question {
	out := make([]domain.Question, n)
	for i := range out {
		out[i] = domain.Question{
			ID:     fmt.Sprintf("q%d", i),
			Prompt: fmt.Sprintf("Question %d", i),
			Options: []domain.Option{
				{ID: "a", Text: "right"},
				{ID: "b", Text: "wrong"},
			},
			CorrectAnswer: "a",
		}
	}
	return out
}

func (h *harness) createRoom(mode domain.Mode, timePerQuestion, total int) domain.Room {
	h.t.Helper()
	room, err := h.svc.CreateRoom(h.ctx, mode, timePerQuestion, total, questions(total))
	require.NoError(h.t, err)
	return room
}

func (h *harness) join(room domain.Room, name string) domain.Participant {
	h.t.Helper()
	p, err := h.svc.JoinRoom(h.ctx, room.Code, domain.Identity{UserID: "user-" + name, DisplayName: name})
	require.NoError(h.t, err)
	// Distinct join instants keep host election readable in assertions.
	h.clock.Advance(time.Millisecond)
	return p
}

func (h *harness) state(roomID string) domain.RoomSnapshot {
	h.t.Helper()
	snap, err := h.svc.GetRoomState(h.ctx, roomID)
	require.NoError(h.t, err)
	return snap
}

func (h *harness) subscribe(roomID string) <-chan domain.Event {
	h.t.Helper()
	ch, cancel, err := h.events.Subscribe(h.ctx, roomID)
	require.NoError(h.t, err)
	h.t.Cleanup(cancel)
	return ch
}

// await reads events until one of type want arrives.
func await(t *testing.T, ch <-chan domain.Event, want domain.EventType) domain.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			require.True(t, ok, "event stream closed waiting for %s", want)
			if ev.Type == want {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func score(snap domain.RoomSnapshot, participantID string) int {
	for _, p := range snap.Participants {
		if p.ID == participantID {
			return p.Score
		}
	}
	return -1
}

// flakyStore fails selected operations with ErrStoreUnavailable a set number of times.
type flakyStore struct {
	*memory.Store
	updateRoomFailures   atomic.Int32
	recordAnswerFailures atomic.Int32
	updateRoomCalls      atomic.Int32
	// lostAcks commits the answer and then reports the store as unavailable.
	lostAcks          atomic.Int32
	getAnswerFailures atomic.Int32
}

func (s *flakyStore) UpdateRoom(ctx context.Context, room domain.Room) error {
	s.updateRoomCalls.Add(1)
	if s.updateRoomFailures.Add(-1) >= 0 {
		return fmt.Errorf("%w: injected", domain.ErrStoreUnavailable)
	}
	return s.Store.UpdateRoom(ctx, room)
}

func (s *flakyStore) RecordAnswer(ctx context.Context, answer domain.Answer) (int, error) {
	if s.recordAnswerFailures.Add(-1) >= 0 {
		return 0, fmt.Errorf("%w: injected", domain.ErrStoreUnavailable)
	}
	total, err := s.Store.RecordAnswer(ctx, answer)
	if err == nil && s.lostAcks.Add(-1) >= 0 {
		return 0, fmt.Errorf("%w: reply lost", domain.ErrStoreUnavailable)
	}
	return total, err
}

func (s *flakyStore) GetAnswer(ctx context.Context, roomID, participantID string, questionIndex int) (domain.Answer, error) {
	if s.getAnswerFailures.Add(-1) >= 0 {
		return domain.Answer{}, fmt.Errorf("%w: injected", domain.ErrStoreUnavailable)
	}
	return s.Store.GetAnswer(ctx, roomID, participantID, questionIndex)
}
