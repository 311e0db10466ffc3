package app

import (
	"context"
	"errors"
	"time"

	"battle-quiz-service/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// errActorGone is returned when a command reaches an actor that already stopped.
var errActorGone = errors.New("room actor stopped")

const inboxSize = 64

type answerKey struct {
	participantID string
	questionIndex int
}

// roomActor owns the in-memory state of a single room and applies every
// mutating operation on it one at a time from its inbox.
type roomActor struct {
	id     string
	store  Store
	events Publisher
	clock  clockwork.Clock
	policy RetryPolicy
	log    logrus.FieldLogger

	// onLeave releases the user's membership once their seat is gone.
	onLeave func(userID, roomID string)
	// onExit unregisters the actor from its service.
	onExit func(*roomActor)

	// leased actors renew their room lease every lease/3 and stop, without
	// touching the store, once it is lost.
	leased      bool
	renew       func(ctx context.Context, roomID string) (bool, error)
	lease       time.Duration
	lastRenewed time.Time
	evicted     bool

	ctx   context.Context
	inbox chan func()
	done  chan struct{}

	room         domain.Room
	participants []*domain.Participant // ordered by JoinedAt
	answers      map[answerKey]domain.Answer
	results      *domain.Results
	seq          uint64

	timer    clockwork.Timer
	deadline time.Time
	closed   bool
}

func (a *roomActor) run() {
	defer func() {
		a.stopCountdown()
		if a.onExit != nil {
			a.onExit(a)
		}
		close(a.done)
	}()

	if a.room.Status == domain.StatusInProgress {
		// Deadlines are not persisted; a reloaded room restarts the active question's countdown.
		a.startCountdown()
	}

	var renewC <-chan time.Time
	if a.leased {
		a.lastRenewed = a.clock.Now()
		ticker := a.clock.NewTicker(a.lease / 3)
		defer ticker.Stop()
		renewC = ticker.Chan()
	}

	for {
		select {
		case cmd := <-a.inbox:
			cmd()
		case <-a.timerC():
			a.onDeadline()
		case <-renewC:
			a.renewLease()
		case <-a.ctx.Done():
			return
		}
		if a.shouldExit() {
			return
		}
	}
}

// do queues fn on the actor and waits for it to be applied.
func do[T any](ctx context.Context, a *roomActor, fn func() (T, error)) (T, error) {
	var zero T
	type reply struct {
		val T
		err error
	}
	replies := make(chan reply, 1)
	cmd := func() {
		val, err := fn()
		replies <- reply{val: val, err: err}
	}

	select {
	case a.inbox <- cmd:
	case <-a.done:
		return zero, errActorGone
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case r := <-replies:
		return r.val, r.err
	case <-a.done:
		// The command may have been the one that stopped the actor.
		select {
		case r := <-replies:
			return r.val, r.err
		default:
			return zero, errActorGone
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// renewLease extends the room lease. The actor stops when another instance
// holds it, or when renewals have failed for a whole lease period.
func (a *roomActor) renewLease() {
	ok, err := a.renew(a.ctx, a.id)
	if err != nil {
		if a.clock.Since(a.lastRenewed) < a.lease {
			a.logger().WithError(err).Warn("lease renewal failed")
			return
		}
		a.logger().WithError(err).Error("lease expired without renewal, unloading room")
		a.evict()
		return
	}
	if !ok {
		a.logger().Warn("room lease taken by another instance, unloading room")
		a.evict()
		return
	}
	a.lastRenewed = a.clock.Now()
}

// evict drops the room from this instance; its state stays in the store for
// the new owner.
func (a *roomActor) evict() {
	a.stopCountdown()
	for _, p := range a.participants {
		if a.onLeave != nil {
			a.onLeave(p.UserID, a.id)
		}
	}
	a.evicted = true
	a.closed = true
}

func (a *roomActor) shouldExit() bool {
	return a.closed || (a.room.Status == domain.StatusCompleted && len(a.participants) == 0)
}

func (a *roomActor) now() time.Time {
	return a.clock.Now().UTC()
}

func (a *roomActor) logger() logrus.FieldLogger {
	return a.log.WithField("room", a.id)
}

func (a *roomActor) find(participantID string) (int, *domain.Participant) {
	for i, p := range a.participants {
		if p.ID == participantID {
			return i, p
		}
	}
	return -1, nil
}

func (a *roomActor) findByUser(userID string) *domain.Participant {
	for _, p := range a.participants {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

// persistRoom writes the room with retries; a failure leaves the store stale
// but the actor keeps its in-memory state authoritative.
func (a *roomActor) persistRoom(what string) {
	room := a.room.Clone()
	err := a.policy.retry(a.ctx, a.logger(), what, func() error {
		return a.store.UpdateRoom(a.ctx, room)
	})
	if err != nil {
		a.logger().WithError(err).WithField("op", what).Error("room write abandoned")
	}
}

// publish emits one event per committed transition, in commit order.
func (a *roomActor) publish(ev domain.Event) {
	a.seq++
	ev.RoomID = a.id
	ev.Seq = a.seq
	ev.At = a.now()
	if err := a.events.Publish(a.ctx, a.id, ev); err != nil {
		a.logger().WithError(err).WithFields(logrus.Fields{"event": ev.Type, "seq": ev.Seq}).Warn("publish failed")
	}
}

func (a *roomActor) snapshot() domain.RoomSnapshot {
	snap := domain.RoomSnapshot{
		Room:         redactRoom(a.room),
		Participants: make([]domain.Participant, 0, len(a.participants)),
		Results:      a.results,
		Seq:          a.seq,
	}
	for _, p := range a.participants {
		snap.Participants = append(snap.Participants, *p)
	}
	if a.room.Status == domain.StatusInProgress && a.timer != nil {
		deadline := a.deadline
		snap.Deadline = &deadline
		snap.SecondsRemaining = a.secondsRemaining()
	}
	return snap
}

// redactRoom hides the correct answer of every question that has not closed yet.
func redactRoom(room domain.Room) domain.Room {
	out := room.Clone()
	for i := range out.Questions {
		if room.Status != domain.StatusCompleted && i >= room.CurrentQuestionIndex {
			out.Questions[i].CorrectAnswer = ""
		}
	}
	return out
}

func publicQuestion(q domain.Question) *domain.Question {
	q.Options = append([]domain.Option(nil), q.Options...)
	q.CorrectAnswer = ""
	return &q
}
