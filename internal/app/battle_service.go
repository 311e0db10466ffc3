package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"battle-quiz-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	maxCodeAttempts = 5
	releaseTimeout  = 2 * time.Second
)

// BattleService coordinates multiplayer battle rooms. Every room is driven by
// its own actor goroutine; rooms never share locks.
type BattleService struct {
	store  Store
	events Publisher
	bank   QuestionBank
	clock  clockwork.Clock
	policy RetryPolicy
	log    logrus.FieldLogger

	leaser   RoomLeaser
	leaseTTL time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	spawn   singleflight.Group
	mu      sync.Mutex
	actors  map[string]*roomActor
	members sync.Map // userID -> roomID
}

// Option configures a BattleService.
type Option func(*BattleService)

// WithClock swaps the clock driving question countdowns (tests use a fake clock).
func WithClock(clock clockwork.Clock) Option {
	return func(s *BattleService) { s.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *BattleService) { s.log = log }
}

// WithRetryPolicy sets the backoff for idempotent store writes.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(s *BattleService) { s.policy = policy }
}

// WithRoomLeaser makes room ownership exclusive across instances. A room whose
// lease is held elsewhere fails with domain.ErrRoomElsewhere; the lease is
// renewed every ttl/3 while the room is resident.
func WithRoomLeaser(leaser RoomLeaser, ttl time.Duration) Option {
	return func(s *BattleService) {
		s.leaser = leaser
		s.leaseTTL = ttl
	}
}

// WithQuestionBank enables CreateRoomFromQuiz.
func WithQuestionBank(bank QuestionBank) Option {
	return func(s *BattleService) { s.bank = bank }
}

func NewBattleService(store Store, events Publisher, opts ...Option) *BattleService {
	s := &BattleService{
		store:  store,
		events: events,
		clock:  clockwork.NewRealClock(),
		policy: DefaultRetryPolicy(),
		log:    logrus.StandardLogger(),
		actors: make(map[string]*roomActor),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Close stops every room actor. Room state already committed stays in the store.
func (s *BattleService) Close() {
	s.cancel()
	s.wg.Wait()
}

// CreateRoom validates the settings and creates a waiting room. The first
// participant to join becomes host.
func (s *BattleService) CreateRoom(ctx context.Context, mode domain.Mode, timePerQuestion, totalQuestions int, questions []domain.Question) (domain.Room, error) {
	rules, ok := mode.Rules()
	switch {
	case !ok:
		return domain.Room{}, fmt.Errorf("%w: unknown mode %q", domain.ErrInvalidRoom, mode)
	case timePerQuestion <= 0:
		return domain.Room{}, fmt.Errorf("%w: time per question must be positive", domain.ErrInvalidRoom)
	case totalQuestions <= 0 || totalQuestions != len(questions):
		return domain.Room{}, fmt.Errorf("%w: expected %d questions, got %d", domain.ErrInvalidRoom, totalQuestions, len(questions))
	}

	room := domain.Room{
		ID:              uuid.NewString(),
		Mode:            mode,
		MaxPlayers:      rules.MaxPlayers,
		Status:          domain.StatusWaiting,
		TimePerQuestion: timePerQuestion,
		TotalQuestions:  totalQuestions,
		Questions:       append([]domain.Question(nil), questions...),
		CreatedAt:       s.clock.Now().UTC(),
	}

	if err := s.acquire(ctx, room.ID); err != nil {
		return domain.Room{}, err
	}
	var err error
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		if room.Code, err = newRoomCode(); err != nil {
			break
		}
		err = s.store.CreateRoom(ctx, room)
		if !errors.Is(err, domain.ErrCodeTaken) {
			break
		}
	}
	if err != nil {
		s.releaseLease(room.ID)
		return domain.Room{}, err
	}

	s.mu.Lock()
	s.startActorLocked(room, nil, nil, nil)
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"room": room.ID, "code": room.Code, "mode": mode}).Info("room created")
	return redactRoom(room), nil
}

// CreateRoomFromQuiz creates a room whose questions come from the question bank.
// A positive limit keeps only the first limit questions.
func (s *BattleService) CreateRoomFromQuiz(ctx context.Context, mode domain.Mode, timePerQuestion int, quizID string, limit int) (domain.Room, error) {
	if s.bank == nil {
		return domain.Room{}, domain.ErrQuizNotFound
	}
	quiz, err := s.bank.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Room{}, err
	}
	questions := quiz.Questions
	if limit > 0 && limit < len(questions) {
		questions = questions[:limit]
	}
	return s.CreateRoom(ctx, mode, timePerQuestion, len(questions), questions)
}

// JoinRoom seats the identified user in the room with the given join code.
func (s *BattleService) JoinRoom(ctx context.Context, code string, identity domain.Identity) (domain.Participant, error) {
	if identity.UserID == "" || identity.DisplayName == "" {
		return domain.Participant{}, domain.ErrInvalidIdentity
	}
	room, err := s.store.FindRoomByCode(ctx, NormalizeCode(code))
	if err != nil {
		return domain.Participant{}, err
	}

	existing, loaded := s.members.LoadOrStore(identity.UserID, room.ID)
	if loaded && existing.(string) != room.ID {
		return domain.Participant{}, domain.ErrAlreadyInRoom
	}

	participant, err := withActor(ctx, s, room.ID, func(a *roomActor) (domain.Participant, error) {
		return a.join(ctx, identity)
	})
	if err != nil && !loaded {
		s.members.CompareAndDelete(identity.UserID, room.ID)
	}
	return participant, err
}

// SetReady marks a participant ready; the room starts once everyone is ready.
func (s *BattleService) SetReady(ctx context.Context, roomID, participantID string) error {
	_, err := withActor(ctx, s, roomID, func(a *roomActor) (struct{}, error) {
		return struct{}{}, a.setReady(ctx, participantID)
	})
	return err
}

// StartRoom is the explicit start triggered by the host.
func (s *BattleService) StartRoom(ctx context.Context, roomID, participantID string) error {
	_, err := withActor(ctx, s, roomID, func(a *roomActor) (struct{}, error) {
		return struct{}{}, a.startByHost(ctx, participantID)
	})
	return err
}

// LeaveRoom removes a participant. It is idempotent: leaving a room twice, or a
// room that no longer exists, is not an error.
func (s *BattleService) LeaveRoom(ctx context.Context, roomID, participantID string) error {
	// Leaving is never abandoned halfway because the caller went away.
	ctx = context.WithoutCancel(ctx)
	_, err := withActor(ctx, s, roomID, func(a *roomActor) (struct{}, error) {
		return struct{}{}, a.leave(participantID)
	})
	if errors.Is(err, domain.ErrRoomNotFound) {
		return nil
	}
	return err
}

// SubmitAnswer scores an answer for the active question.
func (s *BattleService) SubmitAnswer(ctx context.Context, roomID, participantID string, questionIndex int, option string) (domain.ScoredAnswer, error) {
	return withActor(ctx, s, roomID, func(a *roomActor) (domain.ScoredAnswer, error) {
		return a.submit(ctx, participantID, questionIndex, option)
	})
}

// GetRoomState returns a snapshot for reconnecting clients.
func (s *BattleService) GetRoomState(ctx context.Context, roomID string) (domain.RoomSnapshot, error) {
	return withActor(ctx, s, roomID, func(a *roomActor) (domain.RoomSnapshot, error) {
		return a.snapshot(), nil
	})
}

// withActor runs fn on the room's actor, loading the room from the store when
// no actor is resident.
func withActor[T any](ctx context.Context, s *BattleService, roomID string, fn func(*roomActor) (T, error)) (T, error) {
	var zero T
	for attempt := 0; attempt < 2; attempt++ {
		a, err := s.actor(ctx, roomID)
		if err != nil {
			return zero, err
		}
		val, err := do(ctx, a, func() (T, error) { return fn(a) })
		if errors.Is(err, errActorGone) {
			continue
		}
		return val, err
	}
	return zero, domain.ErrRoomNotFound
}

func (s *BattleService) actor(ctx context.Context, roomID string) (*roomActor, error) {
	s.mu.Lock()
	a, ok := s.actors[roomID]
	s.mu.Unlock()
	if ok {
		return a, nil
	}
	if s.ctx.Err() != nil {
		return nil, domain.ErrRoomNotFound
	}

	v, err, _ := s.spawn.Do(roomID, func() (interface{}, error) {
		s.mu.Lock()
		if a, ok := s.actors[roomID]; ok {
			s.mu.Unlock()
			return a, nil
		}
		s.mu.Unlock()

		room, err := s.store.GetRoom(ctx, roomID)
		if err != nil {
			return nil, err
		}
		if err := s.acquire(ctx, roomID); err != nil {
			return nil, err
		}
		a, err := s.load(ctx, room)
		if err != nil {
			s.releaseLease(roomID)
			return nil, err
		}
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*roomActor), nil
}

// load reads the rest of the room's state and starts its actor. The room is
// re-read under the lease so no write from a previous owner is missed.
func (s *BattleService) load(ctx context.Context, room domain.Room) (*roomActor, error) {
	roomID := room.ID
	var err error
	if s.leaser != nil {
		if room, err = s.store.GetRoom(ctx, roomID); err != nil {
			return nil, err
		}
	}
	participants, err := s.store.ListParticipants(ctx, roomID)
	if err != nil {
		return nil, err
	}
	answers, err := s.store.ListAnswers(ctx, roomID)
	if err != nil {
		return nil, err
	}
	var results *domain.Results
	if room.Status == domain.StatusCompleted {
		if r, err := s.store.GetResults(ctx, roomID); err == nil {
			results = &r
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startActorLocked(room, participants, answers, results), nil
}

// acquire takes the room's lease; without a leaser every room is local.
func (s *BattleService) acquire(ctx context.Context, roomID string) error {
	if s.leaser == nil {
		return nil
	}
	ok, err := s.leaser.Acquire(ctx, roomID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrRoomElsewhere
	}
	return nil
}

func (s *BattleService) releaseLease(roomID string) {
	if s.leaser == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := s.leaser.Release(ctx, roomID); err != nil {
		s.log.WithError(err).WithField("room", roomID).Warn("lease release failed")
	}
}

func (s *BattleService) startActorLocked(room domain.Room, participants []domain.Participant, answers []domain.Answer, results *domain.Results) *roomActor {
	a := &roomActor{
		id:      room.ID,
		store:   s.store,
		events:  s.events,
		clock:   s.clock,
		policy:  s.policy,
		log:     s.log,
		onLeave: s.release,
		onExit:  s.forget,
		leased:  s.leaser != nil,
		renew:   s.renewLease,
		lease:   s.leaseTTL,
		ctx:     s.ctx,
		inbox:   make(chan func(), inboxSize),
		done:    make(chan struct{}),
		room:    room,
		answers: make(map[answerKey]domain.Answer, len(answers)),
		results: results,
	}
	for i := range participants {
		p := participants[i]
		a.participants = append(a.participants, &p)
		s.members.LoadOrStore(p.UserID, room.ID)
	}
	for _, ans := range answers {
		a.answers[answerKey{ans.ParticipantID, ans.QuestionIndex}] = ans
	}

	s.actors[room.ID] = a
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		a.run()
	}()
	return a
}

func (s *BattleService) release(userID, roomID string) {
	s.members.CompareAndDelete(userID, roomID)
}

func (s *BattleService) renewLease(ctx context.Context, roomID string) (bool, error) {
	return s.leaser.Renew(ctx, roomID)
}

// forget unregisters a stopped actor and gives up its lease unless another
// instance already took it.
func (s *BattleService) forget(a *roomActor) {
	// Release while still registered so a reload cannot take the lease first.
	if a.leased && !a.evicted {
		s.releaseLease(a.id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.actors[a.id] == a {
		delete(s.actors, a.id)
	}
}
