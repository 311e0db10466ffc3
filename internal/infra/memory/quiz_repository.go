package memory

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"battle-quiz-service/internal/domain"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

// QuizLoader fetches quiz content from a backing store.
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuestionBank caches quizzes with TTL to avoid repeated backing-store hits
// when many rooms are opened on the same quiz.
type QuestionBank struct {
	loader QuizLoader
	ttl    time.Duration
	clock  clockwork.Clock
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedQuiz
}

type cachedQuiz struct {
	quiz      domain.Quiz
	expiresAt time.Time
}

func NewQuestionBank(loader QuizLoader, ttl time.Duration, clock clockwork.Clock) *QuestionBank {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &QuestionBank{
		loader: loader,
		ttl:    ttl,
		clock:  clock,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedQuiz),
	}
}

func (b *QuestionBank) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := b.cached(quizID); ok {
		return quiz, nil
	}

	result, err, _ := b.sf.Do(quizID, func() (interface{}, error) {
		if quiz, ok := b.cached(quizID); ok {
			return quiz, nil
		}
		quiz, err := b.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}
		if err := Validate(quiz); err != nil {
			return domain.Quiz{}, err
		}

		b.mu.Lock()
		b.cache[quizID] = cachedQuiz{
			quiz:      quiz,
			expiresAt: b.clock.Now().Add(b.ttlWithJitterLocked()),
		}
		b.mu.Unlock()
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (b *QuestionBank) cached(quizID string) (domain.Quiz, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entry, ok := b.cache[quizID]
	if !ok || !entry.expiresAt.After(b.clock.Now()) {
		return domain.Quiz{}, false
	}
	return entry.quiz, true
}

func (b *QuestionBank) ttlWithJitterLocked() time.Duration {
	if b.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(b.ttl) / 10
	return b.ttl + time.Duration(b.rnd.Int63n(jitterMax+1))
}

// Validate rejects quizzes a room could not be played on.
func Validate(quiz domain.Quiz) error {
	if len(quiz.Questions) == 0 {
		return fmt.Errorf("%w: quiz %q has no questions", domain.ErrQuizNotFound, quiz.ID)
	}
	for _, q := range quiz.Questions {
		found := false
		for _, opt := range q.Options {
			if opt.ID == q.CorrectAnswer {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: question %q has no correct option", domain.ErrInvalidRoom, q.ID)
		}
	}
	return nil
}

// StaticQuizLoader is a simple loader backed by an in-memory map (useful for tests/demos).
type StaticQuizLoader struct {
	quizzes map[string]domain.Quiz
}

func NewStaticQuizLoader(quizzes map[string]domain.Quiz) *StaticQuizLoader {
	return &StaticQuizLoader{quizzes: quizzes}
}

func (l *StaticQuizLoader) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := l.quizzes[quizID]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}
