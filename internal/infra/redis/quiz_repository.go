package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"battle-quiz-service/internal/domain"
	"battle-quiz-service/internal/infra/memory"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuestionBank caches quiz question lists in Redis and falls back to a loader on cache miss.
// Quizzes are stored as: SET quiz:{quizID}:questions <json>
type QuestionBank struct {
	client *redis.Client
	loader memory.QuizLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuestionBank(client *redis.Client, loader memory.QuizLoader, ttl time.Duration) *QuestionBank {
	return &QuestionBank{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (b *QuestionBank) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := b.cached(ctx, quizID); ok {
		return quiz, nil
	}

	result, err, _ := b.sf.Do(quizID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if quiz, ok := b.cached(ctx, quizID); ok {
			return quiz, nil
		}

		quiz, err := b.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}
		if err := memory.Validate(quiz); err != nil {
			return domain.Quiz{}, err
		}

		if data, err := json.Marshal(quiz); err == nil {
			_ = b.client.Set(ctx, b.key(quizID), data, b.ttlWithJitter()).Err()
		}
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

// cached treats a Redis failure as a miss so a cache outage never blocks room creation.
func (b *QuestionBank) cached(ctx context.Context, quizID string) (domain.Quiz, bool) {
	data, err := b.client.Get(ctx, b.key(quizID)).Bytes()
	if err != nil {
		return domain.Quiz{}, false
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(data, &quiz); err != nil {
		return domain.Quiz{}, false
	}
	return quiz, true
}

func (b *QuestionBank) key(quizID string) string {
	return "quiz:" + quizID + ":questions"
}

func (b *QuestionBank) ttlWithJitter() time.Duration {
	if b.ttl <= 0 {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	jitterMax := int64(b.ttl) / 10
	return b.ttl + time.Duration(b.rnd.Int63n(jitterMax+1))
}
