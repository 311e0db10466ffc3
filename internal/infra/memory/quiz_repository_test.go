package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"battle-quiz-service/internal/domain"
	"github.com/jonboulle/clockwork"
)

func TestQuestionBankCaches(t *testing.T) {
	loader := &countingLoader{
		QuizLoader: NewStaticQuizLoader(map[string]domain.Quiz{
			"quiz-1": sampleQuiz(),
		}),
	}
	bank := NewQuestionBank(loader, time.Minute, nil)

	if _, err := bank.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	if _, err := bank.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
}

func TestQuestionBankExpires(t *testing.T) {
	clock := clockwork.NewFakeClock()
	loader := &countingLoader{
		QuizLoader: NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": sampleQuiz()}),
	}
	bank := NewQuestionBank(loader, time.Minute, clock)

	_, _ = bank.GetQuiz(context.Background(), "quiz-1")
	clock.Advance(2 * time.Minute)
	_, _ = bank.GetQuiz(context.Background(), "quiz-1")
	if loader.calls != 2 {
		t.Fatalf("expected reload after ttl, loader calls %d", loader.calls)
	}
}

func TestQuestionBankRejectsQuizWithoutCorrectOption(t *testing.T) {
	broken := sampleQuiz()
	broken.Questions[0].CorrectAnswer = "missing"
	bank := NewQuestionBank(NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": broken}), time.Minute, nil)

	if _, err := bank.GetQuiz(context.Background(), "quiz-1"); !errors.Is(err, domain.ErrInvalidRoom) {
		t.Fatalf("expected invalid quiz, got %v", err)
	}
	if _, err := bank.GetQuiz(context.Background(), "nope"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}
}

type countingLoader struct {
	QuizLoader
	calls int
}

func (l *countingLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	l.calls++
	return l.QuizLoader.LoadQuiz(ctx, quizID)
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID: "quiz-1",
		Questions: []domain.Question{
			{
				ID:     "q1",
				Prompt: "What is 2 + 2?",
				Options: []domain.Option{
					{ID: "o1", Text: "3"},
					{ID: "o2", Text: "4"},
				},
				CorrectAnswer: "o2",
			},
		},
	}
}
