package cli

import "battle-quiz-service/internal/domain"

// sampleQuizzes backs the question bank when no Postgres is configured and
// seeds the quizzes table on `migrate --seed`.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID: "quiz-1",
			Questions: []domain.Question{
				{
					ID:     "q1",
					Prompt: "What is 2 + 2?",
					Options: []domain.Option{
						{ID: "o1", Text: "3"},
						{ID: "o2", Text: "4"},
						{ID: "o3", Text: "5"},
					},
					CorrectAnswer: "o2",
				},
				{
					ID:     "q2",
					Prompt: "Which planet is known as the Red Planet?",
					Options: []domain.Option{
						{ID: "o1", Text: "Venus"},
						{ID: "o2", Text: "Jupiter"},
						{ID: "o3", Text: "Mars"},
					},
					CorrectAnswer: "o3",
				},
				{
					ID:     "q3",
					Prompt: "What is the past tense of \"run\"?",
					Options: []domain.Option{
						{ID: "o1", Text: "ran"},
						{ID: "o2", Text: "runned"},
						{ID: "o3", Text: "running"},
					},
					CorrectAnswer: "o1",
				},
			},
		},
	}
}
