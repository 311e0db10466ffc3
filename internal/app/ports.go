package app

import (
	"context"

	"battle-quiz-service/internal/domain"
)

// Store abstracts the persistent record store (in-memory, Redis, Postgres).
// Implementations wrap transient backend failures with domain.ErrStoreUnavailable.
type Store interface {
	CreateRoom(ctx context.Context, room domain.Room) error
	GetRoom(ctx context.Context, roomID string) (domain.Room, error)
	FindRoomByCode(ctx context.Context, code string) (domain.Room, error)
	UpdateRoom(ctx context.Context, room domain.Room) error
	DeleteRoom(ctx context.Context, roomID string) error

	AddParticipant(ctx context.Context, participant domain.Participant) error
	GetParticipant(ctx context.Context, roomID, participantID string) (domain.Participant, error)
	UpdateParticipant(ctx context.Context, participant domain.Participant) error
	DeleteParticipant(ctx context.Context, roomID, participantID string) error
	// ListParticipants returns the room's participants ordered by joined_at ascending.
	ListParticipants(ctx context.Context, roomID string) ([]domain.Participant, error)
	CountParticipants(ctx context.Context, roomID string) (int, error)

	// RecordAnswer creates the answer and adds its points to the participant's score
	// in one step, returning the new score. A second answer for the same
	// (participant, question index) fails with domain.ErrAlreadyAnswered.
	RecordAnswer(ctx context.Context, answer domain.Answer) (int, error)
	// GetAnswer fails with domain.ErrAnswerNotFound when nothing was recorded.
	GetAnswer(ctx context.Context, roomID, participantID string, questionIndex int) (domain.Answer, error)
	ListAnswers(ctx context.Context, roomID string) ([]domain.Answer, error)

	SaveResults(ctx context.Context, results domain.Results) error
	GetResults(ctx context.Context, roomID string) (domain.Results, error)
}

// Publisher is the broadcast channel that fans room events out to clients.
type Publisher interface {
	Publish(ctx context.Context, roomID string, event domain.Event) error
}

// QuestionBank loads quiz content (from cache/backing store).
type QuestionBank interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// RoomLeaser hands out per-room ownership so only one instance drives a room.
// Acquire and Renew report false when another owner holds the lease.
type RoomLeaser interface {
	Acquire(ctx context.Context, roomID string) (bool, error)
	Renew(ctx context.Context, roomID string) (bool, error)
	Release(ctx context.Context, roomID string) error
}
