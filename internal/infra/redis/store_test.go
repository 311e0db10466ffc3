package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"battle-quiz-service/internal/domain"
)

func testRoom() domain.Room {
	return domain.Room{
		ID:              "room-1",
		Code:            "ABC234",
		Mode:            domain.ModeDuel,
		MaxPlayers:      2,
		Status:          domain.StatusWaiting,
		TimePerQuestion: 10,
		TotalQuestions:  1,
		Questions:       sampleQuiz().Questions,
		CreatedAt:       time.Unix(1700000000, 0).UTC(),
	}
}

func TestStoreRoomByCode(t *testing.T) {
	_, client := newTestRedis(t)
	store := NewStore(client, time.Hour)
	ctx := context.Background()

	room := testRoom()
	if err := store.CreateRoom(ctx, room); err != nil {
		t.Fatalf("create room: %v", err)
	}
	dup := room
	dup.ID = "room-2"
	if err := store.CreateRoom(ctx, dup); !errors.Is(err, domain.ErrCodeTaken) {
		t.Fatalf("expected ErrCodeTaken, got %v", err)
	}

	got, err := store.FindRoomByCode(ctx, "ABC234")
	if err != nil {
		t.Fatalf("find by code: %v", err)
	}
	if got.ID != room.ID || len(got.Questions) != 1 {
		t.Fatalf("unexpected room %+v", got)
	}

	if err := store.DeleteRoom(ctx, room.ID); err != nil {
		t.Fatalf("delete room: %v", err)
	}
	if _, err := store.GetRoom(ctx, room.ID); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
	if _, err := store.FindRoomByCode(ctx, "ABC234"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("code should be released, got %v", err)
	}
}

func TestStoreParticipantsAndAnswers(t *testing.T) {
	_, client := newTestRedis(t)
	store := NewStore(client, time.Hour)
	ctx := context.Background()

	room := testRoom()
	if err := store.CreateRoom(ctx, room); err != nil {
		t.Fatalf("create room: %v", err)
	}
	base := time.Unix(1700000000, 0).UTC()
	for i, name := range []string{"bob", "alice"} {
		p := domain.Participant{
			ID:          "p-" + name,
			RoomID:      room.ID,
			UserID:      "u-" + name,
			DisplayName: name,
			JoinedAt:    base.Add(time.Duration(i) * time.Microsecond),
		}
		if err := store.AddParticipant(ctx, p); err != nil {
			t.Fatalf("add participant: %v", err)
		}
	}

	answer := domain.Answer{
		ParticipantID:  "p-alice",
		RoomID:         room.ID,
		QuestionIndex:  0,
		SelectedOption: "o2",
		IsCorrect:      true,
		PointsEarned:   120,
		SubmittedAt:    base.Add(time.Second),
	}
	score, err := store.RecordAnswer(ctx, answer)
	if err != nil || score != 120 {
		t.Fatalf("record answer: score=%d err=%v", score, err)
	}
	if _, err := store.RecordAnswer(ctx, answer); !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("expected ErrAlreadyAnswered, got %v", err)
	}
	answer.ParticipantID = "p-ghost"
	if _, err := store.RecordAnswer(ctx, answer); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected ErrParticipantNotFound, got %v", err)
	}

	// Updating readiness must not clobber the score owned by RecordAnswer.
	ready := domain.Participant{ID: "p-alice", RoomID: room.ID, UserID: "u-alice", DisplayName: "alice", IsReady: true, JoinedAt: base.Add(time.Microsecond)}
	if err := store.UpdateParticipant(ctx, ready); err != nil {
		t.Fatalf("update participant: %v", err)
	}

	list, err := store.ListParticipants(ctx, room.ID)
	if err != nil {
		t.Fatalf("list participants: %v", err)
	}
	if len(list) != 2 || list[0].ID != "p-bob" || list[1].ID != "p-alice" {
		t.Fatalf("unexpected order %+v", list)
	}
	if list[1].Score != 120 || !list[1].IsReady {
		t.Fatalf("unexpected alice %+v", list[1])
	}

	answers, err := store.ListAnswers(ctx, room.ID)
	if err != nil || len(answers) != 1 {
		t.Fatalf("list answers: %v %v", answers, err)
	}

	stored, err := store.GetAnswer(ctx, room.ID, "p-alice", 0)
	if err != nil || stored.SelectedOption != "o2" || stored.PointsEarned != 120 {
		t.Fatalf("get answer: %+v %v", stored, err)
	}
	if _, err := store.GetAnswer(ctx, room.ID, "p-bob", 0); !errors.Is(err, domain.ErrAnswerNotFound) {
		t.Fatalf("expected ErrAnswerNotFound, got %v", err)
	}
	alice, err := store.GetParticipant(ctx, room.ID, "p-alice")
	if err != nil || alice.Score != 120 || !alice.IsReady {
		t.Fatalf("get participant: %+v %v", alice, err)
	}

	if err := store.DeleteParticipant(ctx, room.ID, "p-bob"); err != nil {
		t.Fatalf("delete participant: %v", err)
	}
	if n, _ := store.CountParticipants(ctx, room.ID); n != 1 {
		t.Fatalf("expected 1 participant, got %d", n)
	}
	if err := store.UpdateParticipant(ctx, domain.Participant{ID: "p-bob", RoomID: room.ID}); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected ErrParticipantNotFound, got %v", err)
	}
	if _, err := store.GetParticipant(ctx, room.ID, "p-bob"); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected ErrParticipantNotFound, got %v", err)
	}
}

func TestStoreExpiresCompletedRooms(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewStore(client, time.Minute)
	ctx := context.Background()

	room := testRoom()
	if err := store.CreateRoom(ctx, room); err != nil {
		t.Fatalf("create room: %v", err)
	}
	if err := store.SaveResults(ctx, domain.Results{RoomID: room.ID}); err != nil {
		t.Fatalf("save results: %v", err)
	}
	room.Status = domain.StatusCompleted
	room.CurrentQuestionIndex = room.TotalQuestions
	if err := store.UpdateRoom(ctx, room); err != nil {
		t.Fatalf("update room: %v", err)
	}
	if _, err := store.GetResults(ctx, room.ID); err != nil {
		t.Fatalf("get results: %v", err)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := store.GetRoom(ctx, room.ID); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected completed room to expire, got %v", err)
	}
}

func TestStoreUnavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewStore(client, time.Minute)
	mr.Close()

	if _, err := store.GetRoom(context.Background(), "room-1"); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}
