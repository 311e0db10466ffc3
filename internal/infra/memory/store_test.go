package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"battle-quiz-service/internal/domain"
)

func TestStoreRoomLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	room := domain.Room{ID: "r1", Code: "ABC234", Status: domain.StatusWaiting}
	if err := store.CreateRoom(ctx, room); err != nil {
		t.Fatalf("create room: %v", err)
	}
	if err := store.CreateRoom(ctx, domain.Room{ID: "r2", Code: "ABC234"}); !errors.Is(err, domain.ErrCodeTaken) {
		t.Fatalf("expected code taken, got %v", err)
	}
	got, err := store.FindRoomByCode(ctx, "ABC234")
	if err != nil || got.ID != "r1" {
		t.Fatalf("find by code: %+v %v", got, err)
	}

	if err := store.DeleteRoom(ctx, "r1"); err != nil {
		t.Fatalf("delete room: %v", err)
	}
	if _, err := store.GetRoom(ctx, "r1"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected room removed, got %v", err)
	}
	if _, err := store.FindRoomByCode(ctx, "ABC234"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected code released, got %v", err)
	}
}

func TestStoreListsParticipantsByJoinOrder(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_ = store.CreateRoom(ctx, domain.Room{ID: "r1", Code: "ABC234"})

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"c", "a", "b"} {
		p := domain.Participant{ID: id, RoomID: "r1", JoinedAt: base.Add(time.Duration(2-i) * time.Second)}
		if err := store.AddParticipant(ctx, p); err != nil {
			t.Fatalf("add participant: %v", err)
		}
	}

	list, _ := store.ListParticipants(ctx, "r1")
	if len(list) != 3 || list[0].ID != "b" || list[1].ID != "a" || list[2].ID != "c" {
		t.Fatalf("unexpected order: %+v", list)
	}
	if n, _ := store.CountParticipants(ctx, "r1"); n != 3 {
		t.Fatalf("expected 3 participants, got %d", n)
	}
}

func TestStoreRecordAnswerIsCreateOnce(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_ = store.CreateRoom(ctx, domain.Room{ID: "r1", Code: "ABC234"})
	_ = store.AddParticipant(ctx, domain.Participant{ID: "p1", RoomID: "r1"})

	answer := domain.Answer{ParticipantID: "p1", RoomID: "r1", QuestionIndex: 0, PointsEarned: 120}
	score, err := store.RecordAnswer(ctx, answer)
	if err != nil || score != 120 {
		t.Fatalf("record answer: score=%d err=%v", score, err)
	}
	if _, err := store.RecordAnswer(ctx, answer); !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("expected already answered, got %v", err)
	}

	list, _ := store.ListParticipants(ctx, "r1")
	if list[0].Score != 120 {
		t.Fatalf("expected score unaffected by retry, got %d", list[0].Score)
	}
}

func TestStoreReadsBackAnswerAndScore(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_ = store.CreateRoom(ctx, domain.Room{ID: "r1", Code: "ABC234"})
	_ = store.AddParticipant(ctx, domain.Participant{ID: "p1", RoomID: "r1"})

	if _, err := store.GetAnswer(ctx, "r1", "p1", 0); !errors.Is(err, domain.ErrAnswerNotFound) {
		t.Fatalf("expected ErrAnswerNotFound, got %v", err)
	}
	if _, err := store.RecordAnswer(ctx, domain.Answer{ParticipantID: "p1", RoomID: "r1", SelectedOption: "a", PointsEarned: 130}); err != nil {
		t.Fatalf("record answer: %v", err)
	}
	got, err := store.GetAnswer(ctx, "r1", "p1", 0)
	if err != nil || got.SelectedOption != "a" || got.PointsEarned != 130 {
		t.Fatalf("get answer: %+v %v", got, err)
	}

	// A readiness update carrying a stale score must not clobber the stored one.
	if err := store.UpdateParticipant(ctx, domain.Participant{ID: "p1", RoomID: "r1", IsReady: true}); err != nil {
		t.Fatalf("update participant: %v", err)
	}
	p, err := store.GetParticipant(ctx, "r1", "p1")
	if err != nil || p.Score != 130 || !p.IsReady {
		t.Fatalf("get participant: %+v %v", p, err)
	}
	if _, err := store.GetParticipant(ctx, "r1", "ghost"); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected ErrParticipantNotFound, got %v", err)
	}
}

func TestStorePurgesOldCompletedRooms(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	old := now.Add(-48 * time.Hour)
	recent := now.Add(-time.Hour)

	_ = store.CreateRoom(ctx, domain.Room{ID: "old", Code: "OLD234", Status: domain.StatusCompleted, EndedAt: &old})
	_ = store.CreateRoom(ctx, domain.Room{ID: "recent", Code: "NEW234", Status: domain.StatusCompleted, EndedAt: &recent})
	_ = store.CreateRoom(ctx, domain.Room{ID: "live", Code: "LIV234", Status: domain.StatusInProgress})

	n, err := store.PurgeCompleted(ctx, now.Add(-24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("purge: n=%d err=%v", n, err)
	}
	if _, err := store.GetRoom(ctx, "old"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected old room purged, got %v", err)
	}
	if _, err := store.FindRoomByCode(ctx, "OLD234"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected old code released, got %v", err)
	}
	for _, id := range []string{"recent", "live"} {
		if _, err := store.GetRoom(ctx, id); err != nil {
			t.Fatalf("room %s should survive: %v", id, err)
		}
	}
}
