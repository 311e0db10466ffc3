package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"battle-quiz-service/internal/domain"
)

// Store is an in-memory implementation of app.Store.
type Store struct {
	mu           sync.RWMutex
	rooms        map[string]domain.Room
	codes        map[string]string
	participants map[string]map[string]domain.Participant
	answers      map[string]map[answerKey]domain.Answer
	results      map[string]domain.Results
}

type answerKey struct {
	participantID string
	questionIndex int
}

func NewStore() *Store {
	return &Store{
		rooms:        make(map[string]domain.Room),
		codes:        make(map[string]string),
		participants: make(map[string]map[string]domain.Participant),
		answers:      make(map[string]map[answerKey]domain.Answer),
		results:      make(map[string]domain.Results),
	}
}

func (s *Store) CreateRoom(_ context.Context, room domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[room.Code]; ok {
		return domain.ErrCodeTaken
	}
	s.rooms[room.ID] = room.Clone()
	s.codes[room.Code] = room.ID
	s.participants[room.ID] = make(map[string]domain.Participant)
	s.answers[room.ID] = make(map[answerKey]domain.Answer)
	return nil
}

func (s *Store) GetRoom(_ context.Context, roomID string) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return room.Clone(), nil
}

func (s *Store) FindRoomByCode(_ context.Context, code string) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.codes[code]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return s.rooms[id].Clone(), nil
}

func (s *Store) UpdateRoom(_ context.Context, room domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.ID]; !ok {
		return domain.ErrRoomNotFound
	}
	s.rooms[room.ID] = room.Clone()
	return nil
}

func (s *Store) DeleteRoom(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	delete(s.codes, room.Code)
	delete(s.rooms, roomID)
	delete(s.participants, roomID)
	delete(s.answers, roomID)
	delete(s.results, roomID)
	return nil
}

func (s *Store) AddParticipant(_ context.Context, participant domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seats, ok := s.participants[participant.RoomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	seats[participant.ID] = participant
	return nil
}

func (s *Store) GetParticipant(_ context.Context, roomID, participantID string) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[roomID][participantID]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return p, nil
}

func (s *Store) UpdateParticipant(_ context.Context, participant domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seats := s.participants[participant.RoomID]
	stored, ok := seats[participant.ID]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	// Score only moves through RecordAnswer.
	participant.Score = stored.Score
	seats[participant.ID] = participant
	return nil
}

func (s *Store) DeleteParticipant(_ context.Context, roomID, participantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.participants[roomID], participantID)
	return nil
}

func (s *Store) ListParticipants(_ context.Context, roomID string) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seats := s.participants[roomID]
	out := make([]domain.Participant, 0, len(seats))
	for _, p := range seats {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (s *Store) CountParticipants(_ context.Context, roomID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.participants[roomID]), nil
}

func (s *Store) RecordAnswer(_ context.Context, answer domain.Answer) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	answers, ok := s.answers[answer.RoomID]
	if !ok {
		return 0, domain.ErrRoomNotFound
	}
	key := answerKey{answer.ParticipantID, answer.QuestionIndex}
	if _, dup := answers[key]; dup {
		return 0, domain.ErrAlreadyAnswered
	}
	seats := s.participants[answer.RoomID]
	p, ok := seats[answer.ParticipantID]
	if !ok {
		return 0, domain.ErrParticipantNotFound
	}
	answers[key] = answer
	p.Score += answer.PointsEarned
	seats[p.ID] = p
	return p.Score, nil
}

func (s *Store) GetAnswer(_ context.Context, roomID, participantID string, questionIndex int) (domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.answers[roomID][answerKey{participantID, questionIndex}]
	if !ok {
		return domain.Answer{}, domain.ErrAnswerNotFound
	}
	return a, nil
}

func (s *Store) ListAnswers(_ context.Context, roomID string) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Answer, 0, len(s.answers[roomID]))
	for _, a := range s.answers[roomID] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].QuestionIndex != out[j].QuestionIndex {
			return out[i].QuestionIndex < out[j].QuestionIndex
		}
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out, nil
}

func (s *Store) SaveResults(_ context.Context, results domain.Results) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[results.RoomID]; !ok {
		return domain.ErrRoomNotFound
	}
	s.results[results.RoomID] = results
	return nil
}

func (s *Store) GetResults(_ context.Context, roomID string) (domain.Results, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	results, ok := s.results[roomID]
	if !ok {
		return domain.Results{}, domain.ErrRoomNotFound
	}
	return results, nil
}

// PurgeCompleted removes completed rooms that ended before the cutoff.
func (s *Store) PurgeCompleted(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, room := range s.rooms {
		if room.Status != domain.StatusCompleted || room.EndedAt == nil || !room.EndedAt.Before(before) {
			continue
		}
		delete(s.codes, room.Code)
		delete(s.rooms, id)
		delete(s.participants, id)
		delete(s.answers, id)
		delete(s.results, id)
		n++
	}
	return n, nil
}
