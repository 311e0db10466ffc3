package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"battle-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Store is a Redis implementation of app.Store.
// Layout:
//
//	battle:room:{id}                 JSON room
//	battle:code:{code}               room id (SETNX keeps codes unique)
//	battle:room:{id}:seats           ZSET participant id scored by joined_at
//	battle:room:{id}:seat:{pid}      HASH data=JSON participant, score=int
//	battle:room:{id}:answers         HASH {pid}:{index} -> JSON answer
//	battle:room:{id}:results         JSON results
//
// Completed rooms expire after ttl; rooms in play never expire.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

// recordAnswer inserts the answer once and bumps the seat score atomically.
var recordAnswer = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 0 then return -2 end
if redis.call('HSETNX', KEYS[1], ARGV[1], ARGV[2]) == 0 then return -1 end
return redis.call('HINCRBY', KEYS[2], 'score', ARGV[3])
`)

func roomKey(id string) string { return "battle:room:" + id }
func codeKey(code string) string { return "battle:code:" + code }
func seatsKey(roomID string) string { return roomKey(roomID) + ":seats" }
func seatKey(roomID, pid string) string { return roomKey(roomID) + ":seat:" + pid }
func answersKey(roomID string) string { return roomKey(roomID) + ":answers" }
func resultsKey(roomID string) string { return roomKey(roomID) + ":results" }
func answerField(pid string, i int) string { return pid + ":" + strconv.Itoa(i) }

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}

func (s *Store) CreateRoom(ctx context.Context, room domain.Room) error {
	ok, err := s.client.SetNX(ctx, codeKey(room.Code), room.ID, 0).Result()
	if err != nil {
		return unavailable(err)
	}
	if !ok {
		return domain.ErrCodeTaken
	}
	if err := s.putRoom(ctx, room); err != nil {
		_ = s.client.Del(ctx, codeKey(room.Code)).Err()
		return err
	}
	return nil
}

func (s *Store) putRoom(ctx context.Context, room domain.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("marshal room: %w", err)
	}
	if err := s.client.Set(ctx, roomKey(room.ID), data, 0).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) GetRoom(ctx context.Context, roomID string) (domain.Room, error) {
	data, err := s.client.Get(ctx, roomKey(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, unavailable(err)
	}
	var room domain.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return domain.Room{}, fmt.Errorf("unmarshal room: %w", err)
	}
	return room, nil
}

func (s *Store) FindRoomByCode(ctx context.Context, code string) (domain.Room, error) {
	id, err := s.client.Get(ctx, codeKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, unavailable(err)
	}
	return s.GetRoom(ctx, id)
}

func (s *Store) UpdateRoom(ctx context.Context, room domain.Room) error {
	n, err := s.client.Exists(ctx, roomKey(room.ID)).Result()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return domain.ErrRoomNotFound
	}
	if err := s.putRoom(ctx, room); err != nil {
		return err
	}
	if room.Status == domain.StatusCompleted && s.ttl > 0 {
		s.expireRoom(ctx, room)
	}
	return nil
}

// expireRoom schedules every key of a finished room for expiry; best-effort.
func (s *Store) expireRoom(ctx context.Context, room domain.Room) {
	seats, _ := s.client.ZRange(ctx, seatsKey(room.ID), 0, -1).Result()
	pipe := s.client.Pipeline()
	for _, key := range s.roomKeys(room, seats) {
		pipe.Expire(ctx, key, s.ttl)
	}
	_, _ = pipe.Exec(ctx)
}

func (s *Store) roomKeys(room domain.Room, seats []string) []string {
	keys := []string{roomKey(room.ID), codeKey(room.Code), seatsKey(room.ID), answersKey(room.ID), resultsKey(room.ID)}
	for _, pid := range seats {
		keys = append(keys, seatKey(room.ID, pid))
	}
	return keys
}

func (s *Store) DeleteRoom(ctx context.Context, roomID string) error {
	room, err := s.GetRoom(ctx, roomID)
	if errors.Is(err, domain.ErrRoomNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	seats, err := s.client.ZRange(ctx, seatsKey(roomID), 0, -1).Result()
	if err != nil {
		return unavailable(err)
	}
	if err := s.client.Del(ctx, s.roomKeys(room, seats)...).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) AddParticipant(ctx context.Context, participant domain.Participant) error {
	data, err := json.Marshal(participant)
	if err != nil {
		return fmt.Errorf("marshal participant: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, seatKey(participant.RoomID, participant.ID), "data", data, "score", participant.Score)
		pipe.ZAdd(ctx, seatsKey(participant.RoomID), redis.Z{
			Score:  float64(participant.JoinedAt.UnixMicro()),
			Member: participant.ID,
		})
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// UpdateParticipant rewrites the seat data; the score field is owned by RecordAnswer.
func (s *Store) UpdateParticipant(ctx context.Context, participant domain.Participant) error {
	key := seatKey(participant.RoomID, participant.ID)
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return domain.ErrParticipantNotFound
	}
	data, err := json.Marshal(participant)
	if err != nil {
		return fmt.Errorf("marshal participant: %w", err)
	}
	if err := s.client.HSet(ctx, key, "data", data).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) DeleteParticipant(ctx context.Context, roomID, participantID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, seatsKey(roomID), participantID)
		pipe.Del(ctx, seatKey(roomID, participantID))
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) ListParticipants(ctx context.Context, roomID string) ([]domain.Participant, error) {
	ids, err := s.client.ZRange(ctx, seatsKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, seatKey(roomID, id))
		}
		return nil
	})
	if err != nil {
		return nil, unavailable(err)
	}

	out := make([]domain.Participant, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		p, err := decodeSeat(fields)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func decodeSeat(fields map[string]string) (domain.Participant, error) {
	var p domain.Participant
	if err := json.Unmarshal([]byte(fields["data"]), &p); err != nil {
		return domain.Participant{}, fmt.Errorf("unmarshal participant: %w", err)
	}
	if score, err := strconv.Atoi(fields["score"]); err == nil {
		p.Score = score
	}
	return p, nil
}

func (s *Store) GetParticipant(ctx context.Context, roomID, participantID string) (domain.Participant, error) {
	fields, err := s.client.HGetAll(ctx, seatKey(roomID, participantID)).Result()
	if err != nil {
		return domain.Participant{}, unavailable(err)
	}
	if len(fields) == 0 {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return decodeSeat(fields)
}

func (s *Store) CountParticipants(ctx context.Context, roomID string) (int, error) {
	n, err := s.client.ZCard(ctx, seatsKey(roomID)).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	return int(n), nil
}

func (s *Store) RecordAnswer(ctx context.Context, answer domain.Answer) (int, error) {
	data, err := json.Marshal(answer)
	if err != nil {
		return 0, fmt.Errorf("marshal answer: %w", err)
	}
	keys := []string{answersKey(answer.RoomID), seatKey(answer.RoomID, answer.ParticipantID)}
	res, err := recordAnswer.Run(ctx, s.client, keys,
		answerField(answer.ParticipantID, answer.QuestionIndex), data, answer.PointsEarned).Int()
	if err != nil {
		return 0, unavailable(err)
	}
	switch res {
	case -1:
		return 0, domain.ErrAlreadyAnswered
	case -2:
		return 0, domain.ErrParticipantNotFound
	}
	return res, nil
}

func (s *Store) GetAnswer(ctx context.Context, roomID, participantID string, questionIndex int) (domain.Answer, error) {
	data, err := s.client.HGet(ctx, answersKey(roomID), answerField(participantID, questionIndex)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Answer{}, domain.ErrAnswerNotFound
	}
	if err != nil {
		return domain.Answer{}, unavailable(err)
	}
	var a domain.Answer
	if err := json.Unmarshal(data, &a); err != nil {
		return domain.Answer{}, fmt.Errorf("unmarshal answer: %w", err)
	}
	return a, nil
}

func (s *Store) ListAnswers(ctx context.Context, roomID string) ([]domain.Answer, error) {
	raw, err := s.client.HGetAll(ctx, answersKey(roomID)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	out := make([]domain.Answer, 0, len(raw))
	for _, data := range raw {
		var a domain.Answer
		if err := json.Unmarshal([]byte(data), &a); err != nil {
			return nil, fmt.Errorf("unmarshal answer: %w", err)
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *Store) SaveResults(ctx context.Context, results domain.Results) error {
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	if err := s.client.Set(ctx, resultsKey(results.RoomID), data, s.ttl).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) GetResults(ctx context.Context, roomID string) (domain.Results, error) {
	data, err := s.client.Get(ctx, resultsKey(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Results{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.Results{}, unavailable(err)
	}
	var results domain.Results
	if err := json.Unmarshal(data, &results); err != nil {
		return domain.Results{}, fmt.Errorf("unmarshal results: %w", err)
	}
	return results, nil
}
