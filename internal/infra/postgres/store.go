package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"battle-quiz-service/internal/domain"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// Store persists rooms, participants and answers in Postgres.
// Tables are created by the battle migration in ./migrations.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}

const roomColumns = `id, code, mode, max_players, status, current_question_index,
	time_per_question, total_questions, questions, host_id, created_at, started_at, ended_at`

func (s *Store) CreateRoom(ctx context.Context, room domain.Room) error {
	questions, err := json.Marshal(room.Questions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO battle_rooms (`+roomColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		room.ID, room.Code, string(room.Mode), room.MaxPlayers, string(room.Status), room.CurrentQuestionIndex,
		room.TimePerQuestion, room.TotalQuestions, questions, room.HostID, room.CreatedAt, room.StartedAt, room.EndedAt)
	if pgCode(err) == uniqueViolation {
		return domain.ErrCodeTaken
	}
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func scanRoom(row pgx.Row) (domain.Room, error) {
	var (
		room      domain.Room
		mode      string
		status    string
		questions []byte
	)
	err := row.Scan(&room.ID, &room.Code, &mode, &room.MaxPlayers, &status, &room.CurrentQuestionIndex,
		&room.TimePerQuestion, &room.TotalQuestions, &questions, &room.HostID, &room.CreatedAt,
		&room.StartedAt, &room.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, unavailable(err)
	}
	room.Mode = domain.Mode(mode)
	room.Status = domain.RoomStatus(status)
	if err := json.Unmarshal(questions, &room.Questions); err != nil {
		return domain.Room{}, fmt.Errorf("unmarshal questions: %w", err)
	}
	return room, nil
}

func (s *Store) GetRoom(ctx context.Context, roomID string) (domain.Room, error) {
	return scanRoom(s.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM battle_rooms WHERE id=$1`, roomID))
}

func (s *Store) FindRoomByCode(ctx context.Context, code string) (domain.Room, error) {
	return scanRoom(s.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM battle_rooms WHERE code=$1`, code))
}

func (s *Store) UpdateRoom(ctx context.Context, room domain.Room) error {
	tag, err := s.pool.Exec(ctx, `UPDATE battle_rooms
		SET status=$2, current_question_index=$3, host_id=$4, started_at=$5, ended_at=$6
		WHERE id=$1`,
		room.ID, string(room.Status), room.CurrentQuestionIndex, room.HostID, room.StartedAt, room.EndedAt)
	if err != nil {
		return unavailable(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

// DeleteRoom cascades to participants, answers and results.
func (s *Store) DeleteRoom(ctx context.Context, roomID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM battle_rooms WHERE id=$1`, roomID); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) AddParticipant(ctx context.Context, p domain.Participant) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO battle_participants
		(id, room_id, user_id, display_name, score, is_ready, team, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.RoomID, p.UserID, p.DisplayName, p.Score, p.IsReady, string(p.Team), p.JoinedAt)
	if pgCode(err) == foreignKeyViolation {
		return domain.ErrRoomNotFound
	}
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// UpdateParticipant leaves score alone; it only moves through RecordAnswer.
func (s *Store) UpdateParticipant(ctx context.Context, p domain.Participant) error {
	tag, err := s.pool.Exec(ctx, `UPDATE battle_participants
		SET display_name=$3, is_ready=$4, team=$5
		WHERE room_id=$1 AND id=$2`,
		p.RoomID, p.ID, p.DisplayName, p.IsReady, string(p.Team))
	if err != nil {
		return unavailable(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrParticipantNotFound
	}
	return nil
}

func (s *Store) DeleteParticipant(ctx context.Context, roomID, participantID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM battle_participants WHERE room_id=$1 AND id=$2`, roomID, participantID)
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) ListParticipants(ctx context.Context, roomID string) ([]domain.Participant, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, room_id, user_id, display_name, score, is_ready, team, joined_at
		FROM battle_participants WHERE room_id=$1 ORDER BY joined_at ASC, id ASC`, roomID)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var out []domain.Participant
	for rows.Next() {
		var (
			p    domain.Participant
			team string
		)
		if err := rows.Scan(&p.ID, &p.RoomID, &p.UserID, &p.DisplayName, &p.Score, &p.IsReady, &team, &p.JoinedAt); err != nil {
			return nil, unavailable(err)
		}
		p.Team = domain.Team(team)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

func (s *Store) GetParticipant(ctx context.Context, roomID, participantID string) (domain.Participant, error) {
	var (
		p    domain.Participant
		team string
	)
	err := s.pool.QueryRow(ctx, `SELECT id, room_id, user_id, display_name, score, is_ready, team, joined_at
		FROM battle_participants WHERE room_id=$1 AND id=$2`, roomID, participantID).
		Scan(&p.ID, &p.RoomID, &p.UserID, &p.DisplayName, &p.Score, &p.IsReady, &team, &p.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, unavailable(err)
	}
	p.Team = domain.Team(team)
	return p, nil
}

func (s *Store) CountParticipants(ctx context.Context, roomID string) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM battle_participants WHERE room_id=$1`, roomID).Scan(&n); err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

var errDuplicateAnswer = errors.New("duplicate answer")

// RecordAnswer inserts the answer and bumps the score in one transaction.
// The (participant_id, question_index) primary key keeps answers create-once.
func (s *Store) RecordAnswer(ctx context.Context, a domain.Answer) (int, error) {
	var score int
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `INSERT INTO battle_answers
			(participant_id, room_id, question_index, selected_option, is_correct, seconds_remaining, points_earned, submitted_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (participant_id, question_index) DO NOTHING`,
			a.ParticipantID, a.RoomID, a.QuestionIndex, a.SelectedOption, a.IsCorrect, a.SecondsRemaining,
			a.PointsEarned, a.SubmittedAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errDuplicateAnswer
		}
		return tx.QueryRow(ctx, `UPDATE battle_participants SET score = score + $3
			WHERE room_id=$1 AND id=$2 RETURNING score`,
			a.RoomID, a.ParticipantID, a.PointsEarned).Scan(&score)
	})
	switch {
	case errors.Is(err, errDuplicateAnswer):
		return 0, domain.ErrAlreadyAnswered
	case errors.Is(err, pgx.ErrNoRows), pgCode(err) == foreignKeyViolation:
		return 0, domain.ErrParticipantNotFound
	case err != nil:
		return 0, unavailable(err)
	}
	return score, nil
}

func (s *Store) GetAnswer(ctx context.Context, roomID, participantID string, questionIndex int) (domain.Answer, error) {
	var a domain.Answer
	err := s.pool.QueryRow(ctx, `SELECT participant_id, room_id, question_index, selected_option, is_correct,
		seconds_remaining, points_earned, submitted_at
		FROM battle_answers WHERE room_id=$1 AND participant_id=$2 AND question_index=$3`,
		roomID, participantID, questionIndex).
		Scan(&a.ParticipantID, &a.RoomID, &a.QuestionIndex, &a.SelectedOption, &a.IsCorrect,
			&a.SecondsRemaining, &a.PointsEarned, &a.SubmittedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Answer{}, domain.ErrAnswerNotFound
	}
	if err != nil {
		return domain.Answer{}, unavailable(err)
	}
	return a, nil
}

func (s *Store) ListAnswers(ctx context.Context, roomID string) ([]domain.Answer, error) {
	rows, err := s.pool.Query(ctx, `SELECT participant_id, room_id, question_index, selected_option, is_correct,
		seconds_remaining, points_earned, submitted_at
		FROM battle_answers WHERE room_id=$1 ORDER BY question_index, submitted_at`, roomID)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var out []domain.Answer
	for rows.Next() {
		var a domain.Answer
		if err := rows.Scan(&a.ParticipantID, &a.RoomID, &a.QuestionIndex, &a.SelectedOption, &a.IsCorrect,
			&a.SecondsRemaining, &a.PointsEarned, &a.SubmittedAt); err != nil {
			return nil, unavailable(err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

func (s *Store) SaveResults(ctx context.Context, results domain.Results) error {
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO battle_results (room_id, data, ended_at) VALUES ($1, $2, $3)
		ON CONFLICT (room_id) DO UPDATE SET data = EXCLUDED.data, ended_at = EXCLUDED.ended_at`,
		results.RoomID, data, results.EndedAt)
	if pgCode(err) == foreignKeyViolation {
		return domain.ErrRoomNotFound
	}
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) GetResults(ctx context.Context, roomID string) (domain.Results, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM battle_results WHERE room_id=$1`, roomID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
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

// PurgeCompleted removes completed rooms that ended before the cutoff.
func (s *Store) PurgeCompleted(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM battle_rooms WHERE status=$1 AND ended_at < $2`,
		string(domain.StatusCompleted), before)
	if err != nil {
		return 0, unavailable(err)
	}
	return tag.RowsAffected(), nil
}
