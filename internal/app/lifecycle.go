package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"battle-quiz-service/internal/domain"
)

// canStart reports whether head-count and readiness allow the room to start.
// A host-triggered start skips the readiness check in modes that do not require it.
func (a *roomActor) canStart(hostTriggered bool) bool {
	rules, ok := a.room.Mode.Rules()
	if !ok {
		return false
	}
	n := len(a.participants)
	if n < rules.MinPlayers || n > rules.MaxPlayers {
		return false
	}
	if hostTriggered && !rules.RequireReady {
		return true
	}
	for _, p := range a.participants {
		if !p.IsReady {
			return false
		}
	}
	return true
}

func (a *roomActor) maybeAutoStart() {
	if !a.canStart(false) {
		return
	}
	if err := a.start(a.ctx); err != nil {
		a.logger().WithError(err).Warn("auto start failed")
	}
}

// startByHost is the explicit start requested by the host.
func (a *roomActor) startByHost(ctx context.Context, participantID string) error {
	if _, p := a.find(participantID); p == nil {
		return domain.ErrParticipantNotFound
	}
	if a.room.HostID != participantID {
		return domain.ErrNotHost
	}
	if a.room.Status != domain.StatusWaiting {
		return domain.ErrAlreadyStarted
	}
	if !a.canStart(true) {
		return domain.ErrNotReady
	}
	return a.start(ctx)
}

// start moves the room from waiting to in_progress and opens question 0.
// The question list is frozen from here on.
func (a *roomActor) start(ctx context.Context) error {
	if a.room.Status != domain.StatusWaiting {
		return domain.ErrAlreadyStarted
	}
	if len(a.room.Questions) != a.room.TotalQuestions || a.room.TotalQuestions == 0 {
		return fmt.Errorf("%w: %d questions for total %d", domain.ErrInvalidRoom, len(a.room.Questions), a.room.TotalQuestions)
	}

	now := a.now()
	started := a.room.Clone()
	started.Status = domain.StatusInProgress
	started.CurrentQuestionIndex = 0
	started.StartedAt = &now
	if err := a.store.UpdateRoom(ctx, started); err != nil {
		return err
	}
	a.room = started
	a.startCountdown()

	deadline := a.deadline
	a.logger().Info("room started")
	a.publish(domain.Event{
		Type:            domain.EventRoomStarted,
		Status:          domain.StatusInProgress,
		QuestionIndex:   0,
		Question:        publicQuestion(a.room.Questions[0]),
		Deadline:        &deadline,
		TimePerQuestion: a.room.TimePerQuestion,
	})
	return nil
}

// computeResults ranks participants by score, then by the earlier aggregate
// submission time of their correct answers, then by joined_at.
func computeResults(room domain.Room, participants []*domain.Participant, answers map[answerKey]domain.Answer, endedAt time.Time) domain.Results {
	type row struct {
		standing  domain.Standing
		aggregate time.Duration
		joinedAt  time.Time
	}

	var start time.Time
	if room.StartedAt != nil {
		start = *room.StartedAt
	}

	rows := make([]row, 0, len(participants))
	for _, p := range participants {
		r := row{
			standing: domain.Standing{
				ParticipantID: p.ID,
				DisplayName:   p.DisplayName,
				Team:          p.Team,
				Score:         p.Score,
			},
			joinedAt: p.JoinedAt,
		}
		for i := 0; i < room.TotalQuestions; i++ {
			if ans, ok := answers[answerKey{p.ID, i}]; ok && ans.IsCorrect {
				r.standing.Correct++
				r.aggregate += ans.SubmittedAt.Sub(start)
			}
		}
		rows = append(rows, r)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].standing.Score != rows[j].standing.Score {
			return rows[i].standing.Score > rows[j].standing.Score
		}
		if rows[i].aggregate != rows[j].aggregate {
			return rows[i].aggregate < rows[j].aggregate
		}
		return rows[i].joinedAt.Before(rows[j].joinedAt)
	})

	results := domain.Results{RoomID: room.ID, EndedAt: endedAt}
	rules, _ := room.Mode.Rules()
	if rules.Teams {
		results.TeamScores = map[domain.Team]int{domain.TeamA: 0, domain.TeamB: 0}
	}
	for i, r := range rows {
		r.standing.Rank = i + 1
		results.Standings = append(results.Standings, r.standing)
		if results.TeamScores != nil {
			results.TeamScores[r.standing.Team] += r.standing.Score
		}
	}
	return results
}
