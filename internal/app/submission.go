package app

import (
	"context"
	"errors"

	"battle-quiz-service/internal/domain"
	"github.com/sirupsen/logrus"
)

// submit scores and records one answer for the active question. Answers are
// create-once: a retry of a submission that already landed gets ErrAlreadyAnswered.
func (a *roomActor) submit(ctx context.Context, participantID string, questionIndex int, option string) (domain.ScoredAnswer, error) {
	_, p := a.find(participantID)
	if p == nil {
		return domain.ScoredAnswer{}, domain.ErrParticipantNotFound
	}
	key := answerKey{participantID, questionIndex}
	if _, ok := a.answers[key]; ok {
		return domain.ScoredAnswer{}, domain.ErrAlreadyAnswered
	}
	switch a.room.Status {
	case domain.StatusWaiting:
		return domain.ScoredAnswer{}, domain.ErrNotInProgress
	case domain.StatusCompleted:
		return domain.ScoredAnswer{}, domain.ErrStaleQuestion
	}
	if questionIndex != a.room.CurrentQuestionIndex {
		return domain.ScoredAnswer{}, domain.ErrStaleQuestion
	}

	question := a.room.Questions[questionIndex]
	remaining := a.secondsRemaining()
	correct, points := ScoreAnswer(question, option, remaining)
	answer := domain.Answer{
		ParticipantID:    participantID,
		RoomID:           a.id,
		QuestionIndex:    questionIndex,
		SelectedOption:   option,
		IsCorrect:        correct,
		SecondsRemaining: remaining,
		PointsEarned:     points,
		SubmittedAt:      a.now(),
	}

	total, err := a.store.RecordAnswer(ctx, answer)
	if err != nil {
		// The write may have landed even though the reply was lost.
		if errors.Is(err, domain.ErrAlreadyAnswered) || errors.Is(err, domain.ErrStoreUnavailable) {
			a.adoptStoredAnswer(ctx, p, questionIndex)
		}
		return domain.ScoredAnswer{}, err
	}
	a.answers[key] = answer
	p.Score = total

	a.publish(domain.Event{
		Type:          domain.EventParticipantAnswered,
		ParticipantID: participantID,
		Score:         total,
		QuestionIndex: questionIndex,
	})

	result := domain.ScoredAnswer{
		Answer:        answer,
		CorrectAnswer: question.CorrectAnswer,
		TotalScore:    total,
	}
	if a.allAnswered(questionIndex) {
		a.closeQuestion()
	}
	return result, nil
}

// adoptStoredAnswer reloads an answer the store holds but the actor does not,
// then closes the question if that was the last one outstanding.
func (a *roomActor) adoptStoredAnswer(ctx context.Context, p *domain.Participant, index int) {
	found, err := a.syncAnswer(ctx, p, index)
	if err != nil {
		a.logger().WithError(err).WithFields(logrus.Fields{"participant": p.ID, "question": index}).
			Warn("reload stored answer failed")
		return
	}
	if found && index == a.room.CurrentQuestionIndex && a.room.Status == domain.StatusInProgress && a.allAnswered(index) {
		a.closeQuestion()
	}
}

// syncAnswer copies p's stored answer for index and its stored score into the
// actor. It reports false when the store has no such answer.
func (a *roomActor) syncAnswer(ctx context.Context, p *domain.Participant, index int) (bool, error) {
	answer, err := a.store.GetAnswer(ctx, a.id, p.ID, index)
	if errors.Is(err, domain.ErrAnswerNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	stored, err := a.store.GetParticipant(ctx, a.id, p.ID)
	if err != nil {
		return false, err
	}
	key := answerKey{p.ID, index}
	if _, ok := a.answers[key]; ok {
		return true, nil
	}
	a.answers[key] = answer
	p.Score = stored.Score

	a.publish(domain.Event{
		Type:          domain.EventParticipantAnswered,
		ParticipantID: p.ID,
		Score:         p.Score,
		QuestionIndex: index,
	})
	return true, nil
}
