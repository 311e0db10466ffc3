package app

import (
	"errors"
	"time"

	"battle-quiz-service/internal/domain"
	"github.com/sirupsen/logrus"
)

func (a *roomActor) timerC() <-chan time.Time {
	if a.timer == nil {
		return nil
	}
	return a.timer.Chan()
}

func (a *roomActor) startCountdown() {
	a.stopCountdown()
	d := time.Duration(a.room.TimePerQuestion) * time.Second
	a.deadline = a.now().Add(d)
	a.timer = a.clock.NewTimer(d)
}

func (a *roomActor) stopCountdown() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

func (a *roomActor) secondsRemaining() int {
	left := a.deadline.Sub(a.now())
	if left <= 0 {
		return 0
	}
	return int(left / time.Second)
}

func (a *roomActor) onDeadline() {
	a.timer = nil
	if a.room.Status != domain.StatusInProgress {
		return
	}
	a.logger().WithField("question", a.room.CurrentQuestionIndex).Debug("question timed out")
	a.closeQuestion()
}

// allAnswered reports whether every seated participant has an answer for index.
func (a *roomActor) allAnswered(index int) bool {
	if len(a.participants) == 0 {
		return false
	}
	for _, p := range a.participants {
		if _, ok := a.answers[answerKey{p.ID, index}]; !ok {
			return false
		}
	}
	return true
}

// closeQuestion records timeouts for the active question and moves the room
// to the next one, or completes it after the last.
func (a *roomActor) closeQuestion() {
	index := a.room.CurrentQuestionIndex
	a.recordTimeouts(index)

	next := index + 1
	if next >= a.room.TotalQuestions {
		a.complete()
		return
	}

	a.room.CurrentQuestionIndex = next
	a.persistRoom("advance question")
	a.startCountdown()

	deadline := a.deadline
	a.logger().WithField("question", next).Debug("question advanced")
	a.publish(domain.Event{
		Type:            domain.EventQuestionAdvanced,
		Status:          a.room.Status,
		QuestionIndex:   next,
		Question:        publicQuestion(a.room.Questions[next]),
		Deadline:        &deadline,
		TimePerQuestion: a.room.TimePerQuestion,
	})
}

// recordTimeouts gives every participant without an answer an empty, zero-point one.
func (a *roomActor) recordTimeouts(index int) {
	now := a.now()
	for _, p := range a.participants {
		key := answerKey{p.ID, index}
		if _, ok := a.answers[key]; ok {
			continue
		}
		answer := domain.Answer{
			ParticipantID: p.ID,
			RoomID:        a.id,
			QuestionIndex: index,
			SubmittedAt:   now,
		}
		log := a.logger().WithFields(logrus.Fields{"participant": p.ID, "question": index})
		taken := false
		err := a.policy.retry(a.ctx, log, "record timeout", func() error {
			_, err := a.store.RecordAnswer(a.ctx, answer)
			if errors.Is(err, domain.ErrAlreadyAnswered) {
				taken = true
				return nil
			}
			return err
		})
		if err != nil {
			log.WithError(err).Error("timeout answer abandoned")
		}
		if taken {
			// A submission landed whose reply never reached the actor; keep it.
			var found bool
			err := a.policy.retry(a.ctx, log, "reload answer", func() error {
				var err error
				found, err = a.syncAnswer(a.ctx, p, index)
				return err
			})
			if err != nil {
				log.WithError(err).Error("reload stored answer abandoned")
			}
			if found {
				continue
			}
		}
		a.answers[key] = answer
	}
}

// complete moves the room to its terminal state and finalizes the results.
func (a *roomActor) complete() {
	a.stopCountdown()
	now := a.now()
	a.room.Status = domain.StatusCompleted
	a.room.CurrentQuestionIndex = a.room.TotalQuestions
	a.room.EndedAt = &now
	a.persistRoom("complete room")

	results := computeResults(a.room, a.participants, a.answers, now)
	a.results = &results
	err := a.policy.retry(a.ctx, a.logger(), "save results", func() error {
		return a.store.SaveResults(a.ctx, results)
	})
	if err != nil {
		a.logger().WithError(err).Error("results write abandoned")
	}

	a.logger().Info("room completed")
	a.publish(domain.Event{
		Type:          domain.EventRoomCompleted,
		Status:        domain.StatusCompleted,
		QuestionIndex: a.room.CurrentQuestionIndex,
		Results:       &results,
	})
}
