package app

import "battle-quiz-service/internal/domain"

const (
	basePoints         = 100
	timeBonusPerSecond = 2
)

// ScoreAnswer returns whether selected is correct for q and the points it earns.
// An empty selection is a timeout and never scores.
func ScoreAnswer(q domain.Question, selected string, secondsRemaining int) (bool, int) {
	if selected == "" || selected != q.CorrectAnswer {
		return false, 0
	}
	bonus := secondsRemaining * timeBonusPerSecond
	if bonus < 0 {
		bonus = 0
	}
	return true, basePoints + bonus
}
