package app

import (
	"testing"

	"battle-quiz-service/internal/domain"
)

func TestScoreAnswer(t *testing.T) {
	q := domain.Question{ID: "q1", CorrectAnswer: "b"}

	cases := []struct {
		name      string
		selected  string
		remaining int
		correct   bool
		points    int
	}{
		{"correct with time left", "b", 10, true, 120},
		{"correct at buzzer", "b", 0, true, 100},
		{"correct with negative remaining", "b", -3, true, 100},
		{"incorrect", "a", 10, false, 0},
		{"timeout", "", 10, false, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			correct, points := ScoreAnswer(q, tc.selected, tc.remaining)
			if correct != tc.correct || points != tc.points {
				t.Fatalf("got (%v, %d), want (%v, %d)", correct, points, tc.correct, tc.points)
			}
		})
	}
}

func TestTimeoutNeverMatchesQuestionWithoutAnswer(t *testing.T) {
	if correct, points := ScoreAnswer(domain.Question{}, "", 15); correct || points != 0 {
		t.Fatalf("empty selection scored (%v, %d)", correct, points)
	}
}

func TestRoomCodes(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := newRoomCode()
		if err != nil {
			t.Fatalf("new code: %v", err)
		}
		if len(code) != codeLength || NormalizeCode(code) != code {
			t.Fatalf("unexpected code %q", code)
		}
		seen[code] = true
	}
	if len(seen) < 45 {
		t.Fatalf("codes not random enough: %d distinct", len(seen))
	}
	if NormalizeCode(" ab3cde ") != "AB3CDE" {
		t.Fatalf("normalize failed")
	}
}
