package domain

import "time"

// RoomStatus is the lifecycle state of a battle room.
type RoomStatus string

const (
	StatusWaiting    RoomStatus = "waiting"
	StatusInProgress RoomStatus = "in_progress"
	StatusCompleted  RoomStatus = "completed"
)

// Room is one multiplayer quiz battle.
type Room struct {
	ID                   string     `json:"id"`
	Code                 string     `json:"code"`
	Mode                 Mode       `json:"mode"`
	MaxPlayers           int        `json:"maxPlayers"`
	Status               RoomStatus `json:"status"`
	CurrentQuestionIndex int        `json:"currentQuestionIndex"`
	TimePerQuestion      int        `json:"timePerQuestion"` // seconds
	TotalQuestions       int        `json:"totalQuestions"`
	Questions            []Question `json:"questions"`
	HostID               string     `json:"hostId"`
	CreatedAt            time.Time  `json:"createdAt"`
	StartedAt            *time.Time `json:"startedAt,omitempty"`
	EndedAt              *time.Time `json:"endedAt,omitempty"`
}

// Clone returns a copy that shares no mutable state with r.
func (r Room) Clone() Room {
	out := r
	out.Questions = append([]Question(nil), r.Questions...)
	if r.StartedAt != nil {
		t := *r.StartedAt
		out.StartedAt = &t
	}
	if r.EndedAt != nil {
		t := *r.EndedAt
		out.EndedAt = &t
	}
	return out
}

// Participant is a player seated in exactly one room.
type Participant struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"roomId"`
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	Score       int       `json:"score"`
	IsReady     bool      `json:"isReady"`
	Team        Team      `json:"team,omitempty"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// Identity is the caller-supplied identity of a joining user.
type Identity struct {
	UserID      string
	DisplayName string
}

// Answer is a single create-once submission for one question.
type Answer struct {
	ParticipantID    string    `json:"participantId"`
	RoomID           string    `json:"roomId"`
	QuestionIndex    int       `json:"questionIndex"`
	SelectedOption   string    `json:"selectedOption"` // empty means timeout
	IsCorrect        bool      `json:"isCorrect"`
	SecondsRemaining int       `json:"secondsRemaining"`
	PointsEarned     int       `json:"pointsEarned"`
	SubmittedAt      time.Time `json:"submittedAt"`
}

// ScoredAnswer is returned to the submitting client for immediate feedback.
type ScoredAnswer struct {
	Answer
	CorrectAnswer string `json:"correctAnswer"`
	TotalScore    int    `json:"totalScore"`
}

// Option represents a possible answer for a question.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question models an MCQ question; CorrectAnswer holds the ID of the right option.
type Question struct {
	ID            string   `json:"id"`
	Prompt        string   `json:"prompt"`
	Options       []Option `json:"options"`
	CorrectAnswer string   `json:"correctAnswer,omitempty"`
}

// Quiz is an ordered collection of questions in the question bank.
type Quiz struct {
	ID        string     `json:"id"`
	Questions []Question `json:"questions"`
}

// Standing is one row of the final results.
type Standing struct {
	Rank          int    `json:"rank"`
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"displayName"`
	Team          Team   `json:"team,omitempty"`
	Score         int    `json:"score"`
	Correct       int    `json:"correct"`
}

// Results is the finalized outcome of a completed room.
type Results struct {
	RoomID     string       `json:"roomId"`
	Standings  []Standing   `json:"standings"`
	TeamScores map[Team]int `json:"teamScores,omitempty"`
	EndedAt    time.Time    `json:"endedAt"`
}

// RoomSnapshot is the resync view of a room offered to reconnecting clients.
type RoomSnapshot struct {
	Room             Room          `json:"room"`
	Participants     []Participant `json:"participants"`
	SecondsRemaining int           `json:"secondsRemaining"`
	Deadline         *time.Time    `json:"deadline,omitempty"`
	Results          *Results      `json:"results,omitempty"`
	Seq              uint64        `json:"seq"`
}
