package domain

import "time"

// EventType names a committed room transition.
type EventType string

const (
	EventParticipantJoined   EventType = "participant_joined"
	EventParticipantLeft     EventType = "participant_left"
	EventParticipantReady    EventType = "participant_ready"
	EventParticipantAnswered EventType = "participant_answered"
	EventHostChanged         EventType = "host_changed"
	EventRoomStarted         EventType = "room_started"
	EventQuestionAdvanced    EventType = "question_advanced"
	EventRoomCompleted       EventType = "room_completed"
	EventRoomClosed          EventType = "room_closed"
)

// Event is a state delta fanned out to every client of a room.
// Seq increases by one per event within a room so clients can detect gaps.
type Event struct {
	Type            EventType    `json:"type"`
	RoomID          string       `json:"roomId"`
	Seq             uint64       `json:"seq"`
	At              time.Time    `json:"at"`
	Participant     *Participant `json:"participant,omitempty"`
	ParticipantID   string       `json:"participantId,omitempty"`
	Score           int          `json:"score,omitempty"`
	HostID          string       `json:"hostId,omitempty"`
	Status          RoomStatus   `json:"status,omitempty"`
	QuestionIndex   int          `json:"questionIndex"`
	Question        *Question    `json:"question,omitempty"`
	Deadline        *time.Time   `json:"deadline,omitempty"`
	TimePerQuestion int          `json:"timePerQuestion,omitempty"`
	Results         *Results     `json:"results,omitempty"`
}
