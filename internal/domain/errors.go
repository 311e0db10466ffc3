package domain

import "errors"

var (
	// ErrRoomNotFound is returned when no room matches an id or join code.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomFull is returned when the room already seats max_players.
	ErrRoomFull = errors.New("room is full")
	// ErrAlreadyStarted rejects late joins.
	ErrAlreadyStarted = errors.New("room already started")
	// ErrNotReady is returned when a start is requested before head-count or readiness is satisfied.
	ErrNotReady = errors.New("room not ready to start")
	// ErrAlreadyAnswered is returned for a second submission on the same question.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrStaleQuestion is returned when an answer targets a question that is not active.
	ErrStaleQuestion = errors.New("question is not the active question")
	// ErrStoreUnavailable wraps transient persistence failures.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrParticipantNotFound is returned when a user tries to act before joining.
	ErrParticipantNotFound = errors.New("participant not found in room")
	// ErrNotHost is returned when a non-host asks to start the room.
	ErrNotHost = errors.New("participant is not the host")
	// ErrNotInProgress is returned when an answer arrives for a room that is not being played.
	ErrNotInProgress = errors.New("room is not in progress")
	// ErrInvalidRoom rejects malformed room settings.
	ErrInvalidRoom = errors.New("invalid room settings")
	// ErrInvalidIdentity rejects joins without a user id or display name.
	ErrInvalidIdentity = errors.New("invalid identity")
	// ErrAlreadyInRoom is returned when a user is already seated in another room.
	ErrAlreadyInRoom = errors.New("user already in another room")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrCodeTaken is returned by stores when a generated join code collides.
	ErrCodeTaken = errors.New("room code already taken")
	// ErrAnswerNotFound is returned by stores when no answer exists for a (participant, question).
	ErrAnswerNotFound = errors.New("answer not found")
	// ErrRoomElsewhere is returned when another instance holds the room's lease.
	ErrRoomElsewhere = errors.New("room is hosted by another instance")
)

// IsClientError reports whether err is a client-input error that must be surfaced verbatim.
func IsClientError(err error) bool {
	for _, target := range []error{
		ErrRoomNotFound, ErrRoomFull, ErrAlreadyStarted, ErrNotReady, ErrAlreadyAnswered,
		ErrStaleQuestion, ErrParticipantNotFound, ErrNotHost, ErrNotInProgress,
		ErrInvalidRoom, ErrInvalidIdentity, ErrAlreadyInRoom, ErrQuizNotFound, ErrRoomElsewhere,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
