package http

import (
	"errors"
	"net/http"

	"battle-quiz-service/internal/domain"
)

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var errorKinds = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrRoomNotFound, http.StatusNotFound, "room_not_found"},
	{domain.ErrParticipantNotFound, http.StatusNotFound, "participant_not_found"},
	{domain.ErrQuizNotFound, http.StatusNotFound, "quiz_not_found"},
	{domain.ErrRoomFull, http.StatusConflict, "room_full"},
	{domain.ErrAlreadyStarted, http.StatusConflict, "already_started"},
	{domain.ErrNotReady, http.StatusConflict, "not_ready"},
	{domain.ErrAlreadyAnswered, http.StatusConflict, "already_answered"},
	{domain.ErrStaleQuestion, http.StatusConflict, "stale_question"},
	{domain.ErrNotInProgress, http.StatusConflict, "not_in_progress"},
	{domain.ErrAlreadyInRoom, http.StatusConflict, "already_in_room"},
	{domain.ErrRoomElsewhere, http.StatusConflict, "room_elsewhere"},
	{domain.ErrNotHost, http.StatusForbidden, "not_host"},
	{domain.ErrInvalidRoom, http.StatusBadRequest, "invalid_room"},
	{domain.ErrInvalidIdentity, http.StatusBadRequest, "invalid_identity"},
	{domain.ErrStoreUnavailable, http.StatusServiceUnavailable, "store_unavailable"},
}

// classify maps an error to its HTTP status and stable error code.
func classify(err error) (int, errorPayload) {
	for _, kind := range errorKinds {
		if errors.Is(err, kind.err) {
			return kind.status, errorPayload{Code: kind.code, Message: err.Error()}
		}
	}
	return http.StatusInternalServerError, errorPayload{Code: "internal", Message: "internal error"}
}
