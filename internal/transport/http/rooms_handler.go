package http

import (
	"encoding/json"
	"net/http"

	"battle-quiz-service/internal/app"
	"battle-quiz-service/internal/domain"
	"github.com/sirupsen/logrus"
)

// RoomsHandler serves room creation and resync over plain HTTP.
type RoomsHandler struct {
	service *app.BattleService
	log     logrus.FieldLogger
}

func NewRoomsHandler(service *app.BattleService, log logrus.FieldLogger) *RoomsHandler {
	return &RoomsHandler{service: service, log: log}
}

// Register mounts the room routes on mux.
func (h *RoomsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /rooms", h.CreateRoom)
	mux.HandleFunc("GET /rooms/{id}", h.GetRoom)
}

type createRoomRequest struct {
	Mode            string            `json:"mode"`
	TimePerQuestion int               `json:"timePerQuestion"`
	TotalQuestions  int               `json:"totalQuestions"`
	Questions       []domain.Question `json:"questions"`
	QuizID          string            `json:"quizId"`
}

// CreateRoom opens a room from inline questions or from a quiz in the question bank.
func (h *RoomsHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Code: "bad_request", Message: "invalid JSON body"})
		return
	}
	mode, ok := domain.ParseMode(req.Mode)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorPayload{Code: "invalid_room", Message: "unknown mode " + req.Mode})
		return
	}

	var (
		room domain.Room
		err  error
	)
	if req.QuizID != "" {
		room, err = h.service.CreateRoomFromQuiz(r.Context(), mode, req.TimePerQuestion, req.QuizID, req.TotalQuestions)
	} else {
		room, err = h.service.CreateRoom(r.Context(), mode, req.TimePerQuestion, req.TotalQuestions, req.Questions)
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

// GetRoom returns the resync snapshot of a room.
func (h *RoomsHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.GetRoomState(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *RoomsHandler) fail(w http.ResponseWriter, err error) {
	status, payload := classify(err)
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).Error("room request failed")
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
