package http

import (
	"context"
	"encoding/json"
	"net/http"

	"battle-quiz-service/internal/app"
	"battle-quiz-service/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Subscriber streams a room's events. The channel closes when cancel is
// called or the subscriber falls behind.
type Subscriber interface {
	Subscribe(ctx context.Context, roomID string) (<-chan domain.Event, func(), error)
}

type WSHandler struct {
	service  *app.BattleService
	events   Subscriber
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.BattleService, events Subscriber, log logrus.FieldLogger) *WSHandler {
	return &WSHandler{
		service: service,
		events:  events,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionIndex int    `json:"questionIndex"`
	Option        string `json:"option"`
}

type joinedPayload struct {
	Participant domain.Participant  `json:"participant"`
	State       domain.RoomSnapshot `json:"state"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// ServeWS joins the caller to a room by join code, streams the room's events
// and accepts ready/start/answer/state/leave commands. Closing the socket leaves the room.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	identity := domain.Identity{
		UserID:      r.URL.Query().Get("userId"),
		DisplayName: r.URL.Query().Get("name"),
	}
	if code == "" || identity.UserID == "" || identity.DisplayName == "" {
		http.Error(w, "missing code, userId, or name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	ctx := r.Context()
	participant, err := h.service.JoinRoom(ctx, code, identity)
	if err != nil {
		_, payload := classify(err)
		_ = conn.WriteJSON(outboundMessage{Type: "error", Payload: payload})
		return
	}
	roomID := participant.RoomID
	log := h.log.WithFields(logrus.Fields{"room": roomID, "participant": participant.ID})
	defer func() {
		if err := h.service.LeaveRoom(ctx, roomID, participant.ID); err != nil {
			log.WithError(err).Warn("leave on disconnect failed")
		}
	}()

	// Subscribe before taking the snapshot so nothing falls between them;
	// clients drop events whose seq the snapshot already covers.
	updates, cancel, err := h.events.Subscribe(ctx, roomID)
	if err != nil {
		_, payload := classify(err)
		_ = conn.WriteJSON(outboundMessage{Type: "error", Payload: payload})
		return
	}
	state, err := h.service.GetRoomState(ctx, roomID)
	if err != nil {
		cancel()
		_, payload := classify(err)
		_ = conn.WriteJSON(outboundMessage{Type: "error", Payload: payload})
		return
	}

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.WithError(err).Debug("ws write error")
				return
			}
		}
	}()

	// joined must be the first frame; events queue behind it.
	send <- outboundMessage{Type: "joined", Payload: joinedPayload{Participant: participant, State: state}}

	go func() {
		defer close(updatesDone)
		defer func() { cancel() }()
		for {
			select {
			case ev, ok := <-updates:
				if !ok {
					// Dropped for falling behind: resubscribe and resync.
					cancel()
					next, nextCancel, err := h.events.Subscribe(ctx, roomID)
					if err != nil {
						log.WithError(err).Warn("resubscribe failed")
						return
					}
					updates, cancel = next, nextCancel
					snap, err := h.service.GetRoomState(ctx, roomID)
					if err != nil {
						return
					}
					select {
					case send <- outboundMessage{Type: "state", Payload: snap}:
					case <-closeSignals:
						return
					}
					continue
				}
				select {
				case send <- outboundMessage{Type: "event", Payload: ev}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		reply, leave := h.handle(ctx, roomID, participant.ID, inbound)
		send <- reply
		if leave {
			break
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// handle runs one client command and returns the reply; leave reports whether
// the client asked to leave.
func (h *WSHandler) handle(ctx context.Context, roomID, participantID string, msg inboundMessage) (reply outboundMessage, leave bool) {
	fail := func(err error) (outboundMessage, bool) {
		_, payload := classify(err)
		return outboundMessage{Type: "error", Payload: payload}, false
	}

	switch msg.Type {
	case "ready":
		if err := h.service.SetReady(ctx, roomID, participantID); err != nil {
			return fail(err)
		}
		return outboundMessage{Type: "ack", Payload: msg.Type}, false
	case "start":
		if err := h.service.StartRoom(ctx, roomID, participantID); err != nil {
			return fail(err)
		}
		return outboundMessage{Type: "ack", Payload: msg.Type}, false
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return outboundMessage{Type: "error", Payload: errorPayload{Code: "bad_request", Message: "invalid answer payload"}}, false
		}
		scored, err := h.service.SubmitAnswer(ctx, roomID, participantID, payload.QuestionIndex, payload.Option)
		if err != nil {
			return fail(err)
		}
		return outboundMessage{Type: "answerResult", Payload: scored}, false
	case "state":
		snap, err := h.service.GetRoomState(ctx, roomID)
		if err != nil {
			return fail(err)
		}
		return outboundMessage{Type: "state", Payload: snap}, false
	case "leave":
		if err := h.service.LeaveRoom(ctx, roomID, participantID); err != nil {
			return fail(err)
		}
		return outboundMessage{Type: "left", Payload: participantID}, true
	default:
		return outboundMessage{Type: "error", Payload: errorPayload{Code: "bad_request", Message: "unsupported message type"}}, false
	}
}
