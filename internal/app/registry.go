package app

import (
	"context"
	"time"

	"battle-quiz-service/internal/domain"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// join seats a new participant. A user already seated in this room gets their
// existing participant back.
func (a *roomActor) join(ctx context.Context, identity domain.Identity) (domain.Participant, error) {
	if existing := a.findByUser(identity.UserID); existing != nil {
		return *existing, nil
	}
	if a.room.Status != domain.StatusWaiting {
		return domain.Participant{}, domain.ErrAlreadyStarted
	}

	count, err := a.store.CountParticipants(ctx, a.id)
	if err != nil {
		return domain.Participant{}, err
	}
	if count >= a.room.MaxPlayers || len(a.participants) >= a.room.MaxPlayers {
		return domain.Participant{}, domain.ErrRoomFull
	}

	participant := domain.Participant{
		ID:          uuid.NewString(),
		RoomID:      a.id,
		UserID:      identity.UserID,
		DisplayName: identity.DisplayName,
		JoinedAt:    a.nextJoinedAt(),
	}
	if rules, _ := a.room.Mode.Rules(); rules.Teams {
		participant.Team = a.smallerTeam()
	}
	if err := a.store.AddParticipant(ctx, participant); err != nil {
		return domain.Participant{}, err
	}

	p := participant
	a.participants = append(a.participants, &p)

	if _, host := a.find(a.room.HostID); host == nil {
		a.room.HostID = p.ID
		a.persistRoom("assign host")
	}

	a.logger().WithFields(logrus.Fields{"participant": p.ID, "user": p.UserID}).Info("participant joined")
	a.publish(domain.Event{
		Type:        domain.EventParticipantJoined,
		Participant: &participant,
		HostID:      a.room.HostID,
		Status:      a.room.Status,
	})
	return p, nil
}

// nextJoinedAt returns now at microsecond precision (what the SQL store keeps),
// nudged past the latest seat so joined_at stays strictly increasing.
func (a *roomActor) nextJoinedAt() time.Time {
	now := a.now().Truncate(time.Microsecond)
	if n := len(a.participants); n > 0 {
		last := a.participants[n-1].JoinedAt
		if !now.After(last) {
			now = last.Add(time.Microsecond)
		}
	}
	return now
}

func (a *roomActor) smallerTeam() domain.Team {
	sizes := map[domain.Team]int{}
	for _, p := range a.participants {
		sizes[p.Team]++
	}
	if sizes[domain.TeamB] < sizes[domain.TeamA] {
		return domain.TeamB
	}
	return domain.TeamA
}

// leave removes a participant. Leaving twice is a no-op.
func (a *roomActor) leave(participantID string) error {
	i, p := a.find(participantID)
	if p == nil {
		return nil
	}

	log := a.logger().WithField("participant", p.ID)
	err := a.policy.retry(a.ctx, log, "delete participant", func() error {
		return a.store.DeleteParticipant(a.ctx, a.id, p.ID)
	})
	if err != nil {
		log.WithError(err).Error("participant delete abandoned")
	}

	a.participants = append(a.participants[:i], a.participants[i+1:]...)
	if a.onLeave != nil {
		a.onLeave(p.UserID, a.id)
	}
	log.Info("participant left")
	left := domain.Event{Type: domain.EventParticipantLeft, ParticipantID: p.ID}
	// A departing host's replacement is announced by host_changed.
	if a.room.HostID != p.ID {
		left.HostID = a.room.HostID
	}
	a.publish(left)

	switch {
	case a.room.HostID == p.ID:
		a.migrateHost(p.ID)
	case len(a.participants) == 0 && a.room.Status != domain.StatusCompleted:
		a.deleteRoom()
	}
	if a.closed {
		return nil
	}

	switch a.room.Status {
	case domain.StatusWaiting:
		a.maybeAutoStart()
	case domain.StatusInProgress:
		if a.allAnswered(a.room.CurrentQuestionIndex) {
			a.closeQuestion()
		}
	}
	return nil
}

// setReady marks a participant ready and starts the room once everyone is.
func (a *roomActor) setReady(ctx context.Context, participantID string) error {
	_, p := a.find(participantID)
	if p == nil {
		return domain.ErrParticipantNotFound
	}
	if a.room.Status != domain.StatusWaiting {
		return domain.ErrAlreadyStarted
	}

	if !p.IsReady {
		updated := *p
		updated.IsReady = true
		if err := a.store.UpdateParticipant(ctx, updated); err != nil {
			return err
		}
		p.IsReady = true
		a.publish(domain.Event{
			Type:          domain.EventParticipantReady,
			ParticipantID: p.ID,
		})
	}

	if a.canStart(false) {
		return a.start(ctx)
	}
	return nil
}
