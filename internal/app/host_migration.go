package app

import (
	"battle-quiz-service/internal/domain"
	"github.com/sirupsen/logrus"
)

// migrateHost elects the earliest-joined survivor as host, or deletes the room
// when nobody is left. A completed room is kept for its results.
func (a *roomActor) migrateHost(departedID string) {
	log := a.logger().WithField("departed", departedID)

	var survivors []domain.Participant
	err := a.policy.retry(a.ctx, log, "list participants", func() error {
		var err error
		survivors, err = a.store.ListParticipants(a.ctx, a.id)
		return err
	})
	if err != nil {
		log.WithError(err).Warn("electing host from in-memory seats")
		survivors = survivors[:0]
		for _, p := range a.participants {
			survivors = append(survivors, *p)
		}
	}

	var next *domain.Participant
	for i := range survivors {
		// The store may still list the departed seat if its delete was abandoned.
		if _, p := a.find(survivors[i].ID); p != nil {
			next = p
			break
		}
	}

	if next == nil {
		if a.room.Status == domain.StatusCompleted {
			a.room.HostID = ""
			a.persistRoom("clear host")
			return
		}
		a.deleteRoom()
		return
	}

	a.room.HostID = next.ID
	a.persistRoom("migrate host")
	log.WithFields(logrus.Fields{"host": next.ID}).Info("host migrated")
	a.publish(domain.Event{
		Type:   domain.EventHostChanged,
		HostID: next.ID,
	})
}

// deleteRoom hard-deletes the room and stops the actor.
func (a *roomActor) deleteRoom() {
	a.stopCountdown()
	err := a.policy.retry(a.ctx, a.logger(), "delete room", func() error {
		return a.store.DeleteRoom(a.ctx, a.id)
	})
	if err != nil {
		a.logger().WithError(err).Error("room delete abandoned")
	}
	a.closed = true
	a.logger().Info("room deleted")
	a.publish(domain.Event{Type: domain.EventRoomClosed})
}
