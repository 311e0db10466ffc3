package app_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"battle-quiz-service/internal/app"
	"battle-quiz-service/internal/domain"
	"battle-quiz-service/internal/infra/memory"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const leaseTTL = 30 * time.Second

// cluster is a set of services sharing one store, bus and lease table, the way
// instances share Postgres and Redis.
type cluster struct {
	t      *testing.T
	ctx    context.Context
	store  *memory.Store
	events *memory.Broadcaster
	clock  fakeClock
	leases *memory.LeaseTable
}

func newCluster(t *testing.T) *cluster {
	clock := clockwork.NewFakeClock()
	return &cluster{
		t:      t,
		ctx:    context.Background(),
		store:  memory.NewStore(),
		events: memory.NewBroadcaster(256),
		clock:  clock,
		leases: memory.NewLeaseTable(leaseTTL, clock),
	}
}

func (c *cluster) instance(owner string) (*app.BattleService, *trackingLeaser) {
	logger, _ := test.NewNullLogger()
	leaser := &trackingLeaser{RoomLeaser: c.leases.Leaser(owner)}
	svc := app.NewBattleService(c.store, c.events,
		app.WithClock(c.clock),
		app.WithLogger(logger),
		app.WithRetryPolicy(testRetryPolicy()),
		app.WithRoomLeaser(leaser, leaseTTL),
	)
	c.t.Cleanup(svc.Close)
	return svc, leaser
}

// tick advances one renewal period and waits for the renewal to land.
func (c *cluster) tick(l *trackingLeaser) {
	c.t.Helper()
	want := l.renewals.Load() + 1
	c.clock.Advance(leaseTTL / 3)
	require.Eventually(c.t, func() bool { return l.renewals.Load() >= want }, 2*time.Second, time.Millisecond)
}

type trackingLeaser struct {
	app.RoomLeaser
	renewals  atomic.Int32
	failRenew atomic.Bool
}

func (l *trackingLeaser) Renew(ctx context.Context, roomID string) (bool, error) {
	defer l.renewals.Add(1)
	if l.failRenew.Load() {
		return false, fmt.Errorf("%w: injected", domain.ErrStoreUnavailable)
	}
	return l.RoomLeaser.Renew(ctx, roomID)
}

func TestLeasedRoomIsServedByOneInstance(t *testing.T) {
	c := newCluster(t)
	a, aLease := c.instance("a")
	b, _ := c.instance("b")

	room, err := a.CreateRoom(c.ctx, domain.ModeDuel, 15, 1, questions(1))
	require.NoError(t, err)
	owner, ok := c.leases.Owner(room.ID)
	require.True(t, ok)
	assert.Equal(t, "a", owner)

	_, err = b.JoinRoom(c.ctx, room.Code, domain.Identity{UserID: "u-bob", DisplayName: "bob"})
	require.ErrorIs(t, err, domain.ErrRoomElsewhere)
	_, err = b.GetRoomState(c.ctx, room.ID)
	require.ErrorIs(t, err, domain.ErrRoomElsewhere)

	alice, err := a.JoinRoom(c.ctx, room.Code, domain.Identity{UserID: "u-alice", DisplayName: "alice"})
	require.NoError(t, err)

	// Renewals keep the lease past its ttl.
	for i := 0; i < 4; i++ {
		c.tick(aLease)
	}
	owner, ok = c.leases.Owner(room.ID)
	require.True(t, ok)
	assert.Equal(t, "a", owner)
	_, err = b.GetRoomState(c.ctx, room.ID)
	require.ErrorIs(t, err, domain.ErrRoomElsewhere)

	// A bob rejected by b is free to join through the owner.
	bob, err := a.JoinRoom(c.ctx, room.Code, domain.Identity{UserID: "u-bob", DisplayName: "bob"})
	require.NoError(t, err)
	require.NoError(t, a.SetReady(c.ctx, room.ID, alice.ID))
	require.NoError(t, a.SetReady(c.ctx, room.ID, bob.ID))
	assert.Equal(t, domain.StatusInProgress, snapshotOf(t, a, room.ID).Room.Status)
}

func TestClosedInstanceHandsRoomOver(t *testing.T) {
	c := newCluster(t)
	a, _ := c.instance("a")
	b, _ := c.instance("b")

	room, err := a.CreateRoom(c.ctx, domain.ModeFreeForAll, 15, 1, questions(1))
	require.NoError(t, err)
	alice, err := a.JoinRoom(c.ctx, room.Code, domain.Identity{UserID: "u-alice", DisplayName: "alice"})
	require.NoError(t, err)

	a.Close()
	_, ok := c.leases.Owner(room.ID)
	require.False(t, ok, "closing releases the lease")

	snap := snapshotOf(t, b, room.ID)
	require.Len(t, snap.Participants, 1)
	assert.Equal(t, alice.ID, snap.Participants[0].ID)
	owner, _ := c.leases.Owner(room.ID)
	assert.Equal(t, "b", owner)
}

func TestInstanceUnloadsRoomWhenRenewalsFail(t *testing.T) {
	c := newCluster(t)
	a, aLease := c.instance("a")
	b, _ := c.instance("b")

	room, err := a.CreateRoom(c.ctx, domain.ModeFreeForAll, 15, 1, questions(1))
	require.NoError(t, err)
	_, err = a.JoinRoom(c.ctx, room.Code, domain.Identity{UserID: "u-alice", DisplayName: "alice"})
	require.NoError(t, err)

	aLease.failRenew.Store(true)
	for i := 0; i < 3; i++ {
		c.tick(aLease)
	}

	// The lapsed lease lets b load the room; a stops serving it.
	require.Eventually(t, func() bool {
		_, err := b.GetRoomState(c.ctx, room.ID)
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		_, err := a.GetRoomState(c.ctx, room.ID)
		return err != nil
	}, 2*time.Second, 5*time.Millisecond)
	_, err = a.GetRoomState(c.ctx, room.ID)
	assert.ErrorIs(t, err, domain.ErrRoomElsewhere)
	assert.Len(t, snapshotOf(t, b, room.ID).Participants, 1)
}

func snapshotOf(t *testing.T, svc *app.BattleService, roomID string) domain.RoomSnapshot {
	t.Helper()
	snap, err := svc.GetRoomState(context.Background(), roomID)
	require.NoError(t, err)
	return snap
}
