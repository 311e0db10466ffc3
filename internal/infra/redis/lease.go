package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Leaser grants per-room ownership through expiring keys:
//
//	battle:lease:{roomID}            owner id, PX ttl
//
// An owner keeps its lease alive with Renew; a crashed owner's lease lapses
// after ttl and the room can be loaded elsewhere.
type Leaser struct {
	client *redis.Client
	owner  string
	ttl    time.Duration
}

func NewLeaser(client *redis.Client, owner string, ttl time.Duration) *Leaser {
	return &Leaser{client: client, owner: owner, ttl: ttl}
}

func leaseKey(roomID string) string { return "battle:lease:" + roomID }

var (
	acquireLease = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur and cur ~= ARGV[1] then return 0 end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return 1
`)
	renewLease = redis.NewScript(`
if redis.call('GET', KEYS[1]) ~= ARGV[1] then return 0 end
return redis.call('PEXPIRE', KEYS[1], ARGV[2])
`)
	releaseLease = redis.NewScript(`
if redis.call('GET', KEYS[1]) ~= ARGV[1] then return 0 end
return redis.call('DEL', KEYS[1])
`)
)

func (l *Leaser) Acquire(ctx context.Context, roomID string) (bool, error) {
	return l.run(ctx, acquireLease, roomID, l.ttl.Milliseconds())
}

func (l *Leaser) Renew(ctx context.Context, roomID string) (bool, error) {
	return l.run(ctx, renewLease, roomID, l.ttl.Milliseconds())
}

func (l *Leaser) Release(ctx context.Context, roomID string) error {
	_, err := l.run(ctx, releaseLease, roomID)
	return err
}

func (l *Leaser) run(ctx context.Context, script *redis.Script, roomID string, args ...interface{}) (bool, error) {
	n, err := script.Run(ctx, l.client, []string{leaseKey(roomID)}, append([]interface{}{l.owner}, args...)...).Int()
	if err != nil {
		return false, unavailable(err)
	}
	return n == 1, nil
}
