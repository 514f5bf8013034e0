package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
	r "github.com/redis/go-redis/v9"
)

const tickLeaseKey = "rightsguard:scheduler:leader"

// acquire takes the lease when free and extends it when we already hold it.
var acquire = r.NewScript(`
local cur = redis.call("GET", KEYS[1])
if cur == ARGV[1] then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
  return 1
end
if cur then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`)

var release = r.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lease elects a single scheduler instance per tick. The holder keeps
// renewing it on each tick; if it dies the key expires and another instance
// takes over.
type Lease struct {
	rdb   *r.Client
	key   string
	token string
}

func NewLease(rdb *r.Client) *Lease {
	return &Lease{rdb: rdb, key: tickLeaseKey, token: uuid.NewString()}
}

func (l *Lease) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	n, err := acquire.Run(ctx, l.rdb, []string{l.key}, l.token, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (l *Lease) Release(ctx context.Context) error {
	return release.Run(ctx, l.rdb, []string{l.key}, l.token).Err()
}
