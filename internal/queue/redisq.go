package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	r "github.com/redis/go-redis/v9"
)

const (
	scanQueueKey = "rightsguard:scan:queue"
	scanDelayKey = "rightsguard:scan:delay"
)

// ScanRequest asks the scheduler to monitor one track outside its schedule.
type ScanRequest struct {
	TrackID     uuid.UUID `json:"track_id"`
	OwnerID     uuid.UUID `json:"owner_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// RedisQ carries on-demand scan requests from the API to the scheduler.
// Requests with a future runAt wait in a sorted set until MoveDue promotes
// them.
type RedisQ struct{ rdb *r.Client }

func New(rdb *r.Client) *RedisQ { return &RedisQ{rdb} }

func (q *RedisQ) Enqueue(ctx context.Context, req ScanRequest, runAt time.Time) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if time.Until(runAt) > 0 {
		return q.rdb.ZAdd(ctx, scanDelayKey, r.Z{Score: float64(runAt.Unix()), Member: body}).Err()
	}
	return q.rdb.LPush(ctx, scanQueueKey, body).Err()
}

// Pop removes up to n requests, oldest first. Malformed entries are
// dropped.
func (q *RedisQ) Pop(ctx context.Context, n int) ([]ScanRequest, error) {
	raw, err := q.rdb.RPopCount(ctx, scanQueueKey, n).Result()
	if err == r.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]ScanRequest, 0, len(raw))
	for _, s := range raw {
		var req ScanRequest
		if json.Unmarshal([]byte(s), &req) == nil && req.TrackID != uuid.Nil {
			out = append(out, req)
		}
	}
	return out, nil
}

func (q *RedisQ) MoveDue(ctx context.Context, now int64, batch int64) error {
	ids, err := q.rdb.ZRangeByScore(ctx, scanDelayKey, &r.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%d", now), Offset: 0, Count: batch}).Result()
	if err != nil || len(ids) == 0 {
		return err
	}
	pipe := q.rdb.TxPipeline()
	for _, id := range ids {
		pipe.LPush(ctx, scanQueueKey, id)
		pipe.ZRem(ctx, scanDelayKey, id)
	}
	_, err = pipe.Exec(ctx)
	return err
}

