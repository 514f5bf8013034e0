package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SirClappington/rightsguard/internal/queue"
	"github.com/SirClappington/rightsguard/internal/testhelpers"
)

func TestRedisQ_EnqueuePopAndDelay(t *testing.T) {
	rdb := testhelpers.GetTestRedis(t)
	ctx := context.Background()
	require.NoError(t, rdb.FlushDB(ctx).Err())
	q := queue.New(rdb)

	first := queue.ScanRequest{TrackID: uuid.New(), OwnerID: uuid.New(), RequestedAt: time.Now().UTC()}
	second := queue.ScanRequest{TrackID: uuid.New(), OwnerID: uuid.New(), RequestedAt: time.Now().UTC()}
	later := queue.ScanRequest{TrackID: uuid.New(), OwnerID: uuid.New(), RequestedAt: time.Now().UTC()}

	require.NoError(t, q.Enqueue(ctx, first, time.Time{}))
	require.NoError(t, q.Enqueue(ctx, second, time.Now()))
	require.NoError(t, q.Enqueue(ctx, later, time.Now().Add(time.Hour)))

	got, err := q.Pop(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first.TrackID, got[0].TrackID)
	assert.Equal(t, second.TrackID, got[1].TrackID)

	got, err = q.Pop(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, q.MoveDue(ctx, time.Now().Add(2*time.Hour).Unix(), 10))
	got, err = q.Pop(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, later.TrackID, got[0].TrackID)
}

func TestLease_SingleHolder(t *testing.T) {
	rdb := testhelpers.GetTestRedis(t)
	ctx := context.Background()
	require.NoError(t, rdb.FlushDB(ctx).Err())

	a, b := queue.NewLease(rdb), queue.NewLease(rdb)

	ok, err := a.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second instance must not take a held lease")

	ok, err = a.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "holder renews its own lease")

	require.NoError(t, b.Release(ctx))
	ok, err = b.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "release by a non-holder is a no-op")

	require.NoError(t, a.Release(ctx))
	ok, err = b.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
