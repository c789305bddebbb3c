package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/ledgersync/internal/models"
	"github.com/prudhvinik1/ledgersync/internal/syncerr"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func getTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)

	client := redis.NewClient(opts)
	require.NoError(t, client.Ping(context.Background()).Err(), "Failed to connect to test Redis")
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// memoryClaims stands in for the Redis claim repository.
type memoryClaims struct {
	mu   sync.Mutex
	held map[string]bool
}

func (c *memoryClaims) Claim(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.held[eventID] {
		return false, nil
	}
	c.held[eventID] = true
	return true, nil
}

func (c *memoryClaims) Release(ctx context.Context, eventID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.held, eventID)
	return nil
}

func newTestQueue(t *testing.T, handler Handler, maxAttempts int) (*Queue, *redis.Client, *memoryClaims) {
	t.Helper()
	client := getTestRedisClient(t)
	prefix := "test:" + uuid.NewString() + ":"
	claims := &memoryClaims{held: map[string]bool{}}
	q := New(client, claims, handler, Options{
		MaxAttempts: maxAttempts,
		RetryBase:   10 * time.Second,
		RetryMax:    time.Minute,
		StuckAfter:  time.Minute,
		PollTimeout: 100 * time.Millisecond,
		KeyPrefix:   prefix,
	}, zap.NewNop())

	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := client.Keys(ctx, prefix+"*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
	})
	return q, client, claims
}

func submitProduct(t *testing.T, q *Queue) {
	t.Helper()
	event, err := models.ParseEvent([]byte(productEvent), time.Now())
	require.NoError(t, err)
	require.NoError(t, q.Submit(context.Background(), uuid.New(), event))
}

func TestQueue_CompletesJob(t *testing.T) {
	// ARRANGE
	var handled []*Job
	q, client, _ := newTestQueue(t, func(ctx context.Context, job *Job) error {
		handled = append(handled, job)
		return nil
	}, 5)
	submitProduct(t, q)

	// ACT
	took, err := q.processNext(context.Background())

	// ASSERT
	require.NoError(t, err)
	assert.True(t, took)
	require.Len(t, handled, 1)
	assert.Equal(t, "evt_1", handled[0].EventID)
	assert.Equal(t, 1, handled[0].Attempts)

	stats, err := q.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Stats{}, stats)

	keys, err := client.Keys(context.Background(), q.keys.prefix+"job:*").Result()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestQueue_EmptyQueue(t *testing.T) {
	// ARRANGE
	q, _, _ := newTestQueue(t, func(ctx context.Context, job *Job) error { return nil }, 5)

	// ACT
	took, err := q.processNext(context.Background())

	// ASSERT
	require.NoError(t, err)
	assert.False(t, took)
}

func TestQueue_RetryableFailureIsDelayedThenPromoted(t *testing.T) {
	// ARRANGE
	calls := 0
	q, _, _ := newTestQueue(t, func(ctx context.Context, job *Job) error {
		calls++
		if calls == 1 {
			return syncerr.Upstream(errors.New("status 503"), "failed to create invoice in QuickBooks")
		}
		return nil
	}, 5)
	submitProduct(t, q)
	ctx := context.Background()

	// ACT
	_, err := q.processNext(ctx)
	require.NoError(t, err)
	afterFailure, err := q.Stats(ctx)
	require.NoError(t, err)

	notYet, err := q.promoteDue(ctx, time.Now())
	require.NoError(t, err)
	promoted, err := q.promoteDue(ctx, time.Now().Add(30*time.Second))
	require.NoError(t, err)
	_, err = q.processNext(ctx)
	require.NoError(t, err)

	// ASSERT
	assert.Equal(t, int64(1), afterFailure.Delayed)
	assert.Zero(t, afterFailure.Processing)
	assert.Zero(t, notYet)
	assert.Equal(t, 1, promoted)
	assert.Equal(t, 2, calls)

	final, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, &Stats{}, final)
}

func TestQueue_StorageFailureIsDelayed(t *testing.T) {
	// ARRANGE
	d := &stubDispatcher{err: fmt.Errorf("failed to create sync history: %w", errors.New("conn closed"))}
	q, _, _ := newTestQueue(t, DispatchHandler(d), 5)
	submitProduct(t, q)
	ctx := context.Background()

	// ACT
	_, err := q.processNext(ctx)

	// ASSERT
	require.NoError(t, err)
	require.Len(t, d.calls, 1)
	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Delayed)
	assert.Zero(t, stats.Dead)
}

func TestQueue_ExhaustedJobIsBuried(t *testing.T) {
	// ARRANGE
	q, _, _ := newTestQueue(t, func(ctx context.Context, job *Job) error {
		return syncerr.Upstream(errors.New("status 500"), "failed to create payment")
	}, 1)
	submitProduct(t, q)
	ctx := context.Background()

	// ACT
	_, err := q.processNext(ctx)
	require.NoError(t, err)

	// ASSERT
	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Dead)
	assert.Zero(t, stats.Delayed)

	dead, err := q.DeadJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, StatusDead, dead[0].Status)
	assert.Contains(t, dead[0].LastError, "failed to create payment")

	requeued, err := q.RequeueDead(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, requeued)
	stats, err = q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Queued)
	assert.Zero(t, stats.Dead)
}

func TestQueue_FatalFailureIsDropped(t *testing.T) {
	// ARRANGE
	q, _, _ := newTestQueue(t, func(ctx context.Context, job *Job) error {
		return syncerr.Validation("customer email is required")
	}, 5)
	submitProduct(t, q)

	// ACT
	_, err := q.processNext(context.Background())

	// ASSERT
	require.NoError(t, err)
	stats, err := q.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Stats{}, stats)
}

func TestQueue_ClaimedEventIsRetried(t *testing.T) {
	// ARRANGE
	calls := 0
	q, _, claims := newTestQueue(t, func(ctx context.Context, job *Job) error {
		calls++
		return nil
	}, 5)
	claims.held["evt_1"] = true
	submitProduct(t, q)

	// ACT
	_, err := q.processNext(context.Background())

	// ASSERT
	require.NoError(t, err)
	assert.Zero(t, calls)
	stats, err := q.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Delayed)
}

func TestQueue_RecoverStuck(t *testing.T) {
	// ARRANGE
	q, client, _ := newTestQueue(t, func(ctx context.Context, job *Job) error { return nil }, 5)
	submitProduct(t, q)
	ctx := context.Background()
	// Simulate a worker that died right after taking the job.
	_, err := client.LMove(ctx, q.keys.queue, q.keys.processing, "RIGHT", "LEFT").Result()
	require.NoError(t, err)

	// ACT
	early, err := q.recoverStuck(ctx, time.Now())
	require.NoError(t, err)
	late, err := q.recoverStuck(ctx, time.Now().Add(2*time.Minute))
	require.NoError(t, err)

	// ASSERT
	assert.Zero(t, early)
	assert.Equal(t, 1, late)
	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Queued)
	assert.Zero(t, stats.Processing)
}
