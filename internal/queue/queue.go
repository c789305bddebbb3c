package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/ledgersync/internal/models"
	"github.com/prudhvinik1/ledgersync/internal/repositories"
	"github.com/prudhvinik1/ledgersync/internal/syncerr"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	DefaultKeyPrefix = "sync:"

	// Dead and finished jobs expire after a week.
	jobTTL = 7 * 24 * time.Hour
)

// promoteScript moves one due job from the delayed set to the queue. Only
// the replica whose ZREM succeeds pushes it.
var promoteScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 1 then
	redis.call('LPUSH', KEYS[2], ARGV[1])
	return 1
end
return 0
`)

type Options struct {
	Workers     int
	MaxAttempts int
	RetryBase   time.Duration
	RetryMax    time.Duration
	// ClaimTTL bounds how long one worker may hold an event.
	ClaimTTL time.Duration
	// StuckAfter is how long a job may sit in the processing list before
	// the sweeper requeues it.
	StuckAfter    time.Duration
	SweepInterval time.Duration
	PollTimeout   time.Duration
	KeyPrefix     string
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 3
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.RetryBase <= 0 {
		o.RetryBase = 30 * time.Second
	}
	if o.RetryMax <= 0 {
		o.RetryMax = 30 * time.Minute
	}
	if o.ClaimTTL <= 0 {
		o.ClaimTTL = 5 * time.Minute
	}
	if o.StuckAfter <= 0 {
		o.StuckAfter = 10 * time.Minute
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Minute
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = time.Second
	}
	if o.KeyPrefix == "" {
		o.KeyPrefix = DefaultKeyPrefix
	}
	return o
}

type keys struct {
	prefix     string
	queue      string
	processing string
	delayed    string
	dead       string
}

func newKeys(prefix string) keys {
	return keys{
		prefix:     prefix,
		queue:      prefix + "queue",
		processing: prefix + "processing",
		delayed:    prefix + "delayed",
		dead:       prefix + "dead",
	}
}

func (k keys) job(id string) string {
	return k.prefix + "job:" + id
}

// Stats are the current list sizes.
type Stats struct {
	Queued     int64 `json:"queued"`
	Processing int64 `json:"processing"`
	Delayed    int64 `json:"delayed"`
	Dead       int64 `json:"dead"`
}

// Queue is a Redis-backed event queue. Workers move job ids from the queue
// list to the processing list, retry failures through a delayed sorted set
// and bury exhausted jobs in a dead list.
type Queue struct {
	client  *redis.Client
	claims  repositories.EventClaimRepository
	handler Handler
	opts    Options
	keys    keys
	log     *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func New(client *redis.Client, claims repositories.EventClaimRepository, handler Handler, opts Options, log *zap.Logger) *Queue {
	opts = opts.withDefaults()
	return &Queue{
		client:  client,
		claims:  claims,
		handler: handler,
		opts:    opts,
		keys:    newKeys(opts.KeyPrefix),
		log:     log.Named("queue"),
	}
}

var _ Sink = (*Queue)(nil)

// Submit enqueues the event for asynchronous dispatch.
func (q *Queue) Submit(ctx context.Context, tenantID uuid.UUID, event *models.ProviderEvent) error {
	now := time.Now().UTC()
	job := &Job{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		EventID:     event.ID,
		EventType:   string(event.Type),
		Payload:     event.Raw,
		Status:      StatusPending,
		MaxAttempts: q.opts.MaxAttempts,
		EnqueuedAt:  now,
		UpdatedAt:   now,
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, q.keys.job(job.ID), data, jobTTL)
	pipe.LPush(ctx, q.keys.queue, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to enqueue event: %w", err)
	}

	q.log.Info("event enqueued",
		zap.String("job_id", job.ID),
		zap.String("event_id", job.EventID),
		zap.String("event_type", job.EventType))
	return nil
}

// Start launches the workers, the delayed-job promoter and the stuck sweeper.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.running = true
	q.stopCh = make(chan struct{})

	q.log.Info("starting queue workers", zap.Int("workers", q.opts.Workers))
	for i := 0; i < q.opts.Workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.wg.Add(2)
	go q.promoter()
	go q.sweeper()
}

// Stop waits for in-flight jobs to finish.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.running {
		return
	}
	close(q.stopCh)
	q.running = false
	q.wg.Wait()
	q.log.Info("queue workers stopped")
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	ctx := context.Background()
	for {
		select {
		case <-q.stopCh:
			return
		default:
		}
		if _, err := q.processNext(ctx); err != nil {
			q.log.Error("worker failed to take job", zap.Int("worker", id), zap.Error(err))
			select {
			case <-q.stopCh:
				return
			case <-time.After(time.Second):
			}
		}
	}
}

func (q *Queue) promoter() {
	defer q.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-q.stopCh:
			return
		case now := <-ticker.C:
			if _, err := q.promoteDue(context.Background(), now); err != nil {
				q.log.Error("failed to promote delayed jobs", zap.Error(err))
			}
		}
	}
}

func (q *Queue) sweeper() {
	defer q.wg.Done()
	ticker := time.NewTicker(q.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-q.stopCh:
			return
		case now := <-ticker.C:
			if _, err := q.recoverStuck(context.Background(), now); err != nil {
				q.log.Error("stuck sweep failed", zap.Error(err))
			}
		}
	}
}

// processNext takes one job, if any arrives within the poll timeout, and
// runs it to a terminal queue state.
func (q *Queue) processNext(ctx context.Context) (bool, error) {
	id, err := q.client.BLMove(ctx, q.keys.queue, q.keys.processing, "RIGHT", "LEFT", q.opts.PollTimeout).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to dequeue job: %w", err)
	}

	job, err := q.load(ctx, id)
	if err != nil {
		q.removeFromProcessing(ctx, id)
		return true, err
	}
	q.process(ctx, job)
	return true, nil
}

func (q *Queue) process(ctx context.Context, job *Job) {
	now := time.Now().UTC()
	job.Status = StatusProcessing
	job.Attempts++
	job.StartedAt = &now
	job.UpdatedAt = now
	job.NextAttempt = nil
	q.save(ctx, job)

	err := q.run(ctx, job)
	switch {
	case err == nil:
		q.complete(ctx, job)
	case syncerr.Retryable(err) && job.Attempts < job.MaxAttempts:
		q.retry(ctx, job, err)
	case syncerr.Retryable(err):
		q.bury(ctx, job, err)
	default:
		q.drop(ctx, job, err)
	}
}

// run holds the event claim for the duration of the handler.
func (q *Queue) run(ctx context.Context, job *Job) error {
	if q.claims != nil {
		ok, err := q.claims.Claim(ctx, job.EventID, q.opts.ClaimTTL)
		if err != nil {
			return fmt.Errorf("%w: %v", syncerr.ErrBusy, err)
		}
		if !ok {
			return syncerr.ErrBusy
		}
		defer func() {
			if err := q.claims.Release(context.WithoutCancel(ctx), job.EventID); err != nil {
				q.log.Warn("failed to release event claim", zap.String("event_id", job.EventID), zap.Error(err))
			}
		}()
	}
	return q.handler(ctx, job)
}

func (q *Queue) complete(ctx context.Context, job *Job) {
	pipe := q.client.TxPipeline()
	pipe.Del(ctx, q.keys.job(job.ID))
	pipe.LRem(ctx, q.keys.processing, 1, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		q.log.Error("failed to complete job", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	q.log.Debug("job completed", zap.String("job_id", job.ID), zap.String("event_id", job.EventID))
}

func (q *Queue) retry(ctx context.Context, job *Job, cause error) {
	delay := Backoff(job.Attempts, q.opts.RetryBase, q.opts.RetryMax)
	next := time.Now().UTC().Add(delay)
	job.Status = StatusRetrying
	job.LastError = cause.Error()
	job.NextAttempt = &next
	job.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(job)
	if err != nil {
		q.log.Error("failed to marshal job", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	pipe := q.client.TxPipeline()
	pipe.Set(ctx, q.keys.job(job.ID), data, jobTTL)
	pipe.ZAdd(ctx, q.keys.delayed, redis.Z{Score: float64(next.Unix()), Member: job.ID})
	pipe.LRem(ctx, q.keys.processing, 1, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		q.log.Error("failed to schedule retry", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	q.log.Warn("event failed, retry scheduled",
		zap.String("job_id", job.ID),
		zap.String("event_id", job.EventID),
		zap.Int("attempt", job.Attempts),
		zap.Duration("delay", delay),
		zap.Error(cause))
}

func (q *Queue) bury(ctx context.Context, job *Job, cause error) {
	job.Status = StatusDead
	job.LastError = cause.Error()
	job.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(job)
	if err != nil {
		q.log.Error("failed to marshal job", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	pipe := q.client.TxPipeline()
	pipe.Set(ctx, q.keys.job(job.ID), data, jobTTL)
	pipe.LPush(ctx, q.keys.dead, job.ID)
	pipe.LRem(ctx, q.keys.processing, 1, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		q.log.Error("failed to move job to dead list", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	q.log.Error("event retries exhausted",
		zap.String("job_id", job.ID),
		zap.String("event_id", job.EventID),
		zap.Int("attempts", job.Attempts),
		zap.Error(cause))
}

// drop discards a job whose failure no retry can fix. The sync history
// already holds the failure.
func (q *Queue) drop(ctx context.Context, job *Job, cause error) {
	pipe := q.client.TxPipeline()
	pipe.Del(ctx, q.keys.job(job.ID))
	pipe.LRem(ctx, q.keys.processing, 1, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		q.log.Error("failed to drop job", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	q.log.Warn("event failed permanently",
		zap.String("job_id", job.ID),
		zap.String("event_id", job.EventID),
		zap.Error(cause))
}

// promoteDue moves every delayed job due at now back onto the queue.
func (q *Queue) promoteDue(ctx context.Context, now time.Time) (int, error) {
	ids, err := q.client.ZRangeByScore(ctx, q.keys.delayed, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read delayed jobs: %w", err)
	}

	promoted := 0
	for _, id := range ids {
		moved, err := promoteScript.Run(ctx, q.client, []string{q.keys.delayed, q.keys.queue}, id).Int()
		if err != nil {
			return promoted, fmt.Errorf("failed to promote job %s: %w", id, err)
		}
		promoted += moved
	}
	return promoted, nil
}

// recoverStuck requeues jobs a crashed worker left in the processing list.
func (q *Queue) recoverStuck(ctx context.Context, now time.Time) (int, error) {
	ids, err := q.client.LRange(ctx, q.keys.processing, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list processing jobs: %w", err)
	}

	recovered := 0
	for _, id := range ids {
		job, err := q.load(ctx, id)
		if err != nil {
			q.log.Warn("removing unreadable job from processing list", zap.String("job_id", id), zap.Error(err))
			q.removeFromProcessing(ctx, id)
			continue
		}
		age := now.Sub(job.lastTouched())
		if age <= q.opts.StuckAfter {
			continue
		}

		q.log.Warn("recovering stuck job",
			zap.String("job_id", id),
			zap.String("event_id", job.EventID),
			zap.Duration("age", age))
		job.Status = StatusPending
		job.LastError = "recovered by sweeper"
		job.UpdatedAt = now
		q.save(ctx, job)

		removed, err := q.client.LRem(ctx, q.keys.processing, 1, id).Result()
		if err != nil {
			return recovered, fmt.Errorf("failed to remove stuck job %s: %w", id, err)
		}
		// A worker finished it in the meantime.
		if removed == 0 {
			continue
		}
		if err := q.client.RPush(ctx, q.keys.queue, id).Err(); err != nil {
			return recovered, fmt.Errorf("failed to requeue stuck job %s: %w", id, err)
		}
		recovered++
	}
	return recovered, nil
}

// RequeueDead moves every dead job back onto the queue with a fresh attempt
// budget.
func (q *Queue) RequeueDead(ctx context.Context) (int, error) {
	requeued := 0
	for {
		id, err := q.client.RPop(ctx, q.keys.dead).Result()
		if errors.Is(err, redis.Nil) {
			return requeued, nil
		}
		if err != nil {
			return requeued, fmt.Errorf("failed to pop dead job: %w", err)
		}

		job, err := q.load(ctx, id)
		if err != nil {
			q.log.Warn("skipping unreadable dead job", zap.String("job_id", id), zap.Error(err))
			continue
		}
		job.Status = StatusPending
		job.Attempts = 0
		job.UpdatedAt = time.Now().UTC()
		q.save(ctx, job)
		if err := q.client.LPush(ctx, q.keys.queue, id).Err(); err != nil {
			return requeued, fmt.Errorf("failed to requeue job %s: %w", id, err)
		}
		requeued++
	}
}

// DeadJobs returns up to limit buried jobs, newest first.
func (q *Queue) DeadJobs(ctx context.Context, limit int64) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	ids, err := q.client.LRange(ctx, q.keys.dead, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list dead jobs: %w", err)
	}
	jobs := make([]*Job, 0, len(ids))
	for _, id := range ids {
		job, err := q.load(ctx, id)
		if err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (q *Queue) Stats(ctx context.Context) (*Stats, error) {
	pipe := q.client.Pipeline()
	queued := pipe.LLen(ctx, q.keys.queue)
	processing := pipe.LLen(ctx, q.keys.processing)
	delayed := pipe.ZCard(ctx, q.keys.delayed)
	dead := pipe.LLen(ctx, q.keys.dead)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}
	return &Stats{
		Queued:     queued.Val(),
		Processing: processing.Val(),
		Delayed:    delayed.Val(),
		Dead:       dead.Val(),
	}, nil
}

func (q *Queue) load(ctx context.Context, id string) (*Job, error) {
	data, err := q.client.Get(ctx, q.keys.job(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("job %s: %w", id, repositories.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", id, err)
	}
	return &job, nil
}

func (q *Queue) save(ctx context.Context, job *Job) {
	data, err := json.Marshal(job)
	if err != nil {
		q.log.Error("failed to marshal job", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	if err := q.client.Set(ctx, q.keys.job(job.ID), data, jobTTL).Err(); err != nil {
		q.log.Error("failed to update job", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (q *Queue) removeFromProcessing(ctx context.Context, id string) {
	if err := q.client.LRem(ctx, q.keys.processing, 1, id).Err(); err != nil {
		q.log.Error("failed to remove job from processing list", zap.String("job_id", id), zap.Error(err))
	}
}
