package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// Redis key prefixes
	JobKeyPrefix     = "job:"
	JobQueueKey      = "job_queue"
	JobProcessingKey = "job_processing"
	JobStatsKey      = "job_stats"

	// Webhook pipelines are not idempotent end to end, so jobs run once unless configured otherwise.
	DefaultMaxRetries = 0
	JobTTL            = 24 * time.Hour // Jobs expire after 24 hours

	defaultStuckAge      = 10 * time.Minute
	defaultSweepInterval = time.Minute
)

// ErrNoHandler is recorded on jobs whose type has no registered handler.
var ErrNoHandler = errors.New("no handler registered for job type")

// Handler processes one job. A returned error marks the job failed.
type Handler func(ctx context.Context, job *Job) error

// Queue manages background jobs using Redis
type Queue struct {
	client     *redis.Client
	workers    int
	maxRetries int
	retryDelay time.Duration
	handlers   map[JobType]Handler
	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
}

// NewQueue creates a new job queue
func NewQueue(client *redis.Client, workers, maxRetries int) *Queue {
	if workers <= 0 {
		workers = 3 // Default number of workers
	}
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}

	return &Queue{
		client:     client,
		workers:    workers,
		maxRetries: maxRetries,
		retryDelay: time.Minute,
		handlers:   make(map[JobType]Handler),
		stopCh:     make(chan struct{}),
	}
}

// RegisterHandler binds a handler to a job type. Register before Start.
func (q *Queue) RegisterHandler(jobType JobType, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[jobType] = h
}

func (q *Queue) handler(jobType JobType) Handler {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.handlers[jobType]
}

// Start starts the job queue workers
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return
	}

	q.running = true
	q.stopCh = make(chan struct{})
	log.Infof("[JobQueue] Starting %d workers", q.workers)

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i, q.stopCh)
	}

	// Jobs left in processing by a crashed replica are returned to the queue.
	q.wg.Add(1)
	go q.stuckSweeper(q.stopCh, defaultStuckAge, defaultSweepInterval)
}

// Stop stops the job queue workers
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.running {
		return
	}

	log.Info("[JobQueue] Stopping workers...")
	close(q.stopCh)
	q.running = false
	q.mu.Unlock()
	q.wg.Wait()
	q.mu.Lock()
	log.Info("[JobQueue] All workers stopped")
}

// stuckSweeper periodically scans the processing list and requeues jobs stuck for longer than maxAge
func (q *Queue) stuckSweeper(stopCh <-chan struct{}, maxAge time.Duration, interval time.Duration) {
	defer q.wg.Done()
	log.Infof("[JobQueue] Stuck sweeper running (maxAge=%s, interval=%s)", maxAge, interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			log.Info("[JobQueue] Stuck sweeper stopping")
			return
		case <-ticker.C:
			q.sweepStuck(context.Background(), maxAge, time.Now())
		}
	}
}

// sweepStuck returns jobs that have been processing longer than maxAge to the
// pending list and reports how many were recovered.
func (q *Queue) sweepStuck(ctx context.Context, maxAge time.Duration, now time.Time) int {
	ids, err := q.client.LRange(ctx, JobProcessingKey, 0, -1).Result()
	if err != nil {
		log.Errorf("[JobQueue] Sweeper could not list processing jobs: %v", err)
		return 0
	}

	recovered := 0
	for _, id := range ids {
		job, err := q.GetJob(ctx, id)
		if err != nil || job.Status != JobStatusProcessing {
			// Expired, unreadable or already finished: nothing to run again.
			if err != nil && !errors.Is(err, redis.Nil) {
				log.Warnf("[JobQueue] Sweeper dropping job %s: %v", id, err)
			}
			q.removeFromProcessing(ctx, id)
			continue
		}

		age := now.Sub(job.startedAt())
		if age <= maxAge {
			continue
		}
		log.Warnf("[JobQueue] Recovering stuck job %s (type=%s), age=%s", job.ID, job.Type, age)
		job.ErrorMsg = "recovered by sweeper"
		if err := q.requeueJob(ctx, job); err == nil {
			recovered++
		}
	}
	return recovered
}

// worker pulls jobs until stopCh closes. The blocking pop times out every
// second so a stop request is noticed promptly.
func (q *Queue) worker(id int, stopCh <-chan struct{}) {
	defer q.wg.Done()
	log.Infof("[JobQueue] Worker %d started", id)
	ctx := context.Background()

	for {
		select {
		case <-stopCh:
			log.Infof("[JobQueue] Worker %d stopping", id)
			return
		default:
		}

		job, err := q.dequeueJob(ctx)
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			log.Errorf("[JobQueue] Worker %d: dequeue failed: %v", id, err)
			time.Sleep(time.Second)
			continue
		}

		log.Infof("[JobQueue] Worker %d processing job %s (Type: %s)", id, job.ID, job.Type)
		q.processJob(ctx, job)
	}
}

// EnqueueJob adds a new job to the queue
func (q *Queue) EnqueueJob(ctx context.Context, jobType JobType, payload map[string]interface{}) (*Job, error) {
	if q.client == nil {
		return nil, errors.New("job queue has no redis client")
	}
	job := &Job{
		ID:         uuid.New().String(),
		Type:       jobType,
		Status:     JobStatusPending,
		Payload:    payload,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
		RetryCount: 0,
		MaxRetries: q.maxRetries,
	}

	// Store job data
	jobData, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	jobKey := JobKeyPrefix + job.ID

	// Use a pipeline for atomic operations
	pipe := q.client.Pipeline()
	pipe.Set(ctx, jobKey, jobData, JobTTL)
	pipe.LPush(ctx, JobQueueKey, job.ID)
	pipe.HIncrBy(ctx, JobStatsKey, string(JobStatusPending), 1)

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	log.Infof("[JobQueue] Enqueued job %s (Type: %s)", job.ID, job.Type)
	return job, nil
}

// dequeueJob moves the oldest pending id to the processing list and loads its record
func (q *Queue) dequeueJob(ctx context.Context) (*Job, error) {
	jobID, err := q.client.BRPopLPush(ctx, JobQueueKey, JobProcessingKey, time.Second).Result()
	if err != nil {
		return nil, err
	}

	job, err := q.GetJob(ctx, jobID)
	if err != nil {
		// The record expired or is corrupt; it can never run.
		q.removeFromProcessing(ctx, jobID)
		return nil, fmt.Errorf("load job %s: %w", jobID, err)
	}
	return job, nil
}

// processJob runs one job and records its outcome. Finished records stay in
// redis until JobTTL so they can be listed.
func (q *Queue) processJob(ctx context.Context, job *Job) {
	job.MarkAsProcessing()
	q.updateJob(ctx, job)
	defer q.removeFromProcessing(ctx, job.ID)

	if err := q.runHandler(ctx, job); err != nil {
		q.fail(ctx, job, err)
		return
	}
	job.MarkAsCompleted()
	q.updateJob(ctx, job)
	q.updateJobStats(ctx, JobStatusCompleted, 1)
	log.Infof("[JobQueue] Job %s completed", job.ID)
}

// fail stores the error and schedules a retry while attempts remain
func (q *Queue) fail(ctx context.Context, job *Job, err error) {
	job.MarkAsFailed(err.Error())
	if !job.IsRetryable() {
		log.Errorf("[JobQueue] Job %s failed after %d attempt(s): %v", job.ID, job.RetryCount, err)
		q.updateJob(ctx, job)
		q.updateJobStats(ctx, JobStatusFailed, 1)
		return
	}

	log.Warnf("[JobQueue] Job %s failed, retry %d/%d in %s: %v", job.ID, job.RetryCount, job.MaxRetries, q.retryDelay*time.Duration(job.RetryCount), err)
	job.MarkAsRetrying()
	q.updateJob(ctx, job)
	time.AfterFunc(q.retryDelay*time.Duration(job.RetryCount), func() {
		if err := q.client.LPush(context.Background(), JobQueueKey, job.ID).Err(); err != nil {
			log.Errorf("[JobQueue] Failed to re-enqueue job %s: %v", job.ID, err)
		}
	})
}

// runHandler dispatches to the registered handler, converting panics to errors
func (q *Queue) runHandler(ctx context.Context, job *Job) (err error) {
	h := q.handler(job.Type)
	if h == nil {
		return fmt.Errorf("%w: %s", ErrNoHandler, job.Type)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panic: %v", r)
		}
	}()
	return h(ctx, job)
}

// updateJob updates job data in Redis
func (q *Queue) updateJob(ctx context.Context, job *Job) {
	jobData, err := json.Marshal(job)
	if err != nil {
		log.Errorf("[JobQueue] Failed to marshal job %s: %v", job.ID, err)
		return
	}

	jobKey := JobKeyPrefix + job.ID
	if err := q.client.Set(ctx, jobKey, jobData, JobTTL).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to update job %s: %v", job.ID, err)
	}
}

// requeueJob moves a job back to the pending queue and resets its status
func (q *Queue) requeueJob(ctx context.Context, job *Job) error {
	job.Status = JobStatusPending
	job.UpdatedAt = time.Now()
	q.updateJob(ctx, job)
	// Remove from processing list and push to the end of the queue
	if err := q.client.LRem(ctx, JobProcessingKey, 1, job.ID).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to remove job %s from processing: %v", job.ID, err)
	}
	if err := q.client.RPush(ctx, JobQueueKey, job.ID).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to requeue job %s: %v", job.ID, err)
		return err
	}
	return nil
}

// removeFromProcessing removes a job from the processing queue
func (q *Queue) removeFromProcessing(ctx context.Context, jobID string) {
	if err := q.client.LRem(ctx, JobProcessingKey, 1, jobID).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to remove job %s from processing queue: %v", jobID, err)
	}
}

// updateJobStats updates job statistics
func (q *Queue) updateJobStats(ctx context.Context, status JobStatus, delta int64) {
	if err := q.client.HIncrBy(ctx, JobStatsKey, string(status), delta).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to update job stats: %v", err)
	}
}

// GetJob retrieves a job by ID
func (q *Queue) GetJob(ctx context.Context, jobID string) (*Job, error) {
	jobKey := JobKeyPrefix + jobID
	jobData, err := q.client.Get(ctx, jobKey).Result()
	if err != nil {
		return nil, err
	}

	var job Job
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return &job, nil
}

// GetJobStats returns statistics about job statuses
func (q *Queue) GetJobStats(ctx context.Context) (map[JobStatus]int64, error) {
	stats, err := q.client.HGetAll(ctx, JobStatsKey).Result()
	if err != nil {
		return nil, err
	}

	result := make(map[JobStatus]int64, len(stats))
	for status, count := range stats {
		n, err := strconv.ParseInt(count, 10, 64)
		if err != nil {
			continue
		}
		result[JobStatus(status)] = n
	}
	return result, nil
}

// GetQueueSize returns the number of pending jobs
func (q *Queue) GetQueueSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, JobQueueKey).Result()
}

// GetProcessingSize returns the number of jobs being processed
func (q *Queue) GetProcessingSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, JobProcessingKey).Result()
}
