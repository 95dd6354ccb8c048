package controllers

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/huntyio/membership/app/repository"
	"github.com/huntyio/membership/internal/pkg/jobqueue"
	"github.com/huntyio/membership/internal/pkg/metrics/counter"
)

const maxListedJobs = 100

// QueueStats is the read side of the job queue
type QueueStats interface {
	GetQueueSize(ctx context.Context) (int64, error)
	GetProcessingSize(ctx context.Context) (int64, error)
	GetJobStats(ctx context.Context) (map[jobqueue.JobStatus]int64, error)
}

// JobsController exposes queue depth, job outcomes and webhook tallies
type JobsController struct {
	queue     QueueStats
	queueRepo repository.QueueRepository
	counters  *counter.Counters
}

// NewJobsController creates a jobs controller
func NewJobsController(queue QueueStats, queueRepo repository.QueueRepository, counters *counter.Counters) *JobsController {
	return &JobsController{queue: queue, queueRepo: queueRepo, counters: counters}
}

// HandleJobStats returns queue sizes and counters
func (jc *JobsController) HandleJobStats(c *fiber.Ctx) error {
	ctx := c.UserContext()

	pending, err := jc.queue.GetQueueSize(ctx)
	if err != nil {
		return jc.unavailable(c, err)
	}
	processing, err := jc.queue.GetProcessingSize(ctx)
	if err != nil {
		return jc.unavailable(c, err)
	}
	stats, err := jc.queue.GetJobStats(ctx)
	if err != nil {
		return jc.unavailable(c, err)
	}
	events, outcomes, err := jc.counters.Snapshot(ctx)
	if err != nil {
		return jc.unavailable(c, err)
	}

	return c.JSON(fiber.Map{
		"queue_size":      pending,
		"processing_size": processing,
		"stats":           stats,
		"webhooks": fiber.Map{
			"events":   events,
			"outcomes": outcomes,
		},
	})
}

// HandleListJobs lists stored job records, optionally filtered by ?status=
func (jc *JobsController) HandleListJobs(c *fiber.Ctx) error {
	ctx := c.UserContext()
	want := jobqueue.JobStatus(strings.ToLower(strings.TrimSpace(c.Query("status"))))

	keys, err := jc.queueRepo.FindKeysByPatterns(ctx, []string{jobqueue.JobKeyPrefix + "*"})
	if err != nil {
		return jc.unavailable(c, err)
	}
	values, err := jc.queueRepo.GetValues(ctx, keys)
	if err != nil {
		return jc.unavailable(c, err)
	}

	jobs := make([]jobqueue.Job, 0, len(values))
	for key, raw := range values {
		var job jobqueue.Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			log.Debugf("[API] skipping unreadable job record %s: %v", key, err)
			continue
		}
		if want != "" && job.Status != want {
			continue
		}
		jobs = append(jobs, job.Redacted())
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].UpdatedAt.After(jobs[j].UpdatedAt) })
	if len(jobs) > maxListedJobs {
		jobs = jobs[:maxListedJobs]
	}

	return c.JSON(fiber.Map{"jobs": jobs, "count": len(jobs)})
}

func (jc *JobsController) unavailable(c *fiber.Ctx, err error) error {
	log.Errorf("[API] job queue read failed: %v", err)
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "queue_unavailable"})
}
