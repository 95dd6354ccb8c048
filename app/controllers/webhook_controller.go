package controllers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/huntyio/membership/app/models"
	"github.com/huntyio/membership/app/repository"
	"github.com/huntyio/membership/internal/pkg/jobqueue"
	"github.com/huntyio/membership/internal/pkg/metrics/counter"
	"github.com/huntyio/membership/internal/pkg/reconcile"
	"github.com/huntyio/membership/internal/pkg/treli"
)

const asyncAcceptedMessage = "webhooks received and queued for asynchronous processing"

// PipelineRunner executes a reconciliation pipeline for one event
type PipelineRunner interface {
	Run(ctx context.Context, pipeline string, ev *treli.WebhookEvent) (interface{}, error)
}

// JobEnqueuer hands work to the background queue
type JobEnqueuer interface {
	EnqueueJob(ctx context.Context, jobType jobqueue.JobType, payload map[string]interface{}) (*jobqueue.Job, error)
}

// WebhookController receives Treli deliveries
type WebhookController struct {
	events      repository.WebhookEventRepository
	runner      PipelineRunner
	queue       JobEnqueuer
	counters    *counter.Counters
	secret      string
	syncTimeout time.Duration
	detached    sync.WaitGroup
}

// NewWebhookController wires the webhook endpoint. An empty secret disables signature checks.
func NewWebhookController(events repository.WebhookEventRepository, runner PipelineRunner, queue JobEnqueuer, counters *counter.Counters, secret string, syncTimeout time.Duration) *WebhookController {
	if syncTimeout <= 0 {
		syncTimeout = 60 * time.Second
	}
	return &WebhookController{
		events:      events,
		runner:      runner,
		queue:       queue,
		counters:    counters,
		secret:      strings.TrimSpace(secret),
		syncTimeout: syncTimeout,
	}
}

// HandleTreliWebhook accepts a delivery, records it once and runs or queues its pipeline
func (wc *WebhookController) HandleTreliWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)

	if wc.secret != "" && !treli.VerifySignature(rawBody, c.Get(treli.SignatureHeader), wc.secret) {
		wc.count(c.Context(), "", counter.OutcomeRejected)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}

	ev, err := treli.ParseEvent(rawBody)
	if err != nil {
		wc.count(c.Context(), "", counter.OutcomeRejected)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload", "message": err.Error()})
	}
	if err := validateContent(ev); err != nil {
		wc.count(c.Context(), ev.EventType, counter.OutcomeRejected)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload", "message": err.Error()})
	}
	pipeline := reconcile.Classify(ev)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	created, stored, err := wc.events.CreateIfNotExists(ctx, &models.TreliWebhookEvent{
		EventKey:       EventKey(rawBody),
		EventType:      ev.EventType,
		Pipeline:       pipeline,
		PayloadJSON:    string(rawBody),
		SignatureValid: wc.secret != "",
	})
	if err != nil {
		log.Errorf("[Webhook] Failed to persist %s delivery: %v", ev.EventType, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !created {
		if stored.ProcessedAt != nil && stored.ProcessingError == "" {
			wc.count(ctx, ev.EventType, counter.OutcomeDuplicate)
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
		}
		// Failed or not yet processed: run again on the stored row.
		log.Infof("[Webhook] Redelivery of event %d (%s), running %s pipeline again", stored.ID, ev.EventType, pipeline)
	}

	if c.QueryBool("test") {
		return wc.runSync(c, stored.ID, pipeline, ev)
	}

	payload := jobqueue.TreliWebhookJobPayload{EventLogID: stored.ID, Pipeline: pipeline, Body: string(rawBody)}
	if _, err := wc.queue.EnqueueJob(ctx, jobqueue.JobTypeTreliWebhook, payload.ToMap()); err != nil {
		log.Warnf("[Webhook] Enqueue failed, running %s pipeline in background: %v", pipeline, err)
		wc.count(ctx, ev.EventType, counter.OutcomeFallback)
		wc.detached.Add(1)
		go wc.runDetached(stored.ID, pipeline, ev)
	} else {
		wc.count(ctx, ev.EventType, counter.OutcomeQueued)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"ok":       true,
		"message":  asyncAcceptedMessage,
		"pipeline": pipeline,
	})
}

func (wc *WebhookController) runSync(c *fiber.Ctx, eventLogID uint, pipeline string, ev *treli.WebhookEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), wc.syncTimeout)
	defer cancel()

	result, err := wc.execute(ctx, eventLogID, pipeline, ev)
	if err != nil {
		return c.Status(fiber.StatusFailedDependency).JSON(fiber.Map{"error": "dependency_failed", "message": err.Error()})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "pipeline": pipeline, "result": result})
}

func (wc *WebhookController) runDetached(eventLogID uint, pipeline string, ev *treli.WebhookEvent) {
	defer wc.detached.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[Webhook] Background %s pipeline panic: %v", pipeline, r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), wc.syncTimeout)
	defer cancel()
	_, _ = wc.execute(ctx, eventLogID, pipeline, ev)
}

// Wait blocks until background pipelines started after an enqueue failure
// finish, or the timeout passes. It reports whether they all finished.
func (wc *WebhookController) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wc.detached.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// ProcessJob is the jobqueue handler for queued deliveries
func (wc *WebhookController) ProcessJob(ctx context.Context, job *jobqueue.Job) error {
	payload, err := jobqueue.TreliWebhookJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("decode job payload: %w", err)
	}
	ev, err := treli.ParseEvent([]byte(payload.Body))
	if err != nil {
		wc.markProcessed(payload.EventLogID, err)
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, wc.syncTimeout)
	defer cancel()
	_, err = wc.execute(ctx, payload.EventLogID, payload.Pipeline, ev)
	return err
}

// execute runs the pipeline and records the outcome on the event log
func (wc *WebhookController) execute(ctx context.Context, eventLogID uint, pipeline string, ev *treli.WebhookEvent) (interface{}, error) {
	result, err := wc.runner.Run(ctx, pipeline, ev)
	wc.markProcessed(eventLogID, err)
	if err != nil {
		wc.count(context.Background(), ev.EventType, counter.OutcomeFailed)
		if !errors.Is(err, reconcile.ErrDependencyFailed) {
			err = fmt.Errorf("%w: %v", reconcile.ErrDependencyFailed, err)
		}
		log.Errorf("[Webhook] %s pipeline for %s failed: %v", pipeline, ev.EventType, err)
		return nil, err
	}
	wc.count(context.Background(), ev.EventType, counter.OutcomeProcessed)
	return result, nil
}

func (wc *WebhookController) markProcessed(eventLogID uint, runErr error) {
	if eventLogID == 0 {
		return
	}
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wc.events.MarkProcessed(ctx, eventLogID, msg); err != nil {
		log.Warnf("[Webhook] Failed to mark event %d processed: %v", eventLogID, err)
	}
}

func (wc *WebhookController) count(ctx context.Context, eventType, outcome string) {
	if err := wc.counters.AddEvent(ctx, eventType, outcome); err != nil {
		log.Debugf("[Webhook] counter update failed: %v", err)
	}
}

// validateContent decodes the content in the shape of the event family so
// malformed deliveries are rejected before they are recorded
func validateContent(ev *treli.WebhookEvent) error {
	if ev.IsPaymentEvent() {
		_, err := ev.PaymentContent()
		return err
	}
	_, err := ev.SubscriptionContent()
	return err
}

// EventKey is the deduplication key of a delivery: the hex SHA-256 of its raw body
func EventKey(rawBody []byte) string {
	sum := sha256.Sum256(rawBody)
	return hex.EncodeToString(sum[:])
}
