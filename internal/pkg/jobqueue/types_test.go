package jobqueue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobConstants(t *testing.T) {
	assert.Equal(t, "treli_webhook", string(JobTypeTreliWebhook))
	for status, want := range map[JobStatus]string{
		JobStatusPending:    "pending",
		JobStatusProcessing: "processing",
		JobStatusCompleted:  "completed",
		JobStatusFailed:     "failed",
		JobStatusRetrying:   "retrying",
	} {
		assert.Equal(t, want, string(status))
	}
}

func TestJobLifecycle(t *testing.T) {
	start := time.Now()
	job := &Job{ID: "j1", Type: JobTypeTreliWebhook, Status: JobStatusPending, MaxRetries: 1}

	job.MarkAsProcessing()
	assert.Equal(t, JobStatusProcessing, job.Status)
	require.NotNil(t, job.ProcessedAt)
	assert.False(t, job.ProcessedAt.Before(start))
	assert.Equal(t, *job.ProcessedAt, job.UpdatedAt)

	job.MarkAsFailed("update_status: 502")
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "update_status: 502", job.ErrorMsg)
	assert.Equal(t, 1, job.RetryCount)
	assert.False(t, job.IsRetryable(), "one attempt used, one allowed")

	job.MaxRetries = 2
	assert.True(t, job.IsRetryable())
	job.MarkAsRetrying()
	assert.Equal(t, JobStatusRetrying, job.Status)
	assert.False(t, job.IsRetryable(), "only failed jobs are retried")

	job.MarkAsCompleted()
	assert.Equal(t, JobStatusCompleted, job.Status)
	require.NotNil(t, job.CompletedAt)
	assert.Empty(t, job.ErrorMsg)
	assert.False(t, job.UpdatedAt.Before(*job.ProcessedAt))
}

func TestJobIsRetryableWithDefaultRetries(t *testing.T) {
	job := &Job{Status: JobStatusFailed, MaxRetries: DefaultMaxRetries}
	assert.False(t, job.IsRetryable())
}

func TestTreliWebhookJobPayload(t *testing.T) {
	payload := TreliWebhookJobPayload{
		EventLogID: 42,
		Pipeline:   "payment",
		Body:       `{"event_type":"payment_approved"}`,
	}

	// A job read back from redis carries JSON numbers as float64.
	raw, err := json.Marshal(&Job{ID: "j1", Type: JobTypeTreliWebhook, Payload: payload.ToMap()})
	require.NoError(t, err)
	var stored Job
	require.NoError(t, json.Unmarshal(raw, &stored))
	assert.Equal(t, float64(42), stored.Payload["event_log_id"])

	decoded, err := TreliWebhookJobPayloadFromMap(stored.Payload)
	require.NoError(t, err)
	assert.Equal(t, payload, *decoded)

	_, err = TreliWebhookJobPayloadFromMap(map[string]interface{}{"event_log_id": "not-a-number"})
	assert.Error(t, err)
}

func TestJobRedacted(t *testing.T) {
	job := Job{ID: "j1", Payload: TreliWebhookJobPayload{EventLogID: 7, Pipeline: "subscription", Body: "{}"}.ToMap()}

	redacted := job.Redacted()
	assert.NotContains(t, redacted.Payload, "body")
	assert.Equal(t, "subscription", redacted.Payload["pipeline"])
	assert.Contains(t, job.Payload, "body", "the original job is left untouched")
}

func TestJobStartedAt(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	updated := created.Add(time.Minute)
	processed := created.Add(2 * time.Minute)

	assert.Equal(t, created, (&Job{CreatedAt: created}).startedAt())
	assert.Equal(t, updated, (&Job{CreatedAt: created, UpdatedAt: updated}).startedAt())
	assert.Equal(t, processed, (&Job{CreatedAt: created, UpdatedAt: updated, ProcessedAt: &processed}).startedAt())
}
