package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeTreliWebhook JobType = "treli_webhook"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// TreliWebhookJobPayload carries a recorded webhook delivery to a worker.
// Body is the raw request body; the worker re-parses it.
type TreliWebhookJobPayload struct {
	EventLogID uint   `json:"event_log_id"`
	Pipeline   string `json:"pipeline"`
	Body       string `json:"body"`
}

// ToMap converts the payload to a map for storage
func (p TreliWebhookJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"event_log_id": p.EventLogID,
		"pipeline":     p.Pipeline,
		"body":         p.Body,
	}
}

// TreliWebhookJobPayloadFromMap creates a payload from a map
func TreliWebhookJobPayloadFromMap(data map[string]interface{}) (*TreliWebhookJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload TreliWebhookJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// IsRetryable reports whether a failed job has attempts left
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// Redacted returns a copy without the raw webhook body, for listings.
// Bodies carry billing contact data; the event log keeps them.
func (j Job) Redacted() Job {
	payload := make(map[string]interface{}, len(j.Payload))
	for k, v := range j.Payload {
		if k != "body" {
			payload[k] = v
		}
	}
	j.Payload = payload
	return j
}

// startedAt is when the current attempt began, falling back to the last
// update or creation time for records written without one
func (j *Job) startedAt() time.Time {
	switch {
	case j.ProcessedAt != nil && !j.ProcessedAt.IsZero():
		return *j.ProcessedAt
	case !j.UpdatedAt.IsZero():
		return j.UpdatedAt
	default:
		return j.CreatedAt
	}
}

func (j *Job) setStatus(status JobStatus) time.Time {
	now := time.Now()
	j.Status = status
	j.UpdatedAt = now
	return now
}

// MarkAsProcessing records that a worker picked the job up
func (j *Job) MarkAsProcessing() {
	now := j.setStatus(JobStatusProcessing)
	j.ProcessedAt = &now
}

// MarkAsCompleted clears any error left by an earlier attempt
func (j *Job) MarkAsCompleted() {
	now := j.setStatus(JobStatusCompleted)
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed stores the pipeline error and counts the attempt
func (j *Job) MarkAsFailed(errorMsg string) {
	j.setStatus(JobStatusFailed)
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

func (j *Job) MarkAsRetrying() {
	j.setStatus(JobStatusRetrying)
}
