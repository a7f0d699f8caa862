package jobqueue

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeTerminalWebhook JobType = "terminal_webhook"
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

// TerminalWebhookJobPayload carries one raw terminal delivery from the ack
// path to the background processor. The body is base64-encoded so payloads
// that are not valid UTF-8 survive the JSON round trip intact.
type TerminalWebhookJobPayload struct {
	RawBodyB64 string    `json:"raw_body_b64"`
	ReceivedAt time.Time `json:"received_at"`
}

// NewTerminalWebhookJobPayload wraps a raw delivery body.
func NewTerminalWebhookJobPayload(rawBody []byte) TerminalWebhookJobPayload {
	return TerminalWebhookJobPayload{
		RawBodyB64: base64.StdEncoding.EncodeToString(rawBody),
		ReceivedAt: time.Now(),
	}
}

// RawBody decodes the original delivery body.
func (p TerminalWebhookJobPayload) RawBody() ([]byte, error) {
	return base64.StdEncoding.DecodeString(p.RawBodyB64)
}

// ToMap converts the payload to a map for storage
func (p TerminalWebhookJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"raw_body_b64": p.RawBodyB64,
		"received_at":  p.ReceivedAt.Format(time.RFC3339Nano),
	}
}

// TerminalWebhookJobPayloadFromMap creates a payload from a map
func TerminalWebhookJobPayloadFromMap(data map[string]interface{}) (*TerminalWebhookJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload TerminalWebhookJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
