package jobqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobType(t *testing.T) {
	assert.Equal(t, "terminal_webhook", string(JobTypeTerminalWebhook))
}

func TestJobStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   JobStatus
		expected string
	}{
		{"Pending", JobStatusPending, "pending"},
		{"Processing", JobStatusProcessing, "processing"},
		{"Completed", JobStatusCompleted, "completed"},
		{"Failed", JobStatusFailed, "failed"},
		{"Retrying", JobStatusRetrying, "retrying"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(tt.status))
		})
	}
}

func TestJob_IsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		job       *Job
		retryable bool
	}{
		{
			name: "Failed job with retries remaining",
			job: &Job{
				Status:     JobStatusFailed,
				RetryCount: 1,
				MaxRetries: 3,
			},
			retryable: true,
		},
		{
			name: "Failed job with no retries remaining",
			job: &Job{
				Status:     JobStatusFailed,
				RetryCount: 3,
				MaxRetries: 3,
			},
			retryable: false,
		},
		{
			name: "Completed job",
			job: &Job{
				Status:     JobStatusCompleted,
				RetryCount: 1,
				MaxRetries: 3,
			},
			retryable: false,
		},
		{
			name: "Pending job",
			job: &Job{
				Status:     JobStatusPending,
				RetryCount: 0,
				MaxRetries: 3,
			},
			retryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, tt.job.IsRetryable())
		})
	}
}

func TestJob_StatusTransitions(t *testing.T) {
	job := &Job{Status: JobStatusPending}

	job.MarkAsProcessing()
	assert.Equal(t, JobStatusProcessing, job.Status)
	assert.NotNil(t, job.ProcessedAt)

	job.MarkAsFailed("boom")
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "boom", job.ErrorMsg)
	assert.Equal(t, 1, job.RetryCount)

	job.MarkAsRetrying()
	assert.Equal(t, JobStatusRetrying, job.Status)

	job.MarkAsCompleted()
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.NotNil(t, job.CompletedAt)
	assert.Empty(t, job.ErrorMsg)
}

func TestTerminalWebhookJobPayloadRoundTrip(t *testing.T) {
	rawBody := []byte(`{"reqtxnid":"a1b2c3","state":"APPROVED"}`)

	payload := NewTerminalWebhookJobPayload(rawBody)
	assert.False(t, payload.ReceivedAt.IsZero())

	restored, err := TerminalWebhookJobPayloadFromMap(payload.ToMap())
	require.NoError(t, err)

	decoded, err := restored.RawBody()
	require.NoError(t, err)
	assert.Equal(t, rawBody, decoded)
}

func TestTerminalWebhookJobPayloadSurvivesBinaryBody(t *testing.T) {
	rawBody := []byte{0x00, 0xff, 0xfe, 0x01, '{', '}'}

	payload := NewTerminalWebhookJobPayload(rawBody)
	restored, err := TerminalWebhookJobPayloadFromMap(payload.ToMap())
	require.NoError(t, err)

	decoded, err := restored.RawBody()
	require.NoError(t, err)
	assert.Equal(t, rawBody, decoded)

	received := payload.ReceivedAt.Truncate(time.Millisecond)
	assert.True(t, restored.ReceivedAt.Truncate(time.Millisecond).Equal(received))
}
