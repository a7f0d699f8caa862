package controllers

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/tillworks/till/internal/pkg/jobqueue"
	"github.com/tillworks/till/internal/pkg/metrics/counter"
)

// WebhookEnqueuer hands a delivery off to the background queue.
type WebhookEnqueuer interface {
	EnqueueJob(jobType jobqueue.JobType, payload map[string]interface{}) (*jobqueue.Job, error)
}

var (
	webhookEnqueuer     WebhookEnqueuer
	webhookEnqueuerOnce sync.Once
)

// InitializeWebhookController wires the queue used for out-of-band webhook
// processing. Tests inject a capture fake.
func InitializeWebhookController(enqueuer WebhookEnqueuer) {
	webhookEnqueuerOnce.Do(func() {})
	webhookEnqueuer = enqueuer
}

func getWebhookEnqueuer() WebhookEnqueuer {
	webhookEnqueuerOnce.Do(func() {
		if webhookEnqueuer == nil {
			webhookEnqueuer = jobqueue.GetManager().GetQueue()
		}
	})
	return webhookEnqueuer
}

// HandleTerminalWebhook acknowledges a payment-terminal delivery. The
// response is a transport-level ack only: it goes out before any database
// work, and malformed bodies are acknowledged too, so the terminal's retry
// logic is never triggered by our downstream state. Everything of substance
// happens in the enqueued job.
func HandleTerminalWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	counter.AddWebhookReceived()

	payload := jobqueue.NewTerminalWebhookJobPayload(rawBody)
	if _, err := getWebhookEnqueuer().EnqueueJob(jobqueue.JobTypeTerminalWebhook, payload.ToMap()); err != nil {
		// The delivery is lost to us, but the terminal redelivers on its own
		// schedule; failing the ack would only multiply traffic.
		log.Errorf("[Webhook] Failed to enqueue terminal delivery (%d bytes): %v", len(rawBody), err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}
