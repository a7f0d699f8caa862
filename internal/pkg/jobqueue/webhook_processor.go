package jobqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tillworks/till/app/models"
	"github.com/tillworks/till/internal/pkg/checkout"
	"github.com/tillworks/till/internal/pkg/database"
)

var (
	checkoutSvc     *checkout.Service
	checkoutSvcOnce sync.Once
)

// checkoutService returns the shared checkout service for webhook jobs.
func checkoutService() *checkout.Service {
	checkoutSvcOnce.Do(func() {
		checkoutSvc = checkout.NewServiceFromDB(database.GetDB())
	})
	return checkoutSvc
}

// SetCheckoutServiceForTesting replaces the processor's checkout service.
func SetCheckoutServiceForTesting(svc *checkout.Service) {
	checkoutSvcOnce.Do(func() {})
	checkoutSvc = svc
}

// processTerminalWebhookJob runs the out-of-band half of a terminal delivery:
// the transport acknowledgment already went out, so this job must run to
// completion (or retry exhaustion) regardless of the original request.
func (q *Queue) processTerminalWebhookJob(ctx context.Context, job *Job) error {
	payload, err := TerminalWebhookJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("failed to parse terminal webhook payload: %w", err)
	}

	rawBody, err := payload.RawBody()
	if err != nil {
		return fmt.Errorf("failed to decode terminal webhook body: %w", err)
	}

	return checkoutService().ProcessTerminalEvent(rawBody)
}

// retryDelay returns the per-attempt retry backoff unit, configurable via
// app settings.
func retryDelay() time.Duration {
	if settings := models.GetAppSettings(); settings != nil {
		return time.Duration(settings.GetWebhookRetryMinutes()) * time.Minute
	}
	return 2 * time.Minute
}
